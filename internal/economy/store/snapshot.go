package store

import (
	"context"
	"encoding/json"
	"fmt"

	redisclient "github.com/agoramesh/agora-backend/pkg/client/redis"
	"github.com/agoramesh/agora-backend/pkg/logging"
	"github.com/agoramesh/agora-backend/pkg/retry"

	"github.com/agoramesh/agora-backend/internal/economy/types"
)

const (
	accountSnapshotKeyPrefix = "agora:account:"
	protocolRegistryKey      = "agora:protocols"
)

// SnapshotStore persists account and protocol-registry snapshots in the
// external key-value collaborator. Reads and writes retry with backoff; the
// engine only calls this from the persistence loop, never from the hot
// mutation path.
type SnapshotStore struct {
	client      *redisclient.Client
	retryConfig *retry.RetryConfig
	logger      logging.Logger
}

// NewSnapshotStore wraps a connected Redis client.
func NewSnapshotStore(client *redisclient.Client, logger logging.Logger) *SnapshotStore {
	return &SnapshotStore{
		client:      client,
		retryConfig: retry.DefaultRetryConfig(),
		logger:      logger.With("component", "snapshot_store"),
	}
}

// SaveAccountSnapshot persists the account view keyed by agent ID.
func (s *SnapshotStore) SaveAccountSnapshot(ctx context.Context, snapshot types.AccountSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal account snapshot: %w", err)
	}
	key := accountSnapshotKeyPrefix + snapshot.AgentID
	return retry.RetryFunc(ctx, func() error {
		return s.client.Set(ctx, key, payload, 0)
	}, s.retryConfig, s.logger)
}

// LoadAccountSnapshot returns the persisted account view, or found=false
// when none exists.
func (s *SnapshotStore) LoadAccountSnapshot(ctx context.Context, agentID string) (types.AccountSnapshot, bool, error) {
	var snapshot types.AccountSnapshot

	value, err := retry.Retry(ctx, func() (string, error) {
		value, err := s.client.Get(ctx, accountSnapshotKeyPrefix+agentID)
		if redisclient.IsNotFound(err) {
			return "", nil
		}
		return value, err
	}, s.retryConfig, s.logger)
	if err != nil {
		return snapshot, false, err
	}
	if value == "" {
		return snapshot, false, nil
	}

	if err := json.Unmarshal([]byte(value), &snapshot); err != nil {
		return snapshot, false, fmt.Errorf("failed to unmarshal account snapshot: %w", err)
	}
	return snapshot, true, nil
}

// SaveProtocolRegistry persists the protocol registry snapshot.
func (s *SnapshotStore) SaveProtocolRegistry(ctx context.Context, protocols []types.ProtocolInfo) error {
	payload, err := json.Marshal(protocols)
	if err != nil {
		return fmt.Errorf("failed to marshal protocol registry: %w", err)
	}
	return retry.RetryFunc(ctx, func() error {
		return s.client.Set(ctx, protocolRegistryKey, payload, 0)
	}, s.retryConfig, s.logger)
}

// LoadProtocolRegistry returns the persisted registry snapshot, or
// found=false when none exists.
func (s *SnapshotStore) LoadProtocolRegistry(ctx context.Context) ([]types.ProtocolInfo, bool, error) {
	value, err := retry.Retry(ctx, func() (string, error) {
		value, err := s.client.Get(ctx, protocolRegistryKey)
		if redisclient.IsNotFound(err) {
			return "", nil
		}
		return value, err
	}, s.retryConfig, s.logger)
	if err != nil {
		return nil, false, err
	}
	if value == "" {
		return nil, false, nil
	}

	var protocols []types.ProtocolInfo
	if err := json.Unmarshal([]byte(value), &protocols); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal protocol registry: %w", err)
	}
	return protocols, true, nil
}
