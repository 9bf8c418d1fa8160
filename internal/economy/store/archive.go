package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agoramesh/agora-backend/pkg/database"
	"github.com/agoramesh/agora-backend/pkg/logging"

	"github.com/agoramesh/agora-backend/internal/economy/types"
)

// ArchiveStore writes immutable task records and finalized proposals to the
// archive database. It satisfies both the outcome processor's and the
// governance engine's Archiver interfaces.
type ArchiveStore struct {
	conn   *database.Connection
	logger logging.Logger
}

func NewArchiveStore(conn *database.Connection, logger logging.Logger) *ArchiveStore {
	return &ArchiveStore{
		conn:   conn,
		logger: logger.With("component", "archive_store"),
	}
}

// SaveTaskRecord inserts one resolved task. Records are write-once; a
// repeated insert for the same task ID overwrites with identical data.
func (s *ArchiveStore) SaveTaskRecord(ctx context.Context, record types.TaskRecord) error {
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal task metrics: %w", err)
	}

	query := s.conn.Session().Query(
		`INSERT INTO task_records (task_id, status, staked_amount, reward_amount, penalty_amount, metrics, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.TaskID,
		string(record.Status),
		record.StakedAmount,
		record.RewardAmount,
		record.PenaltyAmount,
		string(metrics),
		record.ResolvedAt,
	).WithContext(ctx)
	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to archive task record %s: %w", record.TaskID, err)
	}

	s.logger.Debugf("Archived task record %s (%s)", record.TaskID, record.Status)
	return nil
}

// SaveProposal inserts one finalized proposal with its full vote set.
func (s *ArchiveStore) SaveProposal(ctx context.Context, proposal types.Proposal) error {
	votes, err := json.Marshal(proposal.Votes)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal votes: %w", err)
	}

	query := s.conn.Session().Query(
		`INSERT INTO proposal_archive (proposal_id, protocol_name, current_version, proposed_version, proposer_id, status, consensus_ratio_bps, votes, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		proposal.ID,
		proposal.ProtocolName,
		proposal.CurrentVersion,
		proposal.ProposedVersion,
		proposal.ProposerID,
		string(proposal.Status),
		proposal.ConsensusRatioBps,
		string(votes),
		proposal.CreatedAt,
		proposal.ExpiresAt,
	).WithContext(ctx)
	if err := query.Exec(); err != nil {
		return fmt.Errorf("failed to archive proposal %s: %w", proposal.ID, err)
	}

	s.logger.Debugf("Archived proposal %s (%s)", proposal.ID, proposal.Status)
	return nil
}
