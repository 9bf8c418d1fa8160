package store

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/agoramesh/agora-backend/pkg/client/redis"
	"github.com/agoramesh/agora-backend/pkg/logging"

	"github.com/agoramesh/agora-backend/internal/economy/types"
)

const auditStreamKey = "agora:audit"

// AuditStream appends balance-changing operations to a Redis stream. Entries
// are append-only; nothing in the engine ever reads them back, they exist
// for external reconciliation.
type AuditStream struct {
	client *redisclient.Client
	logger logging.Logger
}

func NewAuditStream(client *redisclient.Client, logger logging.Logger) *AuditStream {
	return &AuditStream{
		client: client,
		logger: logger.With("component", "audit_stream"),
	}
}

// Append writes one audit entry. Append failures are reported to the caller
// but must never block or fail the originating balance operation; the ledger
// calls this from a detached goroutine.
func (s *AuditStream) Append(ctx context.Context, record types.AuditRecord) error {
	id, err := s.client.XAdd(ctx, auditStreamKey, map[string]interface{}{
		"type":      record.Type,
		"amount":    record.Amount,
		"reason":    record.Reason,
		"timestamp": record.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	s.logger.Debugf("Appended audit record %s type=%s amount=%d", id, record.Type, record.Amount)
	return nil
}

// Length returns the number of entries in the audit stream.
func (s *AuditStream) Length(ctx context.Context) (int64, error) {
	return s.client.XLen(ctx, auditStreamKey)
}
