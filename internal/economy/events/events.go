package events

import (
	"time"

	"github.com/agoramesh/agora-backend/internal/economy/types"
)

type EventType string

// Inbound event types, produced by the task-lifecycle and governance sources.
const (
	TaskCreated     EventType = "TASK_CREATED"
	BidSubmitted    EventType = "BID_SUBMITTED"
	TaskCompleted   EventType = "TASK_COMPLETED"
	TaskFailed      EventType = "TASK_FAILED"
	ProtocolPropose EventType = "PROTOCOL_PROPOSE"
	ProtocolVote    EventType = "PROTOCOL_VOTE"
)

// Outbound event types, emitted by the economy engine.
const (
	TrustAwarded      EventType = "TRUST_AWARDED"
	TrustSlashed      EventType = "TRUST_SLASHED"
	TokensStaked      EventType = "TOKENS_STAKED"
	TokensReleased    EventType = "TOKENS_RELEASED"
	ReputationUpdated EventType = "REPUTATION_UPDATED"
	AuctionResolved   EventType = "AUCTION_RESOLVED"
	ProposalFinalized EventType = "PROPOSAL_FINALIZED"
	ProtocolUpdated   EventType = "PROTOCOL_UPDATED"
)

type TaskCreatedEvent struct {
	TaskID     string    `json:"task_id"`
	WindowEnds time.Time `json:"window_ends"`
}

type BidSubmittedEvent struct {
	Bid types.Bid `json:"bid"`
}

type TaskCompletedEvent struct {
	TaskID  string                   `json:"task_id"`
	Metrics types.PerformanceMetrics `json:"metrics"`
}

type TaskFailedEvent struct {
	TaskID   string                `json:"task_id"`
	Severity types.FailureSeverity `json:"severity"`
}

type LedgerChangeEvent struct {
	TaskID     string `json:"task_id,omitempty"`
	Delta      int64  `json:"delta"`
	NewBalance int64  `json:"new_balance"`
	Reason     string `json:"reason"`
}

type ReputationUpdatedEvent struct {
	OldMillirep int64  `json:"old_millirep"`
	NewMillirep int64  `json:"new_millirep"`
	Context     string `json:"context"`
}

type AuctionResolvedEvent struct {
	TaskID   string             `json:"task_id"`
	State    types.AuctionState `json:"state"`
	WinnerID string             `json:"winner_id,omitempty"`
	BidCount int                `json:"bid_count"`
}

type ProposalFinalizedEvent struct {
	ProposalID   string `json:"proposal_id"`
	ProtocolName string `json:"protocol_name"`
	Approved     bool   `json:"approved"`
	RatioBps     int64  `json:"ratio_bps"`
}

type ProtocolUpdatedEvent struct {
	Name       string `json:"name"`
	OldVersion string `json:"old_version"`
	NewVersion string `json:"new_version"`
	ProposalID string `json:"proposal_id"`
}

// Event represents a generic event in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// Publisher is the narrow outbound sink the engine components depend on.
// The process-level event bus satisfies it; tests use an in-memory recorder.
type Publisher interface {
	Publish(event Event)
}
