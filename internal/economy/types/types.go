package types

import (
	"time"
)

// All economic arithmetic is fixed-point so that ledger results are
// deterministic and auditable across platforms:
//
//   - token amounts are whole int64 tokens
//   - reputation is int64 millirep (1.0 rep = 1000)
//   - rates, fractions and normalized factors are int64 basis points
//     (10000 = 1.0)
//   - bid scores are int64 centipoints (a score of 87.25 is 8725)
const (
	BpsDenominator = int64(10000)
	MillirepPerRep = int64(1000)
)

// VoteChoice is a governance vote.
type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
)

// AuctionState is the per-task auction lifecycle state.
type AuctionState string

const (
	AuctionOpen      AuctionState = "open"
	AuctionSelecting AuctionState = "selecting"
	AuctionAwarded   AuctionState = "awarded"
	AuctionNoBids    AuctionState = "no_bids"
	AuctionCompleted AuctionState = "completed"
	AuctionFailed    AuctionState = "failed"
)

// ProposalStatus is the governance proposal lifecycle state.
type ProposalStatus string

const (
	ProposalActive   ProposalStatus = "active"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// FailureSeverity grades a task failure for penalty computation.
type FailureSeverity string

const (
	SeverityLow      FailureSeverity = "low"
	SeverityMedium   FailureSeverity = "medium"
	SeverityHigh     FailureSeverity = "high"
	SeverityCritical FailureSeverity = "critical"
)

// SeverityRateBps returns the stake fraction slashed for a failure severity.
// Unknown severities are treated as critical.
func SeverityRateBps(severity FailureSeverity) int64 {
	switch severity {
	case SeverityLow:
		return 2000
	case SeverityMedium:
		return 5000
	case SeverityHigh:
		return 8000
	case SeverityCritical:
		return 10000
	default:
		return 10000
	}
}

// Bid is a sealed auction bid for one task. Created on submission and
// archived unchanged once the auction resolves.
type Bid struct {
	TaskID            string    `json:"task_id"`
	BidderID          string    `json:"bidder_id"`
	ConfidenceBps     int64     `json:"confidence_bps"` // clamped to [0, 10000]
	StakeAmount       int64     `json:"stake_amount"`
	ResourceOffer     int64     `json:"resource_offer"` // 0-100
	EstimatedDuration int64     `json:"estimated_duration_ms"`
	ScoreCenti        int64     `json:"score_centi"`
	SubmittedAt       time.Time `json:"submitted_at"`
	SignatureVerdict  string    `json:"signature_verdict"` // opaque, supplied by the signing collaborator
}

// PerformanceMetrics is the outcome snapshot used for reward computation.
// Each factor is in basis points of its ideal value.
type PerformanceMetrics struct {
	EfficiencyBps    int64 `json:"efficiency_bps"`
	QualityBps       int64 `json:"quality_bps"`
	TimelinessBps    int64 `json:"timeliness_bps"`
	ResourceUsageBps int64 `json:"resource_usage_bps"`
}

// TaskRecord is the immutable audit record written once per task at
// resolution.
type TaskRecord struct {
	TaskID        string             `json:"task_id"`
	Status        AuctionState       `json:"status"` // completed or failed
	StakedAmount  int64              `json:"staked_amount"`
	RewardAmount  int64              `json:"reward_amount"`
	PenaltyAmount int64              `json:"penalty_amount"`
	Metrics       PerformanceMetrics `json:"metrics"`
	ResolvedAt    time.Time          `json:"resolved_at"`
}

// VoteEntry is one voter's recorded governance vote. A later vote from the
// same voter overwrites the earlier one; reputation is captured at vote
// time, not re-fetched at finalize.
type VoteEntry struct {
	Choice             VoteChoice `json:"choice"`
	ReputationMillirep int64      `json:"reputation_millirep"`
	Timestamp          time.Time  `json:"timestamp"`
}

// Proposal is a pending request to change the version of a named protocol.
type Proposal struct {
	ID                 string               `json:"id"`
	ProtocolName       string               `json:"protocol_name"`
	CurrentVersion     string               `json:"current_version"`
	ProposedVersion    string               `json:"proposed_version"`
	ChangePayload      string               `json:"change_payload"`
	ProposerID         string               `json:"proposer_id"`
	ProposerReputation int64                `json:"proposer_reputation_millirep"`
	CreatedAt          time.Time            `json:"created_at"`
	ExpiresAt          time.Time            `json:"expires_at"`
	Votes              map[string]VoteEntry `json:"votes"`
	Status             ProposalStatus       `json:"status"`
	ConsensusRatioBps  int64                `json:"consensus_ratio_bps"`
}

// AccountSnapshot is the persisted view of the local account.
type AccountSnapshot struct {
	AgentID            string           `json:"agent_id"`
	Balance            int64            `json:"balance"`
	LockedStakes       map[string]int64 `json:"locked_stakes"`
	ReputationMillirep int64            `json:"reputation_millirep"`
	TakenAt            time.Time        `json:"taken_at"`
}

// AuditRecord is one append-only entry sent to the external audit ledger.
type AuditRecord struct {
	Type      string    `json:"type"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ProtocolInfo describes one named protocol in the registry.
type ProtocolInfo struct {
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	Immutable      bool      `json:"immutable"`
	VersionHistory []string  `json:"version_history"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ClampBps clamps a basis-point value to [0, 10000].
func ClampBps(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > BpsDenominator {
		return BpsDenominator
	}
	return v
}
