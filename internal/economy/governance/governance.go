package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/agoramesh/agora-backend/internal/economy/events"
	"github.com/agoramesh/agora-backend/internal/economy/types"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

var (
	ErrProposalNotFound       = errors.New("proposal not found")
	ErrProposalExpired        = errors.New("proposal voting window closed")
	ErrInsufficientReputation = errors.New("insufficient reputation")
)

// Archiver persists finalized proposals for audit and history.
type Archiver interface {
	SaveProposal(ctx context.Context, proposal types.Proposal) error
}

// Config holds the consensus parameters.
type Config struct {
	MinProposalReputationMillirep int64
	MinVotingReputationMillirep   int64
	ConsensusThresholdBps         int64
	VotingWindow                  time.Duration
}

// DefaultConfig returns the default governance parameters: proposing takes
// 500 rep, voting takes 100 rep, approval takes a 67% reputation-weighted
// majority within a 5 minute window.
func DefaultConfig() Config {
	return Config{
		MinProposalReputationMillirep: 500_000,
		MinVotingReputationMillirep:   100_000,
		ConsensusThresholdBps:         6700,
		VotingWindow:                  5 * time.Minute,
	}
}

type trackedProposal struct {
	proposal *types.Proposal
	timer    *clock.Timer
	cancel   chan struct{}
}

// Engine runs one time-boxed, reputation-weighted vote per proposal and
// finalizes it from the locally observed vote set at the local deadline.
// Absence of quorum defaults to rejection, never approval. Two nodes that
// observed different vote subsets may finalize differently; reconciliation
// is out of scope (local-view semantics).
type Engine struct {
	mu        sync.Mutex
	proposals map[string]*trackedProposal

	config    Config
	registry  *Registry
	archiver  Archiver
	publisher events.Publisher
	clock     clock.Clock
	logger    logging.Logger
}

// New creates a consensus engine over the given protocol registry.
// archiver may be nil when no archive store is configured.
func New(config Config, registry *Registry, archiver Archiver, publisher events.Publisher, clk clock.Clock, logger logging.Logger) *Engine {
	return &Engine{
		proposals: make(map[string]*trackedProposal),
		config:    config,
		registry:  registry,
		archiver:  archiver,
		publisher: publisher,
		clock:     clk,
		logger:    logger.With("component", "consensus_engine"),
	}
}

// Propose opens a vote on changing protocolName to proposedVersion. The
// proposer's reputation is captured at proposal time. Immutable protocols
// reject the proposal outright; no vote can override that.
func (e *Engine) Propose(protocolName, proposedVersion, changePayload, proposerID string, proposerReputation int64) (*types.Proposal, error) {
	protocol, exists := e.registry.Get(protocolName)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotFound, protocolName)
	}
	if protocol.Immutable {
		return nil, fmt.Errorf("%w: %s", ErrProtocolImmutable, protocolName)
	}
	if proposerReputation < e.config.MinProposalReputationMillirep {
		return nil, fmt.Errorf("%w: proposing requires %d millirep, have %d",
			ErrInsufficientReputation, e.config.MinProposalReputationMillirep, proposerReputation)
	}

	now := e.clock.Now().UTC()
	proposal := &types.Proposal{
		ID:                 uuid.NewString(),
		ProtocolName:       protocolName,
		CurrentVersion:     protocol.Version,
		ProposedVersion:    proposedVersion,
		ChangePayload:      changePayload,
		ProposerID:         proposerID,
		ProposerReputation: proposerReputation,
		CreatedAt:          now,
		ExpiresAt:          now.Add(e.config.VotingWindow),
		Votes:              make(map[string]types.VoteEntry),
		Status:             types.ProposalActive,
	}

	tracked := &trackedProposal{
		proposal: proposal,
		timer:    e.clock.Timer(e.config.VotingWindow),
		cancel:   make(chan struct{}),
	}

	e.mu.Lock()
	e.proposals[proposal.ID] = tracked
	e.mu.Unlock()

	go func() {
		select {
		case <-tracked.timer.C:
			if err := e.Finalize(proposal.ID); err != nil {
				e.logger.Error("Failed to finalize proposal at deadline", "proposal_id", proposal.ID, "error", err)
			}
		case <-tracked.cancel:
			tracked.timer.Stop()
		}
	}()

	e.logger.Info("Proposal opened",
		"proposal_id", proposal.ID,
		"protocol", protocolName,
		"proposed_version", proposedVersion,
		"expires_at", proposal.ExpiresAt,
	)
	return proposal, nil
}

// Vote records a voter's choice with their reputation captured at vote
// time. A later vote from the same voter overwrites the earlier one.
func (e *Engine) Vote(proposalID, voterID string, choice types.VoteChoice, voterReputation int64) error {
	if voterReputation < e.config.MinVotingReputationMillirep {
		return fmt.Errorf("%w: voting requires %d millirep, have %d",
			ErrInsufficientReputation, e.config.MinVotingReputationMillirep, voterReputation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tracked, exists := e.proposals[proposalID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}
	proposal := tracked.proposal
	if proposal.Status != types.ProposalActive || !e.clock.Now().Before(proposal.ExpiresAt) {
		return fmt.Errorf("%w: %s", ErrProposalExpired, proposalID)
	}

	proposal.Votes[voterID] = types.VoteEntry{
		Choice:             choice,
		ReputationMillirep: voterReputation,
		Timestamp:          e.clock.Now().UTC(),
	}
	e.logger.Debug("Vote recorded", "proposal_id", proposalID, "voter", voterID, "choice", choice)
	return nil
}

// Finalize tallies the locally observed votes and settles the proposal:
// approved iff approveReputation/totalReputation >= the consensus
// threshold, boundary inclusive; an empty vote set has ratio 0 and is
// rejected. Idempotent: a proposal already finalized is a no-op.
func (e *Engine) Finalize(proposalID string) error {
	e.mu.Lock()

	tracked, exists := e.proposals[proposalID]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}
	proposal := tracked.proposal
	if proposal.Status != types.ProposalActive {
		e.mu.Unlock()
		return nil
	}

	close(tracked.cancel)

	var approveRep, totalRep int64
	for _, vote := range proposal.Votes {
		totalRep += vote.ReputationMillirep
		if vote.Choice == types.VoteApprove {
			approveRep += vote.ReputationMillirep
		}
	}

	var ratioBps int64
	if totalRep > 0 {
		ratioBps = approveRep * types.BpsDenominator / totalRep
	}
	// Integer cross-multiplication keeps the threshold comparison exact at
	// the boundary.
	approved := totalRep > 0 && approveRep*types.BpsDenominator >= totalRep*e.config.ConsensusThresholdBps

	proposal.ConsensusRatioBps = ratioBps
	if approved {
		proposal.Status = types.ProposalApproved
	} else {
		proposal.Status = types.ProposalRejected
	}
	snapshot := *proposal
	e.mu.Unlock()

	e.logger.Info("Proposal finalized",
		"proposal_id", proposalID,
		"protocol", snapshot.ProtocolName,
		"approved", approved,
		"ratio_bps", ratioBps,
		"votes", len(snapshot.Votes),
	)

	if approved {
		oldVersion, err := e.registry.Apply(snapshot.ProtocolName, snapshot.ProposedVersion)
		if err != nil {
			// The registry is the authority; an apply failure demotes the
			// proposal to rejected rather than leaving the network split.
			e.logger.Error("Failed to apply approved protocol change", "proposal_id", proposalID, "error", err)
			e.mu.Lock()
			tracked.proposal.Status = types.ProposalRejected
			snapshot = *tracked.proposal
			e.mu.Unlock()
			approved = false
		} else if e.publisher != nil {
			e.publisher.Publish(events.Event{
				Type: events.ProtocolUpdated,
				Payload: events.ProtocolUpdatedEvent{
					Name:       snapshot.ProtocolName,
					OldVersion: oldVersion,
					NewVersion: snapshot.ProposedVersion,
					ProposalID: proposalID,
				},
			})
		}
	}

	if e.publisher != nil {
		e.publisher.Publish(events.Event{
			Type: events.ProposalFinalized,
			Payload: events.ProposalFinalizedEvent{
				ProposalID:   proposalID,
				ProtocolName: snapshot.ProtocolName,
				Approved:     approved,
				RatioBps:     ratioBps,
			},
		})
	}

	if e.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.archiver.SaveProposal(ctx, snapshot); err != nil {
			e.logger.Error("Failed to archive proposal", "proposal_id", proposalID, "error", err)
		}
	}
	return nil
}

// Get returns a copy of a proposal.
func (e *Engine) Get(proposalID string) (types.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tracked, exists := e.proposals[proposalID]
	if !exists {
		return types.Proposal{}, fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}
	snapshot := *tracked.proposal
	votes := make(map[string]types.VoteEntry, len(tracked.proposal.Votes))
	for voter, vote := range tracked.proposal.Votes {
		votes[voter] = vote
	}
	snapshot.Votes = votes
	return snapshot, nil
}

// List returns copies of all tracked proposals.
func (e *Engine) List() []types.Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Proposal, 0, len(e.proposals))
	for _, tracked := range e.proposals {
		out = append(out, *tracked.proposal)
	}
	return out
}
