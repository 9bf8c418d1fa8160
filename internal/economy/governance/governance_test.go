package governance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoramesh/agora-backend/internal/economy/events"
	"github.com/agoramesh/agora-backend/internal/economy/types"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

type mockPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *mockPublisher) Publish(event events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockPublisher) finalized() []events.ProposalFinalizedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.ProposalFinalizedEvent
	for _, e := range m.events {
		if e.Type == events.ProposalFinalized {
			out = append(out, e.Payload.(events.ProposalFinalizedEvent))
		}
	}
	return out
}

type mockArchiver struct {
	mu        sync.Mutex
	proposals []types.Proposal
}

func (m *mockArchiver) SaveProposal(ctx context.Context, proposal types.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals = append(m.proposals, proposal)
	return nil
}

var _ Archiver = (*mockArchiver)(nil)

func rep(whole int64) int64 { return whole * types.MillirepPerRep }

func newTestEngine(t *testing.T) (*Engine, *Registry, *clock.Mock, *mockPublisher, *mockArchiver) {
	t.Helper()
	mockClock := clock.NewMock()
	logger := logging.NewNoOpLogger()
	registry := NewRegistry(logger)
	registry.Register("task_auction", "1.0.0", false)
	registry.Register("genesis_trust", "1.0.0", true)

	publisher := &mockPublisher{}
	archiver := &mockArchiver{}
	engine := New(DefaultConfig(), registry, archiver, publisher, mockClock, logger)
	return engine, registry, mockClock, publisher, archiver
}

func TestProposeRequiresReputation(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t)

	_, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(499))
	assert.ErrorIs(t, err, ErrInsufficientReputation)

	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(500))
	require.NoError(t, err)
	assert.Equal(t, types.ProposalActive, proposal.Status)
	assert.Equal(t, "1.0.0", proposal.CurrentVersion)
}

func TestImmutableProtocolRejectsProposalsOutright(t *testing.T) {
	engine, registry, _, _, _ := newTestEngine(t)

	_, err := engine.Propose("genesis_trust", "2.0.0", "{}", "agent-p", rep(10_000))
	assert.ErrorIs(t, err, ErrProtocolImmutable)

	// No vote can ever override immutability at the registry either.
	_, err = registry.Apply("genesis_trust", "2.0.0")
	assert.ErrorIs(t, err, ErrProtocolImmutable)
}

func TestProposeUnknownProtocol(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t)

	_, err := engine.Propose("no_such_protocol", "1.0.0", "{}", "agent-p", rep(600))
	assert.ErrorIs(t, err, ErrProtocolNotFound)
}

func TestVoteRequiresReputation(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t)
	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)

	err = engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(99))
	assert.ErrorIs(t, err, ErrInsufficientReputation)

	assert.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(100)))
}

func TestVoteOnUnknownOrExpiredProposal(t *testing.T) {
	engine, _, mockClock, _, _ := newTestEngine(t)

	err := engine.Vote("missing", "agent-a", types.VoteApprove, rep(200))
	assert.ErrorIs(t, err, ErrProposalNotFound)

	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)

	mockClock.Add(6 * time.Minute)
	err = engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(200))
	assert.ErrorIs(t, err, ErrProposalExpired)
}

func TestConsensusApprovedScenario(t *testing.T) {
	// A(400) approve + B(300) approve vs C(200) reject: 700/900 ~ 0.778.
	engine, registry, _, publisher, _ := newTestEngine(t)
	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)

	require.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(400)))
	require.NoError(t, engine.Vote(proposal.ID, "agent-b", types.VoteApprove, rep(300)))
	require.NoError(t, engine.Vote(proposal.ID, "agent-c", types.VoteReject, rep(200)))

	require.NoError(t, engine.Finalize(proposal.ID))

	finalized, err := engine.Get(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProposalApproved, finalized.Status)
	assert.Equal(t, int64(7777), finalized.ConsensusRatioBps)

	protocol, _ := registry.Get("task_auction")
	assert.Equal(t, "1.1.0", protocol.Version)
	assert.Equal(t, []string{"1.0.0"}, protocol.VersionHistory)

	finalizedEvents := publisher.finalized()
	require.Len(t, finalizedEvents, 1)
	assert.True(t, finalizedEvents[0].Approved)
}

func TestConsensusRejectedScenario(t *testing.T) {
	// A(400) approve vs C(260) reject: 400/660 ~ 0.606 < 0.67.
	engine, registry, _, _, archiver := newTestEngine(t)
	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)

	require.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(400)))
	require.NoError(t, engine.Vote(proposal.ID, "agent-c", types.VoteReject, rep(260)))

	require.NoError(t, engine.Finalize(proposal.ID))

	finalized, err := engine.Get(proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProposalRejected, finalized.Status)
	assert.Equal(t, int64(6060), finalized.ConsensusRatioBps)

	// Rejection archives the proposal but leaves the protocol untouched.
	protocol, _ := registry.Get("task_auction")
	assert.Equal(t, "1.0.0", protocol.Version)
	require.Len(t, archiver.proposals, 1)
	assert.Equal(t, types.ProposalRejected, archiver.proposals[0].Status)
}

func TestConsensusThresholdBoundaryInclusive(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t)

	// Exactly 67%: approved.
	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)
	require.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(670)))
	require.NoError(t, engine.Vote(proposal.ID, "agent-b", types.VoteReject, rep(330)))
	require.NoError(t, engine.Finalize(proposal.ID))
	finalized, _ := engine.Get(proposal.ID)
	assert.Equal(t, types.ProposalApproved, finalized.Status)

	// One millirep below the boundary: rejected.
	proposal, err = engine.Propose("task_auction", "1.2.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)
	require.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(670)-1))
	require.NoError(t, engine.Vote(proposal.ID, "agent-b", types.VoteReject, rep(330)+1))
	require.NoError(t, engine.Finalize(proposal.ID))
	finalized, _ = engine.Get(proposal.ID)
	assert.Equal(t, types.ProposalRejected, finalized.Status)
}

func TestEmptyVoteSetRejects(t *testing.T) {
	engine, _, _, publisher, _ := newTestEngine(t)
	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)

	require.NoError(t, engine.Finalize(proposal.ID))

	finalized, _ := engine.Get(proposal.ID)
	assert.Equal(t, types.ProposalRejected, finalized.Status)
	assert.Equal(t, int64(0), finalized.ConsensusRatioBps)

	finalizedEvents := publisher.finalized()
	require.Len(t, finalizedEvents, 1)
	assert.False(t, finalizedEvents[0].Approved)
}

func TestLastVoteWinsWithVoteTimeReputation(t *testing.T) {
	engine, _, _, _, _ := newTestEngine(t)
	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)

	require.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteReject, rep(400)))
	// The same voter flips to approve with a different captured reputation.
	require.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(300)))
	require.NoError(t, engine.Vote(proposal.ID, "agent-b", types.VoteReject, rep(100)))

	require.NoError(t, engine.Finalize(proposal.ID))

	finalized, _ := engine.Get(proposal.ID)
	// 300/400 = 0.75 >= 0.67: the overwritten reject is gone.
	assert.Equal(t, types.ProposalApproved, finalized.Status)
	assert.Equal(t, int64(7500), finalized.ConsensusRatioBps)
	assert.Len(t, finalized.Votes, 2)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	engine, _, _, publisher, archiver := newTestEngine(t)
	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)
	require.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(400)))

	require.NoError(t, engine.Finalize(proposal.ID))
	require.NoError(t, engine.Finalize(proposal.ID))
	require.NoError(t, engine.Finalize(proposal.ID))

	assert.Len(t, publisher.finalized(), 1)
	assert.Len(t, archiver.proposals, 1)
}

func TestTimerDrivenFinalizeWithVirtualClock(t *testing.T) {
	engine, _, mockClock, _, _ := newTestEngine(t)
	proposal, err := engine.Propose("task_auction", "1.1.0", "{}", "agent-p", rep(600))
	require.NoError(t, err)
	require.NoError(t, engine.Vote(proposal.ID, "agent-a", types.VoteApprove, rep(400)))

	mockClock.Add(5 * time.Minute)

	assert.Eventually(t, func() bool {
		finalized, err := engine.Get(proposal.ID)
		return err == nil && finalized.Status == types.ProposalApproved
	}, time.Second, 5*time.Millisecond)
}
