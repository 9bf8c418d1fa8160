package ledger

import (
	"context"
	"errors"
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

func (m *mockPublisher) byType(eventType events.EventType) []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []events.Event
	for _, e := range m.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type mockAudit struct {
	appended chan types.AuditRecord
	err      error
}

func newMockAudit() *mockAudit {
	return &mockAudit{appended: make(chan types.AuditRecord, 16)}
}

func (m *mockAudit) Append(ctx context.Context, record types.AuditRecord) error {
	m.appended <- record
	return m.err
}

var _ AuditAppender = (*mockAudit)(nil)

func testConfig() Config {
	return Config{MaxBalance: 1000, MinStake: 5, MaxStake: 200}
}

func newTestLedger(balance int64, publisher events.Publisher, audit AuditAppender) *TokenLedger {
	return New("agent-1", balance, testConfig(), publisher, audit, clock.NewMock(), logging.NewNoOpLogger())
}

func TestStakeMovesBalanceIntoPosition(t *testing.T) {
	l := newTestLedger(100, nil, nil)

	require.NoError(t, l.Stake("T1", 30))
	assert.Equal(t, int64(70), l.Balance())

	locked, exists := l.LockedStake("T1")
	assert.True(t, exists)
	assert.Equal(t, int64(30), locked)
	assert.Equal(t, int64(30), l.TotalLocked())
}

func TestStakeValidationLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger(100, nil, nil)

	err := l.Stake("T1", 150)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	err = l.Stake("T1", 3)
	assert.ErrorIs(t, err, ErrStakeOutOfRange)

	err = l.Stake("T1", 500)
	assert.ErrorIs(t, err, ErrStakeOutOfRange)

	assert.Equal(t, int64(100), l.Balance())
	assert.Equal(t, int64(0), l.TotalLocked())
}

func TestDuplicateStakeRejected(t *testing.T) {
	l := newTestLedger(100, nil, nil)

	require.NoError(t, l.Stake("T1", 10))
	err := l.Stake("T1", 10)
	assert.ErrorIs(t, err, ErrDuplicateStake)
	assert.Equal(t, int64(90), l.Balance())
}

func TestStakeThenReleaseRestoresBalanceExactly(t *testing.T) {
	l := newTestLedger(100, nil, nil)

	require.NoError(t, l.Stake("T1", 30))
	released, err := l.Release("T1")
	require.NoError(t, err)

	assert.Equal(t, int64(30), released)
	assert.Equal(t, int64(100), l.Balance())
	_, exists := l.LockedStake("T1")
	assert.False(t, exists)
}

func TestRestakeReplacesPosition(t *testing.T) {
	l := newTestLedger(100, nil, nil)

	require.NoError(t, l.Stake("T1", 30))
	require.NoError(t, l.Restake("T1", 50))

	assert.Equal(t, int64(50), l.Balance())
	locked, _ := l.LockedStake("T1")
	assert.Equal(t, int64(50), locked)
}

// A restake can spend balance plus the currently locked amount, but no more.
func TestRestakeValidatesAgainstBalancePlusPrior(t *testing.T) {
	l := newTestLedger(100, nil, nil)

	require.NoError(t, l.Stake("T1", 80))
	require.NoError(t, l.Restake("T1", 100))

	assert.Equal(t, int64(0), l.Balance())
	locked, _ := l.LockedStake("T1")
	assert.Equal(t, int64(100), locked)

	err := l.Restake("T1", 150)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	locked, _ = l.LockedStake("T1")
	assert.Equal(t, int64(100), locked)
}

// A rejected restake must leave the prior position and balance untouched.
func TestRestakeValidationLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger(100, nil, nil)

	require.NoError(t, l.Stake("T1", 30))

	err := l.Restake("T1", 500)
	assert.ErrorIs(t, err, ErrStakeOutOfRange)
	err = l.Restake("T1", 3)
	assert.ErrorIs(t, err, ErrStakeOutOfRange)
	err = l.Restake("T404", 50)
	assert.ErrorIs(t, err, ErrPositionNotFound)

	assert.Equal(t, int64(70), l.Balance())
	locked, exists := l.LockedStake("T1")
	require.True(t, exists)
	assert.Equal(t, int64(30), locked)
}

func TestReleaseUnknownPosition(t *testing.T) {
	l := newTestLedger(100, nil, nil)

	_, err := l.Release("T404")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestAwardClampsAtMaxBalance(t *testing.T) {
	l := newTestLedger(990, nil, nil)

	applied := l.Award(50, "reward")
	assert.Equal(t, int64(10), applied)
	assert.Equal(t, int64(1000), l.Balance())

	applied = l.Award(50, "reward")
	assert.Equal(t, int64(0), applied)
	assert.Equal(t, int64(1000), l.Balance())
}

func TestSlashFloorsAtZero(t *testing.T) {
	l := newTestLedger(30, nil, nil)

	applied := l.Slash(50, "penalty")
	assert.Equal(t, int64(30), applied)
	assert.Equal(t, int64(0), l.Balance())

	applied = l.Slash(10, "penalty")
	assert.Equal(t, int64(0), applied)
	assert.Equal(t, int64(0), l.Balance())
}

func TestBalanceBoundsHoldUnderMixedOperations(t *testing.T) {
	l := newTestLedger(500, nil, nil)

	ops := []func(){
		func() { _ = l.Stake("T1", 100) },
		func() { l.Award(700, "big award") },
		func() { _ = l.Stake("T2", 50) },
		func() { l.Slash(2000, "over-slash") },
		func() { _, _ = l.Release("T1") },
		func() { l.Award(5, "tiny") },
		func() { _, _ = l.Release("T2") },
	}
	for _, op := range ops {
		op()
		balance := l.Balance()
		assert.GreaterOrEqual(t, balance, int64(0))
		assert.LessOrEqual(t, balance, testConfig().MaxBalance)
	}
}

func TestMutationsEmitLedgerChangeEvents(t *testing.T) {
	publisher := &mockPublisher{}
	l := newTestLedger(100, publisher, nil)

	require.NoError(t, l.Stake("T1", 20))
	_, err := l.Release("T1")
	require.NoError(t, err)
	l.Award(10, "reward")
	l.Slash(5, "penalty")

	staked := publisher.byType(events.TokensStaked)
	require.Len(t, staked, 1)
	payload := staked[0].Payload.(events.LedgerChangeEvent)
	assert.Equal(t, int64(-20), payload.Delta)
	assert.Equal(t, int64(80), payload.NewBalance)

	assert.Len(t, publisher.byType(events.TokensReleased), 1)
	assert.Len(t, publisher.byType(events.TrustAwarded), 1)
	assert.Len(t, publisher.byType(events.TrustSlashed), 1)
}

func TestAuditAppendIsFireAndForget(t *testing.T) {
	audit := newMockAudit()
	audit.err = errors.New("audit backend down")
	l := newTestLedger(100, nil, audit)

	// The append failure must not surface as a ledger error.
	require.NoError(t, l.Stake("T1", 20))

	select {
	case record := <-audit.appended:
		assert.Equal(t, string(events.TokensStaked), record.Type)
		assert.Equal(t, int64(-20), record.Amount)
	case <-time.After(time.Second):
		t.Fatal("audit append was never attempted")
	}
	assert.Equal(t, int64(80), l.Balance())
}

func TestSnapshotCopiesPositions(t *testing.T) {
	l := newTestLedger(100, nil, nil)
	require.NoError(t, l.Stake("T1", 10))

	snapshot := l.Snapshot()
	assert.Equal(t, "agent-1", snapshot.AgentID)
	assert.Equal(t, int64(90), snapshot.Balance)
	assert.Equal(t, int64(10), snapshot.LockedStakes["T1"])

	// Mutating the snapshot must not touch the ledger.
	snapshot.LockedStakes["T1"] = 999
	locked, _ := l.LockedStake("T1")
	assert.Equal(t, int64(10), locked)
}
