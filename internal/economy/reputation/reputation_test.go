package reputation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agoramesh/agora-backend/internal/economy/events"
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

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestUpdateAppliesDelta(t *testing.T) {
	tracker := New(500_000, DefaultDecayRateBps, nil, logging.NewNoOpLogger())

	old, updated := tracker.Update(1200, "task completion")
	assert.Equal(t, int64(500_000), old)
	assert.Equal(t, int64(501_200), updated)
	assert.Equal(t, int64(501_200), tracker.Score())
}

func TestUpdateFloorsAtZero(t *testing.T) {
	tracker := New(300, DefaultDecayRateBps, nil, logging.NewNoOpLogger())

	_, updated := tracker.Update(-1000, "task failure")
	assert.Equal(t, int64(0), updated)

	// Score stays floored, further penalties are absorbed.
	_, updated = tracker.Update(-500, "task failure")
	assert.Equal(t, int64(0), updated)
}

func TestUpdateEmitsEvent(t *testing.T) {
	publisher := &mockPublisher{}
	tracker := New(1000, DefaultDecayRateBps, publisher, logging.NewNoOpLogger())

	tracker.Update(500, "test")
	assert.Equal(t, 1, publisher.count())
}

func TestDecayIsPureAndDeterministic(t *testing.T) {
	// 1% decay rate over a full interval.
	assert.Equal(t, int64(495_000), DecayedScore(500_000, 100, 10_000))
	// Half an interval loses half as much.
	assert.Equal(t, int64(497_500), DecayedScore(500_000, 100, 5_000))
	// Same inputs, same output.
	assert.Equal(t, DecayedScore(123_456, 100, 10_000), DecayedScore(123_456, 100, 10_000))
}

func TestDecayReachesSmallScores(t *testing.T) {
	// 50 millirep at 1% over a full interval loses 0.5 millirep, which
	// rounds half-up to 1.
	assert.Equal(t, int64(49), DecayedScore(50, 100, 10_000))
	// Below the half-up threshold the loss rounds to zero.
	assert.Equal(t, int64(49), DecayedScore(49, 100, 4_000))
}

func TestDecayZeroFractionLeavesScoreUnchanged(t *testing.T) {
	tracker := New(500_000, DefaultDecayRateBps, nil, logging.NewNoOpLogger())

	for i := 0; i < 10; i++ {
		_, updated := tracker.Decay(0)
		assert.Equal(t, int64(500_000), updated)
	}
}

func TestDecayFloorsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), DecayedScore(0, 100, 10_000))
	assert.Equal(t, int64(0), DecayedScore(-5, 100, 10_000))

	tracker := New(10, 10_000, nil, logging.NewNoOpLogger())
	_, updated := tracker.Decay(10_000)
	assert.GreaterOrEqual(t, updated, int64(0))
}

func TestDecaySchedulerConstruction(t *testing.T) {
	tracker := New(1000, DefaultDecayRateBps, nil, logging.NewNoOpLogger())

	scheduler, err := NewDecayScheduler(tracker, DefaultDecaySchedule, logging.NewNoOpLogger())
	assert.NoError(t, err)
	assert.NotNil(t, scheduler)

	_, err = NewDecayScheduler(tracker, "not a schedule", logging.NewNoOpLogger())
	assert.Error(t, err)
}
