package reputation

import (
	"sync"

	"github.com/agoramesh/agora-backend/internal/economy/events"
	"github.com/agoramesh/agora-backend/internal/economy/types"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

// DefaultDecayRateBps is the fraction of the score lost over one full decay
// interval (1% per hour by default scheduling).
const DefaultDecayRateBps = int64(100)

// Tracker owns the local account's reputation score. The score is
// non-negative millirep, unbounded above, and decays periodically. All
// mutations are serialized through one mutex.
type Tracker struct {
	mu           sync.Mutex
	score        int64 // millirep
	decayRateBps int64

	publisher events.Publisher
	logger    logging.Logger
}

// New creates a tracker with an initial score in millirep.
func New(initialMillirep int64, decayRateBps int64, publisher events.Publisher, logger logging.Logger) *Tracker {
	if initialMillirep < 0 {
		initialMillirep = 0
	}
	return &Tracker{
		score:        initialMillirep,
		decayRateBps: decayRateBps,
		publisher:    publisher,
		logger:       logger.With("component", "reputation_tracker"),
	}
}

// Score returns the current score in millirep.
func (t *Tracker) Score() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.score
}

// Update applies a bounded delta, flooring the score at zero. Returns the
// old and new scores.
func (t *Tracker) Update(deltaMillirep int64, context string) (old, new int64) {
	t.mu.Lock()
	old = t.score
	t.score += deltaMillirep
	if t.score < 0 {
		t.score = 0
	}
	new = t.score
	t.mu.Unlock()

	t.logger.Info("Reputation updated", "delta", deltaMillirep, "old", old, "new", new, "context", context)
	if t.publisher != nil {
		t.publisher.Publish(events.Event{
			Type: events.ReputationUpdated,
			Payload: events.ReputationUpdatedEvent{
				OldMillirep: old,
				NewMillirep: new,
				Context:     context,
			},
		})
	}
	return old, new
}

// Decay applies one decay step for the elapsed fraction of the decay
// interval (basis points, 10000 = one full interval). Returns the old and
// new scores. Decay with a zero elapsed fraction leaves the score unchanged.
func (t *Tracker) Decay(elapsedFractionBps int64) (old, new int64) {
	t.mu.Lock()
	old = t.score
	t.score = DecayedScore(t.score, t.decayRateBps, elapsedFractionBps)
	new = t.score
	t.mu.Unlock()

	if new != old {
		t.logger.Debug("Reputation decayed", "old", old, "new", new, "elapsed_bps", elapsedFractionBps)
		if t.publisher != nil {
			t.publisher.Publish(events.Event{
				Type: events.ReputationUpdated,
				Payload: events.ReputationUpdatedEvent{
					OldMillirep: old,
					NewMillirep: new,
					Context:     "decay",
				},
			})
		}
	}
	return old, new
}

// DecayedScore is the pure decay function:
//
//	score * (1 - decayRate * elapsedFraction)
//
// in fixed point, floored at zero. Deterministic for a given input pair.
// The loss is rounded half-up in a single division, so any positive score
// decays once decayRate * elapsedFraction reaches half a basis-point
// squared; losses below that round to zero and the score holds.
func DecayedScore(scoreMillirep, decayRateBps, elapsedFractionBps int64) int64 {
	if scoreMillirep <= 0 {
		return 0
	}
	if elapsedFractionBps < 0 {
		elapsedFractionBps = 0
	}
	denom := types.BpsDenominator * types.BpsDenominator
	loss := (scoreMillirep*decayRateBps*elapsedFractionBps + denom/2) / denom
	decayed := scoreMillirep - loss
	if decayed < 0 {
		return 0
	}
	return decayed
}
