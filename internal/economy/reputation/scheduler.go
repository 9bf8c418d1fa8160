package reputation

import (
	"github.com/robfig/cron/v3"

	"github.com/agoramesh/agora-backend/internal/economy/types"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

// DefaultDecaySchedule fires at the top of every hour.
const DefaultDecaySchedule = "0 * * * *"

// DecayScheduler drives the tracker's periodic decay from a cron schedule.
// Each tick applies one full decay interval.
type DecayScheduler struct {
	cron    *cron.Cron
	tracker *Tracker
	logger  logging.Logger
}

// NewDecayScheduler registers the decay job on the given schedule.
func NewDecayScheduler(tracker *Tracker, schedule string, logger logging.Logger) (*DecayScheduler, error) {
	scheduler := &DecayScheduler{
		cron:    cron.New(),
		tracker: tracker,
		logger:  logger.With("component", "decay_scheduler"),
	}

	_, err := scheduler.cron.AddFunc(schedule, func() {
		old, updated := tracker.Decay(types.BpsDenominator)
		scheduler.logger.Debug("Applied scheduled reputation decay", "old", old, "new", updated)
	})
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}

// Start begins the schedule on the cron's own goroutine.
func (s *DecayScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Reputation decay scheduler started")
}

// Stop cancels the schedule. Running jobs finish first.
func (s *DecayScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Reputation decay scheduler stopped")
}
