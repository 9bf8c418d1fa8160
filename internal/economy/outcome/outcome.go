package outcome

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/agoramesh/agora-backend/internal/economy/ledger"
	"github.com/agoramesh/agora-backend/internal/economy/reputation"
	"github.com/agoramesh/agora-backend/internal/economy/types"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

// Performance weights in basis points. They sum to 10000.
const (
	weightEfficiency    = int64(3000)
	weightQuality       = int64(3000)
	weightTimeliness    = int64(2500)
	weightResourceUsage = int64(1500)

	multiplierScaleBps = int64(15000) // performance score * 1.5
	minMultiplierBps   = int64(5000)  // 0.5x
	maxMultiplierBps   = int64(20000) // 2.0x

	completionRepRewardMillirep = int64(1000) // +1.0 rep, scaled by multiplier
	failureRepPenaltyMillirep   = int64(500)  // -0.5 rep
)

// Archiver persists immutable task records for audit and history.
type Archiver interface {
	SaveTaskRecord(ctx context.Context, record types.TaskRecord) error
}

// Config holds the outcome economics.
type Config struct {
	StakingRewardRateBps int64
}

// DefaultConfig returns the default reward rate (10%).
func DefaultConfig() Config {
	return Config{StakingRewardRateBps: 1000}
}

// Processor converts task outcomes into ledger and reputation mutations.
// A completion or failure for a task with no open staking position is a
// silent no-op, which tolerates duplicate delivery from an unreliable
// transport.
type Processor struct {
	config     Config
	ledger     *ledger.TokenLedger
	reputation *reputation.Tracker
	archiver   Archiver
	clock      clock.Clock
	logger     logging.Logger
}

// New creates a processor. archiver may be nil when no archive store is
// configured.
func New(config Config, tokenLedger *ledger.TokenLedger, tracker *reputation.Tracker, archiver Archiver, clk clock.Clock, logger logging.Logger) *Processor {
	return &Processor{
		config:     config,
		ledger:     tokenLedger,
		reputation: tracker,
		archiver:   archiver,
		clock:      clk,
		logger:     logger.With("component", "outcome_processor"),
	}
}

// HandleCompletion releases the winning stake, awards the performance-scaled
// reward and credits reputation. Returns the applied reward, zero when the
// task has no open position.
func (p *Processor) HandleCompletion(ctx context.Context, taskID string, metrics types.PerformanceMetrics) int64 {
	staked, exists := p.ledger.LockedStake(taskID)
	if !exists {
		p.logger.Debug("Completion for task with no open stake, ignoring", "task_id", taskID)
		return 0
	}

	multiplierBps := PerformanceMultiplierBps(metrics)
	reward := RewardAmount(staked, p.config.StakingRewardRateBps, multiplierBps)

	if _, err := p.ledger.Release(taskID); err != nil {
		// The position was read above; a release failure here means a
		// concurrent resolution already handled it.
		p.logger.Warn("Stake vanished before completion settlement", "task_id", taskID, "error", err)
		return 0
	}
	applied := p.ledger.Award(reward, "task completion reward")

	repDelta := completionRepRewardMillirep * multiplierBps / types.BpsDenominator
	p.reputation.Update(repDelta, "task completion")

	p.logger.Info("Task completion settled",
		"task_id", taskID,
		"staked", staked,
		"multiplier_bps", multiplierBps,
		"reward", applied,
	)

	p.archive(ctx, types.TaskRecord{
		TaskID:       taskID,
		Status:       types.AuctionCompleted,
		StakedAmount: staked,
		RewardAmount: applied,
		Metrics:      metrics,
		ResolvedAt:   p.clock.Now().UTC(),
	})
	return applied
}

// HandleFailure slashes the severity-scaled penalty out of the locked stake,
// returns the remainder to the balance and debits reputation. Returns the
// applied penalty, zero when the task has no open position.
func (p *Processor) HandleFailure(ctx context.Context, taskID string, severity types.FailureSeverity) int64 {
	staked, exists := p.ledger.LockedStake(taskID)
	if !exists {
		p.logger.Debug("Failure for task with no open stake, ignoring", "task_id", taskID)
		return 0
	}

	penalty := PenaltyAmount(staked, severity)

	// Release the whole position, then slash the penalty out of it; the
	// remainder stays in the balance.
	if _, err := p.ledger.Release(taskID); err != nil {
		p.logger.Warn("Stake vanished before failure settlement", "task_id", taskID, "error", err)
		return 0
	}
	applied := p.ledger.Slash(penalty, "task failure penalty")
	p.reputation.Update(-failureRepPenaltyMillirep, "task failure")

	p.logger.Info("Task failure settled",
		"task_id", taskID,
		"staked", staked,
		"severity", severity,
		"penalty", applied,
	)

	p.archive(ctx, types.TaskRecord{
		TaskID:        taskID,
		Status:        types.AuctionFailed,
		StakedAmount:  staked,
		PenaltyAmount: applied,
		ResolvedAt:    p.clock.Now().UTC(),
	})
	return applied
}

// PerformanceMultiplierBps computes the reward multiplier:
//
//	clamp((0.30*efficiency + 0.30*quality + 0.25*timeliness +
//	       0.15*resourceUsage) * 1.5, 0.5, 2.0)
//
// in basis points.
func PerformanceMultiplierBps(metrics types.PerformanceMetrics) int64 {
	score := (weightEfficiency*types.ClampBps(metrics.EfficiencyBps) +
		weightQuality*types.ClampBps(metrics.QualityBps) +
		weightTimeliness*types.ClampBps(metrics.TimelinessBps) +
		weightResourceUsage*types.ClampBps(metrics.ResourceUsageBps)) / types.BpsDenominator

	multiplier := score * multiplierScaleBps / types.BpsDenominator
	if multiplier < minMultiplierBps {
		return minMultiplierBps
	}
	if multiplier > maxMultiplierBps {
		return maxMultiplierBps
	}
	return multiplier
}

// RewardAmount computes round(staked * rewardRate * multiplier) in integer
// arithmetic with half-up rounding.
func RewardAmount(staked, rewardRateBps, multiplierBps int64) int64 {
	numerator := staked * rewardRateBps * multiplierBps
	denominator := types.BpsDenominator * types.BpsDenominator
	return (numerator + denominator/2) / denominator
}

// PenaltyAmount computes round(staked * severityRate).
func PenaltyAmount(staked int64, severity types.FailureSeverity) int64 {
	rate := types.SeverityRateBps(severity)
	return (staked*rate + types.BpsDenominator/2) / types.BpsDenominator
}

func (p *Processor) archive(ctx context.Context, record types.TaskRecord) {
	if p.archiver == nil {
		return
	}
	if err := p.archiver.SaveTaskRecord(ctx, record); err != nil {
		p.logger.Error("Failed to archive task record", "task_id", record.TaskID, "error", err)
	}
}
