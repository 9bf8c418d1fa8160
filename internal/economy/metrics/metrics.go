package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTime = time.Now()

	// UptimeSeconds tracks the economy node uptime in seconds
	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "uptime_seconds",
		Help:      "The uptime of the economy node in seconds",
	})

	// Total HTTP Request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "endpoint", "status"})

	// HTTP Request duration metrics
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	// TokenBalance tracks the current liquid balance of the local account
	TokenBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "token_balance",
		Help:      "Current liquid token balance of the local account",
	})

	// LockedStakeTotal tracks tokens locked across active task stakes
	LockedStakeTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "locked_stake_total",
		Help:      "Tokens currently locked in active task stakes",
	})

	// ReputationMillirep tracks the local agent's reputation score
	ReputationMillirep = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "reputation_millirep",
		Help:      "Local agent reputation score in millirep",
	})

	// Stake operations by result
	StakeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "stake_operations_total",
		Help:      "Total stake, release, award and slash operations",
	}, []string{"operation", "status"})

	// Auctions opened and resolved, labeled with terminal state
	AuctionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "auctions_total",
		Help:      "Total auctions by terminal state",
	}, []string{"state"})

	// OpenAuctions tracks auctions currently accepting bids
	OpenAuctions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "open_auctions",
		Help:      "Auctions currently accepting bids",
	})

	// BidsSubmittedTotal counts bids by origin (local or peer)
	BidsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "bids_submitted_total",
		Help:      "Total bids recorded by origin",
	}, []string{"origin"})

	// Task outcomes by result
	TaskOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "task_outcomes_total",
		Help:      "Total task completions and failures processed",
	}, []string{"result"})

	// RewardTokensTotal accumulates tokens awarded for completed tasks
	RewardTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "reward_tokens_total",
		Help:      "Cumulative tokens awarded for completed tasks",
	})

	// PenaltyTokensTotal accumulates tokens slashed for failed tasks
	PenaltyTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "penalty_tokens_total",
		Help:      "Cumulative tokens slashed for failed tasks",
	})

	// Governance proposals finalized by verdict
	ProposalsFinalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "proposals_finalized_total",
		Help:      "Total proposals finalized by verdict",
	}, []string{"verdict"})

	// VotesRecordedTotal counts recorded governance votes
	VotesRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "votes_recorded_total",
		Help:      "Total governance votes recorded",
	}, []string{"choice"})

	// Archive operation metrics
	ArchiveOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agora",
		Subsystem: "economy",
		Name:      "archive_operations_total",
		Help:      "Archive store writes by kind and status",
	}, []string{"kind", "status"})
)

// StartMetricsCollection starts a goroutine that refreshes the uptime gauge.
func StartMetricsCollection() {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			UptimeSeconds.Set(time.Since(startTime).Seconds())
		}
	}()
}

// TrackArchiveOperation returns a completion callback that records the write.
func TrackArchiveOperation(kind string) func(error) {
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		ArchiveOperationsTotal.WithLabelValues(kind, status).Inc()
	}
}
