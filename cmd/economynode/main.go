package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"

	"github.com/agoramesh/agora-backend/internal/economy/api"
	"github.com/agoramesh/agora-backend/internal/economy/api/handlers"
	"github.com/agoramesh/agora-backend/internal/economy/auction"
	"github.com/agoramesh/agora-backend/internal/economy/config"
	"github.com/agoramesh/agora-backend/internal/economy/events"
	"github.com/agoramesh/agora-backend/internal/economy/governance"
	"github.com/agoramesh/agora-backend/internal/economy/ledger"
	"github.com/agoramesh/agora-backend/internal/economy/metrics"
	"github.com/agoramesh/agora-backend/internal/economy/outcome"
	"github.com/agoramesh/agora-backend/internal/economy/reputation"
	"github.com/agoramesh/agora-backend/internal/economy/store"

	redisclient "github.com/agoramesh/agora-backend/pkg/client/redis"
	"github.com/agoramesh/agora-backend/pkg/database"
	"github.com/agoramesh/agora-backend/pkg/eventbus"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

const (
	shutdownTimeout  = 30 * time.Second
	snapshotInterval = 30 * time.Second
)

func main() {
	app := &cli.App{
		Name:        "economynode",
		Usage:       "agoramesh economy node",
		Description: "Runs the reputation-weighted economic engine for one agent: token ledger, bidding auctions, outcome settlement and protocol governance.",
		Action: func(*cli.Context) error {
			return run()
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalln("Application failed. Message:", err)
	}
}

func run() error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	logConfig := logging.LoggerConfig{
		ProcessName:   logging.EconomyProcess,
		IsDevelopment: config.IsDevMode(),
	}

	logger, err := logging.NewZapLogger(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting economy node...",
		"agent_id", config.GetAgentID(),
		"mode", config.IsDevMode(),
		"port", config.GetAPIPort(),
	)

	bus := eventbus.New(logger)
	realClock := clock.New()
	params := config.GetEconomyParams()

	// External collaborators are optional in dev mode; the engines degrade
	// to in-memory operation when one is unavailable.
	var snapshots *store.SnapshotStore
	var audit ledger.AuditAppender

	redisClient, err := redisclient.NewClient(redisclient.DefaultRedisConfig(config.GetRedisURL()), logger)
	if err != nil {
		if !config.IsDevMode() {
			return fmt.Errorf("failed to initialize Redis client: %w", err)
		}
		logger.Warnf("Redis unavailable, running without snapshots and audit stream: %v", err)
	} else {
		defer redisClient.Close()
		snapshots = store.NewSnapshotStore(redisClient, logger)
		audit = store.NewAuditStream(redisClient, logger)
	}

	var archive *store.ArchiveStore
	dbConn, err := database.NewConnection(database.NewConfig(config.GetDatabaseHost(), config.GetDatabaseHostPort()))
	if err != nil {
		if !config.IsDevMode() {
			return fmt.Errorf("failed to initialize database connection: %w", err)
		}
		logger.Warnf("Database unavailable, running without archive store: %v", err)
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		archive = store.NewArchiveStore(dbConn, logger)
	}

	// Restore the persisted account view; a fresh node starts from the
	// configured initial balance.
	initialBalance := config.GetInitialBalance()
	initialReputation := int64(0)
	var restoredProtocols bool
	registry := governance.NewRegistry(logger)

	ctx := context.Background()
	if snapshots != nil {
		if snapshot, found, err := snapshots.LoadAccountSnapshot(ctx, config.GetAgentID()); err != nil {
			logger.Errorf("Failed to load account snapshot: %v", err)
		} else if found {
			initialBalance = snapshot.Balance
			initialReputation = snapshot.ReputationMillirep
			logger.Info("Restored account snapshot", "balance", initialBalance, "reputation_millirep", initialReputation)
		}
		if protocols, found, err := snapshots.LoadProtocolRegistry(ctx); err != nil {
			logger.Errorf("Failed to load protocol registry: %v", err)
		} else if found {
			registry.Restore(protocols)
			restoredProtocols = true
		}
	}
	if !restoredProtocols {
		seedProtocols(registry)
	}

	tokenLedger := ledger.New(config.GetAgentID(), initialBalance, ledgerConfig(params), bus, audit, realClock, logger)

	decayRate := params.DecayRateBps
	if decayRate == 0 {
		decayRate = reputation.DefaultDecayRateBps
	}
	tracker := reputation.New(initialReputation, decayRate, bus, logger)

	auctions := auction.New(config.GetAgentID(), auctionConfig(params), tokenLedger, bus, realClock, logger)
	auctions.SetReputationSource(tracker.Score)

	var outcomeArchiver outcome.Archiver
	var proposalArchiver governance.Archiver
	if archive != nil {
		outcomeArchiver = archive
		proposalArchiver = archive
	}

	outcomes := outcome.New(outcomeConfig(params), tokenLedger, tracker, outcomeArchiver, realClock, logger)
	governanceEngine := governance.New(governanceConfig(params), registry, proposalArchiver, bus, realClock, logger)

	schedule := params.DecaySchedule
	if schedule == "" {
		schedule = reputation.DefaultDecaySchedule
	}
	decayScheduler, err := reputation.NewDecayScheduler(tracker, schedule, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize decay scheduler: %w", err)
	}
	decayScheduler.Start()
	defer decayScheduler.Stop()

	registerMetricsSubscriptions(bus, tokenLedger)
	metrics.StartMetricsCollection()
	metrics.TokenBalance.Set(float64(tokenLedger.Balance()))
	metrics.ReputationMillirep.Set(float64(tracker.Score()))

	handler := handlers.NewHandler(
		config.GetAgentID(),
		tokenLedger,
		tracker,
		auctions,
		outcomes,
		governanceEngine,
		registry,
		logger,
	)
	server := api.NewServer(handler, logger)

	var wg sync.WaitGroup
	serverErrors := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting HTTP server...")
		if err := server.Start(config.GetAPIPort()); err != nil {
			serverErrors <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	snapshotDone := make(chan struct{})
	if snapshots != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			persistSnapshots(snapshotDone, snapshots, tokenLedger, tracker, registry, logger)
		}()
	}

	logger.Infof("Economy node initialized, listening on port %s...", config.GetAPIPort())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error received", "error", err)
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	close(snapshotDone)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}
	if snapshots != nil {
		saveSnapshots(shutdownCtx, snapshots, tokenLedger, tracker, registry, logger)
	}

	wg.Wait()
	logger.Info("Economy node stopped")
	return nil
}

// seedProtocols registers the protocols a fresh node governs. Proposals for
// anything else are rejected until a protocol is registered.
func seedProtocols(registry *governance.Registry) {
	registry.Register("task-allocation", "1.0.0", false)
	registry.Register("bid-scoring", "1.0.0", false)
	registry.Register("settlement", "1.0.0", false)
	registry.Register("identity", "1.0.0", true)
}

func ledgerConfig(params config.EconomyParams) ledger.Config {
	cfg := ledger.DefaultConfig()
	if params.MaxBalance > 0 {
		cfg.MaxBalance = params.MaxBalance
	}
	if params.MinStake > 0 {
		cfg.MinStake = params.MinStake
	}
	if params.MaxStake > 0 {
		cfg.MaxStake = params.MaxStake
	}
	return cfg
}

func auctionConfig(params config.EconomyParams) auction.Config {
	cfg := auction.DefaultConfig()
	if params.AuctionWindow > 0 {
		cfg.DefaultWindow = params.AuctionWindow
	}
	if params.BaselineDurationMs > 0 {
		cfg.BaselineDurationMs = params.BaselineDurationMs
	}
	if params.MaxStake > 0 {
		cfg.MaxStakeAmount = params.MaxStake
	}
	return cfg
}

func outcomeConfig(params config.EconomyParams) outcome.Config {
	cfg := outcome.DefaultConfig()
	if params.StakingRewardRateBps > 0 {
		cfg.StakingRewardRateBps = params.StakingRewardRateBps
	}
	return cfg
}

func governanceConfig(params config.EconomyParams) governance.Config {
	cfg := governance.DefaultConfig()
	if params.MinProposalReputationMillirep > 0 {
		cfg.MinProposalReputationMillirep = params.MinProposalReputationMillirep
	}
	if params.MinVotingReputationMillirep > 0 {
		cfg.MinVotingReputationMillirep = params.MinVotingReputationMillirep
	}
	if params.ConsensusThresholdBps > 0 {
		cfg.ConsensusThresholdBps = params.ConsensusThresholdBps
	}
	if params.VotingWindow > 0 {
		cfg.VotingWindow = params.VotingWindow
	}
	return cfg
}

// registerMetricsSubscriptions keeps the account gauges in sync with the
// engine's outbound events.
func registerMetricsSubscriptions(bus *eventbus.EventBus, tokenLedger *ledger.TokenLedger) {
	ledgerOperations := map[events.EventType]string{
		events.TokensStaked:   "stake",
		events.TokensReleased: "release",
		events.TrustAwarded:   "award",
		events.TrustSlashed:   "slash",
	}
	for eventType, operation := range ledgerOperations {
		bus.Subscribe(eventType, func(event events.Event) {
			// Only committed mutations emit; rejected operations never
			// reach the bus.
			metrics.StakeOperationsTotal.WithLabelValues(operation, "success").Inc()
			if payload, ok := event.Payload.(events.LedgerChangeEvent); ok {
				metrics.TokenBalance.Set(float64(payload.NewBalance))
			}
			metrics.LockedStakeTotal.Set(float64(tokenLedger.TotalLocked()))
		})
	}

	bus.Subscribe(events.ReputationUpdated, func(event events.Event) {
		if payload, ok := event.Payload.(events.ReputationUpdatedEvent); ok {
			metrics.ReputationMillirep.Set(float64(payload.NewMillirep))
		}
	})

	bus.Subscribe(events.AuctionResolved, func(event events.Event) {
		if payload, ok := event.Payload.(events.AuctionResolvedEvent); ok {
			metrics.AuctionsTotal.WithLabelValues(string(payload.State)).Inc()
			metrics.OpenAuctions.Dec()
		}
	})

	bus.Subscribe(events.ProposalFinalized, func(event events.Event) {
		if payload, ok := event.Payload.(events.ProposalFinalizedEvent); ok {
			verdict := "rejected"
			if payload.Approved {
				verdict = "approved"
			}
			metrics.ProposalsFinalizedTotal.WithLabelValues(verdict).Inc()
		}
	})
}

func persistSnapshots(done <-chan struct{}, snapshots *store.SnapshotStore, tokenLedger *ledger.TokenLedger, tracker *reputation.Tracker, registry *governance.Registry, logger logging.Logger) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			saveSnapshots(ctx, snapshots, tokenLedger, tracker, registry, logger)
			cancel()
		}
	}
}

func saveSnapshots(ctx context.Context, snapshots *store.SnapshotStore, tokenLedger *ledger.TokenLedger, tracker *reputation.Tracker, registry *governance.Registry, logger logging.Logger) {
	snapshot := tokenLedger.Snapshot()
	snapshot.ReputationMillirep = tracker.Score()
	if err := snapshots.SaveAccountSnapshot(ctx, snapshot); err != nil {
		logger.Errorf("Failed to save account snapshot: %v", err)
	}
	if err := snapshots.SaveProtocolRegistry(ctx, registry.Snapshot()); err != nil {
		logger.Errorf("Failed to save protocol registry: %v", err)
	}
}
