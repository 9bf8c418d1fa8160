package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/agoramesh/agora-backend/internal/economy/events"
	"github.com/agoramesh/agora-backend/internal/economy/ledger"
	"github.com/agoramesh/agora-backend/internal/economy/types"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

var (
	ErrAuctionClosed   = errors.New("auction window closed")
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already open for task")
	ErrNoBids          = errors.New("auction closed with no bids")
)

// Score weights in basis points. They sum to 10000.
const (
	weightConfidence    = int64(3000)
	weightReputation    = int64(2500)
	weightStake         = int64(2000)
	weightResourceOffer = int64(1500)
	weightDuration      = int64(1000)

	maxResourceOffer = int64(100)
)

// Config bounds the auction engine. MaxStakeAmount mirrors the ledger's
// upper stake bound so bid scoring stays a pure function.
type Config struct {
	BaselineDurationMs    int64
	MaxReputationMillirep int64
	MaxStakeAmount        int64
	DefaultWindow         time.Duration
}

// DefaultConfig returns the default auction parameters.
func DefaultConfig() Config {
	return Config{
		BaselineDurationMs:    300_000,
		MaxReputationMillirep: 1_000_000,
		MaxStakeAmount:        10_000,
		DefaultWindow:         time.Minute,
	}
}

type taskAuction struct {
	taskID   string
	state    types.AuctionState
	deadline time.Time
	bids     map[string]*types.Bid // keyed by bidder ID
	winner   *types.Bid
	timer    *clock.Timer
	cancel   chan struct{}
}

// Engine runs one time-boxed sealed-bid auction per task. Local bids lock
// stake in the local ledger immediately; peer bids arrive pre-scored with
// their stake held on the bidder's own node. Auctions are independent of
// each other and resolve deterministically from the locally observed bid
// set at the local deadline.
type Engine struct {
	mu       sync.Mutex
	auctions map[string]*taskAuction

	agentID      string
	config       Config
	ledger       *ledger.TokenLedger
	reputationFn func() int64
	publisher    events.Publisher
	clock        clock.Clock
	logger       logging.Logger
}

// New creates an auction engine bound to the local agent's ledger.
func New(agentID string, config Config, tokenLedger *ledger.TokenLedger, publisher events.Publisher, clk clock.Clock, logger logging.Logger) *Engine {
	return &Engine{
		auctions:  make(map[string]*taskAuction),
		agentID:   agentID,
		config:    config,
		ledger:    tokenLedger,
		publisher: publisher,
		clock:     clk,
		logger:    logger.With("component", "auction_engine"),
	}
}

// Open starts the bidding window for a task and schedules the close. A zero
// window falls back to the configured default.
func (e *Engine) Open(taskID string, window time.Duration) error {
	if window <= 0 {
		window = e.config.DefaultWindow
	}

	e.mu.Lock()
	if _, exists := e.auctions[taskID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAuctionExists, taskID)
	}

	a := &taskAuction{
		taskID:   taskID,
		state:    types.AuctionOpen,
		deadline: e.clock.Now().Add(window),
		bids:     make(map[string]*types.Bid),
		timer:    e.clock.Timer(window),
		cancel:   make(chan struct{}),
	}
	e.auctions[taskID] = a
	e.mu.Unlock()

	go func() {
		select {
		case <-a.timer.C:
			if _, err := e.Close(taskID); err != nil && !errors.Is(err, ErrNoBids) {
				e.logger.Error("Failed to close auction at deadline", "task_id", taskID, "error", err)
			}
		case <-a.cancel:
			a.timer.Stop()
		}
	}()

	e.logger.Info("Auction opened", "task_id", taskID, "deadline", a.deadline)
	return nil
}

// SubmitLocalBid scores and records a bid by the local agent, locking its
// stake immediately. A second bid for the same task swaps the stake and
// replaces the first; a rejected bid never disturbs the prior one.
func (e *Engine) SubmitLocalBid(taskID string, confidenceBps, stakeAmount, resourceOffer, estimatedDurationMs int64) (*types.Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.openAuction(taskID)
	if err != nil {
		return nil, err
	}

	// A rejected bid must leave the prior bid and its lock untouched, so
	// the re-bid path swaps the stake atomically instead of releasing
	// first.
	if prior, exists := a.bids[e.agentID]; exists {
		if err := e.ledger.Restake(taskID, stakeAmount); err != nil {
			return nil, err
		}
		delete(a.bids, e.agentID)
		e.logger.Info("Replaced prior local bid", "task_id", taskID, "prior_stake", prior.StakeAmount)
	} else if err := e.ledger.Stake(taskID, stakeAmount); err != nil {
		return nil, err
	}

	bid := &types.Bid{
		TaskID:            taskID,
		BidderID:          e.agentID,
		ConfidenceBps:     types.ClampBps(confidenceBps),
		StakeAmount:       stakeAmount,
		ResourceOffer:     clampResourceOffer(resourceOffer),
		EstimatedDuration: estimatedDurationMs,
		SubmittedAt:       e.clock.Now().UTC(),
	}
	bid.ScoreCenti = e.scoreBid(bid, e.ledgerReputation())
	a.bids[e.agentID] = bid

	e.logger.Info("Local bid submitted", "task_id", taskID, "stake", stakeAmount, "score_centi", bid.ScoreCenti)
	return bid, nil
}

// ReceivePeerBid records a peer-originated bid. The signature verdict was
// already validated by the transport collaborator; the peer's stake is
// locked on its own node. A later bid from the same peer replaces the
// earlier one.
func (e *Engine) ReceivePeerBid(bid types.Bid) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.openAuction(bid.TaskID)
	if err != nil {
		return err
	}

	bid.ConfidenceBps = types.ClampBps(bid.ConfidenceBps)
	bid.ResourceOffer = clampResourceOffer(bid.ResourceOffer)
	if bid.SubmittedAt.IsZero() {
		bid.SubmittedAt = e.clock.Now().UTC()
	}
	a.bids[bid.BidderID] = &bid

	e.logger.Debug("Peer bid recorded", "task_id", bid.TaskID, "bidder", bid.BidderID, "score_centi", bid.ScoreCenti)
	return nil
}

// Close ends the bidding window and selects the winner: highest score, ties
// broken by shortest estimated duration, then lexicographically smallest
// bidder ID. Replayable for any given bid set. The local agent's stake is
// released when it loses; a winning local stake stays locked until
// resolution. Returns ErrNoBids when the window closes empty.
func (e *Engine) Close(taskID string) (*types.Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, exists := e.auctions[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotFound, taskID)
	}
	if a.state != types.AuctionOpen {
		return a.winner, nil
	}
	a.state = types.AuctionSelecting
	close(a.cancel)

	if len(a.bids) == 0 {
		a.state = types.AuctionNoBids
		e.logger.Info("Auction closed with no bids", "task_id", taskID)
		e.emitResolved(a)
		return nil, fmt.Errorf("%w: %s", ErrNoBids, taskID)
	}

	var winner *types.Bid
	for _, bid := range a.bids {
		if winner == nil || bidLess(winner, bid) {
			winner = bid
		}
	}
	a.winner = winner
	a.state = types.AuctionAwarded

	// Release the local stake unless the local agent won.
	if _, localBid := a.bids[e.agentID]; localBid && winner.BidderID != e.agentID {
		if _, err := e.ledger.Release(taskID); err != nil {
			e.logger.Error("Failed to release losing local stake", "task_id", taskID, "error", err)
		}
	}

	e.logger.Info("Auction awarded", "task_id", taskID, "winner", winner.BidderID, "score_centi", winner.ScoreCenti, "bids", len(a.bids))
	e.emitResolved(a)
	return winner, nil
}

// MarkResolved transitions an awarded auction to its terminal state once
// the outcome processor resolves the task.
func (e *Engine) MarkResolved(taskID string, terminal types.AuctionState) error {
	if terminal != types.AuctionCompleted && terminal != types.AuctionFailed {
		return fmt.Errorf("invalid terminal state %q", terminal)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	a, exists := e.auctions[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrAuctionNotFound, taskID)
	}
	if a.state != types.AuctionAwarded {
		return fmt.Errorf("auction %s not awarded (state %s)", taskID, a.state)
	}
	a.state = terminal
	return nil
}

// State reports the auction state for a task.
func (e *Engine) State(taskID string) (types.AuctionState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, exists := e.auctions[taskID]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrAuctionNotFound, taskID)
	}
	return a.state, nil
}

// Winner returns the awarded bid for a task, if the auction was awarded.
func (e *Engine) Winner(taskID string) (*types.Bid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, exists := e.auctions[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotFound, taskID)
	}
	if a.winner == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBids, taskID)
	}
	return a.winner, nil
}

// openAuction returns the auction for taskID if it is still accepting bids.
// Callers hold the mutex.
func (e *Engine) openAuction(taskID string) (*taskAuction, error) {
	a, exists := e.auctions[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotFound, taskID)
	}
	if a.state != types.AuctionOpen || !e.clock.Now().Before(a.deadline) {
		return nil, fmt.Errorf("%w: %s", ErrAuctionClosed, taskID)
	}
	return a, nil
}

// ledgerReputation reads the local agent's reputation for scoring local
// bids. Zero when no reputation source is attached.
func (e *Engine) ledgerReputation() int64 {
	if e.reputationFn == nil {
		return 0
	}
	return e.reputationFn()
}

// SetReputationSource attaches the reputation read used to score local bids.
func (e *Engine) SetReputationSource(fn func() int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reputationFn = fn
}

// scoreBid computes the weighted composite score in centipoints.
func (e *Engine) scoreBid(bid *types.Bid, reputationMillirep int64) int64 {
	return ScoreBid(bid, reputationMillirep, e.config)
}

// ScoreBid is the deterministic bid scoring function:
//
//	100 * (0.30*confidence + 0.25*normReputation + 0.20*normStake +
//	       0.15*normResourceOffer + 0.10*durationEfficiency)
//
// computed in integer basis points with centipoint resolution.
func ScoreBid(bid *types.Bid, reputationMillirep int64, config Config) int64 {
	normRep := normalize(reputationMillirep, config.MaxReputationMillirep)
	normStake := normalize(bid.StakeAmount, maxStakeForScoring(config))
	normRes := normalize(bid.ResourceOffer, maxResourceOffer)
	durEff := durationEfficiency(bid.EstimatedDuration, config.BaselineDurationMs)

	weighted := weightConfidence*bid.ConfidenceBps +
		weightReputation*normRep +
		weightStake*normStake +
		weightResourceOffer*normRes +
		weightDuration*durEff
	return weighted / types.BpsDenominator
}

// bidLess reports whether current loses to challenger under the selection
// order: higher score, then shorter duration, then smaller bidder ID.
func bidLess(current, challenger *types.Bid) bool {
	if challenger.ScoreCenti != current.ScoreCenti {
		return challenger.ScoreCenti > current.ScoreCenti
	}
	if challenger.EstimatedDuration != current.EstimatedDuration {
		return challenger.EstimatedDuration < current.EstimatedDuration
	}
	return challenger.BidderID < current.BidderID
}

func normalize(value, max int64) int64 {
	if max <= 0 || value <= 0 {
		return 0
	}
	norm := value * types.BpsDenominator / max
	if norm > types.BpsDenominator {
		return types.BpsDenominator
	}
	return norm
}

func durationEfficiency(estimatedMs, baselineMs int64) int64 {
	if baselineMs <= 0 || estimatedMs <= 0 {
		return types.BpsDenominator
	}
	eff := types.BpsDenominator - estimatedMs*types.BpsDenominator/baselineMs
	if eff < 0 {
		return 0
	}
	return eff
}

func clampResourceOffer(offer int64) int64 {
	if offer < 0 {
		return 0
	}
	if offer > maxResourceOffer {
		return maxResourceOffer
	}
	return offer
}

func maxStakeForScoring(config Config) int64 {
	// Stake is normalized against the ledger's configured maximum; the
	// engine mirrors it here to keep scoring pure.
	if config.MaxStakeAmount > 0 {
		return config.MaxStakeAmount
	}
	return 10_000
}

func (e *Engine) emitResolved(a *taskAuction) {
	if e.publisher == nil {
		return
	}
	event := events.AuctionResolvedEvent{
		TaskID:   a.taskID,
		State:    a.state,
		BidCount: len(a.bids),
	}
	if a.winner != nil {
		event.WinnerID = a.winner.BidderID
	}
	e.publisher.Publish(events.Event{Type: events.AuctionResolved, Payload: event})
}
