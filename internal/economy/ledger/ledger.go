package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/agoramesh/agora-backend/internal/economy/events"
	"github.com/agoramesh/agora-backend/internal/economy/types"
	"github.com/agoramesh/agora-backend/pkg/logging"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStakeOutOfRange     = errors.New("stake amount out of range")
	ErrDuplicateStake      = errors.New("staking position already exists for task")
	ErrPositionNotFound    = errors.New("staking position not found")
)

const auditAppendTimeout = 5 * time.Second

// AuditAppender is the external append-only audit ledger collaborator.
// Appends are fire-and-forget: a failed append is logged, never propagated.
type AuditAppender interface {
	Append(ctx context.Context, record types.AuditRecord) error
}

// Config bounds the local account.
type Config struct {
	MaxBalance int64
	MinStake   int64
	MaxStake   int64
}

// DefaultConfig returns the default account bounds.
func DefaultConfig() Config {
	return Config{
		MaxBalance: 1_000_000,
		MinStake:   1,
		MaxStake:   10_000,
	}
}

// TokenLedger owns the local account's spendable balance and per-task
// staking positions. All mutations are serialized through one mutex and
// validate fully before committing, so a failed operation never leaves the
// account changed. The conservation invariant 0 <= balance <= MaxBalance
// holds after every operation.
type TokenLedger struct {
	mu      sync.Mutex
	agentID string
	balance int64
	stakes  map[string]int64

	config    Config
	publisher events.Publisher
	audit     AuditAppender
	clock     clock.Clock
	logger    logging.Logger
}

// New creates a ledger for one account. audit may be nil when no audit
// collaborator is configured.
func New(agentID string, initialBalance int64, config Config, publisher events.Publisher, audit AuditAppender, clk clock.Clock, logger logging.Logger) *TokenLedger {
	if initialBalance < 0 {
		initialBalance = 0
	}
	if initialBalance > config.MaxBalance {
		initialBalance = config.MaxBalance
	}
	return &TokenLedger{
		agentID:   agentID,
		balance:   initialBalance,
		stakes:    make(map[string]int64),
		config:    config,
		publisher: publisher,
		audit:     audit,
		clock:     clk,
		logger:    logger.With("component", "token_ledger"),
	}
}

// Stake moves amount from the spendable balance into a locked position
// keyed by taskID.
func (l *TokenLedger) Stake(taskID string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount < l.config.MinStake || amount > l.config.MaxStake {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrStakeOutOfRange, amount, l.config.MinStake, l.config.MaxStake)
	}
	if amount > l.balance {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, amount, l.balance)
	}
	if _, exists := l.stakes[taskID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStake, taskID)
	}

	l.balance -= amount
	l.stakes[taskID] = amount

	l.logger.Info("Tokens staked", "task_id", taskID, "amount", amount, "balance", l.balance)
	l.emit(events.TokensStaked, taskID, -amount, "stake")
	return nil
}

// Release returns the full remaining locked amount for taskID to the
// balance and removes the position. Returns the released amount.
func (l *TokenLedger) Release(taskID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount, exists := l.stakes[taskID]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrPositionNotFound, taskID)
	}

	delete(l.stakes, taskID)
	l.balance += amount
	if l.balance > l.config.MaxBalance {
		// Stake + balance can never exceed MaxBalance because stakes only
		// come out of the balance, but guard the invariant anyway.
		l.balance = l.config.MaxBalance
	}

	l.logger.Info("Stake released", "task_id", taskID, "amount", amount, "balance", l.balance)
	l.emit(events.TokensReleased, taskID, amount, "release")
	return amount, nil
}

// Restake atomically replaces the locked position for taskID with a new
// amount. The new amount is validated against the range bounds and against
// balance plus the currently locked amount before anything changes, so a
// rejected restake leaves the prior position intact.
func (l *TokenLedger) Restake(taskID string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prior, exists := l.stakes[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, taskID)
	}
	if amount < l.config.MinStake || amount > l.config.MaxStake {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrStakeOutOfRange, amount, l.config.MinStake, l.config.MaxStake)
	}
	if amount > l.balance+prior {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, amount, l.balance+prior)
	}

	l.balance += prior - amount
	l.stakes[taskID] = amount

	l.logger.Info("Stake replaced", "task_id", taskID, "prior", prior, "amount", amount, "balance", l.balance)
	l.emit(events.TokensReleased, taskID, prior, "restake release")
	l.emit(events.TokensStaked, taskID, -amount, "restake")
	return nil
}

// Award adds amount to the balance, clamped at MaxBalance. Returns the
// actually-applied amount, which is never larger than requested.
func (l *TokenLedger) Award(amount int64, reason string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount <= 0 {
		return 0
	}
	applied := amount
	if l.balance+amount > l.config.MaxBalance {
		applied = l.config.MaxBalance - l.balance
	}
	l.balance += applied

	l.logger.Info("Tokens awarded", "requested", amount, "applied", applied, "reason", reason, "balance", l.balance)
	l.emit(events.TrustAwarded, "", applied, reason)
	return applied
}

// Slash removes amount from the balance, floored at 0. Returns the
// actually-applied amount.
func (l *TokenLedger) Slash(amount int64, reason string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount <= 0 {
		return 0
	}
	applied := amount
	if applied > l.balance {
		applied = l.balance
	}
	l.balance -= applied

	l.logger.Info("Tokens slashed", "requested", amount, "applied", applied, "reason", reason, "balance", l.balance)
	l.emit(events.TrustSlashed, "", -applied, reason)
	return applied
}

// Balance returns the current spendable balance.
func (l *TokenLedger) Balance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// LockedStake returns the locked amount for taskID, if any.
func (l *TokenLedger) LockedStake(taskID string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	amount, exists := l.stakes[taskID]
	return amount, exists
}

// TotalLocked returns the sum of all locked positions.
func (l *TokenLedger) TotalLocked() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, amount := range l.stakes {
		total += amount
	}
	return total
}

// Snapshot captures the account's balance and positions for persistence.
// Reputation is filled in by the caller, which owns that field.
func (l *TokenLedger) Snapshot() types.AccountSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	stakes := make(map[string]int64, len(l.stakes))
	for taskID, amount := range l.stakes {
		stakes[taskID] = amount
	}
	return types.AccountSnapshot{
		AgentID:      l.agentID,
		Balance:      l.balance,
		LockedStakes: stakes,
		TakenAt:      l.clock.Now().UTC(),
	}
}

// emit publishes the ledger-change event and fires the audit append.
// Callers hold the mutex; the balance read here is the committed one.
func (l *TokenLedger) emit(eventType events.EventType, taskID string, delta int64, reason string) {
	if l.publisher != nil {
		l.publisher.Publish(events.Event{
			Type: eventType,
			Payload: events.LedgerChangeEvent{
				TaskID:     taskID,
				Delta:      delta,
				NewBalance: l.balance,
				Reason:     reason,
			},
		})
	}
	if l.audit == nil {
		return
	}
	record := types.AuditRecord{
		Type:      string(eventType),
		Amount:    delta,
		Reason:    reason,
		Timestamp: l.clock.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditAppendTimeout)
		defer cancel()
		if err := l.audit.Append(ctx, record); err != nil {
			l.logger.Error("Failed to append audit record", "type", record.Type, "error", err)
		}
	}()
}
