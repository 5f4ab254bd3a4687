package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

// ErrInsufficientCredits means both pools are empty and the zero-balance
// debit policy is off.
var ErrInsufficientCredits = errors.New("insufficient credits")

// debitRetries bounds the optimistic-update loop. Each conditional UPDATE is
// atomic; a retry only happens when another debit for the same account won
// the race between the balance read and the update.
const debitRetries = 5

// AccountStore is the ledger's persistence surface.
type AccountStore interface {
	Balances(ctx context.Context, userID int64) (free, paid, used int, err error)
	ConsumeFreeCredit(ctx context.Context, userID int64) (bool, error)
	ConsumePaidCredit(ctx context.Context, userID int64) (bool, error)
	IncrementTotalUsed(ctx context.Context, userID int64) error
	AddCredits(ctx context.Context, userID int64, amount int, pool models.CreditPool) error
	AddCreditsTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, pool models.CreditPool) error
}

// LedgerService owns the per-user credit counters. One debit consumes one
// credit, free pool first, and bumps total_used exactly once.
type LedgerService struct {
	store          AccountStore
	log            *slog.Logger
	allowZeroDebit bool
}

// DebitResult reports the balances after a debit and which pool was tapped.
// Pool is empty when nothing was consumed (zero-balance debit policy).
type DebitResult struct {
	Free int
	Paid int
	Pool models.CreditPool
}

func NewLedgerService(store AccountStore, log *slog.Logger, allowZeroDebit bool) *LedgerService {
	return &LedgerService{store: store, log: log, allowZeroDebit: allowZeroDebit}
}

// Balance reads the free and paid pools for an account.
func (s *LedgerService) Balance(ctx context.Context, userID int64) (free, paid int, err error) {
	free, paid, _, err = s.store.Balances(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger balance: %w", err)
	}
	return free, paid, nil
}

// TotalUsed reads the lifetime usage counter for an account.
func (s *LedgerService) TotalUsed(ctx context.Context, userID int64) (int, error) {
	_, _, used, err := s.store.Balances(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ledger total used: %w", err)
	}
	return used, nil
}

// DebitOne consumes exactly one credit, preferring the free pool. With both
// pools empty it either refuses with ErrInsufficientCredits or, when the
// zero-balance policy is enabled, records the usage without touching a pool.
func (s *LedgerService) DebitOne(ctx context.Context, userID int64) (*DebitResult, error) {
	for attempt := 0; attempt < debitRetries; attempt++ {
		free, paid, _, err := s.store.Balances(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("debit read balances: %w", err)
		}

		switch {
		case free > 0:
			ok, err := s.store.ConsumeFreeCredit(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("debit free pool: %w", err)
			}
			if ok {
				return s.resultAfter(ctx, userID, models.PoolFree)
			}
		case paid > 0:
			ok, err := s.store.ConsumePaidCredit(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("debit paid pool: %w", err)
			}
			if ok {
				return s.resultAfter(ctx, userID, models.PoolPaid)
			}
		default:
			if !s.allowZeroDebit {
				return nil, ErrInsufficientCredits
			}
			if err := s.store.IncrementTotalUsed(ctx, userID); err != nil {
				return nil, fmt.Errorf("debit zero balance: %w", err)
			}
			s.log.Warn("zero-balance debit recorded", "user_id", userID)
			return &DebitResult{}, nil
		}
		// Lost the race against a concurrent debit; re-read and try again.
	}
	return nil, fmt.Errorf("debit contention for user %d", userID)
}

func (s *LedgerService) resultAfter(ctx context.Context, userID int64, pool models.CreditPool) (*DebitResult, error) {
	free, paid, _, err := s.store.Balances(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("debit reread balances: %w", err)
	}
	return &DebitResult{Free: free, Paid: paid, Pool: pool}, nil
}

// Credit adds credits to a pool: paid for purchases, free for promotional
// grants. Usage counters are never touched here.
func (s *LedgerService) Credit(ctx context.Context, userID int64, amount int, pool models.CreditPool) error {
	if err := validateGrant(amount, pool); err != nil {
		return err
	}
	if err := s.store.AddCredits(ctx, userID, amount, pool); err != nil {
		return fmt.Errorf("ledger credit: %w", err)
	}
	return nil
}

// CreditTx is Credit inside the caller's transaction, for grants that must
// commit together with other writes (promo redemptions).
func (s *LedgerService) CreditTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, pool models.CreditPool) error {
	if err := validateGrant(amount, pool); err != nil {
		return err
	}
	if err := s.store.AddCreditsTx(ctx, tx, userID, amount, pool); err != nil {
		return fmt.Errorf("ledger credit: %w", err)
	}
	return nil
}

func validateGrant(amount int, pool models.CreditPool) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if pool != models.PoolFree && pool != models.PoolPaid {
		return fmt.Errorf("unknown credit pool: %q", pool)
	}
	return nil
}
