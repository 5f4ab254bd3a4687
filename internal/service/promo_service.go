package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/foodnudes/FoodNudesBot/internal/models"
	"github.com/foodnudes/FoodNudesBot/internal/repository"
)

var (
	ErrPromoInvalid         = errors.New("promo code invalid or exhausted")
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
)

// CreditGrantor applies a ledger grant inside an open transaction.
type CreditGrantor interface {
	CreditTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, pool models.CreditPool) error
}

// PromoService redeems promo codes for free credits. Each code is
// redeemable once per user.
type PromoService struct {
	promos *repository.PromoRepository
	ledger CreditGrantor
	log    Logger
	bonus  int
}

func NewPromoService(promos *repository.PromoRepository, ledger CreditGrantor, log Logger, bonusCredits int) *PromoService {
	return &PromoService{promos: promos, ledger: ledger, log: log, bonus: bonusCredits}
}

// Apply redeems a code for the user and credits the free pool. The uses
// counter, the redemption record and the grant commit together.
func (s *PromoService) Apply(ctx context.Context, userID int64, code string) (int, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return 0, ErrPromoInvalid
	}

	promo, err := s.promos.GetByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("lookup promo: %w", err)
	}
	if promo == nil {
		return 0, ErrPromoInvalid
	}

	tx, err := s.promos.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE promo_codes SET uses = uses + 1 WHERE id = ? AND (max_uses = 0 OR uses < max_uses)`,
		promo.ID)
	if err != nil {
		return 0, fmt.Errorf("consume promo use: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrPromoInvalid
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO promo_redemptions (user_id, promo_code_id) VALUES (?, ?)`,
		userID, promo.ID); err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, ErrPromoAlreadyRedeemed
		}
		return 0, fmt.Errorf("record redemption: %w", err)
	}

	if err := s.ledger.CreditTx(ctx, tx, userID, s.bonus, models.PoolFree); err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.log.Info("promo redeemed", "code", code, "user_id", userID, "credits", s.bonus)
	return s.bonus, nil
}
