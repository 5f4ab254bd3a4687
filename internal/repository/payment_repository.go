package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// CreatePending records a checkout that was initiated but not yet confirmed
// by the provider (the YooKassa flow).
func (r *PaymentRepository) CreatePending(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (user_id, tariff_id, provider, payment_id, currency, amount, credits_granted, status, raw_payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, payment.UserID, payment.TariffID, payment.Provider,
		payment.PaymentID, payment.Currency, payment.Amount, payment.CreditsGranted,
		models.PaymentPending, payment.RawPayload)
	if err != nil {
		return fmt.Errorf("insert pending payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	payment.Status = models.PaymentPending
	return nil
}

func (r *PaymentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error) {
	const query = `
SELECT id, user_id, tariff_id, provider, payment_id, currency, amount, credits_granted, status,
COALESCE(raw_payload, ''), created_at, COALESCE(updated_at, created_at)
FROM payments WHERE payment_id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, paymentID)
	var p models.Payment
	var tariffID sql.NullInt64
	if err := row.Scan(&p.ID, &p.UserID, &tariffID, &p.Provider, &p.PaymentID, &p.Currency,
		&p.Amount, &p.CreditsGranted, &p.Status, &p.RawPayload, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	if tariffID.Valid {
		p.TariffID = &tariffID.Int64
	}
	return &p, nil
}

func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID string, payload string) error {
	const query = `
UPDATE payments SET status = ?, raw_payload = ?, updated_at = NOW()
WHERE payment_id = ? AND status <> ?`
	if _, err := r.db.ExecContext(ctx, query, models.PaymentFailed, payload, paymentID, models.PaymentCompleted); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

// ApplyCompleted marks the payment completed and credits the paid pool inside
// one transaction, so a crash cannot leave a completed payment without its
// credit. payment.PaymentID is the idempotency key: the call returns false
// without touching any balance when that key was already completed, whether
// the duplicate arrives sequentially or concurrently (unique-key race).
func (r *PaymentRepository) ApplyCompleted(ctx context.Context, payment *models.Payment) (bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin payment tx: %w", err)
	}
	defer tx.Rollback()

	const update = `
UPDATE payments SET status = ?, raw_payload = ?, updated_at = NOW()
WHERE payment_id = ? AND status <> ?`
	res, err := tx.ExecContext(ctx, update, models.PaymentCompleted, payment.RawPayload,
		payment.PaymentID, models.PaymentCompleted)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment rows affected: %w", err)
	}

	if affected == 0 {
		var exists int
		row := tx.QueryRowContext(ctx, `SELECT 1 FROM payments WHERE payment_id = ?`, payment.PaymentID)
		if err := row.Scan(&exists); err == nil {
			// Row is there and already completed.
			return false, nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("check payment: %w", err)
		}

		const insert = `
INSERT INTO payments (user_id, tariff_id, provider, payment_id, currency, amount, credits_granted, status, raw_payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insert, payment.UserID, payment.TariffID, payment.Provider,
			payment.PaymentID, payment.Currency, payment.Amount, payment.CreditsGranted,
			models.PaymentCompleted, payment.RawPayload); err != nil {
			if isDuplicateKey(err) {
				return false, nil
			}
			return false, fmt.Errorf("insert completed payment: %w", err)
		}
	}

	const credit = `UPDATE users SET paid_credits = paid_credits + ?, updated_at = NOW() WHERE id = ?`
	if _, err := tx.ExecContext(ctx, credit, payment.CreditsGranted, payment.UserID); err != nil {
		return false, fmt.Errorf("credit paid pool: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit payment tx: %w", err)
	}
	return true, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
