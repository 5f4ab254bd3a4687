package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *sql.DB {
	return r.db
}

const userColumns = `
id, telegram_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
free_credits, paid_credits, total_used,
COALESCE(age, 0), COALESCE(height_cm, 0), COALESCE(weight_kg, 0),
COALESCE(goal, ''), COALESCE(activity_level, ''), COALESCE(daily_calories, 0),
last_activity, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
		&u.FreeCredits, &u.PaidCredits, &u.TotalUsed,
		&u.Age, &u.HeightCm, &u.WeightKg,
		&u.Goal, &u.ActivityLevel, &u.DailyCalories,
		&u.LastActivity, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, telegramID))
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (telegram_id, username, first_name, last_name, free_credits, paid_credits, total_used)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, user.TelegramID, user.Username, user.FirstName, user.LastName, user.FreeCredits, user.PaidCredits, user.TotalUsed)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	return user, nil
}

// Ensure returns the account for telegramID, provisioning a fresh one with the
// default free-credit grant on first use.
func (r *UserRepository) Ensure(ctx context.Context, telegramID int64, username, firstName, lastName string, freeCredits int) (*models.User, bool, error) {
	user, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		go func() {
			_ = r.UpdateNames(context.Background(), user.ID, username, firstName, lastName)
		}()
		return user, false, nil
	}
	newUser := &models.User{
		TelegramID:  telegramID,
		Username:    username,
		FirstName:   firstName,
		LastName:    lastName,
		FreeCredits: freeCredits,
	}
	created, err := r.Create(ctx, newUser)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *UserRepository) UpdateNames(ctx context.Context, userID int64, username, firstName, lastName string) error {
	const query = `
UPDATE users SET username = NULLIF(?, ''), first_name = NULLIF(?, ''), last_name = NULLIF(?, ''),
last_activity = NOW(), updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, firstName, lastName, userID); err != nil {
		return fmt.Errorf("update names: %w", err)
	}
	return nil
}

func (r *UserRepository) Balances(ctx context.Context, userID int64) (free, paid, used int, err error) {
	const query = `SELECT free_credits, paid_credits, total_used FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	if err := row.Scan(&free, &paid, &used); err != nil {
		return 0, 0, 0, fmt.Errorf("read balances: %w", err)
	}
	return free, paid, used, nil
}

// ConsumeFreeCredit takes one unit from the free pool and counts the usage in
// the same statement, so the debit is atomic and the pool can never go
// negative. Returns false when the pool was already empty.
func (r *UserRepository) ConsumeFreeCredit(ctx context.Context, userID int64) (bool, error) {
	const query = `
UPDATE users SET free_credits = free_credits - 1, total_used = total_used + 1,
last_activity = NOW(), updated_at = NOW()
WHERE id = ? AND free_credits > 0`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("consume free credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("free credit rows affected: %w", err)
	}
	return affected > 0, nil
}

// ConsumePaidCredit is the paid-pool counterpart of ConsumeFreeCredit.
func (r *UserRepository) ConsumePaidCredit(ctx context.Context, userID int64) (bool, error) {
	const query = `
UPDATE users SET paid_credits = paid_credits - 1, total_used = total_used + 1,
last_activity = NOW(), updated_at = NOW()
WHERE id = ? AND paid_credits > 0`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("consume paid credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("paid credit rows affected: %w", err)
	}
	return affected > 0, nil
}

// IncrementTotalUsed counts a usage without touching either pool. Only the
// zero-balance debit policy path calls this.
func (r *UserRepository) IncrementTotalUsed(ctx context.Context, userID int64) error {
	const query = `UPDATE users SET total_used = total_used + 1, last_activity = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("increment total used: %w", err)
	}
	return nil
}

func creditStatement(pool models.CreditPool) (string, error) {
	switch pool {
	case models.PoolFree:
		return `UPDATE users SET free_credits = free_credits + ?, updated_at = NOW() WHERE id = ?`, nil
	case models.PoolPaid:
		return `UPDATE users SET paid_credits = paid_credits + ?, updated_at = NOW() WHERE id = ?`, nil
	default:
		return "", fmt.Errorf("unknown credit pool: %q", pool)
	}
}

func (r *UserRepository) AddCredits(ctx context.Context, userID int64, amount int, pool models.CreditPool) error {
	query, err := creditStatement(pool)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, amount, userID); err != nil {
		return fmt.Errorf("add %s credits: %w", pool, err)
	}
	return nil
}

// AddCreditsTx is AddCredits bound to an open transaction.
func (r *UserRepository) AddCreditsTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, pool models.CreditPool) error {
	query, err := creditStatement(pool)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, amount, userID); err != nil {
		return fmt.Errorf("add %s credits: %w", pool, err)
	}
	return nil
}

func (r *UserRepository) UpdateAge(ctx context.Context, userID int64, age int) error {
	const query = `UPDATE users SET age = ?, last_activity = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, age, userID); err != nil {
		return fmt.Errorf("update age: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateHeight(ctx context.Context, userID int64, heightCm float64) error {
	const query = `UPDATE users SET height_cm = ?, last_activity = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, heightCm, userID); err != nil {
		return fmt.Errorf("update height: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateWeight(ctx context.Context, userID int64, weightKg float64) error {
	const query = `UPDATE users SET weight_kg = ?, last_activity = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, weightKg, userID); err != nil {
		return fmt.Errorf("update weight: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateGoal(ctx context.Context, userID int64, goal string) error {
	const query = `UPDATE users SET goal = ?, last_activity = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, goal, userID); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateActivityLevel(ctx context.Context, userID int64, level string) error {
	const query = `UPDATE users SET activity_level = ?, last_activity = NOW(), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, level, userID); err != nil {
		return fmt.Errorf("update activity level: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateDailyCalories(ctx context.Context, userID int64, calories int) error {
	const query = `UPDATE users SET daily_calories = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, calories, userID); err != nil {
		return fmt.Errorf("update daily calories: %w", err)
	}
	return nil
}

func (r *UserRepository) CountUsers(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *UserRepository) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE last_activity > ?`, since)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return count, nil
}

func (r *UserRepository) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT telegram_id FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan telegram id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
