package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type MealRepository struct {
	db *sql.DB
}

func NewMealRepository(db *sql.DB) *MealRepository {
	return &MealRepository{db: db}
}

func (r *MealRepository) Log(ctx context.Context, userID int64, dish string, pool models.CreditPool, photoURL string) error {
	const query = `
INSERT INTO meal_logs (user_id, dish, pool, photo_url)
VALUES (?, ?, ?, NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, userID, dish, string(pool), photoURL); err != nil {
		return fmt.Errorf("insert meal log: %w", err)
	}
	return nil
}

func (r *MealRepository) CountAll(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meal_logs`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count meal logs: %w", err)
	}
	return count, nil
}

func (r *MealRepository) CountForUser(ctx context.Context, userID int64) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meal_logs WHERE user_id = ?`, userID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count user meals: %w", err)
	}
	return count, nil
}

// TopDishes returns the user's most analyzed dishes, most frequent first.
func (r *MealRepository) TopDishes(ctx context.Context, userID int64, limit int) ([]models.MealStat, error) {
	const query = `
SELECT dish, COUNT(*) AS cnt FROM meal_logs
WHERE user_id = ?
GROUP BY dish
ORDER BY cnt DESC, dish ASC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("top dishes: %w", err)
	}
	defer rows.Close()

	var stats []models.MealStat
	for rows.Next() {
		var s models.MealStat
		if err := rows.Scan(&s.Dish, &s.Count); err != nil {
			return nil, fmt.Errorf("scan meal stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
