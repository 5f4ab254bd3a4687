package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type TariffRepository struct {
	db *sql.DB
}

func NewTariffRepository(db *sql.DB) *TariffRepository {
	return &TariffRepository{db: db}
}

const tariffColumns = `id, name, currency, price_minor_units, credits, is_active, created_at, updated_at`

func scanTariff(row *sql.Row) (*models.Tariff, error) {
	var t models.Tariff
	if err := row.Scan(&t.ID, &t.Name, &t.Currency, &t.PriceMinorUnits, &t.Credits, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tariff: %w", err)
	}
	return &t, nil
}

func (r *TariffRepository) List(ctx context.Context) ([]models.Tariff, error) {
	query := `SELECT ` + tariffColumns + ` FROM tariffs ORDER BY price_minor_units ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []models.Tariff
	for rows.Next() {
		var t models.Tariff
		if err := rows.Scan(&t.ID, &t.Name, &t.Currency, &t.PriceMinorUnits, &t.Credits, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tariff list: %w", err)
		}
		tariffs = append(tariffs, t)
	}
	return tariffs, rows.Err()
}

func (r *TariffRepository) ListActive(ctx context.Context) ([]models.Tariff, error) {
	query := `SELECT ` + tariffColumns + ` FROM tariffs WHERE is_active = 1 ORDER BY price_minor_units ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []models.Tariff
	for rows.Next() {
		var t models.Tariff
		if err := rows.Scan(&t.ID, &t.Name, &t.Currency, &t.PriceMinorUnits, &t.Credits, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan active tariff: %w", err)
		}
		tariffs = append(tariffs, t)
	}
	return tariffs, rows.Err()
}

func (r *TariffRepository) GetByName(ctx context.Context, name string) (*models.Tariff, error) {
	query := `SELECT ` + tariffColumns + ` FROM tariffs WHERE name = ?`
	return scanTariff(r.db.QueryRowContext(ctx, query, name))
}

func (r *TariffRepository) GetByID(ctx context.Context, id int64) (*models.Tariff, error) {
	query := `SELECT ` + tariffColumns + ` FROM tariffs WHERE id = ?`
	return scanTariff(r.db.QueryRowContext(ctx, query, id))
}

func (r *TariffRepository) Create(ctx context.Context, tariff *models.Tariff) (*models.Tariff, error) {
	const query = `
INSERT INTO tariffs (name, currency, price_minor_units, credits, is_active)
VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, tariff.Name, tariff.Currency, tariff.PriceMinorUnits, tariff.Credits, tariff.IsActive)
	if err != nil {
		return nil, fmt.Errorf("create tariff: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("tariff last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *TariffRepository) Update(ctx context.Context, tariff *models.Tariff) (*models.Tariff, error) {
	const query = `
UPDATE tariffs SET name = ?, currency = ?, price_minor_units = ?, credits = ?, is_active = ?, updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, tariff.Name, tariff.Currency, tariff.PriceMinorUnits, tariff.Credits, tariff.IsActive, tariff.ID); err != nil {
		return nil, fmt.Errorf("update tariff: %w", err)
	}
	return r.GetByID(ctx, tariff.ID)
}

func (r *TariffRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tariffs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete tariff: %w", err)
	}
	return nil
}
