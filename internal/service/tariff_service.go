package service

import (
	"context"
	"fmt"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type TariffStore interface {
	List(ctx context.Context) ([]models.Tariff, error)
	ListActive(ctx context.Context) ([]models.Tariff, error)
	GetByName(ctx context.Context, name string) (*models.Tariff, error)
	GetByID(ctx context.Context, id int64) (*models.Tariff, error)
	Create(ctx context.Context, tariff *models.Tariff) (*models.Tariff, error)
	Update(ctx context.Context, tariff *models.Tariff) (*models.Tariff, error)
	Delete(ctx context.Context, id int64) error
}

// TariffService manages the purchasable credit packs.
type TariffService struct {
	tariffs  TariffStore
	log      Logger
	currency string
}

func NewTariffService(tariffs TariffStore, log Logger, currency string) *TariffService {
	if currency == "" {
		currency = "RUB"
	}
	return &TariffService{tariffs: tariffs, log: log, currency: currency}
}

// EnsureDefaults seeds the standard tariff grid on first start.
func (s *TariffService) EnsureDefaults(ctx context.Context) error {
	defaults := []models.Tariff{
		{Name: "Базовый", Currency: s.currency, PriceMinorUnits: 29900, Credits: 50, IsActive: true},
		{Name: "Стандартный", Currency: s.currency, PriceMinorUnits: 49900, Credits: 100, IsActive: true},
		{Name: "Премиум", Currency: s.currency, PriceMinorUnits: 99000, Credits: 300, IsActive: true},
	}
	for _, tariff := range defaults {
		existing, err := s.tariffs.GetByName(ctx, tariff.Name)
		if err != nil {
			return fmt.Errorf("check tariff %s: %w", tariff.Name, err)
		}
		if existing != nil {
			continue
		}
		if _, err := s.tariffs.Create(ctx, &tariff); err != nil {
			return fmt.Errorf("create tariff %s: %w", tariff.Name, err)
		}
		s.log.Info("tariff created", "name", tariff.Name, "price", tariff.PriceMinorUnits, "credits", tariff.Credits)
	}
	return nil
}

func (s *TariffService) List(ctx context.Context) ([]models.Tariff, error) {
	return s.tariffs.List(ctx)
}

func (s *TariffService) ListActive(ctx context.Context) ([]models.Tariff, error) {
	return s.tariffs.ListActive(ctx)
}

func (s *TariffService) GetByName(ctx context.Context, name string) (*models.Tariff, error) {
	return s.tariffs.GetByName(ctx, name)
}

func (s *TariffService) GetByID(ctx context.Context, id int64) (*models.Tariff, error) {
	return s.tariffs.GetByID(ctx, id)
}

func (s *TariffService) Create(ctx context.Context, tariff *models.Tariff) error {
	if tariff.Name == "" || tariff.PriceMinorUnits <= 0 || tariff.Credits <= 0 {
		return fmt.Errorf("invalid tariff: name, price and credits are required")
	}
	if tariff.Currency == "" {
		tariff.Currency = s.currency
	}
	created, err := s.tariffs.Create(ctx, tariff)
	if err != nil {
		return err
	}
	*tariff = *created
	return nil
}

func (s *TariffService) Update(ctx context.Context, tariff *models.Tariff) error {
	updated, err := s.tariffs.Update(ctx, tariff)
	if err != nil {
		return err
	}
	*tariff = *updated
	return nil
}

func (s *TariffService) Delete(ctx context.Context, id int64) error {
	return s.tariffs.Delete(ctx, id)
}
