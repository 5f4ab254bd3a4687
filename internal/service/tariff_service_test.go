package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type fakeTariffStore struct {
	tariffs []models.Tariff
	nextID  int64
}

func (f *fakeTariffStore) List(ctx context.Context) ([]models.Tariff, error) {
	return f.tariffs, nil
}

func (f *fakeTariffStore) ListActive(ctx context.Context) ([]models.Tariff, error) {
	var active []models.Tariff
	for _, t := range f.tariffs {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

func (f *fakeTariffStore) GetByName(ctx context.Context, name string) (*models.Tariff, error) {
	for i := range f.tariffs {
		if f.tariffs[i].Name == name {
			return &f.tariffs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTariffStore) GetByID(ctx context.Context, id int64) (*models.Tariff, error) {
	for i := range f.tariffs {
		if f.tariffs[i].ID == id {
			return &f.tariffs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTariffStore) Create(ctx context.Context, tariff *models.Tariff) (*models.Tariff, error) {
	f.nextID++
	stored := *tariff
	stored.ID = f.nextID
	f.tariffs = append(f.tariffs, stored)
	return &stored, nil
}

func (f *fakeTariffStore) Update(ctx context.Context, tariff *models.Tariff) (*models.Tariff, error) {
	for i := range f.tariffs {
		if f.tariffs[i].ID == tariff.ID {
			f.tariffs[i] = *tariff
			return &f.tariffs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTariffStore) Delete(ctx context.Context, id int64) error {
	for i := range f.tariffs {
		if f.tariffs[i].ID == id {
			f.tariffs = append(f.tariffs[:i], f.tariffs[i+1:]...)
			return nil
		}
	}
	return nil
}

func TestEnsureDefaultsSeedsConfiguredCurrency(t *testing.T) {
	store := &fakeTariffStore{}
	tariffs := NewTariffService(store, testLogger(), "KZT")

	require.NoError(t, tariffs.EnsureDefaults(context.Background()))

	require.Len(t, store.tariffs, 3)
	for _, tariff := range store.tariffs {
		assert.Equal(t, "KZT", tariff.Currency)
		assert.True(t, tariff.IsActive)
	}

	// A second run must not duplicate the grid.
	require.NoError(t, tariffs.EnsureDefaults(context.Background()))
	assert.Len(t, store.tariffs, 3)
}

func TestCreateDefaultsCurrency(t *testing.T) {
	store := &fakeTariffStore{}
	tariffs := NewTariffService(store, testLogger(), "RUB")

	tariff := &models.Tariff{Name: "Мега", PriceMinorUnits: 199000, Credits: 700, IsActive: true}
	require.NoError(t, tariffs.Create(context.Background(), tariff))

	assert.Equal(t, "RUB", tariff.Currency)
	assert.NotZero(t, tariff.ID)

	explicit := &models.Tariff{Name: "Валютный", Currency: "USD", PriceMinorUnits: 999, Credits: 10, IsActive: true}
	require.NoError(t, tariffs.Create(context.Background(), explicit))
	assert.Equal(t, "USD", explicit.Currency)
}

func TestCreateRejectsInvalidTariff(t *testing.T) {
	store := &fakeTariffStore{}
	tariffs := NewTariffService(store, testLogger(), "RUB")
	ctx := context.Background()

	assert.Error(t, tariffs.Create(ctx, &models.Tariff{PriceMinorUnits: 100, Credits: 1}))
	assert.Error(t, tariffs.Create(ctx, &models.Tariff{Name: "Пустой", Credits: 1}))
	assert.Error(t, tariffs.Create(ctx, &models.Tariff{Name: "Пустой", PriceMinorUnits: 100}))
	assert.Empty(t, store.tariffs)
}

func TestNewTariffServiceFallsBackToRub(t *testing.T) {
	store := &fakeTariffStore{}
	tariffs := NewTariffService(store, testLogger(), "")

	require.NoError(t, tariffs.EnsureDefaults(context.Background()))
	require.NotEmpty(t, store.tariffs)
	assert.Equal(t, "RUB", store.tariffs[0].Currency)
}
