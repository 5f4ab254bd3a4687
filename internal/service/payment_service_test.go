package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnudes/FoodNudesBot/internal/config"
	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type fakeTariffSource struct {
	tariffs map[string]*models.Tariff
}

func (f *fakeTariffSource) GetByName(ctx context.Context, name string) (*models.Tariff, error) {
	return f.tariffs[name], nil
}

func (f *fakeTariffSource) GetByID(ctx context.Context, id int64) (*models.Tariff, error) {
	for _, t := range f.tariffs {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTariffSource) ListActive(ctx context.Context) ([]models.Tariff, error) {
	out := make([]models.Tariff, 0, len(f.tariffs))
	for _, t := range f.tariffs {
		if t.IsActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakePaymentStore struct {
	applied  map[string]*models.Payment
	pending  map[string]*models.Payment
	credited int
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{
		applied: make(map[string]*models.Payment),
		pending: make(map[string]*models.Payment),
	}
}

func (f *fakePaymentStore) CreatePending(ctx context.Context, payment *models.Payment) error {
	payment.Status = models.PaymentPending
	f.pending[payment.PaymentID] = payment
	return nil
}

func (f *fakePaymentStore) FindByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error) {
	if p, ok := f.applied[paymentID]; ok {
		return p, nil
	}
	return f.pending[paymentID], nil
}

func (f *fakePaymentStore) ApplyCompleted(ctx context.Context, payment *models.Payment) (bool, error) {
	if _, ok := f.applied[payment.PaymentID]; ok {
		return false, nil
	}
	payment.Status = models.PaymentCompleted
	f.applied[payment.PaymentID] = payment
	f.credited += payment.CreditsGranted
	delete(f.pending, payment.PaymentID)
	return true, nil
}

func (f *fakePaymentStore) MarkFailed(ctx context.Context, paymentID, payload string) error {
	if p, ok := f.pending[paymentID]; ok {
		p.Status = models.PaymentFailed
	}
	return nil
}

func standardTariffs() *fakeTariffSource {
	return &fakeTariffSource{tariffs: map[string]*models.Tariff{
		"Базовый":     {ID: 1, Name: "Базовый", Currency: "RUB", PriceMinorUnits: 29900, Credits: 50, IsActive: true},
		"Стандартный": {ID: 2, Name: "Стандартный", Currency: "RUB", PriceMinorUnits: 49900, Credits: 100, IsActive: true},
		"Премиум":     {ID: 3, Name: "Премиум", Currency: "RUB", PriceMinorUnits: 99000, Credits: 300, IsActive: true},
		"Архивный":    {ID: 4, Name: "Архивный", Currency: "RUB", PriceMinorUnits: 10000, Credits: 10, IsActive: false},
	}}
}

func newTestPaymentService(store *fakePaymentStore) *PaymentService {
	return NewPaymentService(config.Config{}, testLogger(), store, standardTariffs())
}

func TestValidateCheckout(t *testing.T) {
	svc := newTestPaymentService(newFakePaymentStore())
	ctx := context.Background()

	tests := []struct {
		name    string
		tariff  string
		amount  int
		wantErr error
	}{
		{"exact price accepted", "Базовый", 29900, nil},
		{"underpayment rejected", "Базовый", 29000, ErrAmountMismatch},
		{"overpayment rejected", "Стандартный", 50000, ErrAmountMismatch},
		{"unknown tariff rejected", "Золотой", 29900, ErrUnknownTariff},
		{"inactive tariff rejected", "Архивный", 10000, ErrUnknownTariff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ValidateCheckout(ctx, tt.tariff, tt.amount)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestApplyCompletedPaymentCreditsOnce(t *testing.T) {
	store := newFakePaymentStore()
	svc := newTestPaymentService(store)
	ctx := context.Background()

	status, err := svc.ApplyCompletedPayment(ctx, "telegram", "charge-1", "Стандартный", 49900, 7, "{}")
	require.NoError(t, err)
	assert.Equal(t, ApplyCredited, status)
	assert.Equal(t, 100, store.credited)

	// Provider redelivers the same confirmation.
	status, err = svc.ApplyCompletedPayment(ctx, "telegram", "charge-1", "Стандартный", 49900, 7, "{}")
	require.NoError(t, err)
	assert.Equal(t, ApplyAlreadyProcessed, status)
	assert.Equal(t, 100, store.credited)
}

func TestApplyCompletedPaymentDistinctIDs(t *testing.T) {
	store := newFakePaymentStore()
	svc := newTestPaymentService(store)
	ctx := context.Background()

	for _, id := range []string{"charge-1", "charge-2"} {
		status, err := svc.ApplyCompletedPayment(ctx, "telegram", id, "Базовый", 29900, 7, "{}")
		require.NoError(t, err)
		assert.Equal(t, ApplyCredited, status)
	}
	assert.Equal(t, 100, store.credited)
}

func TestApplyCompletedPaymentRejectsInvalid(t *testing.T) {
	store := newFakePaymentStore()
	svc := newTestPaymentService(store)
	ctx := context.Background()

	status, err := svc.ApplyCompletedPayment(ctx, "telegram", "charge-1", "Золотой", 29900, 7, "{}")
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalid, status)
	assert.Equal(t, 0, store.credited)

	status, err = svc.ApplyCompletedPayment(ctx, "telegram", "charge-2", "Базовый", 1, 7, "{}")
	require.NoError(t, err)
	assert.Equal(t, ApplyInvalid, status)
	assert.Equal(t, 0, store.credited)
	assert.Empty(t, store.applied)
}

func TestYooKassaWebhookReconciles(t *testing.T) {
	store := newFakePaymentStore()
	svc := newTestPaymentService(store)
	ctx := context.Background()

	tariffID := int64(1)
	require.NoError(t, store.CreatePending(ctx, &models.Payment{
		UserID:         7,
		TariffID:       &tariffID,
		Provider:       "yookassa",
		PaymentID:      "yk-123",
		Currency:       "RUB",
		Amount:         29900,
		CreditsGranted: 50,
	}))

	payload := []byte(`{"event":"payment.succeeded","object":{"id":"yk-123","status":"succeeded"}}`)
	require.NoError(t, svc.HandleYooKassaWebhook(ctx, payload))
	assert.Equal(t, 50, store.credited)

	// Redelivery is a no-op.
	require.NoError(t, svc.HandleYooKassaWebhook(ctx, payload))
	assert.Equal(t, 50, store.credited)
}

func TestYooKassaWebhookMarksFailed(t *testing.T) {
	store := newFakePaymentStore()
	svc := newTestPaymentService(store)
	ctx := context.Background()

	tariffID := int64(1)
	require.NoError(t, store.CreatePending(ctx, &models.Payment{
		UserID:         7,
		TariffID:       &tariffID,
		PaymentID:      "yk-456",
		Amount:         29900,
		CreditsGranted: 50,
	}))

	payload := []byte(`{"event":"payment.canceled","object":{"id":"yk-456","status":"canceled"}}`)
	require.NoError(t, svc.HandleYooKassaWebhook(ctx, payload))
	assert.Equal(t, 0, store.credited)
	assert.Equal(t, models.PaymentFailed, store.pending["yk-456"].Status)
}
