package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/foodnudes/FoodNudesBot/internal/config"
	"github.com/foodnudes/FoodNudesBot/internal/models"
)

var (
	ErrUnknownTariff  = errors.New("unknown tariff")
	ErrAmountMismatch = errors.New("payment amount mismatch")
)

// ApplyStatus is the outcome of reconciling one completed payment.
type ApplyStatus int

const (
	// ApplyCredited: the payment was recorded and the paid pool credited.
	ApplyCredited ApplyStatus = iota
	// ApplyAlreadyProcessed: this payment id was credited before; nothing
	// changed. Callers should treat it as success towards the user.
	ApplyAlreadyProcessed
	// ApplyInvalid: unknown tariff or amount mismatch; nothing changed.
	ApplyInvalid
)

type TariffSource interface {
	GetByName(ctx context.Context, name string) (*models.Tariff, error)
	GetByID(ctx context.Context, id int64) (*models.Tariff, error)
	ListActive(ctx context.Context) ([]models.Tariff, error)
}

type PaymentStore interface {
	CreatePending(ctx context.Context, payment *models.Payment) error
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error)
	ApplyCompleted(ctx context.Context, payment *models.Payment) (bool, error)
	MarkFailed(ctx context.Context, paymentID, payload string) error
}

// PaymentService validates checkouts against the tariff table and credits the
// ledger exactly once per external payment id.
type PaymentService struct {
	cfg      config.Config
	log      Logger
	payments PaymentStore
	tariffs  TariffSource
	client   *http.Client
}

// Logger is the slice of *slog.Logger the services use.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func NewPaymentService(cfg config.Config, log Logger, payments PaymentStore, tariffs TariffSource) *PaymentService {
	return &PaymentService{
		cfg:      cfg,
		log:      log,
		payments: payments,
		tariffs:  tariffs,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ValidateCheckout gates a charge before the provider finalizes it. Any
// deviation from the configured minor-unit price rejects the checkout.
func (s *PaymentService) ValidateCheckout(ctx context.Context, tariffName string, declaredAmount int) error {
	tariff, err := s.tariffs.GetByName(ctx, tariffName)
	if err != nil {
		return fmt.Errorf("lookup tariff: %w", err)
	}
	if tariff == nil || !tariff.IsActive {
		return ErrUnknownTariff
	}
	if declaredAmount != tariff.PriceMinorUnits {
		return ErrAmountMismatch
	}
	return nil
}

// ApplyCompletedPayment credits the paid pool for a confirmed payment.
// paymentID is the idempotency key: duplicate deliveries, sequential or
// concurrent, credit at most once and report ApplyAlreadyProcessed.
func (s *PaymentService) ApplyCompletedPayment(ctx context.Context, provider, paymentID, tariffName string, amount int, userID int64, rawPayload string) (ApplyStatus, error) {
	tariff, err := s.tariffs.GetByName(ctx, tariffName)
	if err != nil {
		return ApplyInvalid, fmt.Errorf("lookup tariff: %w", err)
	}
	if tariff == nil {
		s.log.Error("payment integrity violation: unknown tariff",
			"payment_id", paymentID, "tariff", tariffName, "user_id", userID)
		return ApplyInvalid, nil
	}
	if amount != tariff.PriceMinorUnits {
		s.log.Error("payment integrity violation: amount mismatch",
			"payment_id", paymentID, "tariff", tariffName,
			"expected", tariff.PriceMinorUnits, "got", amount, "user_id", userID)
		return ApplyInvalid, nil
	}

	tariffID := tariff.ID
	payment := &models.Payment{
		UserID:         userID,
		TariffID:       &tariffID,
		Provider:       provider,
		PaymentID:      paymentID,
		Currency:       tariff.Currency,
		Amount:         amount,
		CreditsGranted: tariff.Credits,
		RawPayload:     rawPayload,
	}
	credited, err := s.payments.ApplyCompleted(ctx, payment)
	if err != nil {
		return ApplyInvalid, fmt.Errorf("apply payment %s: %w", paymentID, err)
	}
	if !credited {
		s.log.Info("duplicate payment ignored", "payment_id", paymentID, "user_id", userID)
		return ApplyAlreadyProcessed, nil
	}
	s.log.Info("payment credited",
		"payment_id", paymentID, "tariff", tariffName, "credits", tariff.Credits, "user_id", userID)
	return ApplyCredited, nil
}

type invoicePayload struct {
	Tariff string `json:"tariff"`
}

// SendInvoice sends a payment link/invoice depending on configured provider.
func (s *PaymentService) SendInvoice(ctx context.Context, bot *tgbotapi.BotAPI, user *models.User, chatID int64, tariffName string) error {
	tariff, err := s.tariffs.GetByName(ctx, tariffName)
	if err != nil {
		return fmt.Errorf("get tariff: %w", err)
	}
	if tariff == nil || !tariff.IsActive {
		return ErrUnknownTariff
	}

	switch strings.ToLower(s.cfg.PaymentProvider) {
	case "telegram", "":
		return s.sendTelegramInvoice(tariff, bot, chatID)
	case "yookassa":
		return s.sendYooKassaPayment(ctx, tariff, bot, user, chatID)
	default:
		return fmt.Errorf("unsupported payment provider: %s", s.cfg.PaymentProvider)
	}
}

func (s *PaymentService) sendTelegramInvoice(tariff *models.Tariff, bot *tgbotapi.BotAPI, chatID int64) error {
	prices := []tgbotapi.LabeledPrice{
		{
			Label:  fmt.Sprintf("Тариф %s", tariff.Name),
			Amount: tariff.PriceMinorUnits,
		},
	}

	payload, _ := json.Marshal(invoicePayload{Tariff: tariff.Name})

	invoice := tgbotapi.NewInvoice(chatID,
		fmt.Sprintf("Тариф %s", tariff.Name),
		fmt.Sprintf("Тариф %s на %d анализов блюд", tariff.Name, tariff.Credits),
		string(payload),
		s.cfg.TelegramPaymentProviderToken,
		"payment",
		tariff.Currency,
		prices,
	)

	if _, err := bot.Send(invoice); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	return nil
}

// HandlePreCheckout answers Telegram's pre-authorization gate. A rejection
// here prevents the charge from completing.
func (s *PaymentService) HandlePreCheckout(ctx context.Context, bot *tgbotapi.BotAPI, query *tgbotapi.PreCheckoutQuery) error {
	response := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}

	var payload invoicePayload
	if err := json.Unmarshal([]byte(query.InvoicePayload), &payload); err != nil {
		response.OK = false
		response.ErrorMessage = "Некорректные данные платежа"
	} else if err := s.ValidateCheckout(ctx, payload.Tariff, query.TotalAmount); err != nil {
		response.OK = false
		switch {
		case errors.Is(err, ErrUnknownTariff):
			response.ErrorMessage = "Неверный тарифный план"
		case errors.Is(err, ErrAmountMismatch):
			response.ErrorMessage = "Несоответствие суммы платежа"
		default:
			response.ErrorMessage = "Произошла ошибка при обработке платежа"
		}
		s.log.Error("pre-checkout rejected", "tariff", payload.Tariff,
			"amount", query.TotalAmount, "err", err)
	}

	if _, err := bot.Request(response); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return nil
}

// HandleSuccessfulPayment reconciles a Telegram payment confirmation.
func (s *PaymentService) HandleSuccessfulPayment(ctx context.Context, user *models.User, payment *tgbotapi.SuccessfulPayment) (ApplyStatus, error) {
	var payload invoicePayload
	if err := json.Unmarshal([]byte(payment.InvoicePayload), &payload); err != nil {
		return ApplyInvalid, fmt.Errorf("parse payment payload: %w", err)
	}

	raw, _ := json.Marshal(payment)
	return s.ApplyCompletedPayment(ctx, "telegram", payment.ProviderPaymentChargeID,
		payload.Tariff, payment.TotalAmount, user.ID, string(raw))
}

type yooPaymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		Type string `json:"type"`
		URL  string `json:"confirmation_url"`
	} `json:"confirmation"`
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

func (s *PaymentService) sendYooKassaPayment(ctx context.Context, tariff *models.Tariff, bot *tgbotapi.BotAPI, user *models.User, chatID int64) error {
	payment, err := s.createYooKassaPayment(ctx, tariff)
	if err != nil {
		return err
	}

	raw, _ := json.Marshal(payment)
	tariffID := tariff.ID
	record := &models.Payment{
		UserID:         user.ID,
		TariffID:       &tariffID,
		Provider:       "yookassa",
		PaymentID:      payment.ID,
		Currency:       tariff.Currency,
		Amount:         tariff.PriceMinorUnits,
		CreditsGranted: tariff.Credits,
		RawPayload:     string(raw),
	}
	if err := s.payments.CreatePending(ctx, record); err != nil {
		return fmt.Errorf("record pending payment: %w", err)
	}

	text := fmt.Sprintf("Оплата тарифа «%s» (%d анализов):\nСумма: %.2f %s\nСсылка на оплату: %s\nПосле оплаты кредиты будут начислены автоматически.",
		tariff.Name, tariff.Credits, float64(tariff.PriceMinorUnits)/100, tariff.Currency, payment.Confirmation.URL)

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("send payment link: %w", err)
	}
	return nil
}

func (s *PaymentService) createYooKassaPayment(ctx context.Context, tariff *models.Tariff) (*yooPaymentResponse, error) {
	if s.cfg.YooKassaShopID == "" || s.cfg.YooKassaSecretKey == "" {
		return nil, fmt.Errorf("yookassa credentials are not configured")
	}

	returnURL := s.cfg.YooKassaReturnURL
	if returnURL == "" {
		returnURL = "https://t.me"
	}

	payload := map[string]any{
		"amount": map[string]string{
			"value":    fmt.Sprintf("%.2f", float64(tariff.PriceMinorUnits)/100),
			"currency": tariff.Currency,
		},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": returnURL,
		},
		"description": fmt.Sprintf("Тариф %s (%d анализов)", tariff.Name, tariff.Credits),
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.yookassa.ru/v3/payments", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build yookassa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())
	req.SetBasicAuth(s.cfg.YooKassaShopID, s.cfg.YooKassaSecretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yookassa request: %w", err)
	}
	defer resp.Body.Close()

	var parsed yooPaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode yookassa response: %w", err)
	}
	if parsed.ID == "" || parsed.Confirmation.URL == "" {
		return nil, fmt.Errorf("invalid yookassa response (missing id or confirmation url)")
	}
	if parsed.Status == "" {
		parsed.Status = "pending"
	}
	return &parsed, nil
}

// HandleYooKassaWebhook processes payment status updates delivered to the
// admin server and reconciles succeeded payments.
func (s *PaymentService) HandleYooKassaWebhook(ctx context.Context, payload []byte) error {
	var evt struct {
		Event  string `json:"event"`
		Object struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"object"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("parse webhook: %w", err)
	}
	if evt.Object.ID == "" {
		return fmt.Errorf("webhook missing payment id")
	}

	pmt, err := s.payments.FindByPaymentID(ctx, evt.Object.ID)
	if err != nil {
		return fmt.Errorf("find payment: %w", err)
	}
	if pmt == nil {
		return fmt.Errorf("payment not found for id=%s", evt.Object.ID)
	}
	if pmt.Status == models.PaymentCompleted {
		return nil // already processed
	}

	if evt.Object.Status != "succeeded" {
		if err := s.payments.MarkFailed(ctx, pmt.PaymentID, string(payload)); err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}
		return nil
	}

	if pmt.TariffID == nil {
		return fmt.Errorf("payment %s missing tariff", pmt.PaymentID)
	}
	tariff, err := s.tariffs.GetByID(ctx, *pmt.TariffID)
	if err != nil {
		return fmt.Errorf("get tariff: %w", err)
	}
	if tariff == nil {
		return fmt.Errorf("tariff not found for payment %s", pmt.PaymentID)
	}

	status, err := s.ApplyCompletedPayment(ctx, "yookassa", pmt.PaymentID, tariff.Name, pmt.Amount, pmt.UserID, string(payload))
	if err != nil {
		return err
	}
	if status == ApplyInvalid {
		return fmt.Errorf("invalid payment %s", pmt.PaymentID)
	}
	return nil
}
