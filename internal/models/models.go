package models

import "time"

// CreditPool names the balance a credit is drawn from or added to.
type CreditPool string

const (
	PoolFree CreditPool = "free"
	PoolPaid CreditPool = "paid"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type User struct {
	ID            int64
	TelegramID    int64
	Username      string
	FirstName     string
	LastName      string
	FreeCredits   int
	PaidCredits   int
	TotalUsed     int
	Age           int
	HeightCm      float64
	WeightKg      float64
	Goal          string
	ActivityLevel string
	DailyCalories int
	LastActivity  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payment is one provider transaction. PaymentID is the external identifier
// and the idempotency key: a given PaymentID is credited at most once.
type Payment struct {
	ID             int64
	UserID         int64
	TariffID       *int64
	Provider       string
	PaymentID      string
	Currency       string
	Amount         int
	CreditsGranted int
	Status         PaymentStatus
	RawPayload     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tariff maps a fixed minor-unit price to a fixed number of credits.
type Tariff struct {
	ID              int64
	Name            string
	Currency        string
	PriceMinorUnits int
	Credits         int
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MealLog records one completed analysis. Pool is empty when the debit hit
// an empty account (zero-balance debit policy enabled).
type MealLog struct {
	ID        int64
	UserID    int64
	Dish      string
	Pool      CreditPool
	PhotoURL  string
	CreatedAt time.Time
}

type MealStat struct {
	Dish  string
	Count int
}

type PromoCode struct {
	ID        int64
	Code      string
	MaxUses   int
	Uses      int
	CreatedAt time.Time
}
