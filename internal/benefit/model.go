package benefit

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a discount or cashback does not exist.
	ErrNotFound = errors.New("benefit not found")
	// ErrUnknownCounterparty is returned when the counterparty does not exist.
	ErrUnknownCounterparty = errors.New("unknown counterparty")
	// ErrPercentRange rejects cashback percentages above 100.
	ErrPercentRange = errors.New("percent must be between 0 and 100")
)

// Discount subtracts Value from the tariff per kilogram for a counterparty.
type Discount struct {
	ID             int64           `json:"id"`
	CounterpartyID int64           `json:"counterparty_id"`
	Value          decimal.Decimal `json:"value"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Cashback credits Percent of the shipment back to a counterparty.
type Cashback struct {
	ID             int64           `json:"id"`
	CounterpartyID int64           `json:"counterparty_id"`
	Percent        decimal.Decimal `json:"percent"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateDiscountInput is the payload for a new discount.
type CreateDiscountInput struct {
	CounterpartyID int64           `json:"counterparty_id" validate:"required,gt=0"`
	Value          decimal.Decimal `json:"value" validate:"nonnegative"`
}

// CreateCashbackInput is the payload for a new cashback.
type CreateCashbackInput struct {
	CounterpartyID int64           `json:"counterparty_id" validate:"required,gt=0"`
	Percent        decimal.Decimal `json:"percent" validate:"nonnegative"`
}

var hundred = decimal.NewFromInt(100)
