package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Status enumerates the normalised payment intent states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// DefaultCurrency is used when a checkout request does not name one.
const DefaultCurrency = "INR"

// ErrInvalidAmount is returned for zero or negative checkout amounts.
var ErrInvalidAmount = errors.New("payments: amount must be greater than zero")

// IntentRequest captures the payload required to create a payment intent.
type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the provider payment intent handed back to the client.
type Intent struct {
	ID           string
	Provider     string
	AmountMinor  int64
	Currency     string
	ClientSecret string
	Status       Status
}

// Provider defines the contract for payment service adapters.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// ToMinorUnits converts a major-unit amount into the provider's integer minor units, rounding half away
// from zero.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}

// NormaliseCurrency upper-cases the ISO code and falls back to DefaultCurrency.
func NormaliseCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency
	}
	return currency
}
