package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
)

type fakeIntentAPI struct {
	params *stripe.PaymentIntentParams
	intent *stripe.PaymentIntent
	err    error
}

func (f *fakeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	return f.intent, f.err
}

func TestStripeProviderCreatePaymentIntent(t *testing.T) {
	api := &fakeIntentAPI{intent: &stripe.PaymentIntent{
		ID:           "pi_123",
		Amount:       11500,
		Currency:     stripe.Currency("inr"),
		ClientSecret: "pi_123_secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{Intents: api})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	intent, err := provider.CreatePaymentIntent(context.Background(), IntentRequest{
		AmountMinor:    11500,
		Metadata:       map[string]string{"user": "u1"},
		IdempotencyKey: "idem-1",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if got := *api.params.Amount; got != 11500 {
		t.Fatalf("expected amount 11500, got %d", got)
	}
	if got := *api.params.Currency; got != "inr" {
		t.Fatalf("expected default currency inr, got %s", got)
	}
	if got := *api.params.IdempotencyKey; got != "idem-1" {
		t.Fatalf("expected idempotency key, got %s", got)
	}
	if api.params.Metadata["user"] != "u1" {
		t.Fatalf("expected metadata to be forwarded, got %v", api.params.Metadata)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" || intent.Currency != "INR" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", intent.Status)
	}
}

func TestStripeProviderCreatePaymentIntentErrors(t *testing.T) {
	api := &fakeIntentAPI{err: errors.New("card declined")}
	provider, _ := NewStripeProvider(StripeProviderConfig{Intents: api})

	if _, err := provider.CreatePaymentIntent(context.Background(), IntentRequest{AmountMinor: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := provider.CreatePaymentIntent(context.Background(), IntentRequest{AmountMinor: 100}); err == nil {
		t.Fatal("expected provider error")
	}
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected api key error")
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := map[string]int64{
		"115":    11500,
		"32.03":  3203,
		"10.005": 1001,
		"0.01":   1,
	}
	for raw, want := range tests {
		got, err := ToMinorUnits(decimal.RequireFromString(raw))
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%s: expected %d, got %d", raw, want, got)
		}
	}
	if _, err := ToMinorUnits(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for zero, got %v", err)
	}
}
