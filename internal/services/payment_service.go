package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
)

var (
	// ErrPaymentInvalidInput indicates an unusable checkout amount or currency.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidDetails is returned when a verification field is missing.
	ErrPaymentInvalidDetails = errors.New("payment: invalid payment details")
	// ErrPaymentSignatureMismatch is returned when the callback signature does not verify.
	ErrPaymentSignatureMismatch = errors.New("payment: signature mismatch")
	// ErrPaymentProviderFailed wraps failures reported by the payment provider.
	ErrPaymentProviderFailed = errors.New("payment: provider request failed")
)

// PaymentVerifier authenticates provider callbacks.
type PaymentVerifier interface {
	Verify(orderID, paymentID, signature string) error
}

// PaymentServiceDeps bundles collaborators for the payment service.
type PaymentServiceDeps struct {
	Provider        payments.Provider
	Verifier        PaymentVerifier
	DefaultCurrency string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	provider        payments.Provider
	verifier        PaymentVerifier
	defaultCurrency string
	logger          func(context.Context, string, map[string]any)
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Provider == nil {
		return nil, errors.New("payment service: provider is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("payment service: verifier is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		provider:        deps.Provider,
		verifier:        deps.Verifier,
		defaultCurrency: payments.NormaliseCurrency(deps.DefaultCurrency),
		logger:          logger,
	}, nil
}

func (s *paymentService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutIntent, error) {
	minor, err := payments.ToMinorUnits(cmd.Amount)
	if err != nil {
		return CheckoutIntent{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}
	currency := s.defaultCurrency
	if strings.TrimSpace(cmd.Currency) != "" {
		currency = payments.NormaliseCurrency(cmd.Currency)
	}
	if len(currency) != 3 {
		return CheckoutIntent{}, fmt.Errorf("%w: currency must be a three letter ISO code", ErrPaymentInvalidInput)
	}

	metadata := map[string]string{}
	if cmd.Actor.ID != "" {
		metadata["user_id"] = cmd.Actor.ID
	}
	intent, err := s.provider.CreatePaymentIntent(ctx, payments.IntentRequest{
		AmountMinor:   minor,
		Currency:      currency,
		CustomerEmail: cmd.Actor.Email,
		Metadata:      metadata,
	})
	if err != nil {
		s.logger(ctx, "payment.checkout.failed", map[string]any{"error": err.Error(), "amount": minor})
		return CheckoutIntent{}, fmt.Errorf("%w: %v", ErrPaymentProviderFailed, err)
	}
	return CheckoutIntent{
		ProviderOrderID: intent.ID,
		AmountMinor:     intent.AmountMinor,
		Currency:        intent.Currency,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifiedPayment, error) {
	orderID := strings.TrimSpace(cmd.ProviderOrderID)
	paymentID := strings.TrimSpace(cmd.ProviderPaymentID)
	signature := strings.TrimSpace(cmd.Signature)

	if err := s.verifier.Verify(orderID, paymentID, signature); err != nil {
		s.logger(ctx, "payment.verify.failed", map[string]any{"providerOrderID": orderID, "error": err.Error()})
		switch {
		case errors.Is(err, payments.ErrInvalidPaymentDetails):
			return VerifiedPayment{}, ErrPaymentInvalidDetails
		case errors.Is(err, payments.ErrSignatureMismatch):
			return VerifiedPayment{}, ErrPaymentSignatureMismatch
		default:
			return VerifiedPayment{}, err
		}
	}
	return VerifiedPayment{PaymentID: paymentID, Status: domain.PaymentStatusPaid}, nil
}
