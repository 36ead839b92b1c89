package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

const (
	maxPaymentBodySize        = 4 * 1024
	defaultPaymentRateLimit   = 20
	defaultPaymentRateWindow  = time.Minute
	paymentRateLimitedMessage = "too many payment requests, retry later"
)

// PaymentHandlers exposes checkout intent creation and callback signature verification.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
	limiter  rateLimiter
}

// PaymentHandlerOption customises PaymentHandlers.
type PaymentHandlerOption func(*PaymentHandlers)

// WithPaymentRateLimit caps payment requests per caller within window. A non-positive limit disables it.
func WithPaymentRateLimit(limit int, window time.Duration, clock func() time.Time) PaymentHandlerOption {
	return func(h *PaymentHandlers) {
		h.limiter = newKeyedRateLimiter(limit, window, clock)
	}
}

// NewPaymentHandlers constructs PaymentHandlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentHandlerOption) *PaymentHandlers {
	h := &PaymentHandlers{
		authn:    authn,
		payments: payments,
		limiter:  newKeyedRateLimiter(defaultPaymentRateLimit, defaultPaymentRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		g.Use(rateLimitMiddleware(h.limiter, paymentRateLimitedMessage))
		g.Post("/checkout", h.checkout)
		g.Post("/verify", h.verify)
	})
}

type checkoutRequest struct {
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
	Currency string          `json:"currency" validate:"omitempty,len=3,alpha"`
}

type checkoutResponse struct {
	ProviderOrderID string `json:"providerOrderId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ClientSecret    string `json:"clientSecret,omitempty"`
}

// verifyPaymentRequest has no validation tags; missing fields are reported by the verifier as invalid
// payment details.
type verifyPaymentRequest struct {
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	Signature         string `json:"signature"`
}

type verifyPaymentResponse struct {
	Success     bool               `json:"success"`
	PaymentInfo paymentInfoPayload `json:"paymentInfo"`
}

func (h *PaymentHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeRequest(w, r, maxPaymentBodySize, &req) {
		return
	}

	intent, err := h.payments.Checkout(ctx, services.CheckoutCommand{
		Actor:    actor,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutResponse{
		ProviderOrderID: intent.ProviderOrderID,
		Amount:          intent.AmountMinor,
		Currency:        intent.Currency,
		ClientSecret:    intent.ClientSecret,
	})
}

func (h *PaymentHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireActor(ctx, w); !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeRequest(w, r, maxPaymentBodySize, &req) {
		return
	}

	verified, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		ProviderOrderID:   req.ProviderOrderID,
		ProviderPaymentID: req.ProviderPaymentID,
		Signature:         req.Signature,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, verifyPaymentResponse{
		Success: true,
		PaymentInfo: paymentInfoPayload{
			ID:     verified.PaymentID,
			Status: string(verified.Status),
		},
	})
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidDetails):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payment_details", "provider order id, payment id, and signature are required", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentSignatureMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("signature_mismatch", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentProviderFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_error", "payment provider request failed", http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("payment_timeout", "payment request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
