package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

const maxReviewBodySize = 8 * 1024

// ReviewHandlers exposes purchase-backed product reviews. Routes mount under /products.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
}

// Routes registers the review endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		g.Put("/{productID}/reviews", h.submitReview)
		g.Delete("/{productID}/reviews/{reviewID}", h.deleteReview)
	})
}

type submitReviewRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
	Name    string `json:"name" validate:"max=120"`
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req submitReviewRequest
	if !decodeRequest(w, r, maxReviewBodySize, &req) {
		return
	}

	product, err := h.reviews.SubmitReview(ctx, services.SubmitReviewCommand{
		Actor:     actor,
		ProductID: chi.URLParam(r, "productID"),
		OrderID:   req.OrderID,
		Username:  req.Name,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Success: true, Product: buildProductPayload(product)})
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	product, err := h.reviews.DeleteReview(ctx, services.DeleteReviewCommand{
		Actor:     actor,
		ProductID: chi.URLParam(r, "productID"),
		ReviewID:  chi.URLParam(r, "reviewID"),
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Success: true, Product: buildProductPayload(product)})
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to review this product", http.StatusForbidden))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "product or review not found", http.StatusNotFound))
	default:
		writeProductError(ctx, w, err)
	}
}
