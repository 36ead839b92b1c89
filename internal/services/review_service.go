package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/storefront/api/internal/repositories"
)

const (
	minReviewRating      = 1
	maxReviewRating      = 5
	maxReviewCommentSize = 2000
)

var (
	// ErrReviewInvalidInput indicates the review payload failed validation.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the review or its product is missing.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewForbidden indicates the caller did not purchase the product or does not own the review.
	ErrReviewForbidden = errors.New("review: forbidden")
)

// ReviewServiceDeps bundles collaborators for the review service.
type ReviewServiceDeps struct {
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	products   repositories.ProductRepository
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewReviewService constructs a ReviewService.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reviewService{
		products:   deps.Products,
		orders:     deps.Orders,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// SubmitReview adds the caller's review for a purchased product, or replaces the rating and comment when the
// same order was already reviewed.
func (s *reviewService) SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Product, error) {
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return Product{}, ErrReviewForbidden
	}
	productID := strings.TrimSpace(cmd.ProductID)
	orderID := strings.TrimSpace(cmd.OrderID)
	comment := sanitizeText(cmd.Comment)
	username := sanitizeText(cmd.Username)
	switch {
	case productID == "":
		return Product{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	case orderID == "":
		return Product{}, fmt.Errorf("%w: order id is required", ErrReviewInvalidInput)
	case cmd.Rating < minReviewRating || cmd.Rating > maxReviewRating:
		return Product{}, fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, minReviewRating, maxReviewRating)
	case len(comment) > maxReviewCommentSize:
		return Product{}, fmt.Errorf("%w: comment exceeds %d characters", ErrReviewInvalidInput, maxReviewCommentSize)
	}
	if username == "" {
		username = cmd.Actor.Email
	}

	var updated Product
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return mapReviewError(err)
		}
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return fmt.Errorf("%w: order %s was not placed by caller", ErrReviewForbidden, orderID)
			}
			return err
		}
		if order.UserID != cmd.Actor.ID || !orderContains(order, productID) {
			return fmt.Errorf("%w: order %s does not include product %s", ErrReviewForbidden, orderID, productID)
		}

		replaced := false
		for i := range product.Reviews {
			if product.Reviews[i].OrderID == orderID {
				product.Reviews[i].Rating = cmd.Rating
				product.Reviews[i].Comment = comment
				replaced = true
			}
		}
		if !replaced {
			product.Reviews = append(product.Reviews, Review{
				ID:        s.newID(),
				UserID:    cmd.Actor.ID,
				OrderID:   orderID,
				Username:  username,
				Rating:    cmd.Rating,
				Comment:   comment,
				CreatedAt: s.clock(),
			})
		}
		product.RecalculateRatings()
		product.UpdatedAt = s.clock()

		if err := s.products.Save(txCtx, product); err != nil {
			return mapReviewError(err)
		}
		updated = product
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.logger(ctx, "review.submitted", map[string]any{"productID": productID, "orderID": orderID, "ratings": updated.Ratings})
	return updated, nil
}

// DeleteReview removes a review written by the caller and refreshes the rating aggregate.
func (s *reviewService) DeleteReview(ctx context.Context, cmd DeleteReviewCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if productID == "" || reviewID == "" {
		return Product{}, fmt.Errorf("%w: product id and review id are required", ErrReviewInvalidInput)
	}

	var updated Product
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return mapReviewError(err)
		}
		index := -1
		for i, review := range product.Reviews {
			if review.ID == reviewID {
				index = i
				break
			}
		}
		if index < 0 {
			return fmt.Errorf("%w: review %s", ErrReviewNotFound, reviewID)
		}
		if cmd.Actor.ID == "" || product.Reviews[index].UserID != cmd.Actor.ID {
			return ErrReviewForbidden
		}

		product.Reviews = append(product.Reviews[:index:index], product.Reviews[index+1:]...)
		product.RecalculateRatings()
		product.UpdatedAt = s.clock()
		if err := s.products.Save(txCtx, product); err != nil {
			return mapReviewError(err)
		}
		updated = product
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return updated, nil
}

func orderContains(order Order, productID string) bool {
	for _, item := range order.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func mapReviewError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
	}
	return err
}
