package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/storefront/api/internal/repositories"
)

var (
	// ErrProductInvalidInput indicates the caller supplied invalid product data.
	ErrProductInvalidInput = errors.New("product: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("product: not found")
	// ErrProductForbidden indicates the caller is neither the product creator nor an admin.
	ErrProductForbidden = errors.New("product: forbidden")
	// ErrProductConflict indicates a duplicate product identifier.
	ErrProductConflict = errors.New("product: conflict")
	// ErrProductUnavailable indicates the catalog store could not be reached.
	ErrProductUnavailable = errors.New("product: store unavailable")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
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
	return &catalogService{
		products:   deps.Products,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (ProductPage, error) {
	filter = filter.Normalised()
	filter.PerPage = repositories.DefaultProductsPerPage
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return ProductPage{}, mapProductError(err)
	}
	return page, nil
}

func (s *catalogService) ListOwnProducts(ctx context.Context, actor Actor, page int) (ProductPage, error) {
	if !canManageCatalog(actor) {
		return ProductPage{}, ErrProductForbidden
	}
	filter := ProductListFilter{Page: page}
	if !actor.IsAdmin() {
		filter.CreatorID = actor.ID
	}
	return s.ListProducts(ctx, filter)
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapProductError(err)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	if !canManageCatalog(cmd.Actor) {
		return Product{}, ErrProductForbidden
	}

	now := s.clock()
	product := Product{
		ID:          s.newID(),
		Name:        sanitizeText(cmd.Name),
		Description: sanitizeText(cmd.Description),
		Price:       cmd.Price,
		Quantity:    cmd.Quantity,
		Category:    sanitizeText(cmd.Category),
		Image:       ProductImage{PublicID: strings.TrimSpace(cmd.Image.PublicID), URL: strings.TrimSpace(cmd.Image.URL)},
		CreatorID:   cmd.Actor.ID,
		Reviews:     []Review{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapProductError(err)
	}
	s.logger(ctx, "product.created", map[string]any{"productID": product.ID, "creatorID": product.CreatorID})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	if !canManageCatalog(cmd.Actor) {
		return Product{}, ErrProductForbidden
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}

	var updated Product
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return mapProductError(err)
		}
		if !canEditProduct(cmd.Actor, product) {
			return ErrProductForbidden
		}

		if cmd.Name != nil {
			product.Name = sanitizeText(*cmd.Name)
		}
		if cmd.Description != nil {
			product.Description = sanitizeText(*cmd.Description)
		}
		if cmd.Price != nil {
			product.Price = *cmd.Price
		}
		if cmd.Quantity != nil {
			product.Quantity = *cmd.Quantity
		}
		if cmd.Category != nil {
			product.Category = sanitizeText(*cmd.Category)
		}
		if cmd.Image != nil {
			product.Image = ProductImage{PublicID: strings.TrimSpace(cmd.Image.PublicID), URL: strings.TrimSpace(cmd.Image.URL)}
		}
		if err := validateProduct(product); err != nil {
			return err
		}

		product.UpdatedAt = s.clock()
		if err := s.products.Save(txCtx, product); err != nil {
			return mapProductError(err)
		}
		updated = product
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return updated, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, actor Actor, productID string) error {
	if !canManageCatalog(actor) {
		return ErrProductForbidden
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}

	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			return mapProductError(err)
		}
		if !canEditProduct(actor, product) {
			return ErrProductForbidden
		}
		return mapProductError(s.products.Delete(txCtx, productID))
	})
	if err != nil {
		return err
	}
	s.logger(ctx, "product.deleted", map[string]any{"productID": productID, "actorID": actor.ID})
	return nil
}

func canManageCatalog(actor Actor) bool {
	return actor.ID != "" && (actor.IsAdmin() || actor.IsSeller())
}

func canEditProduct(actor Actor, product Product) bool {
	return actor.IsAdmin() || (actor.ID != "" && product.CreatorID == actor.ID)
}

func validateProduct(product Product) error {
	var problems []string
	if product.Name == "" {
		problems = append(problems, "name is required")
	}
	if product.Description == "" {
		problems = append(problems, "description is required")
	}
	if product.Category == "" {
		problems = append(problems, "category is required")
	}
	if product.Price.LessThan(decimal.Zero) {
		problems = append(problems, "price must not be negative")
	}
	if product.Quantity < 0 {
		problems = append(problems, "quantity must not be negative")
	}
	if product.Image.URL != "" {
		if u, err := url.Parse(product.Image.URL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, "image url must be absolute")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrProductInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func mapProductError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProductForbidden) || errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrProductInvalidInput) {
		return err
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return fmt.Errorf("%w: %v", ErrProductInvalidInput, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrProductConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrProductUnavailable, err)
		}
	}
	return err
}
