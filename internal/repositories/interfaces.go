package repositories

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Users() UserRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one atomic boundary. Reads inside fn observe a consistent
// snapshot and either every write in fn is applied or none is.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository is the catalog store.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	// Save replaces the stored product. Negative quantities are rejected.
	Save(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	Delete(ctx context.Context, productID string) error
	List(ctx context.Context, filter ProductListFilter) (domain.ProductPage, error)
}

// OrderRepository is the order store.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// List returns matching orders newest first.
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// UserRepository is the account store behind admin user management.
type UserRepository interface {
	// Save upserts the user record.
	Save(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	// List returns every user newest first.
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, userID string) error
}

// OrderListFilter narrows order listings. An empty UserID lists every order.
type OrderListFilter struct {
	UserID string
}

// ProductListFilter describes catalog search, filtering, and page selection.
type ProductListFilter struct {
	Keyword   string
	Category  string
	CreatorID string
	Price     domain.RangeQuery[decimal.Decimal]
	Ratings   domain.RangeQuery[float64]
	Page      int
	PerPage   int
}
