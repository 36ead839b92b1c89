package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

// Registry wires Firestore-backed repositories around a shared provider.
type Registry struct {
	provider *pfirestore.Provider
	products *ProductRepository
	orders   *OrderRepository
	users    *UserRepository
	uow      *pfirestore.UnitOfWork
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository on top of provider.
func NewRegistry(provider *pfirestore.Provider, opts ...pfirestore.TxOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		products: products,
		orders:   orders,
		users:    users,
		uow:      pfirestore.NewUnitOfWork(provider, opts...),
	}, nil
}

func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Users() repositories.UserRepository       { return r.users }

func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

// Ping issues a single-document read to confirm Firestore is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.products.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Limit(1)
	})
	return err
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
