// Package memory provides process-local repositories used for local development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
)

// Error implements repositories.RepositoryError.
type Error struct {
	op   string
	kind errorKind
}

func (e *Error) Error() string {
	switch e.kind {
	case kindNotFound:
		return e.op + ": not found"
	case kindConflict:
		return e.op + ": already exists"
	default:
		return e.op + ": failed"
	}
}

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return false }

var errClosed = errors.New("memory: registry closed")

type txKey struct{}

// Registry holds products, orders, and users behind a single lock. RunInTx holds the lock for the whole unit of work
// and restores the pre-transaction snapshot when fn fails.
type Registry struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	users    map[string]domain.User
	closed   bool
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds an empty registry, optionally seeded with catalog products.
func NewRegistry(seed ...domain.Product) *Registry {
	reg := &Registry{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		users:    make(map[string]domain.User),
	}
	for _, product := range seed {
		reg.products[product.ID] = cloneProduct(product)
	}
	return reg
}

func (r *Registry) Products() repositories.ProductRepository { return productRepository{reg: r} }
func (r *Registry) Orders() repositories.OrderRepository     { return orderRepository{reg: r} }
func (r *Registry) Users() repositories.UserRepository       { return userRepository{reg: r} }

// SeedUsers stores account records directly, replacing any with the same id.
func (r *Registry) SeedUsers(users ...domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range users {
		r.users[user.ID] = user
	}
}

func (r *Registry) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed
	}
	return nil
}

func (r *Registry) Close(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// RunInTx executes fn with exclusive access. Nested calls reuse the outer transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if r.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed
	}

	products := make(map[string]domain.Product, len(r.products))
	for id, p := range r.products {
		products[id] = cloneProduct(p)
	}
	orders := make(map[string]domain.Order, len(r.orders))
	for id, o := range r.orders {
		orders[id] = cloneOrder(o)
	}

	users := make(map[string]domain.User, len(r.users))
	for id, u := range r.users {
		users[id] = u
	}

	if err := fn(context.WithValue(ctx, txKey{}, r)); err != nil {
		r.products = products
		r.orders = orders
		r.users = users
		return err
	}
	return nil
}

func (r *Registry) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Registry)
	return owner == r
}

// lock acquires the registry unless ctx already belongs to a running transaction.
func (r *Registry) lock(ctx context.Context) (func(), error) {
	if r.inTx(ctx) {
		return func() {}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errClosed
	}
	return r.mu.Unlock, nil
}

type productRepository struct {
	reg *Registry
}

func (p productRepository) Insert(ctx context.Context, product domain.Product) error {
	unlock, err := p.reg.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, exists := p.reg.products[product.ID]; exists {
		return &Error{op: "products.insert", kind: kindConflict}
	}
	if product.Quantity < 0 {
		return negativeStock("products.insert", product)
	}
	p.reg.products[product.ID] = cloneProduct(product)
	return nil
}

func (p productRepository) Save(ctx context.Context, product domain.Product) error {
	unlock, err := p.reg.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if product.Quantity < 0 {
		return negativeStock("products.save", product)
	}
	p.reg.products[product.ID] = cloneProduct(product)
	return nil
}

func (p productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	unlock, err := p.reg.lock(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	defer unlock()
	product, ok := p.reg.products[productID]
	if !ok {
		return domain.Product{}, &Error{op: "products.get", kind: kindNotFound}
	}
	return cloneProduct(product), nil
}

func (p productRepository) Delete(ctx context.Context, productID string) error {
	unlock, err := p.reg.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := p.reg.products[productID]; !ok {
		return &Error{op: "products.delete", kind: kindNotFound}
	}
	delete(p.reg.products, productID)
	return nil
}

func (p productRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.ProductPage, error) {
	unlock, err := p.reg.lock(ctx)
	if err != nil {
		return domain.ProductPage{}, err
	}
	defer unlock()

	filter = filter.Normalised()
	matched := make([]domain.Product, 0, len(p.reg.products))
	for _, product := range p.reg.products {
		if filter.Matches(product) {
			matched = append(matched, cloneProduct(product))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return filter.Paginate(matched, len(p.reg.products)), nil
}

type orderRepository struct {
	reg *Registry
}

func (o orderRepository) Insert(ctx context.Context, order domain.Order) error {
	unlock, err := o.reg.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, exists := o.reg.orders[order.ID]; exists {
		return &Error{op: "orders.insert", kind: kindConflict}
	}
	o.reg.orders[order.ID] = cloneOrder(order)
	return nil
}

func (o orderRepository) Update(ctx context.Context, order domain.Order) error {
	unlock, err := o.reg.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, exists := o.reg.orders[order.ID]; !exists {
		return &Error{op: "orders.update", kind: kindNotFound}
	}
	o.reg.orders[order.ID] = cloneOrder(order)
	return nil
}

func (o orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	unlock, err := o.reg.lock(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()
	order, ok := o.reg.orders[orderID]
	if !ok {
		return domain.Order{}, &Error{op: "orders.get", kind: kindNotFound}
	}
	return cloneOrder(order), nil
}

func (o orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	unlock, err := o.reg.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	orders := make([]domain.Order, 0)
	for _, order := range o.reg.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (o orderRepository) Delete(ctx context.Context, orderID string) error {
	unlock, err := o.reg.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := o.reg.orders[orderID]; !ok {
		return &Error{op: "orders.delete", kind: kindNotFound}
	}
	delete(o.reg.orders, orderID)
	return nil
}

type userRepository struct {
	reg *Registry
}

func (u userRepository) Save(ctx context.Context, user domain.User) error {
	unlock, err := u.reg.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	u.reg.users[user.ID] = user
	return nil
}

func (u userRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	unlock, err := u.reg.lock(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer unlock()
	user, ok := u.reg.users[userID]
	if !ok {
		return domain.User{}, &Error{op: "users.get", kind: kindNotFound}
	}
	return user, nil
}

func (u userRepository) List(ctx context.Context) ([]domain.User, error) {
	unlock, err := u.reg.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	users := make([]domain.User, 0, len(u.reg.users))
	for _, user := range u.reg.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (u userRepository) Delete(ctx context.Context, userID string) error {
	unlock, err := u.reg.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if _, ok := u.reg.users[userID]; !ok {
		return &Error{op: "users.delete", kind: kindNotFound}
	}
	delete(u.reg.users, userID)
	return nil
}

func negativeStock(op string, product domain.Product) error {
	err := repositories.NewStockError(repositories.StockErrorNegativeQuantity, product.ID, 0, product.Quantity)
	err.Op = op
	return err
}

func cloneProduct(p domain.Product) domain.Product {
	p.Reviews = append([]domain.Review(nil), p.Reviews...)
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.PaidAt != nil {
		paid := *o.PaidAt
		o.PaidAt = &paid
	}
	if o.DeliveredAt != nil {
		delivered := *o.DeliveredAt
		o.DeliveredAt = &delivered
	}
	return o
}
