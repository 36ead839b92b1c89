package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Actor            = domain.Actor
	Order            = domain.Order
	OrderItem        = domain.OrderItem
	OrderStatus      = domain.OrderStatus
	OrderList        = domain.OrderList
	ShippingInfo     = domain.ShippingInfo
	PaymentInfo      = domain.PaymentInfo
	PricingBreakdown = domain.PricingBreakdown
	Product          = domain.Product
	ProductImage     = domain.ProductImage
	ProductPage      = domain.ProductPage
	Review           = domain.Review
	User             = domain.User
	HealthReport     = domain.HealthReport

	ProductListFilter = repositories.ProductListFilter
)

// OrderService owns order creation, visibility rules, and the fulfilment state machine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error)
	ListOrders(ctx context.Context, actor Actor, scope OrderScope) (OrderList, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	DeleteOrder(ctx context.Context, actor Actor, orderID string) error
}

// CatalogService exposes product search and product management.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (ProductPage, error)
	ListOwnProducts(ctx context.Context, actor Actor, page int) (ProductPage, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, actor Actor, productID string) error
}

// ReviewService manages purchase-backed product reviews and the rating aggregate.
type ReviewService interface {
	SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Product, error)
	DeleteReview(ctx context.Context, cmd DeleteReviewCommand) (Product, error)
}

// PaymentService creates provider payment intents and verifies provider callbacks.
type PaymentService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutIntent, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifiedPayment, error)
}

// UserService is the admin back office for storefront accounts. SyncUser records the caller on first sight.
type UserService interface {
	SyncUser(ctx context.Context, actor Actor) (User, error)
	ListUsers(ctx context.Context, actor Actor) ([]User, error)
	GetUser(ctx context.Context, actor Actor, userID string) (User, error)
	UpdateUserRole(ctx context.Context, cmd UpdateUserRoleCommand) (User, error)
	DeleteUser(ctx context.Context, actor Actor, userID string) (User, error)
}

// SystemService reports dependency health for readiness probes.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// OrderNotifier delivers the order confirmation to the customer.
type OrderNotifier interface {
	NotifyOrderCreated(ctx context.Context, order Order) error
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	TotalPrice     string
	OccurredAt     time.Time
}

// OrderScope selects which orders ListOrders returns.
type OrderScope string

const (
	OrderScopeOwn OrderScope = "own"
	OrderScopeAll OrderScope = "all"
)

type CreateOrderCommand struct {
	Actor        Actor
	ShippingInfo ShippingInfo
	Items        []OrderItem
	Payment      PaymentInfo
}

// OrderCreation is the committed order plus the outcome of the best-effort confirmation.
type OrderCreation struct {
	Order              Order
	NotificationFailed bool
}

type UpdateOrderStatusCommand struct {
	Actor   Actor
	OrderID string
	Status  OrderStatus
}

type CreateProductCommand struct {
	Actor       Actor
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	Category    string
	Image       ProductImage
}

// UpdateProductCommand carries a partial update; nil fields are left unchanged.
type UpdateProductCommand struct {
	Actor       Actor
	ProductID   string
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int
	Category    *string
	Image       *ProductImage
}

type SubmitReviewCommand struct {
	Actor     Actor
	ProductID string
	OrderID   string
	Username  string
	Rating    int
	Comment   string
}

type DeleteReviewCommand struct {
	Actor     Actor
	ProductID string
	ReviewID  string
}

type UpdateUserRoleCommand struct {
	Actor  Actor
	UserID string
	Role   domain.Role
}

type CheckoutCommand struct {
	Actor    Actor
	Amount   decimal.Decimal
	Currency string
}

// CheckoutIntent is the provider payment intent handed to the client for confirmation.
type CheckoutIntent struct {
	ProviderOrderID string
	AmountMinor     int64
	Currency        string
	ClientSecret    string
}

type VerifyPaymentCommand struct {
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

// VerifiedPayment is returned once the provider signature checks out.
type VerifiedPayment struct {
	PaymentID string
	Status    domain.PaymentStatus
}
