package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the fulfilment states an order moves through.
type OrderStatus string

const (
	// OrderStatusProcessing is the initial state of every order.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusShipped marks orders whose stock has been deducted and handed to the carrier.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusDelivered is terminal.
	OrderStatusDelivered OrderStatus = "Delivered"
)

// Valid reports whether the status is one of the persisted literals. Matching is case-sensitive.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// PaymentStatus mirrors the provider payment state recorded on the order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "Pending"
	PaymentStatusPaid    PaymentStatus = "Paid"
)

// Role names the coarse authorisation level asserted for a caller.
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether the role is one of the assignable literals. Matching is case-sensitive.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSeller, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor is the identity assertion every lifecycle operation receives.
type Actor struct {
	ID    string
	Email string
	Role  Role
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// IsSeller reports whether the actor may manage catalog entries they created.
func (a Actor) IsSeller() bool {
	return a.Role == RoleSeller
}

// User is the account record administrators manage. Credentials live with the identity provider.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShippingInfo is captured at checkout and never edited afterwards.
type ShippingInfo struct {
	Address    string
	City       string
	State      string
	Country    string
	PostalCode string
	Phone      string
}

// OrderItem snapshots a product at order time. Totals are always derived from these values.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	Quantity  int
	Price     decimal.Decimal
}

// Subtotal returns quantity multiplied by the snapshot unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// PaymentInfo records the provider reference once the payment is confirmed.
type PaymentInfo struct {
	ID     string
	Status PaymentStatus
}

// PricingBreakdown holds the computed order amounts.
type PricingBreakdown struct {
	ItemsPrice    decimal.Decimal
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Order is the aggregate owned by the lifecycle manager.
type Order struct {
	ID           string
	UserID       string
	UserEmail    string
	ShippingInfo ShippingInfo
	Items        []OrderItem
	Payment      PaymentInfo
	Pricing      PricingBreakdown
	Status       OrderStatus
	PaidAt       *time.Time
	DeliveredAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductImage references an externally hosted product picture.
type ProductImage struct {
	PublicID string
	URL      string
}

// Review is a customer rating attached to a product, keyed by the order it was purchased in.
type Review struct {
	ID        string
	UserID    string
	OrderID   string
	Username  string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Product is the live catalog entry. Quantity is the authoritative stock count and never negative.
type Product struct {
	ID           string
	Name         string
	Description  string
	Price        decimal.Decimal
	Quantity     int
	Category     string
	Image        ProductImage
	CreatorID    string
	Ratings      float64
	NumOfReviews int
	Reviews      []Review
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecalculateRatings refreshes the review aggregate from the embedded reviews.
func (p *Product) RecalculateRatings() {
	p.NumOfReviews = len(p.Reviews)
	if len(p.Reviews) == 0 {
		p.Ratings = 0
		return
	}
	total := 0
	for _, review := range p.Reviews {
		total += review.Rating
	}
	p.Ratings = float64(total) / float64(len(p.Reviews))
}

// RangeQuery bounds a numeric filter. Nil bounds are open.
type RangeQuery[T any] struct {
	GT  *T
	GTE *T
	LT  *T
	LTE *T
}

// IsZero reports whether no bound is set.
func (r RangeQuery[T]) IsZero() bool {
	return r.GT == nil && r.GTE == nil && r.LT == nil && r.LTE == nil
}

// ProductPage is a numbered page of catalog results.
type ProductPage struct {
	Items         []Product
	Page          int
	PerPage       int
	TotalCount    int
	FilteredCount int
	TotalPages    int
}

// OrderList carries list results together with the revenue aggregate shown to admins.
type OrderList struct {
	Items       []Order
	TotalAmount decimal.Decimal
}
