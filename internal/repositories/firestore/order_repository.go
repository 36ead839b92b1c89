package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders. Monetary values are stored as decimal strings so totals survive
// round trips exactly.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, newOrderDocument(order))
}

// Update replaces an existing order. Transactional callers must have loaded the order in the same transaction,
// since Firestore rejects reads after the first write.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if _, ok := pfirestore.TransactionFromContext(ctx); !ok {
		if _, err := r.base.Get(ctx, order.ID); err != nil {
			return err
		}
	}
	return r.base.Set(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.Data.toDomain(doc.ID)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.base.Delete(ctx, orderID)
}

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	UserEmail     string              `firestore:"userEmail"`
	Shipping      shippingDocument    `firestore:"shippingInfo"`
	Items         []orderItemDocument `firestore:"orderItems"`
	Payment       paymentDocument     `firestore:"paymentInfo"`
	ItemsPrice    string              `firestore:"itemsPrice"`
	TaxPrice      string              `firestore:"taxPrice"`
	ShippingPrice string              `firestore:"shippingPrice"`
	TotalPrice    string              `firestore:"totalPrice"`
	Status        string              `firestore:"orderStatus"`
	PaidAt        *time.Time          `firestore:"paidAt"`
	DeliveredAt   *time.Time          `firestore:"deliveredAt"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

type shippingDocument struct {
	Address    string `firestore:"address"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	Country    string `firestore:"country"`
	PostalCode string `firestore:"pinCode"`
	Phone      string `firestore:"phoneNo"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image"`
	Quantity  int    `firestore:"quantity"`
	Price     string `firestore:"price"`
}

type paymentDocument struct {
	ID     string `firestore:"id"`
	Status string `firestore:"status"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     item.Price.String(),
		})
	}
	return orderDocument{
		UserID:    o.UserID,
		UserEmail: o.UserEmail,
		Shipping: shippingDocument{
			Address:    o.ShippingInfo.Address,
			City:       o.ShippingInfo.City,
			State:      o.ShippingInfo.State,
			Country:    o.ShippingInfo.Country,
			PostalCode: o.ShippingInfo.PostalCode,
			Phone:      o.ShippingInfo.Phone,
		},
		Items:         items,
		Payment:       paymentDocument{ID: o.Payment.ID, Status: string(o.Payment.Status)},
		ItemsPrice:    o.Pricing.ItemsPrice.String(),
		TaxPrice:      o.Pricing.TaxPrice.String(),
		ShippingPrice: o.Pricing.ShippingPrice.String(),
		TotalPrice:    o.Pricing.TotalPrice.String(),
		Status:        string(o.Status),
		PaidAt:        utcPtr(o.PaidAt),
		DeliveredAt:   utcPtr(o.DeliveredAt),
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) (domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		price, err := parseMoney(item.Price)
		if err != nil {
			return domain.Order{}, err
		}
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     price,
		})
	}

	var pricing domain.PricingBreakdown
	for _, field := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{d.ItemsPrice, &pricing.ItemsPrice},
		{d.TaxPrice, &pricing.TaxPrice},
		{d.ShippingPrice, &pricing.ShippingPrice},
		{d.TotalPrice, &pricing.TotalPrice},
	} {
		value, err := parseMoney(field.raw)
		if err != nil {
			return domain.Order{}, err
		}
		*field.dst = value
	}

	return domain.Order{
		ID:        id,
		UserID:    d.UserID,
		UserEmail: d.UserEmail,
		ShippingInfo: domain.ShippingInfo{
			Address:    d.Shipping.Address,
			City:       d.Shipping.City,
			State:      d.Shipping.State,
			Country:    d.Shipping.Country,
			PostalCode: d.Shipping.PostalCode,
			Phone:      d.Shipping.Phone,
		},
		Items:       items,
		Payment:     domain.PaymentInfo{ID: d.Payment.ID, Status: domain.PaymentStatus(d.Payment.Status)},
		Pricing:     pricing,
		Status:      domain.OrderStatus(d.Status),
		PaidAt:      d.PaidAt,
		DeliveredAt: d.DeliveredAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
