package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusUpdated = "order.status.updated"
	orderEventDeleted       = "order.deleted"

	defaultNotifyTimeout = 5 * time.Second
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderEmpty is returned when an order has no line items.
	ErrOrderEmpty = errors.New("order: at least one order item is required")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller may not access or change the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderAlreadyDelivered is returned for any status update of a delivered order.
	ErrOrderAlreadyDelivered = errors.New("order: already delivered")
	// ErrOrderAlreadyShipped is returned when a shipped order is shipped again.
	ErrOrderAlreadyShipped = errors.New("order: already shipped")
	// ErrOrderInvalidTransition is returned for transitions outside the fulfilment table.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderInsufficientStock indicates a line item exceeds the live product stock.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderProductNotFound indicates a line item references a product that no longer exists.
	ErrOrderProductNotFound = errors.New("order: product not found")
	// ErrOrderConflict indicates a duplicate or concurrently modified order.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: store unavailable")
)

// orderTransitions is the forward-only fulfilment table.
var orderTransitions = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderStatusProcessing: domain.OrderStatusShipped,
	domain.OrderStatusShipped:    domain.OrderStatusDelivered,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Products      repositories.ProductRepository
	UnitOfWork    repositories.UnitOfWork
	Pricing       domain.PricingPolicy
	Notifier      OrderNotifier
	NotifyTimeout time.Duration
	Events        OrderEventPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	products      repositories.ProductRepository
	unitOfWork    repositories.UnitOfWork
	pricing       domain.PricingPolicy
	notifier      OrderNotifier
	notifyTimeout time.Duration
	events        OrderEventPublisher
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	pricing := deps.Pricing
	if pricing == (domain.PricingPolicy{}) {
		pricing = domain.DefaultPricingPolicy()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	notifyTimeout := deps.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}

	return &orderService{
		orders:        deps.Orders,
		products:      deps.Products,
		unitOfWork:    unit,
		pricing:       pricing,
		notifier:      deps.Notifier,
		notifyTimeout: notifyTimeout,
		events:        deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderCreation, error) {
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return OrderCreation{}, fmt.Errorf("%w: caller is required", ErrOrderForbidden)
	}
	if len(cmd.Items) == 0 {
		return OrderCreation{}, ErrOrderEmpty
	}

	items, err := normaliseOrderItems(cmd.Items)
	if err != nil {
		return OrderCreation{}, err
	}
	shipping, err := normaliseShipping(cmd.ShippingInfo)
	if err != nil {
		return OrderCreation{}, err
	}
	payment, err := normalisePayment(cmd.Payment)
	if err != nil {
		return OrderCreation{}, err
	}

	pricing, err := s.pricing.Price(items)
	if err != nil {
		return OrderCreation{}, fmt.Errorf("%w: %v", ErrOrderEmpty, err)
	}

	now := s.now()
	order := Order{
		ID:           s.newID(),
		UserID:       cmd.Actor.ID,
		UserEmail:    strings.TrimSpace(cmd.Actor.Email),
		ShippingInfo: shipping,
		Items:        items,
		Payment:      payment,
		Pricing:      pricing,
		Status:       domain.OrderStatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if payment.Status == domain.PaymentStatusPaid {
		paidAt := now
		order.PaidAt = &paidAt
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return OrderCreation{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderID": order.ID,
		"userID":  order.UserID,
		"total":   order.Pricing.TotalPrice.StringFixed(2),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		UserID:        order.UserID,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.Actor.ID,
		TotalPrice:    order.Pricing.TotalPrice.StringFixed(2),
		OccurredAt:    now,
	})

	return OrderCreation{
		Order:              order,
		NotificationFailed: !s.notifyCreated(ctx, order),
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		mapped := s.mapRepositoryError(err)
		// Missing orders are reported as forbidden to non-admins.
		if errors.Is(mapped, ErrOrderNotFound) && !actor.IsAdmin() {
			return Order{}, ErrOrderForbidden
		}
		return Order{}, mapped
	}
	if !actor.IsAdmin() && (actor.ID == "" || order.UserID != actor.ID) {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor Actor, scope OrderScope) (OrderList, error) {
	filter := repositories.OrderListFilter{}
	switch scope {
	case OrderScopeOwn, "":
		if strings.TrimSpace(actor.ID) == "" {
			return OrderList{}, ErrOrderForbidden
		}
		filter.UserID = actor.ID
	case OrderScopeAll:
		if !actor.IsAdmin() {
			return OrderList{}, ErrOrderForbidden
		}
	default:
		return OrderList{}, fmt.Errorf("%w: unknown scope %q", ErrOrderInvalidInput, scope)
	}

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return OrderList{}, s.mapRepositoryError(err)
	}
	if len(orders) == 0 {
		return OrderList{}, fmt.Errorf("%w: no orders found", ErrOrderNotFound)
	}

	total := decimal.Zero
	for _, order := range orders {
		total = total.Add(order.Pricing.TotalPrice)
	}
	return OrderList{Items: orders, TotalAmount: total}, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Actor.IsAdmin() {
		return Order{}, ErrOrderForbidden
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	var (
		updated  Order
		previous domain.OrderStatus
	)
	// All reads precede the first write.
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := checkTransition(order.Status, cmd.Status); err != nil {
			return err
		}

		var adjusted []Product
		if cmd.Status == domain.OrderStatusShipped {
			adjusted, err = s.reserveStock(txCtx, order)
			if err != nil {
				return err
			}
		}

		now := s.now()
		previous = order.Status
		order.Status = cmd.Status
		order.UpdatedAt = now
		if cmd.Status == domain.OrderStatusDelivered {
			order.DeliveredAt = &now
		}

		for _, product := range adjusted {
			product.UpdatedAt = now
			if err := s.products.Save(txCtx, product); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderInsufficientStock) {
			s.logger(ctx, "order.stock.insufficient", map[string]any{
				"orderID": orderID,
				"error":   err.Error(),
			})
		}
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusUpdated,
		OrderID:        updated.ID,
		UserID:         updated.UserID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.Actor.ID,
		TotalPrice:     updated.Pricing.TotalPrice.StringFixed(2),
		OccurredAt:     updated.UpdatedAt,
	})
	return updated, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, actor Actor, orderID string) error {
	if !actor.IsAdmin() {
		return ErrOrderForbidden
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:       orderEventDeleted,
		OrderID:    orderID,
		ActorID:    actor.ID,
		OccurredAt: s.now(),
	})
	return nil
}

// reserveStock loads every product referenced by the order and returns them with the ordered quantities
// deducted. Nothing is written; a single shortfall fails the whole shipment.
func (s *orderService) reserveStock(ctx context.Context, order Order) ([]Product, error) {
	requested := make(map[string]int, len(order.Items))
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}

	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		product, err := s.products.FindByID(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, fmt.Errorf("%w: %s", ErrOrderProductNotFound, id)
			}
			return nil, s.mapRepositoryError(err)
		}
		products = append(products, product)
	}

	for i := range products {
		want := requested[products[i].ID]
		if products[i].Quantity < want {
			stockErr := repositories.NewStockError(repositories.StockErrorInsufficient, products[i].ID, want, products[i].Quantity)
			return nil, fmt.Errorf("%w: %w", ErrOrderInsufficientStock, stockErr)
		}
		products[i].Quantity -= want
	}
	return products, nil
}

func checkTransition(current, target domain.OrderStatus) error {
	switch {
	case current == domain.OrderStatusDelivered:
		return ErrOrderAlreadyDelivered
	case current == domain.OrderStatusShipped && target == domain.OrderStatusShipped:
		return ErrOrderAlreadyShipped
	}
	if next, ok := orderTransitions[current]; ok && next == target {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, current, target)
}

func (s *orderService) notifyCreated(ctx context.Context, order Order) bool {
	if s.notifier == nil || order.UserEmail == "" {
		return true
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.notifier.NotifyOrderCreated(notifyCtx, order); err != nil {
		s.logger(ctx, "order.notification.failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
		return false
	}
	return true
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderInsufficientStock) || errors.Is(err, ErrOrderProductNotFound) {
		return err
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return fmt.Errorf("%w: %w", ErrOrderInsufficientStock, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func normaliseOrderItems(items []OrderItem) ([]OrderItem, error) {
	out := make([]OrderItem, 0, len(items))
	for i, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.Name = sanitizeText(item.Name)
		item.Image = strings.TrimSpace(item.Image)
		switch {
		case item.ProductID == "":
			return nil, fmt.Errorf("%w: orderItems[%d].productId is required", ErrOrderInvalidInput, i)
		case item.Quantity <= 0:
			return nil, fmt.Errorf("%w: orderItems[%d].quantity must be greater than zero", ErrOrderInvalidInput, i)
		case item.Price.IsNegative():
			return nil, fmt.Errorf("%w: orderItems[%d].price must not be negative", ErrOrderInvalidInput, i)
		}
		out = append(out, item)
	}
	return out, nil
}

func normaliseShipping(info ShippingInfo) (ShippingInfo, error) {
	info = ShippingInfo{
		Address:    sanitizeText(info.Address),
		City:       sanitizeText(info.City),
		State:      sanitizeText(info.State),
		Country:    sanitizeText(info.Country),
		PostalCode: sanitizeText(info.PostalCode),
		Phone:      sanitizeText(info.Phone),
	}
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"address", info.Address},
		{"city", info.City},
		{"state", info.State},
		{"country", info.Country},
		{"pinCode", info.PostalCode},
		{"phoneNo", info.Phone},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return ShippingInfo{}, fmt.Errorf("%w: shippingInfo missing %s", ErrOrderInvalidInput, strings.Join(missing, ", "))
	}
	return info, nil
}

func normalisePayment(info PaymentInfo) (PaymentInfo, error) {
	info.ID = strings.TrimSpace(info.ID)
	switch info.Status {
	case "":
		info.Status = domain.PaymentStatusPending
	case domain.PaymentStatusPending:
	case domain.PaymentStatusPaid:
		if info.ID == "" {
			return PaymentInfo{}, fmt.Errorf("%w: paid orders require a payment reference", ErrOrderInvalidInput)
		}
	default:
		return PaymentInfo{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, info.Status)
	}
	return info, nil
}
