package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/repositories/memory"
)

var (
	testNow   = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	adminUser = Actor{ID: "admin_1", Email: "admin@example.com", Role: domain.RoleAdmin}
	buyer     = Actor{ID: "user_1", Email: "buyer@example.com", Role: domain.RoleUser}
	otherUser = Actor{ID: "user_2", Email: "other@example.com", Role: domain.RoleUser}
)

type stubOrderRepo struct {
	insertFn func(context.Context, domain.Order) error
	updateFn func(context.Context, domain.Order) error
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, repositories.OrderListFilter) ([]domain.Order, error)
	deleteFn func(context.Context, string) error
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

type stubProductRepo struct {
	findFn func(context.Context, string) (domain.Product, error)
	saveFn func(context.Context, domain.Product) error
}

func (s *stubProductRepo) Insert(context.Context, domain.Product) error { return nil }

func (s *stubProductRepo) Save(ctx context.Context, product domain.Product) error {
	if s.saveFn != nil {
		return s.saveFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepo) Delete(context.Context, string) error { return nil }

func (s *stubProductRepo) List(context.Context, repositories.ProductListFilter) (domain.ProductPage, error) {
	return domain.ProductPage{}, nil
}

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "repo error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) NotifyOrderCreated(context.Context, domain.Order) error {
	s.calls++
	return s.err
}

func validShipping() ShippingInfo {
	return ShippingInfo{
		Address:    "12 Market Street",
		City:       "Pune",
		State:      "MH",
		Country:    "IN",
		PostalCode: "411001",
		Phone:      "9999999999",
	}
}

func newMemoryOrderService(t *testing.T, reg *memory.Registry, deps OrderServiceDeps) OrderService {
	t.Helper()
	deps.Orders = reg.Orders()
	deps.Products = reg.Products()
	deps.UnitOfWork = reg
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return testNow }
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func seedOrder(t *testing.T, reg *memory.Registry, order domain.Order) {
	t.Helper()
	if err := reg.Orders().Insert(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestNewOrderServiceRequiresRepositories(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatal("expected error without repositories")
	}
	if _, err := NewOrderService(OrderServiceDeps{Orders: &stubOrderRepo{}}); err == nil {
		t.Fatal("expected error without product repository")
	}
}

func TestOrderServiceCreateOrderComputesTotals(t *testing.T) {
	reg := memory.NewRegistry()
	events := &captureOrderEvents{}
	notifier := &stubNotifier{}
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{
		Events:      events,
		Notifier:    notifier,
		IDGenerator: func() string { return "ord_1" },
	})

	result, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:        buyer,
		ShippingInfo: validShipping(),
		Items:        []OrderItem{{ProductID: "p1", Name: "Lamp", Quantity: 2, Price: decimal.NewFromInt(50)}},
		Payment:      PaymentInfo{ID: "pay_1", Status: domain.PaymentStatusPaid},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	order := result.Order
	if result.NotificationFailed {
		t.Fatal("expected notification to succeed")
	}
	if order.ID != "ord_1" || order.UserID != buyer.ID || order.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected order %+v", order)
	}
	checks := map[string]struct{ got, want string }{
		"items":    {order.Pricing.ItemsPrice.StringFixed(2), "100.00"},
		"tax":      {order.Pricing.TaxPrice.StringFixed(2), "5.00"},
		"shipping": {order.Pricing.ShippingPrice.StringFixed(2), "10.00"},
		"total":    {order.Pricing.TotalPrice.StringFixed(2), "115.00"},
	}
	for name, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: expected %s, got %s", name, c.want, c.got)
		}
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(testNow) {
		t.Fatalf("expected paidAt %s, got %v", testNow, order.PaidAt)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one notification, got %d", notifier.calls)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventCreated {
		t.Fatalf("expected created event, got %+v", events.events)
	}

	stored, err := reg.Orders().FindByID(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("stored order: %v", err)
	}
	if !stored.Pricing.TotalPrice.Equal(decimal.NewFromInt(115)) {
		t.Fatalf("expected stored total 115, got %s", stored.Pricing.TotalPrice)
	}
}

func TestOrderServiceCreateOrderPendingPaymentLeavesPaidAtUnset(t *testing.T) {
	svc := newMemoryOrderService(t, memory.NewRegistry(), OrderServiceDeps{})
	result, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:        buyer,
		ShippingInfo: validShipping(),
		Items:        []OrderItem{{ProductID: "p1", Quantity: 3, Price: decimal.NewFromInt(50)}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if result.Order.PaidAt != nil {
		t.Fatalf("expected paidAt unset, got %v", result.Order.PaidAt)
	}
	if result.Order.Payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment, got %s", result.Order.Payment.Status)
	}
	if !result.Order.Pricing.ShippingPrice.IsZero() || result.Order.Pricing.TotalPrice.StringFixed(2) != "157.50" {
		t.Fatalf("unexpected pricing %+v", result.Order.Pricing)
	}
}

func TestOrderServiceCreateOrderNotificationFailureIsFlagged(t *testing.T) {
	reg := memory.NewRegistry()
	var logged []string
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{
		Notifier:    &stubNotifier{err: errors.New("smtp down")},
		IDGenerator: func() string { return "ord_n" },
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	result, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:        buyer,
		ShippingInfo: validShipping(),
		Items:        []OrderItem{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(5)}},
	})
	if err != nil {
		t.Fatalf("expected success despite notification failure, got %v", err)
	}
	if !result.NotificationFailed {
		t.Fatal("expected notification failure flag")
	}
	if _, err := reg.Orders().FindByID(context.Background(), "ord_n"); err != nil {
		t.Fatalf("expected order to be persisted: %v", err)
	}
	found := false
	for _, event := range logged {
		if event == "order.notification.failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected notification failure to be logged, got %v", logged)
	}
}

func TestOrderServiceCreateOrderValidation(t *testing.T) {
	svc := newMemoryOrderService(t, memory.NewRegistry(), OrderServiceDeps{})
	item := OrderItem{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(5)}

	tests := []struct {
		name string
		cmd  CreateOrderCommand
		want error
	}{
		{name: "empty items", cmd: CreateOrderCommand{Actor: buyer, ShippingInfo: validShipping()}, want: ErrOrderEmpty},
		{name: "no caller", cmd: CreateOrderCommand{ShippingInfo: validShipping(), Items: []OrderItem{item}}, want: ErrOrderForbidden},
		{name: "zero quantity", cmd: CreateOrderCommand{Actor: buyer, ShippingInfo: validShipping(), Items: []OrderItem{{ProductID: "p1", Price: decimal.NewFromInt(1)}}}, want: ErrOrderInvalidInput},
		{name: "missing shipping", cmd: CreateOrderCommand{Actor: buyer, Items: []OrderItem{item}}, want: ErrOrderInvalidInput},
		{name: "paid without reference", cmd: CreateOrderCommand{Actor: buyer, ShippingInfo: validShipping(), Items: []OrderItem{item}, Payment: PaymentInfo{Status: domain.PaymentStatusPaid}}, want: ErrOrderInvalidInput},
		{name: "unknown payment status", cmd: CreateOrderCommand{Actor: buyer, ShippingInfo: validShipping(), Items: []OrderItem{item}, Payment: PaymentInfo{Status: "paid"}}, want: ErrOrderInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOrderServiceCreateOrderSanitisesShipping(t *testing.T) {
	svc := newMemoryOrderService(t, memory.NewRegistry(), OrderServiceDeps{})
	shipping := validShipping()
	shipping.Address = `<script>alert(1)</script>12 Market & Main`

	result, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:        buyer,
		ShippingInfo: shipping,
		Items:        []OrderItem{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(5)}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if got := result.Order.ShippingInfo.Address; got != "12 Market & Main" {
		t.Fatalf("expected sanitised address, got %q", got)
	}
}

func TestOrderServiceGetOrderAccess(t *testing.T) {
	reg := memory.NewRegistry()
	seedOrder(t, reg, domain.Order{ID: "ord_1", UserID: buyer.ID, Status: domain.OrderStatusProcessing})
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{})
	ctx := context.Background()

	if _, err := svc.GetOrder(ctx, buyer, "ord_1"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := svc.GetOrder(ctx, adminUser, "ord_1"); err != nil {
		t.Fatalf("admin get: %v", err)
	}
	if _, err := svc.GetOrder(ctx, otherUser, "ord_1"); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, otherUser, "missing"); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for non-owner on missing order, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, adminUser, "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for admin, got %v", err)
	}
}

func TestOrderServiceListOrders(t *testing.T) {
	reg := memory.NewRegistry()
	seedOrder(t, reg, domain.Order{ID: "ord_1", UserID: buyer.ID, CreatedAt: testNow,
		Pricing: domain.PricingBreakdown{TotalPrice: decimal.RequireFromString("115")}})
	seedOrder(t, reg, domain.Order{ID: "ord_2", UserID: buyer.ID, CreatedAt: testNow.Add(time.Hour),
		Pricing: domain.PricingBreakdown{TotalPrice: decimal.RequireFromString("20.50")}})
	seedOrder(t, reg, domain.Order{ID: "ord_3", UserID: "someone", CreatedAt: testNow.Add(2 * time.Hour),
		Pricing: domain.PricingBreakdown{TotalPrice: decimal.RequireFromString("10")}})
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{})
	ctx := context.Background()

	own, err := svc.ListOrders(ctx, buyer, OrderScopeOwn)
	if err != nil {
		t.Fatalf("list own: %v", err)
	}
	if len(own.Items) != 2 || own.Items[0].ID != "ord_2" {
		t.Fatalf("expected own orders newest first, got %+v", own.Items)
	}

	all, err := svc.ListOrders(ctx, adminUser, OrderScopeAll)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all.Items) != 3 || all.TotalAmount.StringFixed(2) != "145.50" {
		t.Fatalf("unexpected admin listing: %d items total %s", len(all.Items), all.TotalAmount)
	}

	if _, err := svc.ListOrders(ctx, buyer, OrderScopeAll); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.ListOrders(ctx, otherUser, OrderScopeOwn); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for empty result, got %v", err)
	}
}

func TestOrderServiceUpdateOrderStatusShipsAndDeductsStock(t *testing.T) {
	reg := memory.NewRegistry(domain.Product{ID: "p1", Name: "Lamp", Quantity: 5})
	seedOrder(t, reg, domain.Order{
		ID:     "ord_1",
		UserID: buyer.ID,
		Items:  []domain.OrderItem{{ProductID: "p1", Quantity: 5, Price: decimal.NewFromInt(10)}},
		Status: domain.OrderStatusProcessing,
	})
	events := &captureOrderEvents{}
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{Events: events})
	ctx := context.Background()

	order, err := svc.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: domain.OrderStatusShipped})
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if order.Status != domain.OrderStatusShipped {
		t.Fatalf("expected shipped, got %s", order.Status)
	}
	product, _ := reg.Products().FindByID(ctx, "p1")
	if product.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", product.Quantity)
	}
	if len(events.events) != 1 || events.events[0].PreviousStatus != string(domain.OrderStatusProcessing) {
		t.Fatalf("unexpected events %+v", events.events)
	}

	_, err = svc.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: domain.OrderStatusShipped})
	if !errors.Is(err, ErrOrderAlreadyShipped) {
		t.Fatalf("expected already shipped, got %v", err)
	}
	product, _ = reg.Products().FindByID(ctx, "p1")
	if product.Quantity != 0 {
		t.Fatalf("expected quantity unchanged, got %d", product.Quantity)
	}

	delivered, err := svc.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: domain.OrderStatusDelivered})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.DeliveredAt == nil || !delivered.DeliveredAt.Equal(testNow) {
		t.Fatalf("expected deliveredAt set, got %v", delivered.DeliveredAt)
	}

	for _, status := range []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		_, err := svc.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: status})
		if !errors.Is(err, ErrOrderAlreadyDelivered) {
			t.Fatalf("%s: expected already delivered, got %v", status, err)
		}
	}
}

func TestOrderServiceUpdateOrderStatusInsufficientStockIsAllOrNothing(t *testing.T) {
	reg := memory.NewRegistry(
		domain.Product{ID: "p1", Quantity: 10},
		domain.Product{ID: "p2", Quantity: 3},
	)
	seedOrder(t, reg, domain.Order{
		ID:     "ord_1",
		UserID: buyer.ID,
		Items: []domain.OrderItem{
			{ProductID: "p1", Quantity: 4, Price: decimal.NewFromInt(1)},
			{ProductID: "p2", Quantity: 5, Price: decimal.NewFromInt(1)},
		},
		Status: domain.OrderStatusProcessing,
	})
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{})
	ctx := context.Background()

	_, err := svc.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: domain.OrderStatusShipped})
	if !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.ProductID != "p2" || stockErr.Available != 3 {
		t.Fatalf("expected stock error for p2, got %v", err)
	}

	p1, _ := reg.Products().FindByID(ctx, "p1")
	p2, _ := reg.Products().FindByID(ctx, "p2")
	if p1.Quantity != 10 || p2.Quantity != 3 {
		t.Fatalf("expected quantities unchanged, got p1=%d p2=%d", p1.Quantity, p2.Quantity)
	}
	order, _ := reg.Orders().FindByID(ctx, "ord_1")
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected order to stay processing, got %s", order.Status)
	}
}

func TestOrderServiceUpdateOrderStatusAggregatesRepeatedProducts(t *testing.T) {
	reg := memory.NewRegistry(domain.Product{ID: "p1", Quantity: 5})
	seedOrder(t, reg, domain.Order{
		ID: "ord_1",
		Items: []domain.OrderItem{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p1", Quantity: 3},
		},
		Status: domain.OrderStatusProcessing,
	})
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{})

	_, err := svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: domain.OrderStatusShipped})
	if !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected insufficient stock across repeated lines, got %v", err)
	}
}

func TestOrderServiceUpdateOrderStatusRejections(t *testing.T) {
	reg := memory.NewRegistry(domain.Product{ID: "p1", Quantity: 5})
	seedOrder(t, reg, domain.Order{ID: "ord_1", Items: []domain.OrderItem{{ProductID: "p1", Quantity: 1}}, Status: domain.OrderStatusProcessing})
	seedOrder(t, reg, domain.Order{ID: "ord_2", Items: []domain.OrderItem{{ProductID: "gone", Quantity: 1}}, Status: domain.OrderStatusProcessing})
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{})
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  UpdateOrderStatusCommand
		want error
	}{
		{name: "non admin", cmd: UpdateOrderStatusCommand{Actor: buyer, OrderID: "ord_1", Status: domain.OrderStatusShipped}, want: ErrOrderForbidden},
		{name: "missing order", cmd: UpdateOrderStatusCommand{Actor: adminUser, OrderID: "nope", Status: domain.OrderStatusShipped}, want: ErrOrderNotFound},
		{name: "unknown status", cmd: UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: "shipped"}, want: ErrOrderInvalidInput},
		{name: "skip to delivered", cmd: UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: domain.OrderStatusDelivered}, want: ErrOrderInvalidTransition},
		{name: "processing again", cmd: UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_1", Status: domain.OrderStatusProcessing}, want: ErrOrderInvalidTransition},
		{name: "missing product", cmd: UpdateOrderStatusCommand{Actor: adminUser, OrderID: "ord_2", Status: domain.OrderStatusShipped}, want: ErrOrderProductNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpdateOrderStatus(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	product, _ := reg.Products().FindByID(ctx, "p1")
	if product.Quantity != 5 {
		t.Fatalf("expected stock untouched, got %d", product.Quantity)
	}
}

func TestOrderServiceUpdateOrderStatusConcurrentShipmentsNeverOversell(t *testing.T) {
	reg := memory.NewRegistry(domain.Product{ID: "p1", Quantity: 3})
	for _, id := range []string{"ord_a", "ord_b", "ord_c"} {
		seedOrder(t, reg, domain.Order{ID: id, Items: []domain.OrderItem{{ProductID: "p1", Quantity: 2}}, Status: domain.OrderStatusProcessing})
	}
	svc := newMemoryOrderService(t, reg, OrderServiceDeps{})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		shipped   int
		shortfall int
	)
	for _, id := range []string{"ord_a", "ord_b", "ord_c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.UpdateOrderStatus(context.Background(), UpdateOrderStatusCommand{Actor: adminUser, OrderID: id, Status: domain.OrderStatusShipped})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				shipped++
			case errors.Is(err, ErrOrderInsufficientStock):
				shortfall++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	if shipped != 1 || shortfall != 2 {
		t.Fatalf("expected 1 shipment and 2 shortfalls, got %d and %d", shipped, shortfall)
	}
	product, _ := reg.Products().FindByID(context.Background(), "p1")
	if product.Quantity != 1 {
		t.Fatalf("expected quantity 1, got %d", product.Quantity)
	}
}

func TestOrderServiceDeleteOrder(t *testing.T) {
	var deleted string
	events := &captureOrderEvents{err: errors.New("pubsub down")}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: &stubOrderRepo{deleteFn: func(_ context.Context, id string) error {
			if id == "missing" {
				return stubRepoError{notFound: true}
			}
			deleted = id
			return nil
		}},
		Products: &stubProductRepo{},
		Events:   events,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if err := svc.DeleteOrder(ctx, buyer, "ord_1"); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := svc.DeleteOrder(ctx, adminUser, "ord_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != "ord_1" {
		t.Fatalf("expected ord_1 deleted, got %q", deleted)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventDeleted {
		t.Fatalf("expected deleted event despite publish failure, got %+v", events.events)
	}
	if err := svc.DeleteOrder(ctx, adminUser, "missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceMapsUnavailableStore(t *testing.T) {
	svc, _ := NewOrderService(OrderServiceDeps{
		Orders: &stubOrderRepo{insertFn: func(context.Context, domain.Order) error {
			return stubRepoError{unavailable: true}
		}},
		Products: &stubProductRepo{},
	})
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:        buyer,
		ShippingInfo: validShipping(),
		Items:        []OrderItem{{ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(1)}},
	})
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
