package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/platform/observability"
	"github.com/storefront/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

// OrderHandlers exposes order placement and order history for authenticated customers.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	createMW []func(http.Handler) http.Handler
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderCreateMiddleware wraps POST /orders, typically with the idempotency middleware. The
// middleware runs after authentication.
func WithOrderCreateMiddleware(mw ...func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.createMW = append(h.createMW, mw...)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		create := http.Handler(http.HandlerFunc(h.createOrder))
		for i := len(h.createMW) - 1; i >= 0; i-- {
			if h.createMW[i] != nil {
				create = h.createMW[i](create)
			}
		}
		g.Method(http.MethodPost, "/", create)
		g.Get("/", h.listOrders)
		g.Get("/{orderID}", h.getOrder)
	})
}

type shippingInfoRequest struct {
	Address    string `json:"address" validate:"required,max=500"`
	City       string `json:"city" validate:"required,max=120"`
	State      string `json:"state" validate:"required,max=120"`
	Country    string `json:"country" validate:"required,max=120"`
	PostalCode string `json:"pinCode" validate:"required,max=20"`
	Phone      string `json:"phoneNo" validate:"required,max=32"`
}

type orderItemRequest struct {
	ProductID string          `json:"product" validate:"required"`
	Name      string          `json:"name" validate:"required,max=200"`
	Image     string          `json:"image" validate:"omitempty,max=2048"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
}

type paymentInfoRequest struct {
	ID     string `json:"id" validate:"max=255"`
	Status string `json:"status" validate:"omitempty,oneof=Pending Paid"`
}

// createOrderRequest sets no minimum on orderItems; an empty list reaches the service and is reported as
// an empty order.
type createOrderRequest struct {
	ShippingInfo shippingInfoRequest `json:"shippingInfo"`
	OrderItems   []orderItemRequest  `json:"orderItems" validate:"max=100,dive"`
	PaymentInfo  paymentInfoRequest  `json:"paymentInfo"`
}

type shippingInfoPayload struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"pinCode"`
	Phone      string `json:"phoneNo"`
}

type orderItemPayload struct {
	ProductID string `json:"product"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
}

type paymentInfoPayload struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

type orderPayload struct {
	ID            string              `json:"id"`
	User          string              `json:"user"`
	ShippingInfo  shippingInfoPayload `json:"shippingInfo"`
	OrderItems    []orderItemPayload  `json:"orderItems"`
	PaymentInfo   paymentInfoPayload  `json:"paymentInfo"`
	ItemsPrice    string              `json:"itemsPrice"`
	TaxPrice      string              `json:"taxPrice"`
	ShippingPrice string              `json:"shippingPrice"`
	TotalPrice    string              `json:"totalPrice"`
	OrderStatus   string              `json:"orderStatus"`
	PaidAt        *string             `json:"paidAt,omitempty"`
	DeliveredAt   *string             `json:"deliveredAt,omitempty"`
	CreatedAt     string              `json:"createdAt"`
	UpdatedAt     string              `json:"updatedAt,omitempty"`
}

type orderResponse struct {
	Success bool         `json:"success"`
	Order   orderPayload `json:"order"`
}

type createOrderResponse struct {
	Success            bool         `json:"success"`
	Order              orderPayload `json:"order"`
	NotificationFailed bool         `json:"notificationFailed"`
}

type orderListResponse struct {
	Success     bool           `json:"success"`
	Orders      []orderPayload `json:"orders"`
	TotalAmount string         `json:"totalAmount,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeRequest(w, r, maxOrderBodySize, &req) {
		return
	}

	items := make([]domain.OrderItem, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		items = append(items, domain.OrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      item.Name,
			Image:     strings.TrimSpace(item.Image),
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	status := domain.PaymentStatus(strings.TrimSpace(req.PaymentInfo.Status))
	if status == "" {
		status = domain.PaymentStatusPending
	}

	created, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor: actor,
		ShippingInfo: domain.ShippingInfo{
			Address:    req.ShippingInfo.Address,
			City:       req.ShippingInfo.City,
			State:      req.ShippingInfo.State,
			Country:    req.ShippingInfo.Country,
			PostalCode: req.ShippingInfo.PostalCode,
			Phone:      req.ShippingInfo.Phone,
		},
		Items: items,
		Payment: domain.PaymentInfo{
			ID:     strings.TrimSpace(req.PaymentInfo.ID),
			Status: status,
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	observability.TagOrder(ctx, created.Order.ID)

	writeJSONResponse(w, http.StatusCreated, createOrderResponse{
		Success:            true,
		Order:              buildOrderPayload(created.Order),
		NotificationFailed: created.NotificationFailed,
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	list, err := h.orders.ListOrders(ctx, actor, services.OrderScopeOwn)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Success: true,
		Orders:  buildOrderPayloads(list.Items),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, actor, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{
		Success: true,
		Order:   buildOrderPayload(order),
	})
}

func buildOrderPayloads(orders []domain.Order) []orderPayload {
	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, buildOrderPayload(order))
	}
	return payloads
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     formatMoney(item.Price),
			Subtotal:  formatMoney(item.Subtotal()),
		})
	}
	return orderPayload{
		ID:   order.ID,
		User: order.UserID,
		ShippingInfo: shippingInfoPayload{
			Address:    order.ShippingInfo.Address,
			City:       order.ShippingInfo.City,
			State:      order.ShippingInfo.State,
			Country:    order.ShippingInfo.Country,
			PostalCode: order.ShippingInfo.PostalCode,
			Phone:      order.ShippingInfo.Phone,
		},
		OrderItems: items,
		PaymentInfo: paymentInfoPayload{
			ID:     order.Payment.ID,
			Status: string(order.Payment.Status),
		},
		ItemsPrice:    formatMoney(order.Pricing.ItemsPrice),
		TaxPrice:      formatMoney(order.Pricing.TaxPrice),
		ShippingPrice: formatMoney(order.Pricing.ShippingPrice),
		TotalPrice:    formatMoney(order.Pricing.TotalPrice),
		OrderStatus:   string(order.Status),
		PaidAt:        formatTimePointer(order.PaidAt),
		DeliveredAt:   formatTimePointer(order.DeliveredAt),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("empty_order", "order must contain at least one item", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderAlreadyDelivered):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_delivered", "order has already been delivered", http.StatusConflict))
	case errors.Is(err, services.ErrOrderAlreadyShipped):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_shipped", "order has already been shipped", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
