package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/services"
)

type stubOrderService struct {
	createFn func(context.Context, services.CreateOrderCommand) (services.OrderCreation, error)
	getFn    func(context.Context, services.Actor, string) (services.Order, error)
	listFn   func(context.Context, services.Actor, services.OrderScope) (services.OrderList, error)
	updateFn func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	deleteFn func(context.Context, services.Actor, string) error
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderCreation, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.OrderCreation{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor services.Actor, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, actor services.Actor, scope services.OrderScope) (services.OrderList, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor, scope)
	}
	return services.OrderList{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, actor services.Actor, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, actor, orderID)
	}
	return errors.New("not implemented")
}

type stubCatalogService struct {
	listFn    func(context.Context, services.ProductListFilter) (services.ProductPage, error)
	listOwnFn func(context.Context, services.Actor, int) (services.ProductPage, error)
	getFn     func(context.Context, string) (services.Product, error)
	createFn  func(context.Context, services.CreateProductCommand) (services.Product, error)
	updateFn  func(context.Context, services.UpdateProductCommand) (services.Product, error)
	deleteFn  func(context.Context, services.Actor, string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (services.ProductPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return services.ProductPage{}, nil
}

func (s *stubCatalogService) ListOwnProducts(ctx context.Context, actor services.Actor, page int) (services.ProductPage, error) {
	if s.listOwnFn != nil {
		return s.listOwnFn(ctx, actor, page)
	}
	return services.ProductPage{}, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, actor services.Actor, productID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, actor, productID)
	}
	return errors.New("not implemented")
}

type stubReviewService struct {
	submitFn func(context.Context, services.SubmitReviewCommand) (services.Product, error)
	deleteFn func(context.Context, services.DeleteReviewCommand) (services.Product, error)
}

func (s *stubReviewService) SubmitReview(ctx context.Context, cmd services.SubmitReviewCommand) (services.Product, error) {
	if s.submitFn != nil {
		return s.submitFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

func (s *stubReviewService) DeleteReview(ctx context.Context, cmd services.DeleteReviewCommand) (services.Product, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return services.Product{}, errors.New("not implemented")
}

type stubPaymentService struct {
	checkoutFn func(context.Context, services.CheckoutCommand) (services.CheckoutIntent, error)
	verifyFn   func(context.Context, services.VerifyPaymentCommand) (services.VerifiedPayment, error)
}

func (s *stubPaymentService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutIntent, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, cmd)
	}
	return services.CheckoutIntent{}, errors.New("not implemented")
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifiedPayment, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.VerifiedPayment{}, errors.New("not implemented")
}

type stubSystemService struct {
	report services.HealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.HealthReport, error) {
	return s.report, s.err
}

type stubUserService struct {
	syncFn   func(context.Context, services.Actor) (services.User, error)
	listFn   func(context.Context, services.Actor) ([]services.User, error)
	getFn    func(context.Context, services.Actor, string) (services.User, error)
	updateFn func(context.Context, services.UpdateUserRoleCommand) (services.User, error)
	deleteFn func(context.Context, services.Actor, string) (services.User, error)
}

func (s *stubUserService) SyncUser(ctx context.Context, actor services.Actor) (services.User, error) {
	if s.syncFn != nil {
		return s.syncFn(ctx, actor)
	}
	return services.User{}, errors.New("not implemented")
}

func (s *stubUserService) ListUsers(ctx context.Context, actor services.Actor) ([]services.User, error) {
	if s.listFn != nil {
		return s.listFn(ctx, actor)
	}
	return nil, errors.New("not implemented")
}

func (s *stubUserService) GetUser(ctx context.Context, actor services.Actor, userID string) (services.User, error) {
	if s.getFn != nil {
		return s.getFn(ctx, actor, userID)
	}
	return services.User{}, errors.New("not implemented")
}

func (s *stubUserService) UpdateUserRole(ctx context.Context, cmd services.UpdateUserRoleCommand) (services.User, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.User{}, errors.New("not implemented")
}

func (s *stubUserService) DeleteUser(ctx context.Context, actor services.Actor, userID string) (services.User, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, actor, userID)
	}
	return services.User{}, errors.New("not implemented")
}

var (
	_ services.UserService    = (*stubUserService)(nil)
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.CatalogService = (*stubCatalogService)(nil)
	_ services.ReviewService  = (*stubReviewService)(nil)
	_ services.PaymentService = (*stubPaymentService)(nil)
	_ services.SystemService  = (*stubSystemService)(nil)
)

func withActor(req *http.Request, uid string, role domain.Role) *http.Request {
	identity := &auth.Identity{
		UID:   uid,
		Email: uid + "@example.com",
		Roles: []string{string(role)},
	}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["error"] != code {
		t.Fatalf("expected error code %q, got %v", code, body["error"])
	}
}
