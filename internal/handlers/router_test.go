package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/idempotency"
	"github.com/storefront/api/internal/services"
)

type routerFixture struct {
	router   chi.Router
	sessions *auth.SessionVerifier
	creates  int
	store    *idempotency.MemoryStore
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	sessions, err := auth.NewSessionVerifier("router-test-secret")
	if err != nil {
		t.Fatalf("session verifier: %v", err)
	}
	authn := auth.NewAuthenticator(sessions)

	fx := &routerFixture{sessions: sessions, store: idempotency.NewMemoryStore()}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	catalog := &stubCatalogService{
		listFn: func(context.Context, services.ProductListFilter) (services.ProductPage, error) {
			return services.ProductPage{Page: 1, PerPage: 8}, nil
		},
	}
	orders := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.OrderCreation, error) {
			fx.creates++
			return services.OrderCreation{Order: sampleHandlerOrder(now)}, nil
		},
	}
	users := &stubUserService{
		syncFn: func(_ context.Context, actor services.Actor) (services.User, error) {
			return services.User{ID: actor.ID, Email: actor.Email, Role: actor.Role}, nil
		},
		listFn: func(context.Context, services.Actor) ([]services.User, error) {
			return []services.User{}, nil
		},
	}

	fx.router = NewRouter(
		WithProductRoutes(CombineRoutes(
			NewProductHandlers(authn, catalog).Routes,
			NewReviewHandlers(authn, &stubReviewService{}).Routes,
		)),
		WithOrderRoutes(NewOrderHandlers(authn, orders, WithOrderCreateMiddleware(idempotency.Middleware(fx.store))).Routes),
		WithUserRoutes(NewUserHandlers(authn, users).Routes),
		WithAdminRoutes(CombineRoutes(
			NewAdminOrderHandlers(authn, orders).Routes,
			NewAdminUserHandlers(authn, users).Routes,
		)),
	)
	return fx
}

func (fx *routerFixture) token(t *testing.T, uid, role string) string {
	t.Helper()
	token, err := fx.sessions.Issue(uid, uid+"@example.com", role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (fx *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)
	return rr
}

func TestRouterServesPublicCatalog(t *testing.T) {
	fx := newRouterFixture(t)

	rr := fx.do(httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterRequiresTokenForOrders(t *testing.T) {
	fx := newRouterFixture(t)

	rr := fx.do(httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assertErrorCode(t, rr, http.StatusUnauthorized, "unauthenticated")
}

func TestRouterEnforcesRoles(t *testing.T) {
	fx := newRouterFixture(t)
	userToken := fx.token(t, "user-1", auth.RoleUser)

	body := `{"name":"Boots","description":"Leather","price":"49.50","quantity":3,"category":"Footwear"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+userToken)
	assertErrorCode(t, fx.do(req), http.StatusForbidden, "insufficient_role")

	for _, path := range []string{"/api/v1/admin/orders", "/api/v1/admin/users"} {
		req = httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+userToken)
		assertErrorCode(t, fx.do(req), http.StatusForbidden, "insufficient_role")
	}
}

func TestRouterServesUserRoutes(t *testing.T) {
	fx := newRouterFixture(t)

	assertErrorCode(t, fx.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)), http.StatusUnauthorized, "unauthenticated")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token(t, "user-1", auth.RoleUser))
	if rr := fx.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for /users/me, got %d: %s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+fx.token(t, "admin-1", auth.RoleAdmin))
	if rr := fx.do(req); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin users, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterUnknownRoutes(t *testing.T) {
	fx := newRouterFixture(t)

	assertErrorCode(t, fx.do(httptest.NewRequest(http.MethodGet, "/nope", nil)), http.StatusNotFound, "route_not_found")
	assertErrorCode(t, fx.do(httptest.NewRequest(http.MethodPost, "/api/v1/payments/checkout", nil)), http.StatusNotImplemented, "not_implemented")
}

func TestRouterHealthEndpoints(t *testing.T) {
	fx := newRouterFixture(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := fx.do(httptest.NewRequest(http.MethodGet, path, nil)); rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestRouterReplaysIdempotentOrderCreation(t *testing.T) {
	fx := newRouterFixture(t)
	token := fx.token(t, "user-1", auth.RoleUser)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(validOrderBody))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "order-attempt-1")
		return fx.do(req)
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := send()
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get("X-Idempotent-Replay") == "" {
		t.Fatalf("expected replay header on second response")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected identical replay body")
	}
	if fx.creates != 1 {
		t.Fatalf("expected a single order to be created, got %d", fx.creates)
	}
	if fx.store.Len() != 1 {
		t.Fatalf("expected one stored idempotency record, got %d", fx.store.Len())
	}
}
