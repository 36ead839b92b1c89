package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories/memory"
)

var sellerUser = Actor{ID: "seller_1", Email: "seller@example.com", Role: domain.RoleSeller}

func newMemoryCatalogService(t *testing.T, reg *memory.Registry) CatalogService {
	t.Helper()
	ids := []string{"prod_1", "prod_2", "prod_3"}
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:   reg.Products(),
		UnitOfWork: reg,
		Clock:      func() time.Time { return testNow },
		IDGenerator: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc
}

func lampCommand(actor Actor) CreateProductCommand {
	return CreateProductCommand{
		Actor:       actor,
		Name:        "Desk Lamp",
		Description: "Adjustable <b>LED</b> lamp",
		Price:       decimal.RequireFromString("24.99"),
		Quantity:    5,
		Category:    "Home",
		Image:       ProductImage{PublicID: "img_1", URL: "https://cdn.example.com/lamp.png"},
	}
}

func TestCatalogServiceCreateProduct(t *testing.T) {
	reg := memory.NewRegistry()
	svc := newMemoryCatalogService(t, reg)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, lampCommand(sellerUser))
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.ID != "prod_1" || product.CreatorID != sellerUser.ID {
		t.Fatalf("unexpected product %+v", product)
	}
	if product.Description != "Adjustable LED lamp" {
		t.Fatalf("expected sanitised description, got %q", product.Description)
	}
	if _, err := reg.Products().FindByID(ctx, "prod_1"); err != nil {
		t.Fatalf("expected product stored: %v", err)
	}

	if _, err := svc.CreateProduct(ctx, lampCommand(buyer)); !errors.Is(err, ErrProductForbidden) {
		t.Fatalf("expected forbidden for plain user, got %v", err)
	}

	invalid := lampCommand(adminUser)
	invalid.Name = ""
	invalid.Quantity = -1
	if _, err := svc.CreateProduct(ctx, invalid); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCatalogServiceUpdateAndDeleteRequireOwnership(t *testing.T) {
	reg := memory.NewRegistry()
	svc := newMemoryCatalogService(t, reg)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, lampCommand(sellerUser))
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	otherSeller := Actor{ID: "seller_2", Role: domain.RoleSeller}
	newQty := 12
	if _, err := svc.UpdateProduct(ctx, UpdateProductCommand{Actor: otherSeller, ProductID: product.ID, Quantity: &newQty}); !errors.Is(err, ErrProductForbidden) {
		t.Fatalf("expected forbidden for other seller, got %v", err)
	}

	updated, err := svc.UpdateProduct(ctx, UpdateProductCommand{Actor: sellerUser, ProductID: product.ID, Quantity: &newQty})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Quantity != 12 || updated.Name != product.Name {
		t.Fatalf("unexpected update result %+v", updated)
	}

	negative := -3
	if _, err := svc.UpdateProduct(ctx, UpdateProductCommand{Actor: adminUser, ProductID: product.ID, Quantity: &negative}); !errors.Is(err, ErrProductInvalidInput) {
		t.Fatalf("expected invalid input for negative stock, got %v", err)
	}

	if err := svc.DeleteProduct(ctx, otherSeller, product.ID); !errors.Is(err, ErrProductForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := svc.DeleteProduct(ctx, adminUser, product.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if _, err := svc.GetProduct(ctx, product.ID); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCatalogServiceListProductsUsesFixedPageSize(t *testing.T) {
	seed := make([]domain.Product, 0, 10)
	for i := 0; i < 10; i++ {
		seed = append(seed, domain.Product{
			ID:        string(rune('a' + i)),
			Name:      "Gadget",
			Category:  "Electronics",
			CreatorID: sellerUser.ID,
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		})
	}
	reg := memory.NewRegistry(seed...)
	svc := newMemoryCatalogService(t, reg)

	page, err := svc.ListProducts(context.Background(), ProductListFilter{Keyword: "GADGET", PerPage: 50})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(page.Items) != 8 || page.PerPage != 8 || page.TotalPages != 2 || page.FilteredCount != 10 {
		t.Fatalf("unexpected page %+v", page)
	}

	own, err := svc.ListOwnProducts(context.Background(), sellerUser, 2)
	if err != nil {
		t.Fatalf("list own products: %v", err)
	}
	if len(own.Items) != 2 {
		t.Fatalf("expected 2 items on second page, got %d", len(own.Items))
	}
	if _, err := svc.ListOwnProducts(context.Background(), buyer, 1); !errors.Is(err, ErrProductForbidden) {
		t.Fatalf("expected forbidden for buyer, got %v", err)
	}
}
