package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

const maxProductBodySize = 32 * 1024

// ProductHandlers exposes catalog search for everyone and product management for sellers and admins.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs ProductHandlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{
		authn:   authn,
		catalog: catalog,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(string(domain.RoleAdmin), string(domain.RoleSeller)))
		}
		g.Get("/mine", h.listOwnProducts)
		g.Post("/", h.createProduct)
		g.Put("/{productID}", h.updateProduct)
		g.Delete("/{productID}", h.deleteProduct)
	})
	r.Get("/{productID}", h.getProduct)
}

type productImageRequest struct {
	PublicID string `json:"publicId" validate:"max=255"`
	URL      string `json:"url" validate:"omitempty,url,max=2048"`
}

type createProductRequest struct {
	Name        string              `json:"name" validate:"required,max=200"`
	Description string              `json:"description" validate:"required,max=5000"`
	Price       decimal.Decimal     `json:"price" validate:"gte=0"`
	Quantity    int                 `json:"quantity" validate:"gte=0"`
	Category    string              `json:"category" validate:"required,max=120"`
	Image       productImageRequest `json:"image"`
}

// updateProductRequest is a partial update; absent fields keep their stored value.
type updateProductRequest struct {
	Name        *string              `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description" validate:"omitempty,min=1,max=5000"`
	Price       *decimal.Decimal     `json:"price" validate:"omitempty,gte=0"`
	Quantity    *int                 `json:"quantity" validate:"omitempty,gte=0"`
	Category    *string              `json:"category" validate:"omitempty,min=1,max=120"`
	Image       *productImageRequest `json:"image"`
}

type reviewPayload struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	OrderID   string `json:"orderId"`
	Username  string `json:"username"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type productImagePayload struct {
	PublicID string `json:"publicId,omitempty"`
	URL      string `json:"url,omitempty"`
}

type productPayload struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Price        string              `json:"price"`
	Quantity     int                 `json:"quantity"`
	Category     string              `json:"category"`
	Image        productImagePayload `json:"image"`
	Creator      string              `json:"creator,omitempty"`
	Ratings      float64             `json:"ratings"`
	NumOfReviews int                 `json:"numOfReviews"`
	Reviews      []reviewPayload     `json:"reviews"`
	CreatedAt    string              `json:"createdAt,omitempty"`
	UpdatedAt    string              `json:"updatedAt,omitempty"`
}

type productResponse struct {
	Success bool           `json:"success"`
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Success              bool             `json:"success"`
	Products             []productPayload `json:"products"`
	Page                 int              `json:"page"`
	ProductsCount        int              `json:"productsCount"`
	FilteredProductCount int              `json:"filteredProductCount"`
	ResultPerPage        int              `json:"resultPerPage"`
	TotalPages           int              `json:"totalPages"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := parseProductListFilter(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductListResponse(page))
}

func (h *ProductHandlers) listOwnProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	pageNum, err := parsePageParam(r.URL.Query().Get("page"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListOwnProducts(ctx, actor, pageNum)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductListResponse(page))
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Success: true, Product: buildProductPayload(product)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req createProductRequest
	if !decodeRequest(w, r, maxProductBodySize, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Actor:       actor,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Category:    req.Category,
		Image:       domain.ProductImage{PublicID: req.Image.PublicID, URL: req.Image.URL},
	})
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Success: true, Product: buildProductPayload(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	var req updateProductRequest
	if !decodeRequest(w, r, maxProductBodySize, &req) {
		return
	}

	cmd := services.UpdateProductCommand{
		Actor:       actor,
		ProductID:   chi.URLParam(r, "productID"),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Category:    req.Category,
	}
	if req.Image != nil {
		cmd.Image = &domain.ProductImage{PublicID: req.Image.PublicID, URL: req.Image.URL}
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Success: true, Product: buildProductPayload(product)})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(ctx, actor, chi.URLParam(r, "productID")); err != nil {
		writeProductError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseProductListFilter reads keyword, category, page, and bracketed range operators such as
// price[gte]=10 or ratings[gte]=4.
func parseProductListFilter(values url.Values) (services.ProductListFilter, error) {
	filter := services.ProductListFilter{
		Keyword:  strings.TrimSpace(values.Get("keyword")),
		Category: strings.TrimSpace(values.Get("category")),
	}

	page, err := parsePageParam(values.Get("page"))
	if err != nil {
		return services.ProductListFilter{}, err
	}
	filter.Page = page

	for _, op := range []string{"gt", "gte", "lt", "lte"} {
		if raw := strings.TrimSpace(values.Get(fmt.Sprintf("price[%s]", op))); raw != "" {
			value, err := decimal.NewFromString(raw)
			if err != nil {
				return services.ProductListFilter{}, fmt.Errorf("price[%s] must be a number", op)
			}
			setRangeBound(&filter.Price, op, value)
		}
		if raw := strings.TrimSpace(values.Get(fmt.Sprintf("ratings[%s]", op))); raw != "" {
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return services.ProductListFilter{}, fmt.Errorf("ratings[%s] must be a number", op)
			}
			setRangeBound(&filter.Ratings, op, value)
		}
	}
	return filter, nil
}

func setRangeBound[T any](r *domain.RangeQuery[T], op string, value T) {
	switch op {
	case "gt":
		r.GT = &value
	case "gte":
		r.GTE = &value
	case "lt":
		r.LT = &value
	case "lte":
		r.LTE = &value
	}
}

func parsePageParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, errors.New("page must be a positive integer")
	}
	return page, nil
}

func buildProductListResponse(page domain.ProductPage) productListResponse {
	products := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		products = append(products, buildProductPayload(product))
	}
	return productListResponse{
		Success:              true,
		Products:             products,
		Page:                 page.Page,
		ProductsCount:        page.TotalCount,
		FilteredProductCount: page.FilteredCount,
		ResultPerPage:        page.PerPage,
		TotalPages:           page.TotalPages,
	}
}

func buildProductPayload(product domain.Product) productPayload {
	reviews := make([]reviewPayload, 0, len(product.Reviews))
	for _, review := range product.Reviews {
		reviews = append(reviews, reviewPayload{
			ID:        review.ID,
			User:      review.UserID,
			OrderID:   review.OrderID,
			Username:  review.Username,
			Rating:    review.Rating,
			Comment:   review.Comment,
			CreatedAt: formatTime(review.CreatedAt),
		})
	}
	return productPayload{
		ID:           product.ID,
		Name:         product.Name,
		Description:  product.Description,
		Price:        formatMoney(product.Price),
		Quantity:     product.Quantity,
		Category:     product.Category,
		Image:        productImagePayload{PublicID: product.Image.PublicID, URL: product.Image.URL},
		Creator:      product.CreatorID,
		Ratings:      product.Ratings,
		NumOfReviews: product.NumOfReviews,
		Reviews:      reviews,
		CreatedAt:    formatTime(product.CreatedAt),
		UpdatedAt:    formatTime(product.UpdatedAt),
	}
}

func writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed to manage this product", http.StatusForbidden))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", "product was modified concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("product_error", "failed to process product request", http.StatusInternalServerError))
	}
}
