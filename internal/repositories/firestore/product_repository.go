package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products as documents with embedded reviews.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection)}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if product.Quantity < 0 {
		return negativeStock("products.insert", product)
	}
	return r.base.Create(ctx, product.ID, newProductDocument(product))
}

func (r *ProductRepository) Save(ctx context.Context, product domain.Product) error {
	if product.Quantity < 0 {
		return negativeStock("products.save", product)
	}
	return r.base.Set(ctx, product.ID, newProductDocument(product))
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.base.Delete(ctx, productID)
}

// List pushes category, creator, price, and rating bounds into the Firestore query and applies the keyword
// filter in process, since Firestore cannot express substring matching. Bounds on both price and ratings
// need the composite index declared for the products collection.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.ProductPage, error) {
	filter = filter.Normalised()

	total, err := r.base.Count(ctx)
	if err != nil {
		return domain.ProductPage{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		for _, clause := range productClauses(filter) {
			q = q.Where(clause.path, clause.op, clause.value)
		}
		return q
	})
	if err != nil {
		return domain.ProductPage{}, err
	}

	matched := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product := doc.Data.toDomain(doc.ID)
		if filter.Matches(product) {
			matched = append(matched, product)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return filter.Paginate(matched, total), nil
}

type whereClause struct {
	path  string
	op    string
	value any
}

// productClauses translates the server-side part of a catalog filter into Firestore where clauses.
func productClauses(filter repositories.ProductListFilter) []whereClause {
	var clauses []whereClause
	if filter.Category != "" {
		clauses = append(clauses, whereClause{path: "category", op: "==", value: filter.Category})
	}
	if filter.CreatorID != "" {
		clauses = append(clauses, whereClause{path: "creatorId", op: "==", value: filter.CreatorID})
	}
	price := domain.RangeQuery[float64]{
		GT:  decimalBound(filter.Price.GT),
		GTE: decimalBound(filter.Price.GTE),
		LT:  decimalBound(filter.Price.LT),
		LTE: decimalBound(filter.Price.LTE),
	}
	clauses = append(clauses, rangeClauses("price", price)...)
	clauses = append(clauses, rangeClauses("ratings", filter.Ratings)...)
	return clauses
}

func rangeClauses(path string, r domain.RangeQuery[float64]) []whereClause {
	var clauses []whereClause
	add := func(op string, bound *float64) {
		if bound != nil {
			clauses = append(clauses, whereClause{path: path, op: op, value: *bound})
		}
	}
	add(">", r.GT)
	add(">=", r.GTE)
	add("<", r.LT)
	add("<=", r.LTE)
	return clauses
}

// decimalBound converts a price bound the same way prices are written, so equality bounds match stored values.
func decimalBound(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	value, _ := d.Float64()
	return &value
}

type productDocument struct {
	Name         string           `firestore:"name"`
	Description  string           `firestore:"description"`
	Price        float64          `firestore:"price"`
	Quantity     int              `firestore:"quantity"`
	Category     string           `firestore:"category"`
	Image        imageDocument    `firestore:"image"`
	CreatorID    string           `firestore:"creatorId"`
	Ratings      float64          `firestore:"ratings"`
	NumOfReviews int              `firestore:"numOfReviews"`
	Reviews      []reviewDocument `firestore:"reviews"`
	CreatedAt    time.Time        `firestore:"createdAt"`
	UpdatedAt    time.Time        `firestore:"updatedAt"`
}

type imageDocument struct {
	PublicID string `firestore:"publicId"`
	URL      string `firestore:"url"`
}

type reviewDocument struct {
	ID        string    `firestore:"id"`
	UserID    string    `firestore:"userId"`
	OrderID   string    `firestore:"orderId"`
	Username  string    `firestore:"username"`
	Rating    int       `firestore:"rating"`
	Comment   string    `firestore:"comment"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newProductDocument(p domain.Product) productDocument {
	reviews := make([]reviewDocument, 0, len(p.Reviews))
	for _, review := range p.Reviews {
		reviews = append(reviews, reviewDocument{
			ID:        review.ID,
			UserID:    review.UserID,
			OrderID:   review.OrderID,
			Username:  review.Username,
			Rating:    review.Rating,
			Comment:   review.Comment,
			CreatedAt: review.CreatedAt.UTC(),
		})
	}
	price, _ := p.Price.Float64()
	return productDocument{
		Name:         strings.TrimSpace(p.Name),
		Description:  p.Description,
		Price:        price,
		Quantity:     p.Quantity,
		Category:     p.Category,
		Image:        imageDocument{PublicID: p.Image.PublicID, URL: p.Image.URL},
		CreatorID:    p.CreatorID,
		Ratings:      p.Ratings,
		NumOfReviews: p.NumOfReviews,
		Reviews:      reviews,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	reviews := make([]domain.Review, 0, len(d.Reviews))
	for _, review := range d.Reviews {
		reviews = append(reviews, domain.Review{
			ID:        review.ID,
			UserID:    review.UserID,
			OrderID:   review.OrderID,
			Username:  review.Username,
			Rating:    review.Rating,
			Comment:   review.Comment,
			CreatedAt: review.CreatedAt,
		})
	}
	return domain.Product{
		ID:           id,
		Name:         d.Name,
		Description:  d.Description,
		Price:        decimal.NewFromFloat(d.Price).Round(2),
		Quantity:     d.Quantity,
		Category:     d.Category,
		Image:        domain.ProductImage{PublicID: d.Image.PublicID, URL: d.Image.URL},
		CreatorID:    d.CreatorID,
		Ratings:      d.Ratings,
		NumOfReviews: d.NumOfReviews,
		Reviews:      reviews,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func negativeStock(op string, product domain.Product) error {
	err := repositories.NewStockError(repositories.StockErrorNegativeQuantity, product.ID, 0, product.Quantity)
	err.Op = op
	return err
}
