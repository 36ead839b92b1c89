package repositories

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	domain "github.com/storefront/api/internal/domain"
)

// DefaultProductsPerPage is the catalog page size.
const DefaultProductsPerPage = 8

var keywordFolder = cases.Fold()

// Normalised returns a copy with trimmed text fields and page bounds applied.
func (f ProductListFilter) Normalised() ProductListFilter {
	f.Keyword = strings.TrimSpace(f.Keyword)
	f.Category = strings.TrimSpace(f.Category)
	f.CreatorID = strings.TrimSpace(f.CreatorID)
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultProductsPerPage
	}
	return f
}

// Matches reports whether the product satisfies every filter criterion. Keyword matching is a
// case-insensitive substring match on the product name.
func (f ProductListFilter) Matches(product domain.Product) bool {
	if f.Keyword != "" {
		name := keywordFolder.String(product.Name)
		if !strings.Contains(name, keywordFolder.String(f.Keyword)) {
			return false
		}
	}
	if f.Category != "" && product.Category != f.Category {
		return false
	}
	if f.CreatorID != "" && product.CreatorID != f.CreatorID {
		return false
	}
	if !inDecimalRange(product.Price, f.Price) {
		return false
	}
	return inFloatRange(product.Ratings, f.Ratings)
}

// Paginate slices the filtered products into the requested page.
func (f ProductListFilter) Paginate(filtered []domain.Product, total int) domain.ProductPage {
	f = f.Normalised()
	page := domain.ProductPage{
		Items:         []domain.Product{},
		Page:          f.Page,
		PerPage:       f.PerPage,
		TotalCount:    total,
		FilteredCount: len(filtered),
		TotalPages:    (len(filtered) + f.PerPage - 1) / f.PerPage,
	}
	start := (f.Page - 1) * f.PerPage
	if start >= len(filtered) {
		return page
	}
	end := start + f.PerPage
	if end > len(filtered) {
		end = len(filtered)
	}
	page.Items = append(page.Items, filtered[start:end]...)
	return page
}

func inDecimalRange(value decimal.Decimal, r domain.RangeQuery[decimal.Decimal]) bool {
	if r.GT != nil && !value.GreaterThan(*r.GT) {
		return false
	}
	if r.GTE != nil && value.LessThan(*r.GTE) {
		return false
	}
	if r.LT != nil && !value.LessThan(*r.LT) {
		return false
	}
	if r.LTE != nil && value.GreaterThan(*r.LTE) {
		return false
	}
	return true
}

func inFloatRange(value float64, r domain.RangeQuery[float64]) bool {
	if r.GT != nil && !(value > *r.GT) {
		return false
	}
	if r.GTE != nil && value < *r.GTE {
		return false
	}
	if r.LT != nil && !(value < *r.LT) {
		return false
	}
	if r.LTE != nil && value > *r.LTE {
		return false
	}
	return true
}
