package repositories

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/storefront/api/internal/domain"
)

func TestProductListFilterMatches(t *testing.T) {
	product := domain.Product{
		Name:     "Wireless HEADPHONES",
		Category: "Electronics",
		Price:    decimal.RequireFromString("59.99"),
		Ratings:  4.5,
	}
	low := decimal.NewFromInt(50)
	high := decimal.NewFromInt(60)
	four := 4.0
	five := 5.0

	tests := []struct {
		name   string
		filter ProductListFilter
		want   bool
	}{
		{name: "empty", filter: ProductListFilter{}, want: true},
		{name: "keyword case insensitive", filter: ProductListFilter{Keyword: "headphones"}, want: true},
		{name: "keyword miss", filter: ProductListFilter{Keyword: "speaker"}, want: false},
		{name: "category exact", filter: ProductListFilter{Category: "Electronics"}, want: true},
		{name: "category miss", filter: ProductListFilter{Category: "Books"}, want: false},
		{name: "price range", filter: ProductListFilter{Price: domain.RangeQuery[decimal.Decimal]{GTE: &low, LTE: &high}}, want: true},
		{name: "price gt excludes", filter: ProductListFilter{Price: domain.RangeQuery[decimal.Decimal]{GT: &high}}, want: false},
		{name: "ratings gte", filter: ProductListFilter{Ratings: domain.RangeQuery[float64]{GTE: &four}}, want: true},
		{name: "ratings gte excludes", filter: ProductListFilter{Ratings: domain.RangeQuery[float64]{GTE: &five}}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Matches(product))
		})
	}
}

func TestProductListFilterPaginate(t *testing.T) {
	products := make([]domain.Product, 0, 10)
	for i := 0; i < 10; i++ {
		products = append(products, domain.Product{ID: fmt.Sprintf("p%02d", i)})
	}

	page := ProductListFilter{Page: 2}.Paginate(products, 12)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "p08", page.Items[0].ID)
	assert.Equal(t, DefaultProductsPerPage, page.PerPage)
	assert.Equal(t, 12, page.TotalCount)
	assert.Equal(t, 10, page.FilteredCount)
	assert.Equal(t, 2, page.TotalPages)

	beyond := ProductListFilter{Page: 5}.Paginate(products, 10)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 5, beyond.Page)
}
