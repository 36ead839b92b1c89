package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func TestPricingPolicyPrice(t *testing.T) {
	policy := DefaultPricingPolicy()

	cases := []struct {
		name       string
		items      []OrderItem
		itemsPrice string
		tax        string
		shipping   string
		total      string
	}{
		{
			name:       "threshold is exclusive",
			items:      []OrderItem{{ProductID: "p1", Quantity: 2, Price: dec(t, "50")}},
			itemsPrice: "100",
			tax:        "5",
			shipping:   "10",
			total:      "115",
		},
		{
			name:       "free shipping above threshold",
			items:      []OrderItem{{ProductID: "p1", Quantity: 3, Price: dec(t, "50")}},
			itemsPrice: "150",
			tax:        "7.5",
			shipping:   "0",
			total:      "157.5",
		},
		{
			name: "tax rounds to two places",
			items: []OrderItem{
				{ProductID: "p1", Quantity: 1, Price: dec(t, "19.99")},
				{ProductID: "p2", Quantity: 3, Price: dec(t, "0.33")},
			},
			itemsPrice: "20.98",
			tax:        "1.05",
			shipping:   "10",
			total:      "32.03",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := policy.Price(tc.items)
			require.NoError(t, err)

			assert.True(t, got.ItemsPrice.Equal(dec(t, tc.itemsPrice)), "items price %s", got.ItemsPrice)
			assert.True(t, got.TaxPrice.Equal(dec(t, tc.tax)), "tax %s", got.TaxPrice)
			assert.True(t, got.ShippingPrice.Equal(dec(t, tc.shipping)), "shipping %s", got.ShippingPrice)
			assert.True(t, got.TotalPrice.Equal(dec(t, tc.total)), "total %s", got.TotalPrice)

			sum := got.ItemsPrice.Add(got.TaxPrice).Add(got.ShippingPrice)
			assert.True(t, got.TotalPrice.Equal(sum))
			assert.True(t, got.TaxPrice.Equal(got.ItemsPrice.Mul(policy.TaxRate).Round(2)))
		})
	}
}

func TestPricingPolicyPriceRejectsEmpty(t *testing.T) {
	_, err := DefaultPricingPolicy().Price(nil)
	assert.ErrorIs(t, err, ErrNoLineItems)
}

func TestProductRecalculateRatings(t *testing.T) {
	product := Product{Reviews: []Review{{Rating: 5}, {Rating: 2}}}
	product.RecalculateRatings()
	assert.Equal(t, 2, product.NumOfReviews)
	assert.InDelta(t, 3.5, product.Ratings, 0.0001)

	product.Reviews = nil
	product.RecalculateRatings()
	assert.Equal(t, 0, product.NumOfReviews)
	assert.Zero(t, product.Ratings)
}

func TestOrderStatusValid(t *testing.T) {
	assert.True(t, OrderStatusShipped.Valid())
	assert.False(t, OrderStatus("shipped").Valid())
	assert.False(t, OrderStatus("").Valid())
}
