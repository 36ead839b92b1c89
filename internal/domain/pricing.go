package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoLineItems is returned when pricing is requested for an empty item list.
var ErrNoLineItems = errors.New("pricing: at least one line item is required")

// PricingPolicy configures tax and shipping rules applied at order creation.
type PricingPolicy struct {
	TaxRate           decimal.Decimal
	FreeShippingAbove decimal.Decimal
	ShippingFee       decimal.Decimal
}

// DefaultPricingPolicy charges 5% tax and a flat 10 shipping fee unless items exceed 100.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		TaxRate:           decimal.New(5, -2),
		FreeShippingAbove: decimal.NewFromInt(100),
		ShippingFee:       decimal.NewFromInt(10),
	}
}

// Price computes the order amounts from the line item snapshots. The items price is not rounded; tax is
// rounded to two decimal places.
func (p PricingPolicy) Price(items []OrderItem) (PricingBreakdown, error) {
	if len(items) == 0 {
		return PricingBreakdown{}, ErrNoLineItems
	}

	itemsPrice := decimal.Zero
	for _, item := range items {
		itemsPrice = itemsPrice.Add(item.Subtotal())
	}

	tax := itemsPrice.Mul(p.TaxRate).Round(2)

	shipping := p.ShippingFee
	if itemsPrice.GreaterThan(p.FreeShippingAbove) {
		shipping = decimal.Zero
	}

	return PricingBreakdown{
		ItemsPrice:    itemsPrice,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    itemsPrice.Add(tax).Add(shipping),
	}, nil
}
