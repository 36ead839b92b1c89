package repositories

import "fmt"

// StockErrorCode enumerates catalog stock failure causes.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates a line item asks for more units than the product holds.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorNegativeQuantity indicates a write would leave a product with negative stock.
	StockErrorNegativeQuantity StockErrorCode = "stock_negative_quantity"
)

// StockError wraps stock failures with the product that triggered them.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Requested int
	Available int
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s for product %s (requested %d, available %d)", e.Code, e.ProductID, e.Requested, e.Available)
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID string, requested, available int) *StockError {
	return &StockError{
		Code:      code,
		ProductID: productID,
		Requested: requested,
		Available: available,
	}
}
