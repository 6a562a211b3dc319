package inventory

import "errors"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("stock quantity must be a positive integer")
	ErrInvalidType       = errors.New("stock operation type must be 'in' or 'out'")
	ErrProductNotFound   = errors.New("product not found")
)
