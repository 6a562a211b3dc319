package models

import "time"

// StockOperationType is the direction of a stock change.
type StockOperationType string

const (
	StockIn  StockOperationType = "in"
	StockOut StockOperationType = "out"
)

func (t StockOperationType) Valid() bool {
	return t == StockIn || t == StockOut
}

// StockOperation is the model for the 'stock_operations' table.
// Rows are never edited: a reversal is a new row in the opposite direction.
type StockOperation struct {
	ID               string             `json:"id" db:"id"`
	ProductID        string             `json:"productId" db:"product_id"`
	Type             StockOperationType `json:"type" db:"type"`
	Quantity         int                `json:"quantity" db:"quantity"`
	PreviousQuantity int                `json:"previousQuantity" db:"previous_quantity"`
	NewQuantity      int                `json:"newQuantity" db:"new_quantity"`
	Reason           string             `json:"reason" db:"reason"`
	OrderID          *string            `json:"orderId,omitempty" db:"order_id"`
	ReturnID         *string            `json:"returnId,omitempty" db:"return_id"`
	CreatedAt        time.Time          `json:"createdAt" db:"created_at"`
}
