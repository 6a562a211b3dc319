package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReturnStatus is the state of a customer return request.
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "requested"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
	ReturnStatusCompleted ReturnStatus = "completed"
)

// Return is the model for the 'returns' table.
// RefundAmount is snapshotted from the returned items when the request is created.
type Return struct {
	ID           string          `json:"id" db:"id"`
	OrderID      string          `json:"orderId" db:"order_id"`
	Status       ReturnStatus    `json:"status" db:"status"`
	Reason       string          `json:"reason" db:"reason"`
	Condition    *string         `json:"condition,omitempty" db:"item_condition"`
	IsDisposed   bool            `json:"isDisposed" db:"is_disposed"`
	RefundAmount decimal.Decimal `json:"refundAmount" db:"refund_amount"`
	RequestedBy  string          `json:"requestedBy" db:"requested_by"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty" db:"completed_at"`

	Items []ReturnItem `json:"items" db:"-"`
}

// ReturnItem is the model for the 'return_items' table.
type ReturnItem struct {
	ID          string `json:"id" db:"id"`
	ReturnID    string `json:"returnId" db:"return_id"`
	OrderItemID string `json:"orderItemId" db:"order_item_id"`
	ProductID   string `json:"productId" db:"product_id"`
	Quantity    int    `json:"quantity" db:"quantity"`
}
