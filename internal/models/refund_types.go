package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus mirrors the gateway's refund status.
type RefundStatus string

const (
	RefundStatusPending        RefundStatus = "pending"
	RefundStatusSucceeded      RefundStatus = "succeeded"
	RefundStatusFailed         RefundStatus = "failed"
	RefundStatusCanceled       RefundStatus = "canceled"
	RefundStatusRequiresAction RefundStatus = "requires_action"
)

// CountsAgainstTotal reports whether a refund in this status consumes the
// refundable balance of its order. Pending refunds are counted so that two
// in-flight refunds can never overdraw the order total.
func (s RefundStatus) CountsAgainstTotal() bool {
	return s == RefundStatusSucceeded || s == RefundStatusPending
}

// Refund is the model for the 'refunds' table.
// A row exists only after the gateway accepted the refund.
type Refund struct {
	ID              string          `json:"id" db:"id"`
	OrderID         string          `json:"orderId" db:"order_id"`
	PaymentIntentID string          `json:"paymentIntentId" db:"payment_intent_id"`
	GatewayRefundID string          `json:"gatewayRefundId" db:"gateway_refund_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Status          RefundStatus    `json:"status" db:"status"`
	Reason          *string         `json:"reason,omitempty" db:"reason"`
	CreatedBy       string          `json:"createdBy" db:"created_by"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
}
