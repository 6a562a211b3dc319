package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a store ledger entry.
type TransactionType string

const (
	TransactionSale       TransactionType = "sale"
	TransactionRefund     TransactionType = "refund"
	TransactionPayment    TransactionType = "payment"
	TransactionFee        TransactionType = "fee"
	TransactionCommission TransactionType = "commission"
)

// TransactionStatus of a ledger entry. Only the status is ever corrected after insert.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is the model for the 'store_transactions' table.
// Amount is signed: sales are positive, refunds negative.
type Transaction struct {
	ID              string            `json:"id" db:"id"`
	StoreID         string            `json:"storeId" db:"store_id"`
	TransactionType TransactionType   `json:"transactionType" db:"transaction_type"`
	Amount          decimal.Decimal   `json:"amount" db:"amount"`
	Status          TransactionStatus `json:"status" db:"status"`
	OrderID         *string           `json:"orderId,omitempty" db:"order_id"`
	Description     string            `json:"description" db:"description"`
	CreatedAt       time.Time         `json:"createdAt" db:"created_at"`
}
