// Package ledger is the persistence boundary for orders, refunds, stock and
// store transactions. Every cross-entity invariant (refund sum within the
// order total, stock never negative) is enforced by read-then-write inside a
// single Tx.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("ledger: record not found")

// OrderCursor is a position in (created_at, id) order. Listings that take a
// cursor return only orders strictly after it.
type OrderCursor struct {
	CreatedAt time.Time
	ID        string
}

// Reader holds the lookups usable both inside and outside a transaction.
type Reader interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// ListOrdersMissingPaymentIntent pages open orders with no payment intent
	// in (created_at, id) order, starting after the cursor when one is given.
	ListOrdersMissingPaymentIntent(ctx context.Context, after *OrderCursor, limit int) ([]models.Order, error)
	ListRefunds(ctx context.Context, orderID string) ([]models.Refund, error)
	// SumCountedRefunds totals refunds whose status counts against the order total.
	SumCountedRefunds(ctx context.Context, orderID string) (decimal.Decimal, error)
	GetStock(ctx context.Context, productID string) (int, error)
	ListStockOperations(ctx context.Context, orderID string) ([]models.StockOperation, error)
	ListTransactions(ctx context.Context, orderID string) ([]models.Transaction, error)
	GetReturn(ctx context.Context, id string) (*models.Return, error)
	ListReturns(ctx context.Context, orderID string) ([]models.Return, error)
}

// Tx is a read-modify-write unit. The ForUpdate lookups take row locks that
// are held until the transaction ends.
type Tx interface {
	Reader

	GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error)
	InsertOrder(ctx context.Context, o *models.Order) error
	// UpdateOrderStatus persists status, updated_at and the status timestamps.
	UpdateOrderStatus(ctx context.Context, o *models.Order) error
	// SetPaymentIntentID attaches an intent only when none is recorded yet.
	// It reports whether the row was changed.
	SetPaymentIntentID(ctx context.Context, orderID, paymentIntentID string) (bool, error)

	GetStockForUpdate(ctx context.Context, productID string) (int, error)
	SetStock(ctx context.Context, productID string, quantity int) error
	InsertStockOperation(ctx context.Context, op *models.StockOperation) error

	InsertRefund(ctx context.Context, r *models.Refund) error
	InsertTransaction(ctx context.Context, t *models.Transaction) error

	InsertReturn(ctx context.Context, r *models.Return) error
	GetReturnForUpdate(ctx context.Context, id string) (*models.Return, error)
	UpdateReturn(ctx context.Context, r *models.Return) error
}

// Store is the shared ledger handle injected into every service.
type Store interface {
	Reader
	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
