// Package inventory applies signed stock changes and records each one as an
// immutable stock operation.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/01moynul/taptosell-orders/internal/ledger"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/google/uuid"
)

// Request describes one stock change.
type Request struct {
	ProductID string
	Type      models.StockOperationType
	Quantity  int
	Reason    string
	OrderID   *string
	ReturnID  *string
}

// Adjuster is the only writer of product stock counters.
type Adjuster struct {
	store ledger.Store
	now   func() time.Time
}

func NewAdjuster(store ledger.Store) *Adjuster {
	return &Adjuster{store: store, now: time.Now}
}

// ApplyStockOperation applies req in its own transaction.
func (a *Adjuster) ApplyStockOperation(ctx context.Context, req Request) (*models.StockOperation, error) {
	var op *models.StockOperation
	err := a.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		op, err = a.Apply(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Apply reads the stock under a row lock, validates the change and writes both
// the new counter and the operation row inside tx.
func (a *Adjuster) Apply(ctx context.Context, tx ledger.Tx, req Request) (*models.StockOperation, error) {
	if !req.Type.Valid() {
		return nil, ErrInvalidType
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	current, err := tx.GetStockForUpdate(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, req.ProductID)
		}
		return nil, err
	}

	next := current + req.Quantity
	if req.Type == models.StockOut {
		if current < req.Quantity {
			return nil, fmt.Errorf("%w: product %s has %d, requested %d", ErrInsufficientStock, req.ProductID, current, req.Quantity)
		}
		next = current - req.Quantity
	}

	if err := tx.SetStock(ctx, req.ProductID, next); err != nil {
		return nil, err
	}

	op := &models.StockOperation{
		ID:               uuid.NewString(),
		ProductID:        req.ProductID,
		Type:             req.Type,
		Quantity:         req.Quantity,
		PreviousQuantity: current,
		NewQuantity:      next,
		Reason:           req.Reason,
		OrderID:          req.OrderID,
		ReturnID:         req.ReturnID,
		CreatedAt:        a.now().UTC(),
	}
	if err := tx.InsertStockOperation(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// ReverseOrder writes compensating 'in' operations for every unit the order
// still holds out of stock. Units already put back for the order are netted
// off, so calling it twice restores nothing the second time.
func (a *Adjuster) ReverseOrder(ctx context.Context, tx ledger.Tx, orderID string) ([]models.StockOperation, error) {
	ops, err := tx.ListStockOperations(ctx, orderID)
	if err != nil {
		return nil, err
	}

	held := make(map[string]int)
	for _, op := range ops {
		if op.ReturnID != nil {
			continue
		}
		switch op.Type {
		case models.StockOut:
			held[op.ProductID] += op.Quantity
		case models.StockIn:
			held[op.ProductID] -= op.Quantity
		}
	}

	productIDs := make([]string, 0, len(held))
	for id := range held {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	var reversed []models.StockOperation
	for _, productID := range productIDs {
		qty := held[productID]
		if qty <= 0 {
			continue
		}
		op, err := a.Apply(ctx, tx, Request{
			ProductID: productID,
			Type:      models.StockIn,
			Quantity:  qty,
			Reason:    "order cancelled",
			OrderID:   &orderID,
		})
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, *op)
	}
	return reversed, nil
}

// RestockReturn puts resalable returned units back into stock. Disposed
// returns are skipped and the units leave saleable inventory for good.
func (a *Adjuster) RestockReturn(ctx context.Context, tx ledger.Tx, ret *models.Return) ([]models.StockOperation, error) {
	if ret.IsDisposed {
		return nil, nil
	}

	var restocked []models.StockOperation
	for _, item := range ret.Items {
		if item.Quantity <= 0 {
			continue
		}
		op, err := a.Apply(ctx, tx, Request{
			ProductID: item.ProductID,
			Type:      models.StockIn,
			Quantity:  item.Quantity,
			Reason:    "customer return",
			OrderID:   &ret.OrderID,
			ReturnID:  &ret.ID,
		})
		if err != nil {
			return nil, err
		}
		restocked = append(restocked, *op)
	}
	return restocked, nil
}
