package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/01moynul/taptosell-orders/internal/ledger"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReturnItemInput struct {
	OrderItemID string
	Quantity    int
}

type CreateReturnInput struct {
	OrderID     string
	RequestedBy string
	Reason      string
	Items       []ReturnItemInput
}

// CreateReturn opens a return for a delivered order. The refund amount is
// fixed here from the item price snapshots.
func (o *Orchestrator) CreateReturn(ctx context.Context, in CreateReturnInput) (*models.Return, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, &orders.ValidationError{Field: "reason", Message: "is required"}
	}
	if len(in.Items) == 0 {
		return nil, &orders.ValidationError{Field: "items", Message: "return must contain at least one item"}
	}
	for i, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, &orders.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be greater than zero"}
		}
	}

	var ret *models.Return
	err := o.store.WithTx(ctx, func(tx ledger.Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, in.OrderID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return orders.ErrOrderNotFound
			}
			return err
		}
		if order.Status != models.OrderStatusDelivered {
			return fmt.Errorf("%w: order is %s", ErrReturnNotAllowed, order.Status)
		}

		existing, err := tx.ListReturns(ctx, order.ID)
		if err != nil {
			return err
		}
		claimed := make(map[string]int)
		for _, r := range existing {
			if r.Status == models.ReturnStatusRejected {
				continue
			}
			for _, it := range r.Items {
				claimed[it.OrderItemID] += it.Quantity
			}
		}

		byID := make(map[string]models.OrderItem, len(order.Items))
		for _, it := range order.Items {
			byID[it.ID] = it
		}

		now := o.now().UTC()
		ret = &models.Return{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			Status:      models.ReturnStatusRequested,
			Reason:      in.Reason,
			RequestedBy: in.RequestedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		amount := decimal.Zero
		for i, req := range in.Items {
			item, ok := byID[req.OrderItemID]
			if !ok {
				return &orders.ValidationError{Field: fmt.Sprintf("items[%d].orderItemId", i), Message: "is not part of this order"}
			}
			if !item.ReturnEligible {
				return fmt.Errorf("%w: item %s is not return-eligible", ErrReturnNotAllowed, item.ID)
			}
			claimed[item.ID] += req.Quantity
			if claimed[item.ID] > item.Quantity {
				return &orders.ValidationError{
					Field:   fmt.Sprintf("items[%d].quantity", i),
					Message: fmt.Sprintf("exceeds the %d unit(s) ordered and not already returned", item.Quantity),
				}
			}
			amount = amount.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))))
			ret.Items = append(ret.Items, models.ReturnItem{
				ID:          uuid.NewString(),
				ReturnID:    ret.ID,
				OrderItemID: item.ID,
				ProductID:   item.ProductID,
				Quantity:    req.Quantity,
			})
		}
		ret.RefundAmount = amount.Round(2)

		return tx.InsertReturn(ctx, ret)
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// UpdateReturnInput moves a return along requested -> approved -> completed,
// or requested -> rejected. Completion needs the assessed condition and the
// disposal decision; both are taken from the caller as given.
type UpdateReturnInput struct {
	ReturnID   string
	Status     models.ReturnStatus
	Condition  *string
	IsDisposed *bool
	ActorID    string
}

type ReturnOutcome struct {
	Return *models.Return `json:"return"`
	Outcome
}

func canMoveReturn(from, to models.ReturnStatus) bool {
	switch from {
	case models.ReturnStatusRequested:
		return to == models.ReturnStatusApproved || to == models.ReturnStatusRejected
	case models.ReturnStatusApproved:
		return to == models.ReturnStatusCompleted
	}
	return false
}

func (o *Orchestrator) UpdateReturnStatus(ctx context.Context, in UpdateReturnInput) (*ReturnOutcome, error) {
	if in.Status == models.ReturnStatusCompleted {
		if in.Condition == nil || strings.TrimSpace(*in.Condition) == "" {
			return nil, &orders.ValidationError{Field: "condition", Message: "is required to complete a return"}
		}
		if in.IsDisposed == nil {
			return nil, &orders.ValidationError{Field: "isDisposed", Message: "is required to complete a return"}
		}
	}

	out := &ReturnOutcome{}
	err := o.store.WithTx(ctx, func(tx ledger.Tx) error {
		ret, err := tx.GetReturnForUpdate(ctx, in.ReturnID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return ErrReturnNotFound
			}
			return err
		}
		if !canMoveReturn(ret.Status, in.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidReturnTransition, ret.Status, in.Status)
		}

		now := o.now().UTC()
		var order *models.Order
		switch in.Status {
		case models.ReturnStatusApproved:
			order, err = o.moveOrderTo(ctx, tx, ret.OrderID, models.OrderStatusReturnProcessing)
		case models.ReturnStatusRejected:
			order, err = tx.GetOrder(ctx, ret.OrderID)
		case models.ReturnStatusCompleted:
			ret.Condition = in.Condition
			ret.IsDisposed = *in.IsDisposed
			ret.CompletedAt = &now
			order, err = o.moveOrderTo(ctx, tx, ret.OrderID, models.OrderStatusReturned)
			if err == nil {
				out.StockOperations, err = o.inventory.RestockReturn(ctx, tx, ret)
			}
		}
		if err != nil {
			return err
		}

		ret.Status = in.Status
		ret.UpdatedAt = now
		if err := tx.UpdateReturn(ctx, ret); err != nil {
			return err
		}
		out.Return = ret
		out.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Return.Status == models.ReturnStatusCompleted {
		var amount *decimal.Decimal
		if !coversAllUnits(out.Order, out.Return) {
			amount = &out.Return.RefundAmount
		}
		o.refundBestEffort(ctx, out.Order, in.ActorID, amount, out.Return.ID, &out.Outcome)
	}
	return out, nil
}

// moveOrderTo transitions the order unless an earlier return already did.
func (o *Orchestrator) moveOrderTo(ctx context.Context, tx ledger.Tx, orderID string, target models.OrderStatus) (*models.Order, error) {
	current, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, orders.ErrOrderNotFound
		}
		return nil, err
	}
	if current.Status == target {
		return current, nil
	}
	order, _, err := o.orders.Transition(ctx, tx, orderID, target)
	return order, err
}

// coversAllUnits reports whether ret returns every unit of the order.
func coversAllUnits(order *models.Order, ret *models.Return) bool {
	returned := make(map[string]int, len(ret.Items))
	for _, it := range ret.Items {
		returned[it.OrderItemID] += it.Quantity
	}
	for _, it := range order.Items {
		if returned[it.ID] < it.Quantity {
			return false
		}
	}
	return true
}

func (o *Orchestrator) GetReturn(ctx context.Context, id string) (*models.Return, error) {
	ret, err := o.store.GetReturn(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrReturnNotFound
		}
		return nil, err
	}
	return ret, nil
}

// ListReturns returns the order's returns, oldest first.
func (o *Orchestrator) ListReturns(ctx context.Context, orderID string) ([]models.Return, error) {
	if _, err := o.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return o.store.ListReturns(ctx, orderID)
}
