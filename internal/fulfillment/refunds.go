package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/01moynul/taptosell-orders/internal/ledger"
	"github.com/01moynul/taptosell-orders/internal/logger"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/01moynul/taptosell-orders/internal/payments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundInput asks for a refund. A nil Amount refunds the whole remaining
// balance; otherwise the amount is capped at the remaining balance.
type RefundInput struct {
	OrderID  string
	Amount   *decimal.Decimal
	Reason   string
	ActorID  string
	ReturnID string
}

// RefundOrder refunds against the order's successful charge. The refunded
// balance is re-read under the order's row lock in the same transaction that
// records the refund, and the gateway call happens inside that transaction,
// so concurrent refunds for one order serialize and can never overdraw it.
// A gateway failure rolls the transaction back and leaves no Refund row. A
// refund the gateway accepted but did not complete is recorded and reported
// as ErrRefundNotSucceeded; it does not reduce the refundable balance.
func (o *Orchestrator) RefundOrder(ctx context.Context, in RefundInput) (*models.Refund, error) {
	if in.Amount != nil && !in.Amount.IsPositive() {
		return nil, payments.ErrInvalidAmount
	}

	order, err := o.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	// Settled orders never reach the gateway.
	refunded, err := o.store.SumCountedRefunds(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if payments.IsSettled(payments.RemainingAmount(order.TotalAmount, refunded)) {
		return nil, payments.ErrAlreadyFullyRefunded
	}

	piID, err := o.reconciler.ResolvePaymentIntent(ctx, order)
	if err != nil {
		return nil, err
	}
	if piID == "" {
		return nil, fmt.Errorf("%w: %s", payments.ErrNoPaymentIntent, order.ID)
	}

	intent, err := o.gateway.RetrievePaymentIntent(ctx, piID)
	if err != nil {
		return nil, err
	}
	if err := payments.CheckRefundable(intent); err != nil {
		return nil, err
	}
	charge, err := o.reconciler.ResolveCharge(ctx, intent)
	if err != nil {
		return nil, err
	}

	reason := in.Reason
	if reason == "" {
		reason = CustomerRefundReason
	}
	log := logger.ForPayment(logger.ForOrder(o.logger, order.ID, in.ActorID), piID, payments.OpRefund)

	var (
		refund       *models.Refund
		notSucceeded bool
	)
	err = o.store.WithTx(ctx, func(tx ledger.Tx) error {
		locked, err := tx.GetOrderForUpdate(ctx, order.ID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return orders.ErrOrderNotFound
			}
			return err
		}
		refunded, err := tx.SumCountedRefunds(ctx, order.ID)
		if err != nil {
			return err
		}
		amount, err := payments.ClampRefund(in.Amount, payments.RemainingAmount(locked.TotalAmount, refunded))
		if err != nil {
			return err
		}
		prior, err := tx.ListRefunds(ctx, order.ID)
		if err != nil {
			return err
		}
		failedAttempts := 0
		for _, r := range prior {
			if !r.Status.CountsAgainstTotal() {
				failedAttempts++
			}
		}

		metadata := map[string]string{"order_id": order.ID, "actor_id": in.ActorID}
		if in.ReturnID != "" {
			metadata["return_id"] = in.ReturnID
		}
		res, err := o.gateway.Refund(ctx, payments.RefundRequest{
			ChargeID:        charge.ID,
			PaymentIntentID: piID,
			Amount:          payments.ToCents(amount),
			Reason:          CustomerRefundReason,
			Metadata:        metadata,
			IdempotencyKey:  payments.RefundIdempotencyKey(order.ID, refunded, amount, failedAttempts),
		})
		if err != nil {
			log.Error("gateway refund failed", "amount", amount.StringFixed(2), "error", err)
			return err
		}

		now := o.now().UTC()
		refund = &models.Refund{
			ID:              uuid.NewString(),
			OrderID:         order.ID,
			PaymentIntentID: piID,
			GatewayRefundID: res.ID,
			Amount:          payments.FromCents(res.Amount),
			Status:          models.RefundStatus(res.Status),
			Reason:          &reason,
			CreatedBy:       in.ActorID,
			CreatedAt:       now,
		}
		if err := tx.InsertRefund(ctx, refund); err != nil {
			return err
		}
		if !refund.Status.CountsAgainstTotal() {
			log.Warn("gateway refund not successful", "status", res.Status, "gateway_refund_id", res.ID)
			notSucceeded = true
			return nil
		}

		status := models.TransactionStatusCompleted
		if refund.Status == models.RefundStatusPending {
			status = models.TransactionStatusPending
		}
		return tx.InsertTransaction(ctx, &models.Transaction{
			ID:              uuid.NewString(),
			StoreID:         locked.StoreID,
			TransactionType: models.TransactionRefund,
			Amount:          refund.Amount.Neg(),
			Status:          status,
			OrderID:         &order.ID,
			Description:     fmt.Sprintf("Refund %s for order %s", res.ID, order.ID),
			CreatedAt:       now,
		})
	})
	if err != nil {
		return nil, err
	}
	if notSucceeded {
		return nil, fmt.Errorf("%w: refund %s is %s", payments.ErrRefundNotSucceeded, refund.GatewayRefundID, refund.Status)
	}

	log.Info("refund issued", "refund_id", refund.ID, "amount", refund.Amount.StringFixed(2), "status", refund.Status)
	return refund, nil
}

// RefundSummary is an order's refund history with its remaining balance.
type RefundSummary struct {
	OrderID   string          `json:"orderId"`
	Total     decimal.Decimal `json:"totalAmount"`
	Refunded  decimal.Decimal `json:"refundedAmount"`
	Remaining decimal.Decimal `json:"remainingAmount"`
	Refunds   []models.Refund `json:"refunds"`
}

func (o *Orchestrator) ListRefunds(ctx context.Context, orderID string) (*RefundSummary, error) {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	refunds, err := o.store.ListRefunds(ctx, orderID)
	if err != nil {
		return nil, err
	}
	refunded, err := o.store.SumCountedRefunds(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &RefundSummary{
		OrderID:   orderID,
		Total:     order.TotalAmount,
		Refunded:  refunded,
		Remaining: payments.RemainingAmount(order.TotalAmount, refunded),
		Refunds:   refunds,
	}, nil
}
