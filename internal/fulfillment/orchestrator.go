// Package fulfillment attaches the payment and stock side effects to order
// status transitions. The status change always commits first; gateway work
// runs afterwards and a gateway failure never reverts the committed status.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/01moynul/taptosell-orders/internal/inventory"
	"github.com/01moynul/taptosell-orders/internal/ledger"
	"github.com/01moynul/taptosell-orders/internal/logger"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/01moynul/taptosell-orders/internal/payments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerRefundReason is the gateway reason sent with every refund.
const CustomerRefundReason = "requested_by_customer"

// Outcome reports a committed status change and what happened to the payment.
// PaymentWarning is set when the payment side effect needs manual follow-up.
type Outcome struct {
	Order           *models.Order           `json:"order"`
	StockOperations []models.StockOperation `json:"stockOperations,omitempty"`
	Refund          *models.Refund          `json:"refund,omitempty"`
	Captured        bool                    `json:"captured,omitempty"`
	PaymentVoided   bool                    `json:"paymentVoided,omitempty"`
	PaymentWarning  string                  `json:"paymentWarning,omitempty"`
}

type Orchestrator struct {
	store      ledger.Store
	orders     *orders.Service
	inventory  *inventory.Adjuster
	reconciler *payments.Reconciler
	gateway    payments.Gateway
	logger     *slog.Logger
	now        func() time.Time
}

func New(
	store ledger.Store,
	orderService *orders.Service,
	adjuster *inventory.Adjuster,
	reconciler *payments.Reconciler,
	gateway payments.Gateway,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		orders:     orderService,
		inventory:  adjuster,
		reconciler: reconciler,
		gateway:    gateway,
		logger:     log,
		now:        time.Now,
	}
}

// AdvanceOrder moves an order to next and runs the side effect that status
// calls for. The return statuses are owned by the returns flow, which records
// the Return and restocks before it refunds, so they are rejected here.
func (o *Orchestrator) AdvanceOrder(ctx context.Context, orderID string, next models.OrderStatus, actorID string) (*Outcome, error) {
	switch next {
	case models.OrderStatusReturnProcessing, models.OrderStatusReturned:
		return nil, &orders.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("%s is set by the returns endpoint", next),
		}

	case models.OrderStatusCancelled:
		return o.CancelOrder(ctx, orderID, actorID)

	case models.OrderStatusDelivered:
		order, err := o.orders.UpdateOrderStatus(ctx, orderID, next)
		if err != nil {
			return nil, err
		}
		out := &Outcome{Order: order}
		o.captureOnDelivery(ctx, order, actorID, out)
		return out, nil

	default:
		order, err := o.orders.UpdateOrderStatus(ctx, orderID, next)
		if err != nil {
			return nil, err
		}
		return &Outcome{Order: order}, nil
	}
}

// CancelOrder cancels the order and puts its stock back in one transaction,
// then voids the authorization or refunds whatever was charged.
func (o *Orchestrator) CancelOrder(ctx context.Context, orderID, actorID string) (*Outcome, error) {
	var (
		order    *models.Order
		reversed []models.StockOperation
	)
	err := o.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		order, _, err = o.orders.Transition(ctx, tx, orderID, models.OrderStatusCancelled)
		if err != nil {
			return err
		}
		reversed, err = o.inventory.ReverseOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{Order: order, StockOperations: reversed}
	o.settleCancelledPayment(ctx, order, actorID, out)
	return out, nil
}

func (o *Orchestrator) settleCancelledPayment(ctx context.Context, order *models.Order, actorID string, out *Outcome) {
	log := logger.ForOrder(o.logger, order.ID, actorID)

	intent, ok := o.lookupIntent(ctx, order, log, out)
	if !ok {
		return
	}
	log = logger.ForPayment(log, intent.ID, "")

	switch {
	case intent.Status.Voidable():
		if _, err := o.gateway.CancelPaymentIntent(ctx, intent.ID); err != nil {
			log.Warn("failed to void payment authorization", logger.KeyOp, payments.OpCancelIntent, "error", err)
			out.PaymentWarning = "payment authorization could not be voided; manual reconciliation required"
			return
		}
		out.PaymentVoided = true
		log.Info("payment authorization voided")
	case intent.Status == payments.IntentSucceeded:
		o.refundBestEffort(ctx, order, actorID, nil, "", out)
	case intent.Status == payments.IntentCanceled:
		log.Info("payment intent already cancelled")
	default:
		log.Warn("payment still processing, refund needs manual reconciliation", "status", intent.Status)
		out.PaymentWarning = fmt.Sprintf("payment is %s; refund needs manual reconciliation", intent.Status)
	}
}

// captureOnDelivery captures a manual-capture authorization once. Any failure
// is logged and reported on out; the delivery stands.
func (o *Orchestrator) captureOnDelivery(ctx context.Context, order *models.Order, actorID string, out *Outcome) {
	log := logger.ForPayment(logger.ForOrder(o.logger, order.ID, actorID), "", payments.OpCaptureIntent)

	intent, ok := o.lookupIntent(ctx, order, log, out)
	if !ok {
		return
	}
	log = logger.ForPayment(log, intent.ID, "")

	if intent.CaptureMethod != payments.CaptureManual {
		return
	}
	if intent.Status != payments.IntentRequiresCapture {
		log.Warn("payment intent not capturable", "status", intent.Status)
		if intent.Status != payments.IntentSucceeded {
			out.PaymentWarning = fmt.Sprintf("payment is %s and cannot be captured", intent.Status)
		}
		return
	}

	captured, err := o.gateway.CapturePaymentIntent(ctx, intent.ID, intent.Amount, "capture:"+intent.ID)
	if err != nil {
		log.Warn("payment capture failed", "error", err)
		out.PaymentWarning = "payment capture failed; manual reconciliation required"
		return
	}
	out.Captured = true

	cents := captured.AmountReceived
	if cents == 0 {
		cents = intent.Amount
	}
	sale := &models.Transaction{
		ID:              uuid.NewString(),
		StoreID:         order.StoreID,
		TransactionType: models.TransactionSale,
		Amount:          payments.FromCents(cents),
		Status:          models.TransactionStatusCompleted,
		OrderID:         &order.ID,
		Description:     fmt.Sprintf("Capture of payment %s", intent.ID),
		CreatedAt:       o.now().UTC(),
	}
	err = o.store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.InsertTransaction(ctx, sale)
	})
	if err != nil {
		log.Error("failed to record sale transaction", "error", err)
	}
}

// lookupIntent resolves and fetches the order's payment intent. It returns
// false when there is nothing to act on, logging why.
func (o *Orchestrator) lookupIntent(ctx context.Context, order *models.Order, log *slog.Logger, out *Outcome) (*payments.PaymentIntent, bool) {
	id, err := o.reconciler.ResolvePaymentIntent(ctx, order)
	if err != nil {
		log.Warn("failed to resolve payment intent", "error", err)
		out.PaymentWarning = "payment lookup failed; manual reconciliation required"
		return nil, false
	}
	if id == "" {
		log.Info("no payment intent to reconcile")
		return nil, false
	}

	intent, err := o.gateway.RetrievePaymentIntent(ctx, id)
	if err != nil {
		log.Warn("failed to retrieve payment intent", "payment_intent_id", id, "op", payments.OpGetIntent, "error", err)
		out.PaymentWarning = "payment lookup failed; manual reconciliation required"
		return nil, false
	}
	return intent, true
}

// refundBestEffort refunds up to amount (all of the remaining balance when
// nil). A settled order is a no-op; other failures land on out.
func (o *Orchestrator) refundBestEffort(ctx context.Context, order *models.Order, actorID string, amount *decimal.Decimal, returnID string, out *Outcome) {
	in := RefundInput{
		OrderID:  order.ID,
		Amount:   amount,
		Reason:   CustomerRefundReason,
		ActorID:  actorID,
		ReturnID: returnID,
	}

	log := logger.ForOrder(o.logger, order.ID, actorID)
	refund, err := o.RefundOrder(ctx, in)
	switch {
	case err == nil:
		out.Refund = refund
	case errors.Is(err, payments.ErrAlreadyFullyRefunded):
		log.Debug("order already settled, no refund issued")
	case errors.Is(err, payments.ErrNoPaymentIntent):
		log.Info("no payment intent to refund")
	default:
		logger.ForPayment(log, stringValue(order.PaymentIntentID), payments.OpRefund).
			Warn("automatic refund failed", "error", err)
		out.PaymentWarning = "refund could not be processed automatically; manual reconciliation required"
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
