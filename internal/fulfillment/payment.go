package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"github.com/01moynul/taptosell-orders/internal/logger"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/01moynul/taptosell-orders/internal/payments"
)

// AuthorizePayment creates a manual-capture payment intent for the order
// total and records it on the order. Funds are captured on delivery. Calling
// it again returns the intent already on record.
func (o *Orchestrator) AuthorizePayment(ctx context.Context, orderID, actorID string) (*payments.PaymentIntent, error) {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusProcessing {
		return nil, fmt.Errorf("%w: order is %s", ErrPaymentClosed, order.Status)
	}
	if order.PaymentIntentID != nil {
		return o.gateway.RetrievePaymentIntent(ctx, *order.PaymentIntentID)
	}

	intent, err := o.gateway.CreatePaymentIntent(ctx, payments.CreateIntentRequest{
		Amount:        payments.ToCents(order.TotalAmount),
		Currency:      order.Currency,
		CaptureMethod: payments.CaptureManual,
		Metadata: map[string]string{
			"order_id": order.ID,
			"store_id": order.StoreID,
			"actor_id": actorID,
		},
		IdempotencyKey: order.ID,
	})
	if err != nil {
		logger.ForPayment(logger.ForOrder(o.logger, order.ID, actorID), "", payments.OpCreateIntent).
			Warn("failed to create payment intent", "error", err)
		return nil, err
	}

	attached, err := o.reconciler.AttachPaymentIntent(ctx, order, intent.ID)
	if err != nil {
		return nil, err
	}
	if attached != intent.ID {
		return o.gateway.RetrievePaymentIntent(ctx, attached)
	}
	logger.ForPayment(logger.ForOrder(o.logger, order.ID, actorID), intent.ID, "").Info("payment authorized")
	return intent, nil
}

// ConfirmPayment confirms the order's intent with a gateway payment method.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, orderID, paymentMethodID string) (*payments.PaymentIntent, error) {
	if strings.TrimSpace(paymentMethodID) == "" {
		return nil, &orders.ValidationError{Field: "paymentMethodId", Message: "is required"}
	}
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusProcessing {
		return nil, fmt.Errorf("%w: order is %s", ErrPaymentClosed, order.Status)
	}
	if order.PaymentIntentID == nil {
		return nil, fmt.Errorf("%w: %s", payments.ErrNoPaymentIntent, order.ID)
	}
	return o.gateway.ConfirmPaymentIntent(ctx, *order.PaymentIntentID, paymentMethodID)
}
