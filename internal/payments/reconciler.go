package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/01moynul/taptosell-orders/internal/ledger"
	"github.com/01moynul/taptosell-orders/internal/logger"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/shopspring/decimal"
)

// PaymentMethodIntentPrefix marks a payment method string that embeds the
// intent id, as written by older checkouts.
const PaymentMethodIntentPrefix = "stripe_payment_intent:"

// SettledTolerance is the remaining balance at or below which an order is
// treated as fully refunded.
var SettledTolerance = decimal.RequireFromString("0.01")

// Reconciler aligns an order's locally stored payment state with the gateway.
type Reconciler struct {
	store   ledger.Store
	gateway Gateway
	logger  *slog.Logger
	window  time.Duration

	// sweepMu guards cursor, the position the next Sweep resumes from.
	sweepMu sync.Mutex
	cursor  *ledger.OrderCursor
}

func NewReconciler(store ledger.Store, gateway Gateway, log *slog.Logger, heuristicWindow time.Duration) *Reconciler {
	return &Reconciler{store: store, gateway: gateway, logger: log, window: heuristicWindow}
}

// ParsePaymentMethod extracts the intent id from "stripe_payment_intent:<id>".
func ParsePaymentMethod(paymentMethod string) (string, bool) {
	id, ok := strings.CutPrefix(strings.TrimSpace(paymentMethod), PaymentMethodIntentPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ResolvePaymentIntent finds the gateway intent for order. The stored id wins;
// then the payment method string; then a gateway metadata search on the order
// id; then, as a last resort, an intent of the exact same amount created near
// the order. Anything found is persisted on the order. An empty id with a nil
// error means there is nothing to reconcile.
//
// It opens its own transaction and must not be called inside WithTx.
func (r *Reconciler) ResolvePaymentIntent(ctx context.Context, order *models.Order) (string, error) {
	if order.PaymentIntentID != nil && *order.PaymentIntentID != "" {
		return *order.PaymentIntentID, nil
	}

	log := logger.ForOrder(r.logger, order.ID, "")

	if id, ok := ParsePaymentMethod(order.PaymentMethod); ok {
		log.Info("payment intent resolved from payment method", "payment_intent_id", id)
		return r.attach(ctx, order, id)
	}

	found, err := r.gateway.SearchPaymentIntentsByOrder(ctx, order.ID)
	if err != nil {
		return "", err
	}
	for _, pi := range found {
		if pi.Status == IntentCanceled {
			continue
		}
		log.Info("payment intent resolved from gateway metadata", "payment_intent_id", pi.ID)
		return r.attach(ctx, order, pi.ID)
	}

	id, err := r.heuristicMatch(ctx, order)
	if err != nil || id == "" {
		return "", err
	}
	return r.attach(ctx, order, id)
}

// heuristicMatch looks for exactly one non-cancelled intent of the order's
// amount and currency created within the window around the order. An
// ambiguous match is rejected.
func (r *Reconciler) heuristicMatch(ctx context.Context, order *models.Order) (string, error) {
	if r.window <= 0 {
		return "", nil
	}

	from := order.CreatedAt.Add(-r.window)
	to := order.CreatedAt.Add(r.window)
	candidates, err := r.gateway.ListPaymentIntents(ctx, from, to)
	if err != nil {
		return "", err
	}

	cents := ToCents(order.TotalAmount)
	var matches []PaymentIntent
	for _, pi := range candidates {
		if pi.Amount != cents || pi.Status == IntentCanceled {
			continue
		}
		if !strings.EqualFold(pi.Currency, order.Currency) {
			continue
		}
		// Tagged for some other order.
		if tagged := pi.Metadata["order_id"]; tagged != "" && tagged != order.ID {
			continue
		}
		matches = append(matches, pi)
	}

	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		r.logger.Warn("heuristic match",
			"order_id", order.ID,
			"payment_intent_id", matches[0].ID,
			"amount_cents", cents,
			"window", r.window.String(),
		)
		return matches[0].ID, nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		r.logger.Warn("heuristic match ambiguous, not attaching",
			"order_id", order.ID,
			"candidates", ids,
		)
		return "", nil
	}
}

// attach persists id on the order unless another caller got there first, in
// which case the stored id is returned.
func (r *Reconciler) attach(ctx context.Context, order *models.Order, id string) (string, error) {
	resolved := id
	err := r.store.WithTx(ctx, func(tx ledger.Tx) error {
		changed, err := tx.SetPaymentIntentID(ctx, order.ID, id)
		if err != nil {
			return err
		}
		if changed {
			return nil
		}
		current, err := tx.GetOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.PaymentIntentID != nil {
			resolved = *current.PaymentIntentID
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("persist payment intent for order %s: %w", order.ID, err)
	}
	order.PaymentIntentID = &resolved
	return resolved, nil
}

// AttachPaymentIntent records a freshly created intent on the order.
func (r *Reconciler) AttachPaymentIntent(ctx context.Context, order *models.Order, id string) (string, error) {
	return r.attach(ctx, order, id)
}

// ResolveCharge returns the charge a refund should reference: the intent's
// latest charge when it succeeded, otherwise the first succeeded charge the
// gateway lists for the intent.
func (r *Reconciler) ResolveCharge(ctx context.Context, intent *PaymentIntent) (*Charge, error) {
	if c := intent.LatestCharge; c != nil && c.Status == ChargeSucceeded {
		return c, nil
	}

	charges, err := r.gateway.ListCharges(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	for i := range charges {
		if charges[i].Status == ChargeSucceeded {
			return &charges[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuccessfulCharge, intent.ID)
}

// CheckRefundable rejects intents that have not settled.
func CheckRefundable(intent *PaymentIntent) error {
	if intent.Status == IntentSucceeded {
		return nil
	}
	return &PaymentNotSucceededError{
		PaymentIntentID: intent.ID,
		Status:          intent.Status,
		ShouldCancel:    intent.Status != IntentProcessing,
	}
}

// RemainingAmount is the order total minus counted refunds, never below zero.
func RemainingAmount(total, refunded decimal.Decimal) decimal.Decimal {
	remaining := total.Sub(refunded)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsSettled reports whether nothing meaningful is left to refund.
func IsSettled(remaining decimal.Decimal) bool {
	return remaining.LessThanOrEqual(SettledTolerance)
}

// ClampRefund picks the amount to refund: the requested amount capped at
// remaining, or all of remaining when requested is nil.
func ClampRefund(requested *decimal.Decimal, remaining decimal.Decimal) (decimal.Decimal, error) {
	if IsSettled(remaining) {
		return decimal.Zero, ErrAlreadyFullyRefunded
	}
	if requested == nil {
		return remaining.Round(2), nil
	}
	if !requested.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return decimal.Min(*requested, remaining).Round(2), nil
}

// RefundIdempotencyKey identifies one refund attempt against a known refunded
// balance, so a retry after a lost commit replays instead of refunding twice.
// failedAttempts counts earlier refunds on the order that moved no money; it
// gives each retry after such a refund a fresh key.
func RefundIdempotencyKey(orderID string, alreadyRefunded, amount decimal.Decimal, failedAttempts int) string {
	key := fmt.Sprintf("refund:%s:%d:%d", orderID, ToCents(alreadyRefunded), ToCents(amount))
	if failedAttempts > 0 {
		key += fmt.Sprintf(":%d", failedAttempts)
	}
	return key
}

// Sweep resolves payment intents for up to limit open orders that have none
// recorded. Each call resumes after the last order the previous call looked
// at and wraps around once it reaches the newest, so orders that never
// resolve cannot starve the rest. Per-order failures are logged and skipped.
func (r *Reconciler) Sweep(ctx context.Context, limit int) (int, error) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	pending, err := r.store.ListOrdersMissingPaymentIntent(ctx, r.cursor, limit)
	if err != nil {
		return 0, err
	}
	if limit <= 0 || len(pending) < limit {
		r.cursor = nil
	} else {
		last := pending[len(pending)-1]
		r.cursor = &ledger.OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	resolved := 0
	for i := range pending {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		order := &pending[i]
		id, err := r.ResolvePaymentIntent(ctx, order)
		if err != nil {
			var gwErr *GatewayError
			if errors.As(err, &gwErr) {
				logger.ForPayment(logger.ForOrder(r.logger, order.ID, ""), "", gwErr.Op).
					Warn("reconcile sweep gateway failure", "error", err)
			} else {
				logger.ForOrder(r.logger, order.ID, "").Error("reconcile sweep failed", "error", err)
			}
			continue
		}
		if id != "" {
			resolved++
		}
	}
	return resolved, nil
}
