// Package paymenttest provides an in-memory payments.Gateway for tests.
package paymenttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/01moynul/taptosell-orders/internal/payments"
)

// ErrUnexpectedState mimics the processor rejecting a call for the intent's status.
var ErrUnexpectedState = errors.New("payment_intent_unexpected_state")

// Gateway records every call and keeps intents, charges and refunds in memory.
type Gateway struct {
	mu           sync.Mutex
	seq          int
	intents      map[string]*payments.PaymentIntent
	charges      map[string][]*payments.Charge
	refunds      []payments.RefundRequest
	idempotent   map[string]any
	calls        map[string]int
	failures     map[string]error
	searchHides  bool
	refundStatus string
}

func New() *Gateway {
	return &Gateway{
		intents:    make(map[string]*payments.PaymentIntent),
		charges:    make(map[string][]*payments.Charge),
		idempotent: make(map[string]any),
		calls:      make(map[string]int),
		failures:   make(map[string]error),
	}
}

// FailOn makes every call of op return err until cleared with a nil err.
func (g *Gateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// SetRefundStatus makes later refunds come back with status. Any status but
// "succeeded" or "pending" leaves the charge untouched. Empty restores
// "succeeded".
func (g *Gateway) SetRefundStatus(status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundStatus = status
}

// HideFromSearch makes metadata search return nothing, forcing the heuristic.
func (g *Gateway) HideFromSearch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searchHides = true
}

// Calls returns how many times op was invoked, failed calls included.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Refunds returns the refund requests the gateway accepted.
func (g *Gateway) Refunds() []payments.RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payments.RefundRequest(nil), g.refunds...)
}

// Intent returns a copy of a stored intent.
func (g *Gateway) Intent(id string) (payments.PaymentIntent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pi, ok := g.intents[id]
	if !ok {
		return payments.PaymentIntent{}, false
	}
	return g.snapshot(pi), true
}

// AddIntent seeds an intent. A succeeded intent gets a succeeded charge for
// its full amount unless the caller seeds charges separately.
func (g *Gateway) AddIntent(pi payments.PaymentIntent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pi.Created.IsZero() {
		pi.Created = time.Now().UTC()
	}
	stored := pi
	stored.LatestCharge = nil
	g.intents[pi.ID] = &stored
	if pi.Status == payments.IntentSucceeded {
		g.addChargeLocked(&stored, payments.ChargeSucceeded)
	}
}

// AddSucceededIntent seeds a captured automatic-capture intent.
func (g *Gateway) AddSucceededIntent(id string, amount int64, orderID string) {
	md := map[string]string{}
	if orderID != "" {
		md["order_id"] = orderID
	}
	g.AddIntent(payments.PaymentIntent{
		ID:             id,
		Amount:         amount,
		AmountReceived: amount,
		Currency:       "usd",
		Status:         payments.IntentSucceeded,
		CaptureMethod:  payments.CaptureAutomatic,
		Metadata:       md,
	})
}

// AddCharge appends a charge to an existing intent without touching its status.
func (g *Gateway) AddCharge(paymentIntentID, status string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.charges[paymentIntentID] = append(g.charges[paymentIntentID], &payments.Charge{
		ID:              fmt.Sprintf("ch_%d", g.seq),
		PaymentIntentID: paymentIntentID,
		Amount:          amount,
		Status:          status,
		Captured:        status == payments.ChargeSucceeded,
	})
}

func (g *Gateway) addChargeLocked(pi *payments.PaymentIntent, status string) {
	g.seq++
	c := &payments.Charge{
		ID:              fmt.Sprintf("ch_%d", g.seq),
		PaymentIntentID: pi.ID,
		Amount:          pi.Amount,
		Status:          status,
		Captured:        status == payments.ChargeSucceeded,
	}
	g.charges[pi.ID] = append(g.charges[pi.ID], c)
	pi.LatestCharge = c
	if status == payments.ChargeSucceeded {
		pi.AmountReceived = pi.Amount
	}
}

func (g *Gateway) snapshot(pi *payments.PaymentIntent) payments.PaymentIntent {
	out := *pi
	if pi.LatestCharge != nil {
		c := *pi.LatestCharge
		out.LatestCharge = &c
	}
	return out
}

// begin records the call and returns any configured failure.
func (g *Gateway) begin(ctx context.Context, op string) error {
	g.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.failures[op]
}

func (g *Gateway) CreatePaymentIntent(ctx context.Context, req payments.CreateIntentRequest) (*payments.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpCreateIntent); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if prev, ok := g.idempotent["create:"+req.IdempotencyKey].(string); ok {
			out := g.snapshot(g.intents[prev])
			return &out, nil
		}
	}

	g.seq++
	md := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		md[k] = v
	}
	pi := &payments.PaymentIntent{
		ID:            fmt.Sprintf("pi_%d", g.seq),
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        payments.IntentRequiresPaymentMethod,
		CaptureMethod: req.CaptureMethod,
		Metadata:      md,
		Created:       time.Now().UTC(),
	}
	g.intents[pi.ID] = pi
	if req.IdempotencyKey != "" {
		g.idempotent["create:"+req.IdempotencyKey] = pi.ID
	}
	out := g.snapshot(pi)
	return &out, nil
}

func (g *Gateway) ConfirmPaymentIntent(ctx context.Context, id, paymentMethodID string) (*payments.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpConfirmIntent); err != nil {
		return nil, err
	}
	pi, ok := g.intents[id]
	if !ok {
		return nil, payments.ErrIntentNotFound
	}
	switch pi.Status {
	case payments.IntentRequiresPaymentMethod, payments.IntentRequiresConfirmation:
	default:
		return nil, fmt.Errorf("%w: cannot confirm %s", ErrUnexpectedState, pi.Status)
	}
	if paymentMethodID == "" {
		return nil, errors.New("payment method is required")
	}

	if pi.CaptureMethod == payments.CaptureManual {
		pi.Status = payments.IntentRequiresCapture
		g.addChargeLocked(pi, "pending")
		pi.AmountReceived = 0
	} else {
		pi.Status = payments.IntentSucceeded
		g.addChargeLocked(pi, payments.ChargeSucceeded)
	}
	out := g.snapshot(pi)
	return &out, nil
}

func (g *Gateway) CapturePaymentIntent(ctx context.Context, id string, amount int64, idempotencyKey string) (*payments.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpCaptureIntent); err != nil {
		return nil, err
	}
	pi, ok := g.intents[id]
	if !ok {
		return nil, payments.ErrIntentNotFound
	}
	if idempotencyKey != "" {
		if _, seen := g.idempotent["capture:"+idempotencyKey]; seen {
			out := g.snapshot(pi)
			return &out, nil
		}
	}
	if pi.Status != payments.IntentRequiresCapture {
		return nil, fmt.Errorf("%w: cannot capture %s", ErrUnexpectedState, pi.Status)
	}
	if amount > pi.Amount {
		return nil, fmt.Errorf("capture amount %d exceeds authorized %d", amount, pi.Amount)
	}

	pi.Status = payments.IntentSucceeded
	if pi.LatestCharge != nil {
		pi.LatestCharge.Status = payments.ChargeSucceeded
		pi.LatestCharge.Captured = true
		pi.LatestCharge.Amount = amount
	} else {
		g.addChargeLocked(pi, payments.ChargeSucceeded)
	}
	pi.AmountReceived = amount
	if idempotencyKey != "" {
		g.idempotent["capture:"+idempotencyKey] = pi.ID
	}
	out := g.snapshot(pi)
	return &out, nil
}

func (g *Gateway) CancelPaymentIntent(ctx context.Context, id string) (*payments.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpCancelIntent); err != nil {
		return nil, err
	}
	pi, ok := g.intents[id]
	if !ok {
		return nil, payments.ErrIntentNotFound
	}
	if !pi.Status.Voidable() {
		return nil, fmt.Errorf("%w: cannot cancel %s", ErrUnexpectedState, pi.Status)
	}
	pi.Status = payments.IntentCanceled
	out := g.snapshot(pi)
	return &out, nil
}

func (g *Gateway) RetrievePaymentIntent(ctx context.Context, id string) (*payments.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpGetIntent); err != nil {
		return nil, err
	}
	pi, ok := g.intents[id]
	if !ok {
		return nil, payments.ErrIntentNotFound
	}
	out := g.snapshot(pi)
	return &out, nil
}

func (g *Gateway) SearchPaymentIntentsByOrder(ctx context.Context, orderID string) ([]payments.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpSearchIntents); err != nil {
		return nil, err
	}
	if g.searchHides {
		return nil, nil
	}
	var out []payments.PaymentIntent
	for _, pi := range g.intents {
		if pi.Metadata["order_id"] == orderID {
			out = append(out, g.snapshot(pi))
		}
	}
	return out, nil
}

func (g *Gateway) ListPaymentIntents(ctx context.Context, from, to time.Time) ([]payments.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpListIntents); err != nil {
		return nil, err
	}
	var out []payments.PaymentIntent
	for _, pi := range g.intents {
		if !pi.Created.Before(from) && !pi.Created.After(to) {
			out = append(out, g.snapshot(pi))
		}
	}
	return out, nil
}

func (g *Gateway) ListCharges(ctx context.Context, paymentIntentID string) ([]payments.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpListCharges); err != nil {
		return nil, err
	}
	var out []payments.Charge
	for _, c := range g.charges[paymentIntentID] {
		out = append(out, *c)
	}
	return out, nil
}

func (g *Gateway) Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(ctx, payments.OpRefund); err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if prev, ok := g.idempotent["refund:"+req.IdempotencyKey].(payments.RefundResult); ok {
			return &prev, nil
		}
	}

	var charge *payments.Charge
	for _, cs := range g.charges {
		for _, c := range cs {
			if c.ID == req.ChargeID {
				charge = c
			}
		}
	}
	if charge == nil {
		return nil, fmt.Errorf("no such charge: %s", req.ChargeID)
	}
	if charge.Status != payments.ChargeSucceeded {
		return nil, fmt.Errorf("charge %s is %s", charge.ID, charge.Status)
	}
	if req.Amount <= 0 || req.Amount > charge.Amount-charge.AmountRefunded {
		return nil, fmt.Errorf("refund amount %d exceeds refundable %d", req.Amount, charge.Amount-charge.AmountRefunded)
	}

	status := g.refundStatus
	if status == "" {
		status = "succeeded"
	}
	if status == "succeeded" || status == "pending" {
		charge.AmountRefunded += req.Amount
	}
	g.seq++
	res := payments.RefundResult{
		ID:     fmt.Sprintf("re_%d", g.seq),
		Amount: req.Amount,
		Status: status,
	}
	g.refunds = append(g.refunds, req)
	if req.IdempotencyKey != "" {
		g.idempotent["refund:"+req.IdempotencyKey] = res
	}
	return &res, nil
}
