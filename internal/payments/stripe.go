package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway implements Gateway on the Stripe API.
type StripeGateway struct {
	sc *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{sc: sc}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(req.CaptureMethod)),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripeIntent(pi), nil
}

func (g *StripeGateway) ConfirmPaymentIntent(ctx context.Context, id, paymentMethodID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx
	params.SetIdempotencyKey("confirm:" + id + ":" + paymentMethodID)

	pi, err := g.sc.PaymentIntents.Confirm(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripeIntent(pi), nil
}

func (g *StripeGateway) CapturePaymentIntent(ctx context.Context, id string, amount int64, idempotencyKey string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amount),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	pi, err := g.sc.PaymentIntents.Capture(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripeIntent(pi), nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx

	pi, err := g.sc.PaymentIntents.Cancel(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripeIntent(pi), nil
}

func (g *StripeGateway) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := g.sc.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return fromStripeIntent(pi), nil
}

func (g *StripeGateway) SearchPaymentIntentsByOrder(ctx context.Context, orderID string) ([]PaymentIntent, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Query = fmt.Sprintf("metadata['order_id']:'%s'", orderID)
	params.Context = ctx

	var out []PaymentIntent
	iter := g.sc.PaymentIntents.Search(params)
	for iter.Next() {
		out = append(out, *fromStripeIntent(iter.PaymentIntent()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return out, nil
}

func (g *StripeGateway) ListPaymentIntents(ctx context.Context, from, to time.Time) ([]PaymentIntent, error) {
	params := &stripe.PaymentIntentListParams{
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: from.Unix(),
			LesserThanOrEqual:  to.Unix(),
		},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var out []PaymentIntent
	iter := g.sc.PaymentIntents.List(params)
	for iter.Next() {
		out = append(out, *fromStripeIntent(iter.PaymentIntent()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return out, nil
}

func (g *StripeGateway) ListCharges(ctx context.Context, paymentIntentID string) ([]Charge, error) {
	params := &stripe.ChargeListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx

	var out []Charge
	iter := g.sc.Charges.List(params)
	for iter.Next() {
		out = append(out, *fromStripeCharge(iter.Charge(), paymentIntentID))
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return out, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		Amount: stripe.Int64(req.Amount),
		Reason: stripe.String(req.Reason),
	}
	if req.ChargeID != "" {
		params.Charge = stripe.String(req.ChargeID)
	} else {
		params.PaymentIntent = stripe.String(req.PaymentIntentID)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := g.sc.Refunds.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &RefundResult{ID: r.ID, Amount: r.Amount, Status: string(r.Status)}, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:             pi.ID,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		Status:         IntentStatus(pi.Status),
		CaptureMethod:  CaptureMethod(pi.CaptureMethod),
		Metadata:       pi.Metadata,
		Created:        time.Unix(pi.Created, 0).UTC(),
	}
	if pi.LatestCharge != nil {
		out.LatestCharge = fromStripeCharge(pi.LatestCharge, pi.ID)
	}
	return out
}

func fromStripeCharge(c *stripe.Charge, paymentIntentID string) *Charge {
	return &Charge{
		ID:              c.ID,
		PaymentIntentID: paymentIntentID,
		Amount:          c.Amount,
		AmountRefunded:  c.AmountRefunded,
		Status:          string(c.Status),
		Captured:        c.Captured,
	}
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, stripeErr.Msg)
	}
	return err
}
