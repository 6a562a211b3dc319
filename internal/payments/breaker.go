package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerGateway guards another Gateway with a circuit breaker and a per-call
// timeout. Every failure it returns is a *GatewayError.
type BreakerGateway struct {
	next    Gateway
	cb      *gobreaker.CircuitBreaker[any]
	timeout time.Duration
}

func NewBreakerGateway(next Gateway, timeout time.Duration, logger *slog.Logger) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing intent is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrIntentNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerGateway{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker[any](settings),
		timeout: timeout,
	}
}

func call[T any](ctx context.Context, g *BreakerGateway, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.cb.Execute(func() (any, error) {
		v, err := fn(ctx)
		return v, err
	})
	if err != nil {
		var zero T
		return zero, &GatewayError{Op: op, Err: err}
	}
	v, _ := out.(T)
	return v, nil
}

func (g *BreakerGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error) {
	return call(ctx, g, OpCreateIntent, func(ctx context.Context) (*PaymentIntent, error) {
		return g.next.CreatePaymentIntent(ctx, req)
	})
}

func (g *BreakerGateway) ConfirmPaymentIntent(ctx context.Context, id, paymentMethodID string) (*PaymentIntent, error) {
	return call(ctx, g, OpConfirmIntent, func(ctx context.Context) (*PaymentIntent, error) {
		return g.next.ConfirmPaymentIntent(ctx, id, paymentMethodID)
	})
}

func (g *BreakerGateway) CapturePaymentIntent(ctx context.Context, id string, amount int64, idempotencyKey string) (*PaymentIntent, error) {
	return call(ctx, g, OpCaptureIntent, func(ctx context.Context) (*PaymentIntent, error) {
		return g.next.CapturePaymentIntent(ctx, id, amount, idempotencyKey)
	})
}

func (g *BreakerGateway) CancelPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	return call(ctx, g, OpCancelIntent, func(ctx context.Context) (*PaymentIntent, error) {
		return g.next.CancelPaymentIntent(ctx, id)
	})
}

func (g *BreakerGateway) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	return call(ctx, g, OpGetIntent, func(ctx context.Context) (*PaymentIntent, error) {
		return g.next.RetrievePaymentIntent(ctx, id)
	})
}

func (g *BreakerGateway) SearchPaymentIntentsByOrder(ctx context.Context, orderID string) ([]PaymentIntent, error) {
	return call(ctx, g, OpSearchIntents, func(ctx context.Context) ([]PaymentIntent, error) {
		return g.next.SearchPaymentIntentsByOrder(ctx, orderID)
	})
}

func (g *BreakerGateway) ListPaymentIntents(ctx context.Context, from, to time.Time) ([]PaymentIntent, error) {
	return call(ctx, g, OpListIntents, func(ctx context.Context) ([]PaymentIntent, error) {
		return g.next.ListPaymentIntents(ctx, from, to)
	})
}

func (g *BreakerGateway) ListCharges(ctx context.Context, paymentIntentID string) ([]Charge, error) {
	return call(ctx, g, OpListCharges, func(ctx context.Context) ([]Charge, error) {
		return g.next.ListCharges(ctx, paymentIntentID)
	})
}

func (g *BreakerGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return call(ctx, g, OpRefund, func(ctx context.Context) (*RefundResult, error) {
		return g.next.Refund(ctx, req)
	})
}
