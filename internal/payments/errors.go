package payments

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuccessfulCharge blocks refunds on payments that never completed.
	ErrNoSuccessfulCharge   = errors.New("no successful charge for payment intent")
	ErrAlreadyFullyRefunded = errors.New("order is already fully refunded")
	ErrNoPaymentIntent      = errors.New("no payment intent found for order")
	ErrIntentNotFound       = errors.New("payment intent not found at gateway")
	ErrInvalidAmount        = errors.New("refund amount must be greater than zero")
	// ErrRefundNotSucceeded means the gateway answered with a refund that moved
	// no money (failed, canceled or requires_action). The attempt is recorded.
	ErrRefundNotSucceeded = errors.New("gateway did not complete the refund")
)

// PaymentNotSucceededError is returned when a refund is attempted against a
// payment intent that has not settled. ShouldCancel is true when no money was
// ever moved, so the order should be cancelled (and the authorization voided)
// instead of refunded.
type PaymentNotSucceededError struct {
	PaymentIntentID string
	Status          IntentStatus
	ShouldCancel    bool
}

func (e *PaymentNotSucceededError) Error() string {
	if e.ShouldCancel {
		return fmt.Sprintf("payment intent %s is %s: nothing was charged, cancel the order instead of refunding", e.PaymentIntentID, e.Status)
	}
	return fmt.Sprintf("payment intent %s is %s: wait for the payment to settle before refunding", e.PaymentIntentID, e.Status)
}

// GatewayError wraps any failure of a call to the payment processor,
// including an open circuit breaker and timeouts.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
