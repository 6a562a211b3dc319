// Package payments talks to the payment processor and reconciles its view of
// an order's payment with the local ledger.
package payments

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway operation names, used in GatewayError and logs.
const (
	OpCreateIntent  = "create_payment_intent"
	OpConfirmIntent = "confirm_payment_intent"
	OpCaptureIntent = "capture_payment_intent"
	OpCancelIntent  = "cancel_payment_intent"
	OpGetIntent     = "retrieve_payment_intent"
	OpSearchIntents = "search_payment_intents"
	OpListIntents   = "list_payment_intents"
	OpListCharges   = "list_charges"
	OpRefund        = "refund"
)

type CaptureMethod string

const (
	CaptureAutomatic CaptureMethod = "automatic"
	CaptureManual    CaptureMethod = "manual"
)

// IntentStatus mirrors the processor's payment intent status.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentCanceled              IntentStatus = "canceled"
	IntentSucceeded             IntentStatus = "succeeded"
)

// Voidable reports whether the intent can still be cancelled at the gateway
// because no funds have been captured.
func (s IntentStatus) Voidable() bool {
	switch s {
	case IntentRequiresPaymentMethod, IntentRequiresConfirmation, IntentRequiresAction, IntentRequiresCapture:
		return true
	}
	return false
}

const ChargeSucceeded = "succeeded"

// PaymentIntent is the subset of the processor's payment intent the service uses.
// Amounts are in minor units.
type PaymentIntent struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amountReceived"`
	Currency       string            `json:"currency"`
	Status         IntentStatus      `json:"status"`
	CaptureMethod  CaptureMethod     `json:"captureMethod"`
	LatestCharge   *Charge           `json:"latestCharge,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Created        time.Time         `json:"created"`
}

type Charge struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount"`
	AmountRefunded  int64  `json:"amountRefunded"`
	Status          string `json:"status"`
	Captured        bool   `json:"captured"`
}

type CreateIntentRequest struct {
	Amount         int64
	Currency       string
	CaptureMethod  CaptureMethod
	Metadata       map[string]string
	IdempotencyKey string
}

type RefundRequest struct {
	ChargeID        string
	PaymentIntentID string
	Amount          int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

type RefundResult struct {
	ID     string
	Amount int64
	Status string
}

// Gateway is the payment processor contract. Every amount crossing it is in
// minor currency units.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, id, paymentMethodID string) (*PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, amount int64, idempotencyKey string) (*PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	// SearchPaymentIntentsByOrder finds intents tagged with metadata order_id.
	SearchPaymentIntentsByOrder(ctx context.Context, orderID string) ([]PaymentIntent, error)
	// ListPaymentIntents returns intents created within [from, to].
	ListPaymentIntents(ctx context.Context, from, to time.Time) ([]PaymentIntent, error)
	ListCharges(ctx context.Context, paymentIntentID string) ([]Charge, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

var hundred = decimal.NewFromInt(100)

// ToCents converts a major-unit amount to minor units, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to a two-place major-unit amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
