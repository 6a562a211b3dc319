// Package logger configures the service's slog logger and the attribute keys
// every order, payment and refund log line is tagged with.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultService tags logs when no service name is configured.
const DefaultService = "taptosell-orders"

// Attribute keys shared by the order, refund and reconciliation logs, so a
// single order can be followed across all of them.
const (
	KeyOrderID         = "order_id"
	KeyActorID         = "actor_id"
	KeyPaymentIntentID = "payment_intent_id"
	KeyOp              = "op"
)

type Options struct {
	Service   string
	Env       string
	Level     string
	AddSource bool
	// Output defaults to stdout.
	Output io.Writer
}

// New builds a logger tagged with service and env and installs it as the
// default. Production writes JSON; the dev env writes text.
func New(opts Options) *slog.Logger {
	if opts.Service == "" {
		opts.Service = DefaultService
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     parseLevel(opts.Level),
		AddSource: opts.AddSource,
	}
	var h slog.Handler
	if opts.Env == "dev" {
		h = slog.NewTextHandler(out, handlerOpts)
	} else {
		h = slog.NewJSONHandler(out, handlerOpts)
	}

	base := slog.New(h).With(
		"service", opts.Service,
		"env", opts.Env,
	)

	slog.SetDefault(base)
	return base
}

// ForOrder scopes l to one order and, when known, the user acting on it.
func ForOrder(l *slog.Logger, orderID, actorID string) *slog.Logger {
	if actorID == "" {
		return l.With(KeyOrderID, orderID)
	}
	return l.With(KeyOrderID, orderID, KeyActorID, actorID)
}

// ForPayment adds the payment intent and gateway operation to an order logger.
// Empty values are left off.
func ForPayment(l *slog.Logger, paymentIntentID, op string) *slog.Logger {
	var args []any
	if paymentIntentID != "" {
		args = append(args, KeyPaymentIntentID, paymentIntentID)
	}
	if op != "" {
		args = append(args, KeyOp, op)
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
