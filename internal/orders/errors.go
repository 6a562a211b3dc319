package orders

import (
	"errors"
	"fmt"

	"github.com/01moynul/taptosell-orders/internal/models"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrIllegalCancellation = errors.New("order can only be cancelled while pending or processing")
)

// ValidationError reports bad input, rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TransitionError carries the attempted move. It unwraps to
// ErrInvalidTransition or ErrIllegalCancellation.
type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
	kind error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", e.kind, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return e.kind
}
