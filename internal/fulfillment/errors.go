package fulfillment

import "errors"

var (
	ErrReturnNotFound          = errors.New("return not found")
	ErrReturnNotAllowed        = errors.New("order is not eligible for return")
	ErrInvalidReturnTransition = errors.New("invalid return status transition")
	ErrPaymentClosed           = errors.New("order no longer accepts payment")
)
