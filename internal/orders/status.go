package orders

import "github.com/01moynul/taptosell-orders/internal/models"

// NextStatuses returns the statuses reachable from s in one step.
//
//	pending -> processing -> shipped -> delivered -> return_processing -> returned
//	pending | processing -> cancelled
func NextStatuses(s models.OrderStatus) []models.OrderStatus {
	switch s {
	case models.OrderStatusPending:
		return []models.OrderStatus{models.OrderStatusProcessing, models.OrderStatusCancelled}
	case models.OrderStatusProcessing:
		return []models.OrderStatus{models.OrderStatusShipped, models.OrderStatusCancelled}
	case models.OrderStatusShipped:
		return []models.OrderStatus{models.OrderStatusDelivered}
	case models.OrderStatusDelivered:
		return []models.OrderStatus{models.OrderStatusReturnProcessing}
	case models.OrderStatusReturnProcessing:
		return []models.OrderStatus{models.OrderStatusReturned}
	case models.OrderStatusCancelled, models.OrderStatusReturned:
		return nil
	default:
		return nil
	}
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range NextStatuses(from) {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a *TransitionError when the move is not allowed.
// Cancelling from any status other than pending or processing is reported as
// an illegal cancellation rather than a generic invalid transition.
func CheckTransition(from, to models.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	kind := ErrInvalidTransition
	if to == models.OrderStatusCancelled {
		kind = ErrIllegalCancellation
	}
	return &TransitionError{From: from, To: to, kind: kind}
}
