package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/01moynul/taptosell-orders/internal/auth"
	"github.com/01moynul/taptosell-orders/internal/fulfillment"
	"github.com/01moynul/taptosell-orders/internal/inventory"
	"github.com/01moynul/taptosell-orders/internal/middleware"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/01moynul/taptosell-orders/internal/payments"
	"github.com/gin-gonic/gin"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	Orders      *orders.Service
	Fulfillment *fulfillment.Orchestrator
	Inventory   *inventory.Adjuster
	Tokens      *auth.TokenService
	Logger      *slog.Logger
}

var errForbidden = errors.New("you do not have access to this resource")

//
// --- Response envelope ---
//

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError writes the failure envelope. Internal errors are logged and
// hidden from the client.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status, code := statusFromError(err)
	message := err.Error()

	switch status {
	case http.StatusInternalServerError:
		h.Logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		message = "Internal server error"
	case http.StatusBadGateway:
		h.Logger.Warn("payment gateway unavailable", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		message = "Payment gateway is unavailable, try again later"
	}

	body := gin.H{"success": false, "message": message, "error": code}

	var notSucceeded *payments.PaymentNotSucceededError
	if errors.As(err, &notSucceeded) {
		body["details"] = gin.H{
			"paymentIntentId": notSucceeded.PaymentIntentID,
			"paymentStatus":   notSucceeded.Status,
			"shouldCancel":    notSucceeded.ShouldCancel,
		}
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message, "error": "VALIDATION_ERROR"})
}

// statusFromError maps the error taxonomy onto HTTP status codes and a
// stable machine-readable code.
func statusFromError(err error) (int, string) {
	var validation *orders.ValidationError
	var notSucceeded *payments.PaymentNotSucceededError
	var gateway *payments.GatewayError

	switch {
	case errors.As(err, &validation),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidType),
		errors.Is(err, payments.ErrInvalidAmount):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, fulfillment.ErrReturnNotFound),
		errors.Is(err, inventory.ErrProductNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, orders.ErrIllegalCancellation):
		return http.StatusConflict, "ILLEGAL_CANCELLATION"
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, payments.ErrAlreadyFullyRefunded):
		return http.StatusConflict, "ALREADY_FULLY_REFUNDED"
	case errors.Is(err, fulfillment.ErrReturnNotAllowed),
		errors.Is(err, fulfillment.ErrInvalidReturnTransition),
		errors.Is(err, fulfillment.ErrPaymentClosed):
		return http.StatusConflict, "CONFLICT"
	case errors.As(err, &notSucceeded):
		return http.StatusUnprocessableEntity, "PAYMENT_NOT_SUCCEEDED"
	case errors.Is(err, payments.ErrRefundNotSucceeded):
		return http.StatusUnprocessableEntity, "REFUND_NOT_SUCCEEDED"
	case errors.Is(err, payments.ErrNoSuccessfulCharge):
		return http.StatusUnprocessableEntity, "NO_SUCCESSFUL_CHARGE"
	case errors.Is(err, payments.ErrNoPaymentIntent),
		errors.Is(err, payments.ErrIntentNotFound):
		return http.StatusUnprocessableEntity, "NO_PAYMENT_INTENT"
	case errors.As(err, &gateway):
		return http.StatusBadGateway, "GATEWAY_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

//
// --- Actor helpers ---
//

// actor returns the authenticated user id and role, empty for guests.
func actor(c *gin.Context) (string, string) {
	return c.GetString(middleware.UserIDKey), c.GetString(middleware.UserRoleKey)
}

func isStaff(role string) bool {
	return role == auth.RoleSeller || role == auth.RoleAdmin
}

// canAccess lets staff see every order and customers only their own.
func canAccess(c *gin.Context, order *models.Order) bool {
	userID, role := actor(c)
	return isStaff(role) || order.OwnedBy(userID)
}

// loadOwnedOrder fetches the order and enforces access in one step.
func (h *Handlers) loadOwnedOrder(c *gin.Context, orderID string) (*models.Order, bool) {
	order, err := h.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	if !canAccess(c, order) {
		h.respondError(c, errForbidden)
		return nil, false
	}
	return order, true
}
