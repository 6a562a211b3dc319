package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

//
// --- Payment Handlers ---
//

// CreatePaymentIntent is the handler for POST /v1/orders/:id/payment-intent
// It authorizes the order total for capture on delivery.
func (h *Handlers) CreatePaymentIntent(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c, c.Param("id"))
	if !ok {
		return
	}

	actorID, _ := actor(c)
	intent, err := h.Fulfillment.AuthorizePayment(c.Request.Context(), order.ID, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, intent)
}

type confirmPaymentRequest struct {
	PaymentMethodID string `json:"paymentMethodId" binding:"required"`
}

// ConfirmPaymentIntent is the handler for POST /v1/orders/:id/payment-intent/confirm
func (h *Handlers) ConfirmPaymentIntent(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	order, ok := h.loadOwnedOrder(c, c.Param("id"))
	if !ok {
		return
	}

	intent, err := h.Fulfillment.ConfirmPayment(c.Request.Context(), order.ID, req.PaymentMethodID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, intent)
}
