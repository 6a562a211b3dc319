package handlers

import (
	"net/http"

	"github.com/01moynul/taptosell-orders/internal/fulfillment"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//
// --- Refund Handlers ---
//

type refundRequest struct {
	// Omit to refund the whole remaining balance.
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

// RefundOrder is the handler for POST /v1/refunds/:orderId (seller/admin)
func (h *Handlers) RefundOrder(c *gin.Context) {
	var req refundRequest
	// An empty body is a full refund.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	actorID, _ := actor(c)
	refund, err := h.Fulfillment.RefundOrder(c.Request.Context(), fulfillment.RefundInput{
		OrderID: c.Param("orderId"),
		Amount:  req.Amount,
		Reason:  req.Reason,
		ActorID: actorID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, refund)
}

// ListRefunds is the handler for GET /v1/refunds/order/:orderId
func (h *Handlers) ListRefunds(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c, c.Param("orderId"))
	if !ok {
		return
	}

	summary, err := h.Fulfillment.ListRefunds(c.Request.Context(), order.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, summary)
}
