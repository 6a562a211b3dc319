package handlers

import (
	"net/http"
	"strings"

	"github.com/01moynul/taptosell-orders/internal/inventory"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/gin-gonic/gin"
)

//
// --- Inventory Handlers (Seller/Admin) ---
//

type stockOperationRequest struct {
	ProductID string                    `json:"productId" binding:"required"`
	Type      models.StockOperationType `json:"type" binding:"required"`
	Quantity  int                       `json:"quantity"`
	Reason    string                    `json:"reason"`
	OrderID   *string                   `json:"orderId"`
}

// ApplyStockOperation is the handler for POST /v1/stock-operations
func (h *Handlers) ApplyStockOperation(c *gin.Context) {
	var req stockOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}

	op, err := h.Inventory.ApplyStockOperation(c.Request.Context(), inventory.Request{
		ProductID: req.ProductID,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Reason:    reason,
		OrderID:   req.OrderID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	actorID, _ := actor(c)
	h.Logger.Info("stock adjusted", "product_id", op.ProductID, "type", op.Type, "quantity", op.Quantity, "new_quantity", op.NewQuantity, "actor_id", actorID)
	respond(c, http.StatusCreated, op)
}
