package handlers

import (
	"net/http"

	"github.com/01moynul/taptosell-orders/internal/fulfillment"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/gin-gonic/gin"
)

//
// --- Return Handlers ---
//

type returnItemRequest struct {
	OrderItemID string `json:"orderItemId" binding:"required"`
	Quantity    int    `json:"quantity"`
}

type createReturnRequest struct {
	Reason string              `json:"reason" binding:"required"`
	Items  []returnItemRequest `json:"items" binding:"required,min=1,dive"`
}

// CreateReturn is the handler for POST /v1/orders/:id/returns
func (h *Handlers) CreateReturn(c *gin.Context) {
	// 1. --- Bind JSON ---
	var req createReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	// 2. --- Check Ownership ---
	order, ok := h.loadOwnedOrder(c, c.Param("id"))
	if !ok {
		return
	}

	// 3. --- Open Return ---
	actorID, _ := actor(c)
	in := fulfillment.CreateReturnInput{
		OrderID:     order.ID,
		RequestedBy: actorID,
		Reason:      req.Reason,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, fulfillment.ReturnItemInput{OrderItemID: it.OrderItemID, Quantity: it.Quantity})
	}

	ret, err := h.Fulfillment.CreateReturn(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, ret)
}

// ListReturns is the handler for GET /v1/orders/:id/returns
func (h *Handlers) ListReturns(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c, c.Param("id"))
	if !ok {
		return
	}

	returns, err := h.Fulfillment.ListReturns(c.Request.Context(), order.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, returns)
}

type updateReturnRequest struct {
	Status     models.ReturnStatus `json:"status" binding:"required"`
	Condition  *string             `json:"condition"`
	IsDisposed *bool               `json:"isDisposed"`
}

// UpdateReturnStatus is the handler for PUT /v1/returns/:id/status (seller/admin)
// Completing a return restocks unless disposed and refunds the return amount.
func (h *Handlers) UpdateReturnStatus(c *gin.Context) {
	var req updateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	actorID, _ := actor(c)
	out, err := h.Fulfillment.UpdateReturnStatus(c.Request.Context(), fulfillment.UpdateReturnInput{
		ReturnID:   c.Param("id"),
		Status:     req.Status,
		Condition:  req.Condition,
		IsDisposed: req.IsDisposed,
		ActorID:    actorID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}
