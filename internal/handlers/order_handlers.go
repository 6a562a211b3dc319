package handlers

import (
	"net/http"

	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//
// --- Order Handlers ---
//

type orderItemRequest struct {
	ProductID   string          `json:"productId" binding:"required"`
	ProductName string          `json:"productName" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	ImageURL    *string         `json:"imageUrl"`
	// Defaults to true when omitted.
	ReturnEligible *bool `json:"returnEligible"`
}

type createOrderRequest struct {
	StoreID         string             `json:"storeId" binding:"required"`
	GuestEmail      *string            `json:"guestEmail" binding:"omitempty,email"`
	PaymentMethod   string             `json:"paymentMethod" binding:"required"`
	Currency        string             `json:"currency"`
	ShippingAddress models.Address     `json:"shippingAddress"`
	Items           []orderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// CreateOrder is the handler for POST /v1/orders
// Registered users are taken from the token; guests must give an email.
func (h *Handlers) CreateOrder(c *gin.Context) {
	// 1. --- Bind JSON ---
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	// 2. --- Build Input ---
	in := orders.CreateOrderInput{
		StoreID:         req.StoreID,
		GuestEmail:      req.GuestEmail,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Currency:        req.Currency,
	}
	if userID, _ := actor(c); userID != "" {
		in.UserID = &userID
		in.GuestEmail = nil
	}
	for _, it := range req.Items {
		eligible := true
		if it.ReturnEligible != nil {
			eligible = *it.ReturnEligible
		}
		in.Items = append(in.Items, orders.ItemInput{
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			UnitPrice:      it.UnitPrice,
			Quantity:       it.Quantity,
			ImageURL:       it.ImageURL,
			ReturnEligible: eligible,
		})
	}

	// 3. --- Create ---
	order, err := h.Orders.CreateOrder(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("order created", "order_id", order.ID, "store_id", order.StoreID, "total", order.TotalAmount.StringFixed(2))
	respond(c, http.StatusCreated, order)
}

// GetOrder is the handler for GET /v1/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c, c.Param("id"))
	if !ok {
		return
	}
	respond(c, http.StatusOK, order)
}

// CancelOrder is the handler for POST /v1/orders/:id/cancel
// The cancellation stands even if the refund or void fails; the outcome
// carries a payment warning in that case.
func (h *Handlers) CancelOrder(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c, c.Param("id"))
	if !ok {
		return
	}

	actorID, _ := actor(c)
	out, err := h.Fulfillment.CancelOrder(c.Request.Context(), order.ID, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

// UpdateOrderStatus is the handler for PUT /v1/orders/:id/status (seller/admin)
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	actorID, _ := actor(c)
	out, err := h.Fulfillment.AdvanceOrder(c.Request.Context(), c.Param("id"), req.Status, actorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}
