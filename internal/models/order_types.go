package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the canonical lifecycle state of an order.
// The legal moves between states live in the orders package.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusReturnProcessing OrderStatus = "return_processing"
	OrderStatusReturned         OrderStatus = "returned"
)

// AllOrderStatuses lists every status in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturnProcessing,
	OrderStatusReturned,
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	for _, known := range AllOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

func (s OrderStatus) String() string {
	return string(s)
}

// Address is the shipping address snapshot stored with an order.
type Address struct {
	Name       string `json:"name" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
	Phone      string `json:"phone,omitempty"`
}

// Order is the model for the 'orders' table.
// TotalAmount is fixed at creation from the item snapshots and never recomputed.
type Order struct {
	ID              string          `json:"id" db:"id"`
	UserID          *string         `json:"userId,omitempty" db:"user_id"`
	GuestEmail      *string         `json:"guestEmail,omitempty" db:"guest_email"`
	StoreID         string          `json:"storeId" db:"store_id"`
	Status          OrderStatus     `json:"status" db:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Currency        string          `json:"currency" db:"currency"`
	PaymentMethod   string          `json:"paymentMethod" db:"payment_method"`
	PaymentIntentID *string         `json:"paymentIntentId,omitempty" db:"payment_intent_id"`
	ShippingAddress Address         `json:"shippingAddress" db:"shipping_address"`

	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	ShippedAt   *time.Time `json:"shippedAt,omitempty" db:"shipped_at"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty" db:"delivered_at"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty" db:"cancelled_at"`

	// Joins (populated manually)
	Items []OrderItem `json:"items" db:"-"`
}

// OwnedBy reports whether the order belongs to the given registered user.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID != nil && *o.UserID == userID
}

// OrderItem is the model for the 'order_items' table.
// Name, price and image are snapshots taken when the order was placed.
type OrderItem struct {
	ID             string          `json:"id" db:"id"`
	OrderID        string          `json:"orderId" db:"order_id"`
	ProductID      string          `json:"productId" db:"product_id"`
	ProductName    string          `json:"productName" db:"product_name"`
	UnitPrice      decimal.Decimal `json:"unitPrice" db:"unit_price"`
	Quantity       int             `json:"quantity" db:"quantity"`
	ImageURL       *string         `json:"imageUrl,omitempty" db:"image_url"`
	ReturnEligible bool            `json:"returnEligible" db:"return_eligible"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
