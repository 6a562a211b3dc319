// Package orders owns order creation and the order status state machine.
// Transitions here persist status only; capture, refund and stock side
// effects belong to whoever observes the transition.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/01moynul/taptosell-orders/internal/inventory"
	"github.com/01moynul/taptosell-orders/internal/ledger"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemInput is one line of a new order, priced by the caller at checkout.
type ItemInput struct {
	ProductID      string
	ProductName    string
	UnitPrice      decimal.Decimal
	Quantity       int
	ImageURL       *string
	ReturnEligible bool
}

type CreateOrderInput struct {
	StoreID         string
	UserID          *string
	GuestEmail      *string
	Items           []ItemInput
	ShippingAddress models.Address
	PaymentMethod   string
	Currency        string
}

type Service struct {
	store     ledger.Store
	inventory *inventory.Adjuster
	currency  string
	now       func() time.Time
}

func NewService(store ledger.Store, adjuster *inventory.Adjuster) *Service {
	return &Service{store: store, inventory: adjuster, currency: "usd", now: time.Now}
}

// SetDefaultCurrency sets the currency used when an order does not name one.
func (s *Service) SetDefaultCurrency(currency string) {
	if c := strings.ToLower(strings.TrimSpace(currency)); c != "" {
		s.currency = c
	}
}

func validateCreate(in CreateOrderInput) error {
	if strings.TrimSpace(in.StoreID) == "" {
		return &ValidationError{Field: "storeId", Message: "is required"}
	}
	if (in.UserID == nil || *in.UserID == "") && (in.GuestEmail == nil || *in.GuestEmail == "") {
		return &ValidationError{Field: "guestEmail", Message: "is required for guest checkout"}
	}
	if strings.TrimSpace(in.PaymentMethod) == "" {
		return &ValidationError{Field: "paymentMethod", Message: "is required"}
	}
	if len(in.Items) == 0 {
		return &ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(it.ProductID) == "" {
			return &ValidationError{Field: field + ".productId", Message: "is required"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Field: field + ".quantity", Message: "must be greater than zero"}
		}
		if it.UnitPrice.IsNegative() {
			return &ValidationError{Field: field + ".unitPrice", Message: "must not be negative"}
		}
	}
	return nil
}

// CreateOrder validates the input, snapshots the items, takes the ordered
// units out of stock and persists the order as pending, all in one
// transaction. The payment gateway is not contacted.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		GuestEmail:      in.GuestEmail,
		StoreID:         in.StoreID,
		Status:          models.OrderStatusPending,
		Currency:        strings.ToLower(in.Currency),
		PaymentMethod:   in.PaymentMethod,
		ShippingAddress: in.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.Currency == "" {
		order.Currency = s.currency
	}

	total := decimal.Zero
	for _, it := range in.Items {
		item := models.OrderItem{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			UnitPrice:      it.UnitPrice.Round(2),
			Quantity:       it.Quantity,
			ImageURL:       it.ImageURL,
			ReturnEligible: it.ReturnEligible,
			CreatedAt:      now,
		}
		total = total.Add(item.LineTotal())
		order.Items = append(order.Items, item)
	}
	order.TotalAmount = total

	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for _, item := range order.Items {
			_, err := s.inventory.Apply(ctx, tx, inventory.Request{
				ProductID: item.ProductID,
				Type:      models.StockOut,
				Quantity:  item.Quantity,
				Reason:    "order placed",
				OrderID:   &order.ID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus applies one legal transition in its own transaction.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, next models.OrderStatus) (*models.Order, error) {
	var updated *models.Order
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		updated, _, err = s.Transition(ctx, tx, id, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Transition locks the order, checks the move against the state machine and
// persists the new status with its timestamp. It returns the updated order
// and the status it left.
func (s *Service) Transition(ctx context.Context, tx ledger.Tx, id string, next models.OrderStatus) (*models.Order, models.OrderStatus, error) {
	if !next.Valid() {
		return nil, "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", next)}
	}

	order, err := tx.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, "", ErrOrderNotFound
		}
		return nil, "", err
	}

	previous := order.Status
	if err := CheckTransition(previous, next); err != nil {
		return nil, previous, err
	}

	now := s.now().UTC()
	order.Status = next
	order.UpdatedAt = now
	switch next {
	case models.OrderStatusShipped:
		order.ShippedAt = &now
	case models.OrderStatusDelivered:
		order.DeliveredAt = &now
	case models.OrderStatusCancelled:
		order.CancelledAt = &now
	}

	if err := tx.UpdateOrderStatus(ctx, order); err != nil {
		return nil, previous, err
	}
	return order, previous, nil
}
