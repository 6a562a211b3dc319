package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func (f *fixture) deliveredOrder(t *testing.T, intentID string, cents int64, items ...orders.ItemInput) *models.Order {
	t.Helper()
	order := f.createOrder(t, "stripe_payment_intent:"+intentID, items...)
	f.gw.AddSucceededIntent(intentID, cents, "")
	out := f.advance(t, order.ID, models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusDelivered)
	require.False(t, out.Captured, "automatic capture needs no capture call")
	return out.Order
}

func TestReturnFlow_RestocksAndRefundsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.deliveredOrder(t, "pi_ret", 5998, item("prod-1", "29.99", 2))
	assert.Equal(t, 8, f.stock(t, "prod-1"))

	ret, err := f.orch.CreateReturn(ctx, CreateReturnInput{
		OrderID:     order.ID,
		RequestedBy: "user-1",
		Reason:      "changed my mind",
		Items:       []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusRequested, ret.Status)
	assert.True(t, dec("59.98").Equal(ret.RefundAmount))

	approved, err := f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{ReturnID: ret.ID, Status: models.ReturnStatusApproved, ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReturnProcessing, approved.Order.Status)
	assert.Nil(t, approved.Refund)

	done, err := f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{
		ReturnID:   ret.ID,
		Status:     models.ReturnStatusCompleted,
		Condition:  strPtr("new"),
		IsDisposed: boolPtr(false),
		ActorID:    "admin-1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusReturned, done.Order.Status)
	assert.Equal(t, models.ReturnStatusCompleted, done.Return.Status)
	assert.NotNil(t, done.Return.CompletedAt)
	assert.Equal(t, 10, f.stock(t, "prod-1"))
	require.Len(t, done.StockOperations, 1)
	require.NotNil(t, done.StockOperations[0].ReturnID)
	assert.Equal(t, ret.ID, *done.StockOperations[0].ReturnID)

	require.NotNil(t, done.Refund)
	assert.True(t, dec("59.98").Equal(done.Refund.Amount))
	assert.Equal(t, ret.ID, f.gw.Refunds()[0].Metadata["return_id"])

	stored, err := f.orch.GetReturn(ctx, ret.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Condition)
	assert.Equal(t, "new", *stored.Condition)
}

func TestReturnFlow_DisposedPartialReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.deliveredOrder(t, "pi_ret", 7000,
		item("prod-1", "20.00", 2),
		item("prod-2", "30.00", 1),
	)
	stockBefore := f.stock(t, "prod-1")

	ret, err := f.orch.CreateReturn(ctx, CreateReturnInput{
		OrderID:     order.ID,
		RequestedBy: "user-1",
		Reason:      "damaged",
		Items:       []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(ret.RefundAmount))

	_, err = f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{ReturnID: ret.ID, Status: models.ReturnStatusApproved})
	require.NoError(t, err)
	done, err := f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{
		ReturnID:   ret.ID,
		Status:     models.ReturnStatusCompleted,
		Condition:  strPtr("damaged"),
		IsDisposed: boolPtr(true),
	})
	require.NoError(t, err)

	assert.Empty(t, done.StockOperations)
	assert.Equal(t, stockBefore, f.stock(t, "prod-1"), "disposed units are not restocked")
	require.NotNil(t, done.Refund)
	assert.True(t, dec("20").Equal(done.Refund.Amount), "partial return refunds only the returned items")

	summary, err := f.orch.ListRefunds(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(summary.Remaining))
}

func TestCreateReturn_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.createOrder(t, "card", item("prod-1", "10.00", 1))
	_, err := f.orch.CreateReturn(ctx, CreateReturnInput{
		OrderID: pending.ID, Reason: "x",
		Items: []ReturnItemInput{{OrderItemID: pending.Items[0].ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrReturnNotAllowed)

	final := item("prod-2", "5.00", 1)
	final.ReturnEligible = false
	order := f.deliveredOrder(t, "pi_ret", 2500, item("prod-1", "10.00", 2), final)

	_, err = f.orch.CreateReturn(ctx, CreateReturnInput{
		OrderID: order.ID, Reason: "x",
		Items: []ReturnItemInput{{OrderItemID: order.Items[1].ID, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrReturnNotAllowed)

	_, err = f.orch.CreateReturn(ctx, CreateReturnInput{
		OrderID: order.ID, Reason: "x",
		Items: []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 3}},
	})
	var ve *orders.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = f.orch.CreateReturn(ctx, CreateReturnInput{
		OrderID: order.ID, Reason: "x",
		Items: []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 2}},
	})
	require.NoError(t, err)

	// Every unit is already claimed by the open return.
	_, err = f.orch.CreateReturn(ctx, CreateReturnInput{
		OrderID: order.ID, Reason: "x",
		Items: []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	assert.True(t, errors.As(err, &ve))

	_, err = f.orch.CreateReturn(ctx, CreateReturnInput{OrderID: order.ID, Reason: "x"})
	assert.True(t, errors.As(err, &ve))
}

func TestUpdateReturnStatus_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.deliveredOrder(t, "pi_ret", 1000, item("prod-1", "10.00", 1))
	ret, err := f.orch.CreateReturn(ctx, CreateReturnInput{
		OrderID: order.ID, Reason: "x",
		Items: []ReturnItemInput{{OrderItemID: order.Items[0].ID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{
		ReturnID: ret.ID, Status: models.ReturnStatusCompleted, Condition: strPtr("new"), IsDisposed: boolPtr(false),
	})
	assert.ErrorIs(t, err, ErrInvalidReturnTransition)

	_, err = f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{ReturnID: ret.ID, Status: models.ReturnStatusCompleted})
	var ve *orders.ValidationError
	assert.True(t, errors.As(err, &ve))

	rejected, err := f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{ReturnID: ret.ID, Status: models.ReturnStatusRejected})
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusRejected, rejected.Return.Status)
	assert.Equal(t, models.OrderStatusDelivered, rejected.Order.Status)

	_, err = f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{ReturnID: ret.ID, Status: models.ReturnStatusApproved})
	assert.ErrorIs(t, err, ErrInvalidReturnTransition)

	_, err = f.orch.UpdateReturnStatus(ctx, UpdateReturnInput{ReturnID: "missing", Status: models.ReturnStatusApproved})
	assert.ErrorIs(t, err, ErrReturnNotFound)
}
