package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/01moynul/taptosell-orders/internal/auth"
	"github.com/01moynul/taptosell-orders/internal/fulfillment"
	"github.com/01moynul/taptosell-orders/internal/handlers"
	"github.com/01moynul/taptosell-orders/internal/inventory"
	"github.com/01moynul/taptosell-orders/internal/ledger"
	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/01moynul/taptosell-orders/internal/payments"
	"github.com/01moynul/taptosell-orders/internal/payments/paymenttest"
	"github.com/01moynul/taptosell-orders/internal/routes"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details map[string]any  `json:"details"`
}

type apiFixture struct {
	store  *ledger.MemoryStore
	gw     *paymenttest.Gateway
	router *gin.Engine
	tokens *auth.TokenService
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := ledger.NewMemoryStore()
	store.SetProductStock("prod-1", 10)
	store.SetProductStock("prod-2", 3)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := paymenttest.New()
	gw := payments.NewBreakerGateway(fake, time.Second, logger)

	adj := inventory.NewAdjuster(store)
	svc := orders.NewService(store, adj)
	rec := payments.NewReconciler(store, gw, logger, 30*time.Minute)
	tokens := auth.NewTokenService("test-secret", time.Hour)

	h := &handlers.Handlers{
		Orders:      svc,
		Fulfillment: fulfillment.New(store, svc, adj, rec, gw, logger),
		Inventory:   adj,
		Tokens:      tokens,
		Logger:      logger,
	}
	return &apiFixture{store: store, gw: fake, router: routes.SetupRouter(h, "http://localhost:5173"), tokens: tokens}
}

func (f *apiFixture) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := f.tokens.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func orderBody(paymentMethod string, items ...map[string]any) map[string]any {
	return map[string]any{
		"storeId":       "store-1",
		"paymentMethod": paymentMethod,
		"shippingAddress": map[string]any{
			"name": "Ada", "line1": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US",
		},
		"items": items,
	}
}

func line(productID, price string, qty int) map[string]any {
	return map[string]any{"productId": productID, "productName": "Item " + productID, "unitPrice": price, "quantity": qty}
}

func (f *apiFixture) placeOrder(t *testing.T, token, paymentMethod string, items ...map[string]any) models.Order {
	t.Helper()
	status, env := f.do(t, http.MethodPost, "/v1/orders", token, orderBody(paymentMethod, items...))
	require.Equal(t, http.StatusCreated, status, env.Message)
	return decode[models.Order](t, env)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPing(t *testing.T) {
	f := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong!"}`, w.Body.String())
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateOrder(t *testing.T) {
	f := newAPI(t)
	customer := f.token(t, "user-1", auth.RoleCustomer)

	order := f.placeOrder(t, customer, "card", line("prod-1", "29.99", 2))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, dec("59.98").Equal(order.TotalAmount))
	require.NotNil(t, order.UserID)
	assert.Equal(t, "user-1", *order.UserID)
	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].ReturnEligible)

	t.Run("guest needs an email", func(t *testing.T) {
		status, env := f.do(t, http.MethodPost, "/v1/orders", "", orderBody("card", line("prod-1", "1.00", 1)))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", env.Error)
		assert.False(t, env.Success)
	})

	t.Run("guest checkout", func(t *testing.T) {
		body := orderBody("card", line("prod-1", "1.00", 1))
		body["guestEmail"] = "guest@example.com"
		status, env := f.do(t, http.MethodPost, "/v1/orders", "", body)
		require.Equal(t, http.StatusCreated, status)
		guest := decode[models.Order](t, env)
		assert.Nil(t, guest.UserID)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		status, env := f.do(t, http.MethodPost, "/v1/orders", customer, orderBody("card", line("prod-2", "5.00", 4)))
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "INSUFFICIENT_STOCK", env.Error)
	})

	t.Run("missing items", func(t *testing.T) {
		status, _ := f.do(t, http.MethodPost, "/v1/orders", customer, orderBody("card"))
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestGetOrder_Access(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)
	order := f.placeOrder(t, owner, "card", line("prod-1", "10.00", 1))
	path := "/v1/orders/" + order.ID

	status, _ := f.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := f.do(t, http.MethodGet, path, f.token(t, "user-2", auth.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error)

	status, env = f.do(t, http.MethodGet, path, owner, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Equal(t, order.ID, decode[models.Order](t, env).ID)

	status, _ = f.do(t, http.MethodGet, path, f.token(t, "seller-1", auth.RoleSeller), nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = f.do(t, http.MethodGet, "/v1/orders/missing", owner, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error)
}

func TestCancelOrder_RefundsAndRestocks(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)

	order := f.placeOrder(t, owner, "stripe_payment_intent:pi_paid", line("prod-1", "50.00", 2))
	f.gw.AddSucceededIntent("pi_paid", 10000, order.ID)

	status, env := f.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/cancel", owner, nil)
	require.Equal(t, http.StatusOK, status, env.Message)

	out := decode[fulfillment.Outcome](t, env)
	assert.Equal(t, models.OrderStatusCancelled, out.Order.Status)
	require.NotNil(t, out.Refund)
	assert.True(t, dec("100").Equal(out.Refund.Amount))
	require.Len(t, out.StockOperations, 1)
	assert.Equal(t, models.StockIn, out.StockOperations[0].Type)

	stock, err := f.store.GetStock(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stock)

	status, env = f.do(t, http.MethodGet, "/v1/refunds/order/"+order.ID, owner, nil)
	require.Equal(t, http.StatusOK, status)
	summary := decode[fulfillment.RefundSummary](t, env)
	assert.True(t, summary.Remaining.IsZero())
	assert.Len(t, summary.Refunds, 1)

	status, env = f.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/cancel", owner, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ILLEGAL_CANCELLATION", env.Error)
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)
	seller := f.token(t, "seller-1", auth.RoleSeller)
	order := f.placeOrder(t, owner, "card", line("prod-1", "10.00", 1))
	path := "/v1/orders/" + order.ID + "/status"

	status, _ := f.do(t, http.MethodPut, path, owner, map[string]string{"status": "processing"})
	assert.Equal(t, http.StatusForbidden, status)

	for _, next := range []string{"processing", "shipped"} {
		status, env := f.do(t, http.MethodPut, path, seller, map[string]string{"status": next})
		require.Equal(t, http.StatusOK, status, env.Message)
		assert.Equal(t, models.OrderStatus(next), decode[fulfillment.Outcome](t, env).Order.Status)
	}

	status, env := f.do(t, http.MethodPut, path, seller, map[string]string{"status": "pending"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", env.Error)

	status, env = f.do(t, http.MethodPut, path, seller, map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error)
}

func TestUpdateOrderStatus_ReturnStatusesNeedReturnsEndpoint(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)
	seller := f.token(t, "seller-1", auth.RoleSeller)
	order := f.placeOrder(t, owner, "stripe_payment_intent:pi_paid", line("prod-1", "10.00", 1))
	f.gw.AddSucceededIntent("pi_paid", 1000, order.ID)
	path := "/v1/orders/" + order.ID + "/status"

	for _, next := range []string{"processing", "shipped", "delivered"} {
		status, env := f.do(t, http.MethodPut, path, seller, map[string]string{"status": next})
		require.Equal(t, http.StatusOK, status, env.Message)
	}

	for _, next := range []string{"return_processing", "returned"} {
		status, env := f.do(t, http.MethodPut, path, seller, map[string]string{"status": next})
		assert.Equal(t, http.StatusBadRequest, status, next)
		assert.Equal(t, "VALIDATION_ERROR", env.Error)
	}

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, stored.Status)
	assert.Zero(t, f.gw.Calls(payments.OpRefund))
}

func TestPaymentIntentAuthorizeAndCapture(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)
	seller := f.token(t, "seller-1", auth.RoleSeller)
	order := f.placeOrder(t, owner, "card", line("prod-1", "25.00", 1))

	status, env := f.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/payment-intent", owner, nil)
	require.Equal(t, http.StatusCreated, status, env.Message)
	intent := decode[payments.PaymentIntent](t, env)
	assert.Equal(t, int64(2500), intent.Amount)
	assert.Equal(t, payments.CaptureManual, intent.CaptureMethod)

	status, env = f.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/payment-intent/confirm", owner, map[string]string{"paymentMethodId": "pm_card_visa"})
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, payments.IntentRequiresCapture, decode[payments.PaymentIntent](t, env).Status)

	status, env = f.do(t, http.MethodPost, "/v1/refunds/"+order.ID, seller, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "PAYMENT_NOT_SUCCEEDED", env.Error)
	assert.Equal(t, true, env.Details["shouldCancel"])

	path := "/v1/orders/" + order.ID + "/status"
	for _, next := range []string{"processing", "shipped", "delivered"} {
		status, env = f.do(t, http.MethodPut, path, seller, map[string]string{"status": next})
		require.Equal(t, http.StatusOK, status, env.Message)
	}
	out := decode[fulfillment.Outcome](t, env)
	assert.True(t, out.Captured)
	assert.Equal(t, 1, f.gw.Calls(payments.OpCaptureIntent))
}

func TestRefundEndpoint(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)
	admin := f.token(t, "admin-1", auth.RoleAdmin)

	order := f.placeOrder(t, owner, "stripe_payment_intent:pi_paid", line("prod-1", "50.00", 3))
	f.gw.AddSucceededIntent("pi_paid", 15000, order.ID)
	path := "/v1/refunds/" + order.ID

	status, _ := f.do(t, http.MethodPost, path, owner, map[string]any{"amount": "10"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env := f.do(t, http.MethodPost, path, admin, map[string]any{"amount": "50", "reason": "duplicate"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.True(t, dec("50").Equal(decode[models.Refund](t, env).Amount))

	status, env = f.do(t, http.MethodPost, path, admin, map[string]any{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error)

	status, env = f.do(t, http.MethodPost, path, admin, nil)
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.True(t, dec("100").Equal(decode[models.Refund](t, env).Amount))

	status, env = f.do(t, http.MethodPost, path, admin, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_FULLY_REFUNDED", env.Error)
	assert.Equal(t, 2, f.gw.Calls(payments.OpRefund))

	status, env = f.do(t, http.MethodGet, "/v1/refunds/order/"+order.ID, owner, nil)
	require.Equal(t, http.StatusOK, status)
	summary := decode[fulfillment.RefundSummary](t, env)
	assert.True(t, dec("150").Equal(summary.Refunded))
	assert.True(t, summary.Remaining.IsZero())
}

func TestRefundEndpoint_GatewayFailure(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)
	admin := f.token(t, "admin-1", auth.RoleAdmin)

	order := f.placeOrder(t, owner, "stripe_payment_intent:pi_paid", line("prod-1", "20.00", 1))
	f.gw.AddSucceededIntent("pi_paid", 2000, order.ID)
	f.gw.FailOn(payments.OpRefund, errors.New("api_connection_error"))

	status, env := f.do(t, http.MethodPost, "/v1/refunds/"+order.ID, admin, nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "GATEWAY_ERROR", env.Error)
	assert.NotContains(t, env.Message, "api_connection_error")

	refunds, err := f.store.ListRefunds(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, refunds)
}

func TestRefundEndpoint_RefundNotCompleted(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)
	admin := f.token(t, "admin-1", auth.RoleAdmin)

	order := f.placeOrder(t, owner, "stripe_payment_intent:pi_paid", line("prod-1", "20.00", 1))
	f.gw.AddSucceededIntent("pi_paid", 2000, order.ID)
	f.gw.SetRefundStatus("failed")

	for i := 0; i < 2; i++ {
		status, env := f.do(t, http.MethodPost, "/v1/refunds/"+order.ID, admin, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "REFUND_NOT_SUCCEEDED", env.Error)
	}

	f.gw.SetRefundStatus("")
	status, env := f.do(t, http.MethodPost, "/v1/refunds/"+order.ID, admin, nil)
	require.Equal(t, http.StatusCreated, status, env.Message)

	refunds, err := f.store.ListRefunds(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 3)
}

func TestReturnEndpoints(t *testing.T) {
	f := newAPI(t)
	owner := f.token(t, "user-1", auth.RoleCustomer)
	seller := f.token(t, "seller-1", auth.RoleSeller)

	order := f.placeOrder(t, owner, "stripe_payment_intent:pi_paid", line("prod-1", "29.99", 2))
	f.gw.AddSucceededIntent("pi_paid", 5998, order.ID)
	for _, next := range []string{"processing", "shipped", "delivered"} {
		status, env := f.do(t, http.MethodPut, "/v1/orders/"+order.ID+"/status", seller, map[string]string{"status": next})
		require.Equal(t, http.StatusOK, status, env.Message)
	}

	status, env := f.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/returns", f.token(t, "user-2", auth.RoleCustomer), map[string]any{
		"reason": "not mine", "items": []map[string]any{{"orderItemId": order.Items[0].ID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = f.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/returns", owner, map[string]any{
		"reason": "too small", "items": []map[string]any{{"orderItemId": order.Items[0].ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	ret := decode[models.Return](t, env)
	assert.Equal(t, models.ReturnStatusRequested, ret.Status)

	retPath := "/v1/returns/" + ret.ID + "/status"
	status, _ = f.do(t, http.MethodPut, retPath, owner, map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = f.do(t, http.MethodPut, retPath, seller, map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = f.do(t, http.MethodPut, retPath, seller, map[string]any{"status": "completed", "condition": "new", "isDisposed": false})
	require.Equal(t, http.StatusOK, status, env.Message)
	done := decode[fulfillment.ReturnOutcome](t, env)
	assert.Equal(t, models.OrderStatusReturned, done.Order.Status)
	require.NotNil(t, done.Refund)
	assert.True(t, dec("59.98").Equal(done.Refund.Amount))

	status, env = f.do(t, http.MethodGet, "/v1/orders/"+order.ID+"/returns", owner, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Return](t, env), 1)

	status, env = f.do(t, http.MethodPut, retPath, seller, map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error)
}

func TestStockOperations(t *testing.T) {
	f := newAPI(t)
	seller := f.token(t, "seller-1", auth.RoleSeller)

	status, env := f.do(t, http.MethodPost, "/v1/stock-operations", seller, map[string]any{"productId": "prod-2", "type": "in", "quantity": 5, "reason": "restock"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	op := decode[models.StockOperation](t, env)
	assert.Equal(t, 3, op.PreviousQuantity)
	assert.Equal(t, 8, op.NewQuantity)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"too many out", map[string]any{"productId": "prod-2", "type": "out", "quantity": 9}, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"bad type", map[string]any{"productId": "prod-2", "type": "sideways", "quantity": 1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero quantity", map[string]any{"productId": "prod-2", "type": "in", "quantity": 0}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"fractional quantity", map[string]any{"productId": "prod-2", "type": "in", "quantity": 1.5}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown product", map[string]any{"productId": "nope", "type": "in", "quantity": 1}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := f.do(t, http.MethodPost, "/v1/stock-operations", seller, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, env.Error)
		})
	}

	stock, err := f.store.GetStock(context.Background(), "prod-2")
	require.NoError(t, err)
	assert.Equal(t, 8, stock, "failed operations leave stock unchanged")
}
