package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/shopspring/decimal"
)

// Querier is implemented by both *sql.DB and *sql.Tx, so the same lookups
// run in or out of a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MySQLStore implements Store on the primary read/write connection pool.
type MySQLStore struct {
	mysqlReader
	db *sql.DB
}

// NewMySQLStore wraps an open pool. The caller owns closing it.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{mysqlReader: mysqlReader{q: db}, db: db}
}

func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() // Safety net

	if err := fn(&mysqlTx{mysqlReader: mysqlReader{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, guest_email, store_id, status, total_amount, currency,
	payment_method, payment_intent_id, shipping_address, created_at, updated_at,
	shipped_at, delivered_at, cancelled_at`

const returnColumns = `id, order_id, status, reason, item_condition, is_disposed, refund_amount,
	requested_by, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type mysqlReader struct {
	q Querier
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var address []byte
	err := row.Scan(
		&o.ID, &o.UserID, &o.GuestEmail, &o.StoreID, &o.Status, &o.TotalAmount, &o.Currency,
		&o.PaymentMethod, &o.PaymentIntentID, &address, &o.CreatedAt, &o.UpdatedAt,
		&o.ShippedAt, &o.DeliveredAt, &o.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}
	return &o, nil
}

func (r mysqlReader) loadOrder(ctx context.Context, query string, id string) (*models.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	items, err := r.orderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r mysqlReader) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return r.loadOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
}

func (r mysqlReader) orderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, image_url, return_eligible, created_at
		FROM order_items
		WHERE order_id = ?
		ORDER BY created_at, id`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice,
			&it.Quantity, &it.ImageURL, &it.ReturnEligible, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r mysqlReader) ListOrdersMissingPaymentIntent(ctx context.Context, after *OrderCursor, limit int) ([]models.Order, error) {
	query := "SELECT " + orderColumns + `
		FROM orders
		WHERE payment_intent_id IS NULL AND status NOT IN ('cancelled', 'returned')`
	var args []any
	if after != nil {
		query += " AND (created_at > ? OR (created_at = ? AND id > ?))"
		args = append(args, after.CreatedAt, after.CreatedAt, after.ID)
	}
	query += " ORDER BY created_at ASC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (r mysqlReader) ListRefunds(ctx context.Context, orderID string) ([]models.Refund, error) {
	query := `
		SELECT id, order_id, payment_intent_id, gateway_refund_id, amount, status, reason, created_by, created_at
		FROM refunds
		WHERE order_id = ?
		ORDER BY created_at ASC`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch refunds: %w", err)
	}
	defer rows.Close()

	refunds := []models.Refund{}
	for rows.Next() {
		var rf models.Refund
		if err := rows.Scan(
			&rf.ID, &rf.OrderID, &rf.PaymentIntentID, &rf.GatewayRefundID, &rf.Amount,
			&rf.Status, &rf.Reason, &rf.CreatedBy, &rf.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan refund: %w", err)
		}
		refunds = append(refunds, rf)
	}
	return refunds, rows.Err()
}

func (r mysqlReader) SumCountedRefunds(ctx context.Context, orderID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE order_id = ? AND status IN ('succeeded', 'pending')`

	var sum decimal.Decimal
	if err := r.q.QueryRowContext(ctx, query, orderID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return sum, nil
}

func (r mysqlReader) stock(ctx context.Context, query, productID string) (int, error) {
	var qty int
	err := r.q.QueryRowContext(ctx, query, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return qty, nil
}

func (r mysqlReader) GetStock(ctx context.Context, productID string) (int, error) {
	return r.stock(ctx, "SELECT stock_quantity FROM products WHERE id = ?", productID)
}

func (r mysqlReader) ListStockOperations(ctx context.Context, orderID string) ([]models.StockOperation, error) {
	query := `
		SELECT id, product_id, type, quantity, previous_quantity, new_quantity, reason, order_id, return_id, created_at
		FROM stock_operations
		WHERE order_id = ?
		ORDER BY created_at ASC`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock operations: %w", err)
	}
	defer rows.Close()

	ops := []models.StockOperation{}
	for rows.Next() {
		var op models.StockOperation
		if err := rows.Scan(
			&op.ID, &op.ProductID, &op.Type, &op.Quantity, &op.PreviousQuantity,
			&op.NewQuantity, &op.Reason, &op.OrderID, &op.ReturnID, &op.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stock operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (r mysqlReader) ListTransactions(ctx context.Context, orderID string) ([]models.Transaction, error) {
	query := `
		SELECT id, store_id, transaction_type, amount, status, order_id, description, created_at
		FROM store_transactions
		WHERE order_id = ?
		ORDER BY created_at ASC`

	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID, &t.StoreID, &t.TransactionType, &t.Amount, &t.Status, &t.OrderID, &t.Description, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r mysqlReader) loadReturn(ctx context.Context, query, id string) (*models.Return, error) {
	var ret models.Return
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&ret.ID, &ret.OrderID, &ret.Status, &ret.Reason, &ret.Condition, &ret.IsDisposed,
		&ret.RefundAmount, &ret.RequestedBy, &ret.CreatedAt, &ret.UpdatedAt, &ret.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan return: %w", err)
	}

	rows, err := r.q.QueryContext(ctx,
		"SELECT id, return_id, order_item_id, product_id, quantity FROM return_items WHERE return_id = ?", ret.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch return items: %w", err)
	}
	defer rows.Close()

	ret.Items = []models.ReturnItem{}
	for rows.Next() {
		var it models.ReturnItem
		if err := rows.Scan(&it.ID, &it.ReturnID, &it.OrderItemID, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan return item: %w", err)
		}
		ret.Items = append(ret.Items, it)
	}
	return &ret, rows.Err()
}

func (r mysqlReader) GetReturn(ctx context.Context, id string) (*models.Return, error) {
	return r.loadReturn(ctx, "SELECT "+returnColumns+" FROM returns WHERE id = ?", id)
}

func (r mysqlReader) ListReturns(ctx context.Context, orderID string) ([]models.Return, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT id FROM returns WHERE order_id = ? ORDER BY created_at ASC", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list returns: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan return id: %w", err)
		}
		ids = append(ids, id)
	}
	// The result set must be closed before the per-return queries on a tx connection.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	returns := []models.Return{}
	for _, id := range ids {
		ret, err := r.GetReturn(ctx, id)
		if err != nil {
			return nil, err
		}
		returns = append(returns, *ret)
	}
	return returns, nil
}

// mysqlTx runs writes and locking reads on an open *sql.Tx.
type mysqlTx struct {
	mysqlReader
}

func (t *mysqlTx) GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return t.loadOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ? FOR UPDATE", id)
}

func (t *mysqlTx) InsertOrder(ctx context.Context, o *models.Order) error {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}

	orderQuery := `
		INSERT INTO orders (id, user_id, guest_email, store_id, status, total_amount, currency,
			payment_method, payment_intent_id, shipping_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = t.q.ExecContext(ctx, orderQuery,
		o.ID, o.UserID, o.GuestEmail, o.StoreID, o.Status, o.TotalAmount, o.Currency,
		o.PaymentMethod, o.PaymentIntentID, address, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, product_name, unit_price, quantity,
			image_url, return_eligible, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, it := range o.Items {
		_, err := t.q.ExecContext(ctx, itemQuery,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity,
			it.ImageURL, it.ReturnEligible, it.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save order item: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, o *models.Order) error {
	query := `
		UPDATE orders
		SET status = ?, updated_at = ?, shipped_at = ?, delivered_at = ?, cancelled_at = ?
		WHERE id = ?`
	res, err := t.q.ExecContext(ctx, query, o.Status, o.UpdatedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return requireRow(res)
}

func (t *mysqlTx) SetPaymentIntentID(ctx context.Context, orderID, paymentIntentID string) (bool, error) {
	query := "UPDATE orders SET payment_intent_id = ? WHERE id = ? AND payment_intent_id IS NULL"
	res, err := t.q.ExecContext(ctx, query, paymentIntentID, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to set payment intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return n == 1, nil
}

func (t *mysqlTx) GetStockForUpdate(ctx context.Context, productID string) (int, error) {
	return t.stock(ctx, "SELECT stock_quantity FROM products WHERE id = ? FOR UPDATE", productID)
}

func (t *mysqlTx) SetStock(ctx context.Context, productID string, quantity int) error {
	res, err := t.q.ExecContext(ctx, "UPDATE products SET stock_quantity = ? WHERE id = ?", quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	return requireRow(res)
}

func (t *mysqlTx) InsertStockOperation(ctx context.Context, op *models.StockOperation) error {
	query := `
		INSERT INTO stock_operations (id, product_id, type, quantity, previous_quantity, new_quantity,
			reason, order_id, return_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		op.ID, op.ProductID, op.Type, op.Quantity, op.PreviousQuantity, op.NewQuantity,
		op.Reason, op.OrderID, op.ReturnID, op.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record stock operation: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertRefund(ctx context.Context, r *models.Refund) error {
	query := `
		INSERT INTO refunds (id, order_id, payment_intent_id, gateway_refund_id, amount, status,
			reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		r.ID, r.OrderID, r.PaymentIntentID, r.GatewayRefundID, r.Amount, r.Status,
		r.Reason, r.CreatedBy, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertTransaction(ctx context.Context, tr *models.Transaction) error {
	query := `
		INSERT INTO store_transactions (id, store_id, transaction_type, amount, status, order_id,
			description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		tr.ID, tr.StoreID, tr.TransactionType, tr.Amount, tr.Status, tr.OrderID, tr.Description, tr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertReturn(ctx context.Context, r *models.Return) error {
	query := `
		INSERT INTO returns (id, order_id, status, reason, item_condition, is_disposed, refund_amount,
			requested_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.q.ExecContext(ctx, query,
		r.ID, r.OrderID, r.Status, r.Reason, r.Condition, r.IsDisposed, r.RefundAmount,
		r.RequestedBy, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create return: %w", err)
	}

	itemQuery := `
		INSERT INTO return_items (id, return_id, order_item_id, product_id, quantity)
		VALUES (?, ?, ?, ?, ?)`
	for _, it := range r.Items {
		if _, err := t.q.ExecContext(ctx, itemQuery, it.ID, it.ReturnID, it.OrderItemID, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("failed to save return item: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) GetReturnForUpdate(ctx context.Context, id string) (*models.Return, error) {
	return t.loadReturn(ctx, "SELECT "+returnColumns+" FROM returns WHERE id = ? FOR UPDATE", id)
}

func (t *mysqlTx) UpdateReturn(ctx context.Context, r *models.Return) error {
	query := `
		UPDATE returns
		SET status = ?, item_condition = ?, is_disposed = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`
	res, err := t.q.ExecContext(ctx, query, r.Status, r.Condition, r.IsDisposed, r.UpdatedAt, r.CompletedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update return: %w", err)
	}
	return requireRow(res)
}

// requireRow maps a zero-row UPDATE to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
