package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/01moynul/taptosell-orders/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore implements Store in memory. Transactions are serialized behind
// a single mutex and run against a copy of the state, which replaces the live
// state only on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	orders       map[string]models.Order
	stock        map[string]int
	stockOps     []models.StockOperation
	refunds      []models.Refund
	transactions []models.Transaction
	returns      map[string]models.Return
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			orders:  make(map[string]models.Order),
			stock:   make(map[string]int),
			returns: make(map[string]models.Return),
		},
	}
}

// SetProductStock registers a product with the given stock level.
func (s *MemoryStore) SetProductStock(productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.stock[productID] = quantity
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&memTx{memState: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetOrder(ctx, id)
}

func (s *MemoryStore) ListOrdersMissingPaymentIntent(ctx context.Context, after *OrderCursor, limit int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListOrdersMissingPaymentIntent(ctx, after, limit)
}

func (s *MemoryStore) ListRefunds(ctx context.Context, orderID string) ([]models.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListRefunds(ctx, orderID)
}

func (s *MemoryStore) SumCountedRefunds(ctx context.Context, orderID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SumCountedRefunds(ctx, orderID)
}

func (s *MemoryStore) GetStock(ctx context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetStock(ctx, productID)
}

func (s *MemoryStore) ListStockOperations(ctx context.Context, orderID string) ([]models.StockOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListStockOperations(ctx, orderID)
}

func (s *MemoryStore) ListTransactions(ctx context.Context, orderID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListTransactions(ctx, orderID)
}

func (s *MemoryStore) GetReturn(ctx context.Context, id string) (*models.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.GetReturn(ctx, id)
}

func (s *MemoryStore) ListReturns(ctx context.Context, orderID string) ([]models.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ListReturns(ctx, orderID)
}

func (st *memState) clone() *memState {
	c := &memState{
		orders:       make(map[string]models.Order, len(st.orders)),
		stock:        make(map[string]int, len(st.stock)),
		stockOps:     append([]models.StockOperation(nil), st.stockOps...),
		refunds:      append([]models.Refund(nil), st.refunds...),
		transactions: append([]models.Transaction(nil), st.transactions...),
		returns:      make(map[string]models.Return, len(st.returns)),
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.stock {
		c.stock[k] = v
	}
	for k, v := range st.returns {
		c.returns[k] = v
	}
	return c
}

func copyOrder(o models.Order) *models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return &o
}

func copyReturn(r models.Return) *models.Return {
	r.Items = append([]models.ReturnItem(nil), r.Items...)
	return &r
}

func (st *memState) GetOrder(_ context.Context, id string) (*models.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(o), nil
}

func (st *memState) ListOrdersMissingPaymentIntent(_ context.Context, after *OrderCursor, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range st.orders {
		if o.PaymentIntentID != nil || o.Status.IsTerminal() {
			continue
		}
		if after != nil && !orderAfter(o, *after) {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func orderAfter(o models.Order, c OrderCursor) bool {
	if o.CreatedAt.Equal(c.CreatedAt) {
		return o.ID > c.ID
	}
	return o.CreatedAt.After(c.CreatedAt)
}

func (st *memState) ListRefunds(_ context.Context, orderID string) ([]models.Refund, error) {
	out := []models.Refund{}
	for _, r := range st.refunds {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (st *memState) SumCountedRefunds(_ context.Context, orderID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, r := range st.refunds {
		if r.OrderID == orderID && r.Status.CountsAgainstTotal() {
			sum = sum.Add(r.Amount)
		}
	}
	return sum, nil
}

func (st *memState) GetStock(_ context.Context, productID string) (int, error) {
	qty, ok := st.stock[productID]
	if !ok {
		return 0, ErrNotFound
	}
	return qty, nil
}

func (st *memState) ListStockOperations(_ context.Context, orderID string) ([]models.StockOperation, error) {
	out := []models.StockOperation{}
	for _, op := range st.stockOps {
		if op.OrderID != nil && *op.OrderID == orderID {
			out = append(out, op)
		}
	}
	return out, nil
}

func (st *memState) ListTransactions(_ context.Context, orderID string) ([]models.Transaction, error) {
	out := []models.Transaction{}
	for _, t := range st.transactions {
		if t.OrderID != nil && *t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (st *memState) GetReturn(_ context.Context, id string) (*models.Return, error) {
	r, ok := st.returns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyReturn(r), nil
}

func (st *memState) ListReturns(_ context.Context, orderID string) ([]models.Return, error) {
	out := []models.Return{}
	for _, r := range st.returns {
		if r.OrderID == orderID {
			out = append(out, *copyReturn(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memTx mutates a private copy of the state; the mutex is already held.
type memTx struct {
	*memState
}

func (tx *memTx) GetOrderForUpdate(ctx context.Context, id string) (*models.Order, error) {
	return tx.GetOrder(ctx, id)
}

func (tx *memTx) InsertOrder(_ context.Context, o *models.Order) error {
	tx.orders[o.ID] = *copyOrder(*o)
	return nil
}

func (tx *memTx) UpdateOrderStatus(_ context.Context, o *models.Order) error {
	cur, ok := tx.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = o.Status
	cur.UpdatedAt = o.UpdatedAt
	cur.ShippedAt = o.ShippedAt
	cur.DeliveredAt = o.DeliveredAt
	cur.CancelledAt = o.CancelledAt
	tx.orders[o.ID] = cur
	return nil
}

func (tx *memTx) SetPaymentIntentID(_ context.Context, orderID, paymentIntentID string) (bool, error) {
	cur, ok := tx.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.PaymentIntentID != nil {
		return false, nil
	}
	id := paymentIntentID
	cur.PaymentIntentID = &id
	tx.orders[orderID] = cur
	return true, nil
}

func (tx *memTx) GetStockForUpdate(ctx context.Context, productID string) (int, error) {
	return tx.GetStock(ctx, productID)
}

func (tx *memTx) SetStock(_ context.Context, productID string, quantity int) error {
	if _, ok := tx.stock[productID]; !ok {
		return ErrNotFound
	}
	tx.stock[productID] = quantity
	return nil
}

func (tx *memTx) InsertStockOperation(_ context.Context, op *models.StockOperation) error {
	tx.stockOps = append(tx.stockOps, *op)
	return nil
}

func (tx *memTx) InsertRefund(_ context.Context, r *models.Refund) error {
	tx.refunds = append(tx.refunds, *r)
	return nil
}

func (tx *memTx) InsertTransaction(_ context.Context, t *models.Transaction) error {
	tx.transactions = append(tx.transactions, *t)
	return nil
}

func (tx *memTx) InsertReturn(_ context.Context, r *models.Return) error {
	tx.returns[r.ID] = *copyReturn(*r)
	return nil
}

func (tx *memTx) GetReturnForUpdate(ctx context.Context, id string) (*models.Return, error) {
	return tx.GetReturn(ctx, id)
}

func (tx *memTx) UpdateReturn(_ context.Context, r *models.Return) error {
	cur, ok := tx.returns[r.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = r.Status
	cur.Condition = r.Condition
	cur.IsDisposed = r.IsDisposed
	cur.UpdatedAt = r.UpdatedAt
	cur.CompletedAt = r.CompletedAt
	tx.returns[r.ID] = cur
	return nil
}
