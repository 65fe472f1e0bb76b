package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
)

type memRepoError struct {
	op          string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *memRepoError) Error() string       { return "memstore: " + e.op }
func (e *memRepoError) IsNotFound() bool    { return e.notFound }
func (e *memRepoError) IsConflict() bool    { return e.conflict }
func (e *memRepoError) IsUnavailable() bool { return e.unavailable }

func memNotFound(op string) error { return &memRepoError{op: op, notFound: true} }
func memConflict(op string) error { return &memRepoError{op: op, conflict: true} }

type memState struct {
	variants    map[string]domain.ProductVariant
	addresses   map[string]domain.Address
	rates       []domain.CurrencyRate
	coupons     map[string]domain.Coupon
	redemptions []domain.CouponRedemption
	giftCards   map[string]domain.GiftCard
	orders      map[string]domain.Order
	orderSeq    []string
	history     map[string][]domain.OrderStatusHistory
	payments    map[string][]domain.PaymentHistory
	returns     map[string]domain.ReturnRequest
	returnSeq   []string
	carts       map[string]domain.Cart
}

func (s memState) clone() memState {
	out := memState{
		variants:    maps.Clone(s.variants),
		addresses:   maps.Clone(s.addresses),
		rates:       slices.Clone(s.rates),
		coupons:     maps.Clone(s.coupons),
		redemptions: slices.Clone(s.redemptions),
		giftCards:   maps.Clone(s.giftCards),
		orders:      maps.Clone(s.orders),
		orderSeq:    slices.Clone(s.orderSeq),
		history:     make(map[string][]domain.OrderStatusHistory, len(s.history)),
		payments:    make(map[string][]domain.PaymentHistory, len(s.payments)),
		returns:     maps.Clone(s.returns),
		returnSeq:   slices.Clone(s.returnSeq),
		carts:       maps.Clone(s.carts),
	}
	for k, v := range s.history {
		out.history[k] = slices.Clone(v)
	}
	for k, v := range s.payments {
		out.payments[k] = slices.Clone(v)
	}
	return out
}

// memStore is an in-memory Registry and UnitOfWork. Transactions are serialised and roll back
// to a snapshot on error.
type memStore struct {
	txMu    sync.Mutex
	mu      sync.Mutex
	state   memState
	commits int
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		variants:  map[string]domain.ProductVariant{},
		addresses: map[string]domain.Address{},
		rates:     []domain.CurrencyRate{},
		coupons:   map[string]domain.Coupon{},
		giftCards: map[string]domain.GiftCard{},
		orders:    map[string]domain.Order{},
		history:   map[string][]domain.OrderStatusHistory{},
		payments:  map[string][]domain.PaymentHistory{},
		returns:   map[string]domain.ReturnRequest{},
		carts:     map[string]domain.Cart{},
	}}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(context.Context, repositories.Registry) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	return nil
}

func (m *memStore) Variants() repositories.VariantRepository                 { return memVariants{m} }
func (m *memStore) Addresses() repositories.AddressRepository                { return memAddresses{m} }
func (m *memStore) Rates() repositories.CurrencyRateRepository               { return memRates{m} }
func (m *memStore) Coupons() repositories.CouponRepository                   { return memCoupons{m} }
func (m *memStore) GiftCards() repositories.GiftCardRepository               { return memGiftCards{m} }
func (m *memStore) Orders() repositories.OrderRepository                     { return memOrders{m} }
func (m *memStore) StatusHistory() repositories.OrderStatusHistoryRepository { return memHistory{m} }
func (m *memStore) Payments() repositories.PaymentHistoryRepository          { return memPayments{m} }
func (m *memStore) Returns() repositories.ReturnRequestRepository            { return memReturns{m} }
func (m *memStore) Carts() repositories.CartRepository                       { return memCarts{m} }

// seed helpers

func (m *memStore) putVariant(v domain.ProductVariant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.variants[v.ID] = v
}

func (m *memStore) putAddress(a domain.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.addresses[a.ID] = a
}

func (m *memStore) putRate(code string, rate string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.rates = append(m.state.rates, domain.CurrencyRate{Code: code, ExchangeRate: mustDecimal(rate)})
}

func (m *memStore) putCoupon(c domain.Coupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.coupons[c.ID] = c
}

func (m *memStore) putGiftCard(g domain.GiftCard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.giftCards[g.ID] = g
}

func (m *memStore) putOrder(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.StatusHistory, o.Payments, o.ReturnRequest = nil, nil, nil
	if _, ok := m.state.orders[o.ID]; !ok {
		m.state.orderSeq = append(m.state.orderSeq, o.ID)
	}
	m.state.orders[o.ID] = o
}

func (m *memStore) putPayment(p domain.PaymentHistory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.payments[p.OrderID] = append(m.state.payments[p.OrderID], p)
}

func (m *memStore) putReturn(r domain.ReturnRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.returns[r.ID] = r
	m.state.returnSeq = append(m.state.returnSeq, r.ID)
}

func (m *memStore) putCart(c domain.Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.carts[c.CustomerID] = c
}

func (m *memStore) stock(variantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.variants[variantID].Stock
}

func (m *memStore) order(orderID string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.orders[orderID]
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *memStore) historyFor(orderID string) []domain.OrderStatusHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.history[orderID])
}

func (m *memStore) paymentsFor(orderID string) []domain.PaymentHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.payments[orderID])
}

func (m *memStore) coupon(id string) domain.Coupon {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.coupons[id]
}

func (m *memStore) giftCard(id string) domain.GiftCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.giftCards[id]
}

func (m *memStore) returnRequest(id string) domain.ReturnRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.returns[id]
}

func (m *memStore) cart(customerID string) (domain.Cart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.carts[customerID]
	return c, ok
}

type memVariants struct{ m *memStore }

func (r memVariants) FindByID(_ context.Context, id string) (domain.ProductVariant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.state.variants[id]
	if !ok {
		return domain.ProductVariant{}, memNotFound("variant " + id)
	}
	return v, nil
}

func (r memVariants) FindByIDs(_ context.Context, ids []string) ([]domain.ProductVariant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.ProductVariant
	for _, id := range ids {
		if v, ok := r.m.state.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r memVariants) LockForUpdate(_ context.Context, ids []string) (map[string]domain.ProductVariant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make(map[string]domain.ProductVariant, len(ids))
	for _, id := range ids {
		if v, ok := r.m.state.variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (r memVariants) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	v, ok := r.m.state.variants[id]
	if !ok {
		return 0, &repositories.InventoryError{Op: "adjust stock", Code: repositories.InventoryErrorVariantNotFound, VariantID: id}
	}
	if v.Stock+delta < 0 {
		return 0, &repositories.InventoryError{Op: "adjust stock", Code: repositories.InventoryErrorInsufficientStock, VariantID: id, Available: v.Stock}
	}
	v.Stock += delta
	r.m.state.variants[id] = v
	return v.Stock, nil
}

type memAddresses struct{ m *memStore }

func (r memAddresses) FindByID(_ context.Context, id string) (domain.Address, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	a, ok := r.m.state.addresses[id]
	if !ok {
		return domain.Address{}, memNotFound("address " + id)
	}
	return a, nil
}

type memRates struct{ m *memStore }

func (r memRates) List(context.Context) ([]domain.CurrencyRate, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return slices.Clone(r.m.state.rates), nil
}

type memCoupons struct{ m *memStore }

func (r memCoupons) FindByID(_ context.Context, id string) (domain.Coupon, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.coupons[id]
	if !ok {
		return domain.Coupon{}, memNotFound("coupon " + id)
	}
	return c, nil
}

func (r memCoupons) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.state.coupons {
		if c.Code == code {
			return c, nil
		}
	}
	return domain.Coupon{}, memNotFound("coupon " + code)
}

func (r memCoupons) LockByID(ctx context.Context, id string) (domain.Coupon, error) {
	return r.FindByID(ctx, id)
}

func (r memCoupons) CountRedemptions(_ context.Context, couponID, customerID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	count := 0
	for _, red := range r.m.state.redemptions {
		if red.CouponID == couponID && red.CustomerID == customerID {
			count++
		}
	}
	return count, nil
}

func (r memCoupons) Redeem(_ context.Context, red domain.CouponRedemption) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.coupons[red.CouponID]
	if !ok {
		return memNotFound("coupon " + red.CouponID)
	}
	c.UsedCount++
	r.m.state.coupons[c.ID] = c
	r.m.state.redemptions = append(r.m.state.redemptions, red)
	return nil
}

func (r memCoupons) ReleaseRedemptions(_ context.Context, orderID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	released := 0
	r.m.state.redemptions = slices.DeleteFunc(r.m.state.redemptions, func(red domain.CouponRedemption) bool {
		if red.OrderID != orderID {
			return false
		}
		if c, ok := r.m.state.coupons[red.CouponID]; ok && c.UsedCount > 0 {
			c.UsedCount--
			r.m.state.coupons[c.ID] = c
		}
		released++
		return true
	})
	return released, nil
}

type memGiftCards struct{ m *memStore }

func (r memGiftCards) FindByID(_ context.Context, id string) (domain.GiftCard, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	g, ok := r.m.state.giftCards[id]
	if !ok {
		return domain.GiftCard{}, memNotFound("gift card " + id)
	}
	return g, nil
}

func (r memGiftCards) LockByID(ctx context.Context, id string) (domain.GiftCard, error) {
	return r.FindByID(ctx, id)
}

func (r memGiftCards) MarkRedeemed(_ context.Context, id, orderID string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	g, ok := r.m.state.giftCards[id]
	if !ok {
		return memNotFound("gift card " + id)
	}
	if g.IsRedeemed {
		return memConflict("gift card redeemed")
	}
	g.IsRedeemed = true
	g.RedeemedOrderID = orderID
	g.RedeemedAt = &at
	r.m.state.giftCards[id] = g
	return nil
}

func (r memGiftCards) Release(_ context.Context, id, orderID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	g, ok := r.m.state.giftCards[id]
	if !ok || g.RedeemedOrderID != orderID {
		return nil
	}
	g.IsRedeemed = false
	g.RedeemedOrderID = ""
	g.RedeemedAt = nil
	r.m.state.giftCards[id] = g
	return nil
}

type memOrders struct{ m *memStore }

func (r memOrders) Insert(_ context.Context, o domain.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.orders[o.ID]; ok {
		return memConflict("order exists")
	}
	o.StatusHistory, o.Payments, o.ReturnRequest = nil, nil, nil
	o.Items = slices.Clone(o.Items)
	r.m.state.orders[o.ID] = o
	r.m.state.orderSeq = append(r.m.state.orderSeq, o.ID)
	return nil
}

func (r memOrders) detail(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.StatusHistory = slices.Clone(r.m.state.history[o.ID])
	o.Payments = slices.Clone(r.m.state.payments[o.ID])
	for i := len(r.m.state.returnSeq) - 1; i >= 0; i-- {
		if ret := r.m.state.returns[r.m.state.returnSeq[i]]; ret.OrderID == o.ID {
			o.ReturnRequest = &ret
			break
		}
	}
	return o
}

func (r memOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.state.orders[id]
	if !ok {
		return domain.Order{}, memNotFound("order " + id)
	}
	return r.detail(o), nil
}

func (r memOrders) LockByID(_ context.Context, id string) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.state.orders[id]
	if !ok {
		return domain.Order{}, memNotFound("order " + id)
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (r memOrders) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, o := range r.m.state.orders {
		if gatewayOrderID != "" && o.GatewayOrderID == gatewayOrderID {
			return r.detail(o), nil
		}
	}
	return domain.Order{}, memNotFound("order by gateway id")
}

func (r memOrders) Update(_ context.Context, o domain.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.state.orders[o.ID]
	if !ok {
		return memNotFound("order " + o.ID)
	}
	o.Items = stored.Items
	o.StatusHistory, o.Payments, o.ReturnRequest = nil, nil, nil
	r.m.state.orders[o.ID] = o
	return nil
}

func (r memOrders) UpdateItemStatus(_ context.Context, orderID string, status domain.OrderItemStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.state.orders[orderID]
	if !ok {
		return memNotFound("order " + orderID)
	}
	items := slices.Clone(o.Items)
	for i := range items {
		items[i].Status = status
	}
	o.Items = items
	r.m.state.orders[orderID] = o
	return nil
}

func (r memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Order
	for _, id := range r.m.state.orderSeq {
		o := r.m.state.orders[id]
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, o.Status) {
			continue
		}
		out = append(out, r.detail(o))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return domain.CursorPage[domain.Order]{Items: out}, nil
}

func (r memOrders) ListStalePending(_ context.Context, before time.Time, limit int) ([]domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Order
	for _, id := range r.m.state.orderSeq {
		o := r.m.state.orders[id]
		if o.Status == domain.OrderStatusPending && !o.IsPaid && o.CreatedAt.Before(before) {
			out = append(out, o)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memHistory struct{ m *memStore }

func (r memHistory) Upsert(_ context.Context, entry domain.OrderStatusHistory) (domain.OrderStatusHistory, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rows := r.m.state.history[entry.OrderID]
	for i := range rows {
		if rows[i].Status == entry.Status {
			rows[i].UpdatedAt = entry.UpdatedAt
			return rows[i], nil
		}
	}
	r.m.state.history[entry.OrderID] = append(rows, entry)
	return entry, nil
}

func (r memHistory) ListByOrder(_ context.Context, orderID string) ([]domain.OrderStatusHistory, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return slices.Clone(r.m.state.history[orderID]), nil
}

type memPayments struct{ m *memStore }

func (r memPayments) Insert(_ context.Context, p domain.PaymentHistory) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.state.payments[p.OrderID] {
		if existing.AttemptNumber == p.AttemptNumber {
			return memConflict(fmt.Sprintf("attempt %d exists", p.AttemptNumber))
		}
	}
	r.m.state.payments[p.OrderID] = append(r.m.state.payments[p.OrderID], p)
	return nil
}

func (r memPayments) Update(_ context.Context, p domain.PaymentHistory) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rows := r.m.state.payments[p.OrderID]
	for i := range rows {
		if rows[i].ID == p.ID {
			rows[i] = p
			return nil
		}
	}
	return memNotFound("payment " + p.ID)
}

func (r memPayments) CountByOrder(_ context.Context, orderID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return len(r.m.state.payments[orderID]), nil
}

func (r memPayments) ListByOrder(_ context.Context, orderID string) ([]domain.PaymentHistory, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return slices.Clone(r.m.state.payments[orderID]), nil
}

func (r memPayments) MarkRefunded(_ context.Context, orderID string, at time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rows := r.m.state.payments[orderID]
	count := 0
	for i := range rows {
		if !rows[i].Refunded {
			rows[i].Refunded = true
			rows[i].RefundedAt = &at
			count++
		}
	}
	return count, nil
}

type memReturns struct{ m *memStore }

func (r memReturns) Insert(_ context.Context, req domain.ReturnRequest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.state.returns[req.ID] = req
	r.m.state.returnSeq = append(r.m.state.returnSeq, req.ID)
	return nil
}

func (r memReturns) FindByID(_ context.Context, id string) (domain.ReturnRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req, ok := r.m.state.returns[id]
	if !ok {
		return domain.ReturnRequest{}, memNotFound("return " + id)
	}
	return req, nil
}

func (r memReturns) FindLatestByOrder(_ context.Context, orderID string) (domain.ReturnRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := len(r.m.state.returnSeq) - 1; i >= 0; i-- {
		if req := r.m.state.returns[r.m.state.returnSeq[i]]; req.OrderID == orderID {
			return req, nil
		}
	}
	return domain.ReturnRequest{}, memNotFound("return for order " + orderID)
}

func (r memReturns) Update(_ context.Context, req domain.ReturnRequest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.state.returns[req.ID]; !ok {
		return memNotFound("return " + req.ID)
	}
	r.m.state.returns[req.ID] = req
	return nil
}

type memCarts struct{ m *memStore }

func (r memCarts) Get(_ context.Context, customerID string) (domain.Cart, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.carts[customerID]
	if !ok {
		return domain.Cart{}, memNotFound("cart " + customerID)
	}
	c.Items = slices.Clone(c.Items)
	return c, nil
}

func (r memCarts) Save(_ context.Context, c domain.Cart) (domain.Cart, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c.Items = slices.Clone(c.Items)
	r.m.state.carts[c.CustomerID] = c
	return c, nil
}

func (r memCarts) RemoveVariants(_ context.Context, customerID string, ids []string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.state.carts[customerID]
	if !ok {
		return nil
	}
	c.Items = slices.DeleteFunc(slices.Clone(c.Items), func(item domain.CartItem) bool {
		return slices.Contains(ids, item.VariantID)
	})
	r.m.state.carts[customerID] = c
	return nil
}
