package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/grocery-delivery/internal/domain/cart"
	"github.com/example/grocery-delivery/internal/domain/order"
	"github.com/example/grocery-delivery/internal/domain/product"
	"github.com/example/grocery-delivery/internal/domain/user"
)

// MemoryStore is an in-memory implementation of the repositories for testing.
// InTx holds the store lock for the whole callback and restores the previous
// state when the callback fails.
type MemoryStore struct {
	mu sync.Mutex
	st state

	// Injected failures
	ListProductsErr   error
	InsertDeliveryErr error
	InsertOrderErr    error

	// For tracking calls in tests
	InTxCalls     int
	RollbackCalls int
}

type state struct {
	products    map[int64]product.Product
	productSeq  int64
	users       map[string]user.User
	carts       map[string][]cart.Line
	orders      []order.Order
	orderSeq    int64
	deliveries  map[int64]order.Delivery
	deliverySeq int64
}

func (s state) clone() state {
	c := state{
		products:    make(map[int64]product.Product, len(s.products)),
		productSeq:  s.productSeq,
		users:       make(map[string]user.User, len(s.users)),
		carts:       make(map[string][]cart.Line, len(s.carts)),
		orders:      append([]order.Order(nil), s.orders...),
		orderSeq:    s.orderSeq,
		deliveries:  make(map[int64]order.Delivery, len(s.deliveries)),
		deliverySeq: s.deliverySeq,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = append([]cart.Line(nil), v...)
	}
	for k, v := range s.deliveries {
		c.deliveries[k] = v
	}
	return c
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: state{
		products:   make(map[int64]product.Product),
		users:      make(map[string]user.User),
		carts:      make(map[string][]cart.Line),
		deliveries: make(map[int64]order.Delivery),
	}}
}

func (m *MemoryStore) Products() *ProductRepository { return &ProductRepository{m: m} }
func (m *MemoryStore) Users() *UserRepository       { return &UserRepository{m: m} }
func (m *MemoryStore) Carts() *CartRepository       { return &CartRepository{m: m} }
func (m *MemoryStore) Orders() *OrderStore          { return &OrderStore{m: m} }

// AddProduct seeds a product, assigning an id when p.ID is zero.
func (m *MemoryStore) AddProduct(p product.Product) product.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.insertProduct(&p)
	return p
}

// PutOrder seeds an order, optionally without its delivery row.
func (m *MemoryStore) PutOrder(o order.Order, withDelivery bool) order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.insertOrder(&o)
	if withDelivery {
		m.st.insertDelivery(&order.Delivery{OrderID: o.ID, Status: order.DeliveryOnTheWay})
	}
	return o
}

// AllOrders returns every stored order ordered by id.
func (m *MemoryStore) AllOrders() []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.Order(nil), m.st.orders...)
}

// Delivery returns the delivery of an order.
func (m *MemoryStore) Delivery(orderID int64) (order.Delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.deliveries[orderID]
	return d, ok
}

func (m *MemoryStore) DeliveryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.st.deliveries)
}

func (s *state) insertProduct(p *product.Product) {
	if p.ID == 0 {
		s.productSeq++
		p.ID = s.productSeq
	} else if p.ID > s.productSeq {
		s.productSeq = p.ID
	}
	s.products[p.ID] = *p
}

func (s *state) insertOrder(o *order.Order) {
	s.orderSeq++
	o.ID = s.orderSeq
	s.orders = append(s.orders, *o)
}

func (s *state) insertDelivery(d *order.Delivery) {
	s.deliverySeq++
	d.ID = s.deliverySeq
	s.deliveries[d.OrderID] = *d
}

func (s *state) getProduct(id int64) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	return &p, nil
}

// ProductRepository implements product.Repository
type ProductRepository struct{ m *MemoryStore }

func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.ListProductsErr != nil {
		return nil, r.m.ListProductsErr
	}
	out := make([]product.Product, 0, len(r.m.st.products))
	for _, p := range r.m.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProductRepository) Get(ctx context.Context, id int64) (*product.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.st.getProduct(id)
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.ListProductsErr != nil {
		return 0, r.m.ListProductsErr
	}
	return len(r.m.st.products), nil
}

func (r *ProductRepository) Insert(ctx context.Context, p *product.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.st.insertProduct(p)
	return nil
}

// UserRepository implements user.Repository
type UserRepository struct{ m *MemoryStore }

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.st.users {
		if existing.Email == u.Email {
			return user.ErrEmailExists
		}
	}
	r.m.st.users[u.ID] = *u
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.st.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return &u, nil
}

// CartRepository implements cart.Repository
type CartRepository struct{ m *MemoryStore }

func (r *CartRepository) AddOrIncrement(ctx context.Context, userID string, line cart.Line) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	lines := r.m.st.carts[userID]
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			if lines[i].Quantity > cart.MaxQuantity-line.Quantity {
				return false, cart.ErrQuantityTooLarge
			}
			lines[i].Quantity += line.Quantity
			return false, nil
		}
	}
	r.m.st.carts[userID] = append(lines, line)
	return true, nil
}

func (r *CartRepository) List(ctx context.Context, userID string) ([]cart.Line, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return append([]cart.Line(nil), r.m.st.carts[userID]...), nil
}

func (r *CartRepository) Remove(ctx context.Context, userID string, productID int64) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	lines := r.m.st.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			r.m.st.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.st.carts, userID)
	return nil
}

// OrderStore implements order.Store
type OrderStore struct{ m *MemoryStore }

func (s *OrderStore) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.InTxCalls++

	saved := s.m.st.clone()
	if err := fn(&memTx{m: s.m}); err != nil {
		s.m.st = saved
		s.m.RollbackCalls++
		return err
	}
	return nil
}

func (s *OrderStore) ListViews(ctx context.Context, customerID string) ([]order.View, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var views []order.View
	for _, o := range s.m.st.orders {
		if o.CustomerID != customerID {
			continue
		}
		v := order.View{
			ID:        o.ID,
			Status:    o.Status,
			ProductID: o.ProductID,
			Quantity:  o.Quantity,
		}
		if p, ok := s.m.st.products[o.ProductID]; ok {
			v.ProductName = p.Name
		}
		if d, ok := s.m.st.deliveries[o.ID]; ok {
			v.DeliveryStatus = string(d.Status)
		}
		views = append(views, v)
	}
	return views, nil
}

// memTx runs with the store lock already held.
type memTx struct{ m *MemoryStore }

func (t *memTx) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	return t.m.st.getProduct(id)
}

func (t *memTx) TakeCart(ctx context.Context, userID string) ([]cart.Line, error) {
	lines := t.m.st.carts[userID]
	delete(t.m.st.carts, userID)
	return lines, nil
}

func (t *memTx) ClearCart(ctx context.Context, userID string) error {
	delete(t.m.st.carts, userID)
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *order.Order) error {
	if t.m.InsertOrderErr != nil {
		return t.m.InsertOrderErr
	}
	t.m.st.insertOrder(o)
	return nil
}

func (t *memTx) InsertDelivery(ctx context.Context, d *order.Delivery) error {
	if t.m.InsertDeliveryErr != nil {
		return t.m.InsertDeliveryErr
	}
	if _, exists := t.m.st.deliveries[d.OrderID]; exists {
		return errors.New("delivery already exists for order")
	}
	t.m.st.insertDelivery(d)
	return nil
}

func (t *memTx) CompleteProcessing(ctx context.Context, customerID string) ([]int64, error) {
	var ids []int64
	for i := range t.m.st.orders {
		o := &t.m.st.orders[i]
		if o.CustomerID == customerID && o.Status == order.StatusProcessing {
			o.Status = order.StatusCompleted
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

func (t *memTx) MarkInTransit(ctx context.Context, orderID int64) (bool, error) {
	if d, ok := t.m.st.deliveries[orderID]; ok {
		d.Status = order.DeliveryInTransit
		t.m.st.deliveries[orderID] = d
		return false, nil
	}
	t.m.st.insertDelivery(&order.Delivery{OrderID: orderID, Status: order.DeliveryInTransit})
	return true, nil
}
