package repository

import (
	"sync"
	"sync/atomic"

	"order_dashboard/internal/models"

	"github.com/sirupsen/logrus"
)

// UpsertResult tells the caller whether Upsert added a new order.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// OrderRepository is the in-memory source of truth for one view. Every
// mutation publishes a new immutable snapshot, so readers never observe a
// half-applied ReplaceAll.
type OrderRepository interface {
	ReplaceAll(orders []*models.Order) int
	Upsert(order *models.Order) (UpsertResult, error)
	Remove(id string) bool
	Get(id string) (*models.Order, bool)
	Has(id string) bool
	// GetAll returns the current snapshot. The slice and the orders in it
	// are shared and must not be modified.
	GetAll() []*models.Order
	Len() int
	Version() uint64
	OnChange(fn func(version uint64))
}

type snapshot struct {
	orders  []*models.Order
	index   map[string]int
	version uint64
}

type orderRepository struct {
	mu        sync.Mutex
	current   atomic.Pointer[snapshot]
	listeners []func(uint64)
	logger    logrus.FieldLogger
}

func NewOrderRepository(logger logrus.FieldLogger) OrderRepository {
	r := &orderRepository{logger: logger}
	r.current.Store(&snapshot{index: map[string]int{}})
	return r
}

func validate(order *models.Order) error {
	if order == nil {
		return &models.ValidationError{Field: "order", Reason: "is nil"}
	}
	if order.ID == "" {
		return &models.ValidationError{Field: "_id", Reason: "is required"}
	}
	return nil
}

func (r *orderRepository) ReplaceAll(orders []*models.Order) int {
	next := &snapshot{
		orders: make([]*models.Order, 0, len(orders)),
		index:  make(map[string]int, len(orders)),
	}
	for _, o := range orders {
		if err := validate(o); err != nil {
			r.logger.WithError(err).WithField("order_id", orderIDOf(o)).Warn("skipping order in bulk replace")
			continue
		}
		c := o.Clone()
		c.Normalize()
		if i, ok := next.index[c.ID]; ok {
			next.orders[i] = c
			continue
		}
		next.index[c.ID] = len(next.orders)
		next.orders = append(next.orders, c)
	}

	r.mu.Lock()
	next.version = r.current.Load().version + 1
	r.current.Store(next)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, next.version)
	return len(next.orders)
}

func (r *orderRepository) Upsert(order *models.Order) (UpsertResult, error) {
	if err := validate(order); err != nil {
		r.logger.WithError(err).WithField("order_id", orderIDOf(order)).Warn("rejecting order")
		return 0, err
	}
	c := order.Clone()
	c.Normalize()

	r.mu.Lock()
	cur := r.current.Load()
	next := &snapshot{version: cur.version + 1}
	result := Updated
	if i, ok := cur.index[c.ID]; ok {
		next.orders = make([]*models.Order, len(cur.orders))
		copy(next.orders, cur.orders)
		next.orders[i] = c
		next.index = cur.index
	} else {
		result = Inserted
		next.orders = make([]*models.Order, len(cur.orders), len(cur.orders)+1)
		copy(next.orders, cur.orders)
		next.orders = append(next.orders, c)
		next.index = make(map[string]int, len(cur.index)+1)
		for k, v := range cur.index {
			next.index[k] = v
		}
		next.index[c.ID] = len(next.orders) - 1
	}
	r.current.Store(next)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, next.version)
	return result, nil
}

func (r *orderRepository) Remove(id string) bool {
	r.mu.Lock()
	cur := r.current.Load()
	pos, ok := cur.index[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	next := &snapshot{
		orders:  make([]*models.Order, 0, len(cur.orders)-1),
		index:   make(map[string]int, len(cur.index)-1),
		version: cur.version + 1,
	}
	for i, o := range cur.orders {
		if i == pos {
			continue
		}
		next.index[o.ID] = len(next.orders)
		next.orders = append(next.orders, o)
	}
	r.current.Store(next)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, next.version)
	return true
}

func (r *orderRepository) Get(id string) (*models.Order, bool) {
	cur := r.current.Load()
	i, ok := cur.index[id]
	if !ok {
		return nil, false
	}
	return cur.orders[i], true
}

func (r *orderRepository) Has(id string) bool {
	_, ok := r.current.Load().index[id]
	return ok
}

func (r *orderRepository) GetAll() []*models.Order {
	return r.current.Load().orders
}

func (r *orderRepository) Len() int {
	return len(r.current.Load().orders)
}

func (r *orderRepository) Version() uint64 {
	return r.current.Load().version
}

// OnChange registers fn to run synchronously after every mutation.
func (r *orderRepository) OnChange(fn func(version uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	listeners := make([]func(uint64), len(r.listeners), len(r.listeners)+1)
	copy(listeners, r.listeners)
	r.listeners = append(listeners, fn)
}

func notify(listeners []func(uint64), version uint64) {
	for _, fn := range listeners {
		fn(version)
	}
}

func orderIDOf(o *models.Order) string {
	if o == nil {
		return ""
	}
	return o.OrderID
}
