package orders

import (
	"sync"
	"time"

	"github.com/ternarybob/orbital/internal/models"
)

// Queue is the process-wide registry of transformation orders with its two
// indexes: user to orders and order to users. The indexes are mutual
// inverses; one mutex protects all three maps.
type Queue struct {
	mu sync.Mutex

	orders       map[string]*TransformationOrder
	userToOrders map[string]map[string]bool
	orderToUsers map[string]map[string]bool
}

// NewQueue creates an empty queue. The default user bucket always exists.
func NewQueue() *Queue {
	return &Queue{
		orders: map[string]*TransformationOrder{},
		userToOrders: map[string]map[string]bool{
			models.DefaultUser: {},
		},
		orderToUsers: map[string]map[string]bool{},
	}
}

// AddOrder registers the order and attaches userID to it. Adding an existing
// order only extends the index.
func (q *Queue) AddOrder(order *TransformationOrder, userID string) {
	if userID == "" {
		userID = models.DefaultUser
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	orderID := order.ID()
	if _, ok := q.orders[orderID]; !ok {
		q.orders[orderID] = order
	}
	if q.userToOrders[userID] == nil {
		q.userToOrders[userID] = map[string]bool{}
	}
	q.userToOrders[userID][orderID] = true
	if q.orderToUsers[orderID] == nil {
		q.orderToUsers[orderID] = map[string]bool{}
	}
	q.orderToUsers[orderID][userID] = true
}

// Get returns the registered order.
func (q *Queue) Get(orderID string) (*TransformationOrder, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	order, ok := q.orders[orderID]
	return order, ok
}

// RemoveOrder drops the order from the registry and every index bucket.
func (q *Queue) RemoveOrder(orderID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeOrderLocked(orderID)
}

func (q *Queue) removeOrderLocked(orderID string) {
	delete(q.orders, orderID)
	for userID := range q.orderToUsers[orderID] {
		delete(q.userToOrders[userID], orderID)
	}
	delete(q.orderToUsers, orderID)
}

// RemoveOldOrders evicts every order whose CompletedDate is older than
// keepingPeriod minutes relative to referenceTime. Orders without a
// CompletedDate are never evicted. The ids of the evicted orders are
// returned so the caller can release their task and log resources.
func (q *Queue) RemoveOldOrders(keepingPeriod int, referenceTime time.Time) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var toRemove []string
	for orderID, order := range q.orders {
		completedDate := order.GetInfo().CompletedDate
		if completedDate == "" {
			continue
		}
		completed, err := parseISO(completedDate)
		if err != nil {
			continue
		}
		if referenceTime.Sub(completed).Minutes() > float64(keepingPeriod) {
			toRemove = append(toRemove, orderID)
		}
	}
	for _, orderID := range toRemove {
		q.removeOrderLocked(orderID)
	}
	return toRemove
}

// CountUncompletedOrders returns the number of non-terminal orders (queued
// or in_progress) among those attached to userID.
func (q *Queue) CountUncompletedOrders(userID string) int {
	q.mu.Lock()
	orderIDs := make([]*TransformationOrder, 0)
	for orderID := range q.userToOrders[userID] {
		if order, ok := q.orders[orderID]; ok {
			orderIDs = append(orderIDs, order)
		}
	}
	q.mu.Unlock()

	running := 0
	for _, order := range orderIDs {
		status := order.Status()
		if status == models.OrderStatusQueued || status == models.OrderStatusInProgress {
			running++
		}
	}
	return running
}

// GetOrders returns the order views matching every filter. When
// filterByUser is set, only the caller's bucket is visible.
func (q *Queue) GetOrders(filters []Filter, userID string, filterByUser bool) ([]models.OrderInfo, error) {
	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, err
		}
	}

	q.mu.Lock()
	candidates := make([]*TransformationOrder, 0, len(q.orders))
	if filterByUser {
		for orderID := range q.userToOrders[userID] {
			if order, ok := q.orders[orderID]; ok {
				candidates = append(candidates, order)
			}
		}
	} else {
		for _, order := range q.orders {
			candidates = append(candidates, order)
		}
	}
	q.mu.Unlock()

	results := make([]models.OrderInfo, 0, len(candidates))
	for _, order := range candidates {
		info := order.GetInfo()
		matched := true
		for _, f := range filters {
			ok, err := f.matches(info)
			if err != nil {
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			results = append(results, info)
		}
	}
	return results, nil
}

// Size returns the number of registered orders.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.orders)
}

// Users returns the ids of the users attached to an order.
func (q *Queue) Users(orderID string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	users := make([]string, 0, len(q.orderToUsers[orderID]))
	for userID := range q.orderToUsers[orderID] {
		users = append(users, userID)
	}
	return users
}

// UserHasOrder reports whether orderID is attached to userID.
func (q *Queue) UserHasOrder(userID, orderID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.userToOrders[userID][orderID]
}
