package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"neokudilonga/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	productIDs []string
	plan       map[string]domain.ReadingPlanItem
	planIDs    []string
	schools    map[string]domain.School
	categories map[string]domain.Category
	publishers map[string]domain.Publisher
	orders     map[string]domain.Order
	chatLogs   []domain.ChatLog
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:   make(map[string]domain.Product),
		plan:       make(map[string]domain.ReadingPlanItem),
		schools:    make(map[string]domain.School),
		categories: make(map[string]domain.Category),
		publishers: make(map[string]domain.Publisher),
		orders:     make(map[string]domain.Order),
	}
}

func (m *MemoryStore) Close() error { return nil }

// ListProducts returns products in insertion order.
func (m *MemoryStore) ListProducts(_ context.Context) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Product, 0, len(m.productIDs))
	for _, id := range m.productIDs {
		if p, ok := m.products[id]; ok {
			res = append(res, p)
		}
	}
	return res, nil
}

func (m *MemoryStore) GetProduct(_ context.Context, id string) (domain.Product, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok, nil
}

func (m *MemoryStore) SaveProduct(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.products[p.ID]; !exists {
		m.productIDs = append(m.productIDs, p.ID)
	}
	m.products[p.ID] = p
	return nil
}

func (m *MemoryStore) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return ErrNotFound
	}
	delete(m.products, id)
	m.productIDs = slices.DeleteFunc(m.productIDs, func(v string) bool { return v == id })
	for planID, item := range m.plan {
		if item.ProductID == id {
			delete(m.plan, planID)
		}
	}
	m.planIDs = slices.DeleteFunc(m.planIDs, func(v string) bool {
		_, ok := m.plan[v]
		return !ok
	})
	return nil
}

func (m *MemoryStore) ListReadingPlan(_ context.Context) ([]domain.ReadingPlanItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ReadingPlanItem, 0, len(m.planIDs))
	for _, id := range m.planIDs {
		res = append(res, m.plan[id])
	}
	return res, nil
}

func (m *MemoryStore) ListReadingPlanByProduct(_ context.Context, productID string) ([]domain.ReadingPlanItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.ReadingPlanItem
	for _, id := range m.planIDs {
		if item := m.plan[id]; item.ProductID == productID {
			res = append(res, item)
		}
	}
	return res, nil
}

func (m *MemoryStore) SaveReadingPlanItems(_ context.Context, items []domain.ReadingPlanItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		if _, exists := m.plan[item.ID]; !exists {
			m.planIDs = append(m.planIDs, item.ID)
		}
		m.plan[item.ID] = item
	}
	return nil
}

func (m *MemoryStore) DeleteReadingPlanItems(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.plan, id)
	}
	m.planIDs = slices.DeleteFunc(m.planIDs, func(v string) bool { return slices.Contains(ids, v) })
	return nil
}

// ListSchools returns schools by Order, then id.
func (m *MemoryStore) ListSchools(_ context.Context) ([]domain.School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.School, 0, len(m.schools))
	for _, s := range m.schools {
		res = append(res, s)
	}
	slices.SortFunc(res, func(a, b domain.School) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return res, nil
}

func (m *MemoryStore) GetSchool(_ context.Context, id string) (domain.School, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schools[id]
	return s, ok, nil
}

func (m *MemoryStore) SaveSchool(_ context.Context, s domain.School) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schools[s.ID] = s
	return nil
}

func (m *MemoryStore) DeleteSchool(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schools[id]; !ok {
		return ErrNotFound
	}
	delete(m.schools, id)
	return nil
}

func (m *MemoryStore) SetSchoolOrder(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		s, ok := m.schools[id]
		if !ok {
			continue
		}
		s.Order = i
		m.schools[id] = s
	}
	return nil
}

func (m *MemoryStore) ListCategories(_ context.Context) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		res = append(res, c)
	}
	slices.SortFunc(res, func(a, b domain.Category) int { return cmp.Compare(a.ID, b.ID) })
	return res, nil
}

func (m *MemoryStore) GetCategory(_ context.Context, id string) (domain.Category, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	return c, ok, nil
}

func (m *MemoryStore) SaveCategory(_ context.Context, c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
	return nil
}

func (m *MemoryStore) RenameCategory(_ context.Context, oldID string, c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[oldID]; !ok {
		return ErrNotFound
	}
	if c.ID != oldID {
		if _, taken := m.categories[c.ID]; taken {
			return ErrConflict
		}
		delete(m.categories, oldID)
	}
	m.categories[c.ID] = c
	return nil
}

func (m *MemoryStore) DeleteCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.categories, id)
	return nil
}

func (m *MemoryStore) ListPublishers(_ context.Context) ([]domain.Publisher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Publisher, 0, len(m.publishers))
	for _, p := range m.publishers {
		res = append(res, p)
	}
	slices.SortFunc(res, func(a, b domain.Publisher) int { return cmp.Compare(a.Name, b.Name) })
	return res, nil
}

func (m *MemoryStore) SavePublisher(_ context.Context, p domain.Publisher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishers[p.Name] = p
	return nil
}

func (m *MemoryStore) DeletePublisher(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.publishers, name)
	return nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.Reference]; exists {
		return ErrConflict
	}
	m.orders[o.Reference] = o
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, reference string) (domain.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[reference]
	return o, ok, nil
}

func (m *MemoryStore) ListOrders(_ context.Context) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		res = append(res, o)
	}
	slices.SortFunc(res, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Reference, a.Reference)
	})
	return res, nil
}

func (m *MemoryStore) UpdateOrderStatus(_ context.Context, reference string, update OrderStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[reference]
	if !ok {
		return ErrNotFound
	}
	if update.PaymentStatus != nil {
		o.PaymentStatus = *update.PaymentStatus
	}
	if update.DeliveryStatus != nil {
		o.DeliveryStatus = *update.DeliveryStatus
	}
	o.UpdatedAt = time.Now().UTC()
	m.orders[reference] = o
	return nil
}

func (m *MemoryStore) DeleteOrder(_ context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[reference]; !ok {
		return ErrNotFound
	}
	delete(m.orders, reference)
	return nil
}

func (m *MemoryStore) AppendChatLog(_ context.Context, log domain.ChatLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatLogs = append(m.chatLogs, log)
	return nil
}

func (m *MemoryStore) ListChatLogs(_ context.Context, limit int) ([]domain.ChatLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := slices.Clone(m.chatLogs)
	slices.SortStableFunc(res, func(a, b domain.ChatLog) int { return b.Timestamp.Compare(a.Timestamp) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
