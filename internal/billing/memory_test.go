// AngelaMos | 2026
// memory_test.go

package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement/entitlementtest"
	"github.com/carterperez-dev/dreamdiary-backend/internal/user"
)

type table[K comparable, V any] struct {
	mu   sync.RWMutex
	rows map[K]V
}

func newTable[K comparable, V any]() *table[K, V] {
	return &table[K, V]{rows: make(map[K]V)}
}

func (t *table[K, V]) get(k K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.rows[k]
	return v, ok
}

func (t *table[K, V]) put(k K, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[k] = v
}

func (t *table[K, V]) find(match func(V) bool) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, v := range t.rows {
		if match(v) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (t *table[K, V]) filter(match func(V) bool) []V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []V
	for _, v := range t.rows {
		if match(v) {
			out = append(out, v)
		}
	}
	return out
}

func (t *table[K, V]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

func (t *table[K, V]) snapshot() map[K]V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[K]V, len(t.rows))
	for k, v := range t.rows {
		out[k] = v
	}
	return out
}

func (t *table[K, V]) restore(rows map[K]V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = rows
}

// MemoryStore is an in-process Store. WithTx runs one unit of work at a
// time and rolls every table back when fn fails.
type MemoryStore struct {
	txMu          sync.Mutex
	entitlements  *entitlementtest.MemoryRepository
	subscriptions *table[string, Subscription]
	purchases     *table[string, Purchase]
	events        *table[string, ProcessedEvent]
	users         *table[string, user.User]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entitlements:  entitlementtest.NewMemoryRepository(),
		subscriptions: newTable[string, Subscription](),
		purchases:     newTable[string, Purchase](),
		events:        newTable[string, ProcessedEvent](),
		users:         newTable[string, user.User](),
	}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	ents := s.entitlements.Snapshot()
	subs := s.subscriptions.snapshot()
	purchases := s.purchases.snapshot()
	events := s.events.snapshot()
	users := s.users.snapshot()

	if err := fn(s); err != nil {
		s.entitlements.Restore(ents)
		s.subscriptions.restore(subs)
		s.purchases.restore(purchases)
		s.events.restore(events)
		s.users.restore(users)
		return err
	}

	return nil
}

func (s *MemoryStore) Entitlements() entitlement.Repository {
	return s.entitlements
}

// EntitlementStore exposes the concrete repository for write counting.
func (s *MemoryStore) EntitlementStore() *entitlementtest.MemoryRepository {
	return s.entitlements
}

func (s *MemoryStore) Subscriptions() SubscriptionRepository {
	return memorySubscriptions{s.subscriptions}
}

func (s *MemoryStore) Purchases() PurchaseRepository {
	return memoryPurchases{s.purchases}
}

func (s *MemoryStore) Events() EventRepository {
	return memoryEvents{s.events}
}

func (s *MemoryStore) Customers() CustomerRepository {
	return memoryCustomers{s.users}
}

func (s *MemoryStore) PurchaseCount() int {
	return s.purchases.len()
}

func (s *MemoryStore) EventCount() int {
	return s.events.len()
}

type memorySubscriptions struct {
	t *table[string, Subscription]
}

func (m memorySubscriptions) GetByUserID(_ context.Context, userID string) (*Subscription, error) {
	sub, ok := m.t.get(userID)
	if !ok {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	return &sub, nil
}

func (m memorySubscriptions) GetByStripeID(_ context.Context, stripeID string) (*Subscription, error) {
	sub, ok := m.t.find(func(s Subscription) bool {
		return s.StripeSubscriptionID == stripeID
	})
	if !ok {
		return nil, fmt.Errorf("get subscription by stripe id: %w", core.ErrNotFound)
	}
	return &sub, nil
}

func (m memorySubscriptions) Upsert(_ context.Context, sub *Subscription) error {
	other, ok := m.t.find(func(s Subscription) bool {
		return s.StripeSubscriptionID == sub.StripeSubscriptionID && s.UserID != sub.UserID
	})
	if ok {
		return fmt.Errorf(
			"upsert subscription %s owned by %s: %w",
			sub.StripeSubscriptionID,
			other.UserID,
			core.ErrDuplicateKey,
		)
	}

	now := time.Now().UTC()
	if prev, exists := m.t.get(sub.UserID); exists {
		sub.ID = prev.ID
		sub.CreatedAt = prev.CreatedAt
	} else {
		if sub.ID == "" {
			sub.ID = uuid.New().String()
		}
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	m.t.put(sub.UserID, *sub)
	return nil
}

type memoryPurchases struct {
	t *table[string, Purchase]
}

func (m memoryPurchases) Insert(_ context.Context, p *Purchase) (bool, error) {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()

	if _, exists := m.t.rows[p.StripeCheckoutSessionID]; exists {
		return false, nil
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	m.t.rows[p.StripeCheckoutSessionID] = *p
	return true, nil
}

func (m memoryPurchases) ListByUser(_ context.Context, userID string) ([]Purchase, error) {
	out := m.t.filter(func(p Purchase) bool { return p.UserID == userID })
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type memoryEvents struct {
	t *table[string, ProcessedEvent]
}

func (m memoryEvents) Processed(_ context.Context, eventID string) (bool, error) {
	_, ok := m.t.get(eventID)
	return ok, nil
}

func (m memoryEvents) Record(_ context.Context, ev ProcessedEvent) error {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()
	if _, exists := m.t.rows[ev.EventID]; !exists {
		m.t.rows[ev.EventID] = ev
	}
	return nil
}

type memoryCustomers struct {
	t *table[string, user.User]
}

func (m memoryCustomers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := m.t.get(id)
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	return &u, nil
}

func (m memoryCustomers) GetByStripeCustomerID(_ context.Context, customerID string) (*user.User, error) {
	u, ok := m.t.find(func(u user.User) bool { return u.CustomerID() == customerID })
	if !ok {
		return nil, fmt.Errorf("get user by customer: %w", core.ErrNotFound)
	}
	return &u, nil
}

func (m memoryCustomers) SetStripeCustomerID(_ context.Context, id, customerID string) error {
	m.t.mu.Lock()
	defer m.t.mu.Unlock()

	now := time.Now().UTC()
	u, ok := m.t.rows[id]
	if !ok {
		u = user.User{ID: id, CreatedAt: now}
	}
	u.StripeCustomerID = &customerID
	u.UpdatedAt = now
	m.t.rows[id] = u
	return nil
}
