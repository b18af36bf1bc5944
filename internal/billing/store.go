// AngelaMos | 2026
// store.go

package billing

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement"
	"github.com/carterperez-dev/dreamdiary-backend/internal/user"
)

type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*user.User, error)
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
}

// Tx groups the repositories one reconciliation writes through.
type Tx interface {
	Entitlements() entitlement.Repository
	Subscriptions() SubscriptionRepository
	Purchases() PurchaseRepository
	Events() EventRepository
	Customers() CustomerRepository
}

// Store serves reads directly and runs writes as one atomic unit.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type pgTx struct {
	db core.DBTX
}

func (t pgTx) Entitlements() entitlement.Repository {
	return entitlement.NewRepository(t.db)
}

func (t pgTx) Subscriptions() SubscriptionRepository {
	return NewSubscriptionRepository(t.db)
}

func (t pgTx) Purchases() PurchaseRepository {
	return NewPurchaseRepository(t.db)
}

func (t pgTx) Events() EventRepository {
	return NewEventRepository(t.db)
}

func (t pgTx) Customers() CustomerRepository {
	return user.NewRepository(t.db)
}

type PostgresStore struct {
	pgTx
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{pgTx: pgTx{db: db}, db: db}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(pgTx{db: tx})
	})
}
