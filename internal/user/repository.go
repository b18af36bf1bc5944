// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*User, error)
	Ensure(ctx context.Context, user *User) error
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, stripe_customer_id, created_at, updated_at
		FROM users
		WHERE id = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

func (r *repository) GetByStripeCustomerID(
	ctx context.Context,
	customerID string,
) (*User, error) {
	query := `
		SELECT id, email, stripe_customer_id, created_at, updated_at
		FROM users
		WHERE stripe_customer_id = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user by customer: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by customer: %w", err)
	}

	return &user, nil
}

// Ensure inserts the user on first sight and refreshes the email after.
func (r *repository) Ensure(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email
		                 ELSE users.email END,
		    updated_at = NOW()
		RETURNING email, stripe_customer_id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query, user.ID, user.Email).
		Scan(&user.Email, &user.StripeCustomerID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}

	return nil
}

func (r *repository) SetStripeCustomerID(
	ctx context.Context,
	id, customerID string,
) error {
	query := `
		INSERT INTO users (id, email, stripe_customer_id)
		VALUES ($1, '', $2)
		ON CONFLICT (id) DO UPDATE
		SET stripe_customer_id = EXCLUDED.stripe_customer_id,
		    updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, id, customerID); err != nil {
		if core.IsDuplicateKey(err) {
			return fmt.Errorf("link customer: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("link customer: %w", err)
	}

	return nil
}
