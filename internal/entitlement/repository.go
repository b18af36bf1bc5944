// AngelaMos | 2026
// repository.go

package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
)

type Repository interface {
	Get(ctx context.Context, userID, featureKey string) (*Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	Upsert(ctx context.Context, rec *Record) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Get(
	ctx context.Context,
	userID, featureKey string,
) (*Record, error) {
	query := `
		SELECT user_id, feature_key, access, is_active, expires_at,
		       created_at, updated_at
		FROM entitlements
		WHERE user_id = $1 AND feature_key = $2`

	var rec Record
	err := r.db.GetContext(ctx, &rec, query, userID, featureKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get entitlement: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entitlement: %w", err)
	}

	return &rec, nil
}

func (r *repository) ListByUser(
	ctx context.Context,
	userID string,
) ([]Record, error) {
	query := `
		SELECT user_id, feature_key, access, is_active, expires_at,
		       created_at, updated_at
		FROM entitlements
		WHERE user_id = $1
		ORDER BY feature_key`

	var recs []Record
	if err := r.db.SelectContext(ctx, &recs, query, userID); err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}

	return recs, nil
}

func (r *repository) Upsert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("upsert entitlement: %w", err)
	}

	query := `
		INSERT INTO entitlements
			(user_id, feature_key, access, is_active, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, feature_key) DO UPDATE
		SET access = EXCLUDED.access,
		    is_active = EXCLUDED.is_active,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at`

	err := r.db.GetContext(ctx, &rec.CreatedAt, query,
		rec.UserID,
		rec.FeatureKey,
		rec.Access,
		rec.IsActive,
		rec.ExpiresAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert entitlement: %w", err)
	}

	return nil
}
