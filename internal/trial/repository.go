// AngelaMos | 2026
// repository.go

package trial

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/dreamdiary-backend/internal/config"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
)

type Repository interface {
	Get(ctx context.Context, userID string) (*Record, error)
	GetOrCreate(ctx context.Context, userID string, limit int) (*Record, error)
	Consume(ctx context.Context, userID string) (ConsumeResult, error)
}

type repository struct {
	db   *sqlx.DB
	mode string
}

func NewRepository(db *sqlx.DB, consumeMode string) Repository {
	if consumeMode == "" {
		consumeMode = config.ConsumeConditionalUpdate
	}
	return &repository{db: db, mode: consumeMode}
}

func (r *repository) Get(ctx context.Context, userID string) (*Record, error) {
	return getRecord(ctx, r.db, userID)
}

func getRecord(ctx context.Context, db core.DBTX, userID string) (*Record, error) {
	query := `
		SELECT user_id, trial_limit, trial_used, created_at, updated_at
		FROM trials
		WHERE user_id = $1`

	var rec Record
	err := db.GetContext(ctx, &rec, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get trial: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trial: %w", err)
	}

	return &rec, nil
}

// GetOrCreate runs the insert and the read as separate statements so a
// concurrent creator's committed row is visible to the read.
func (r *repository) GetOrCreate(
	ctx context.Context,
	userID string,
	limit int,
) (*Record, error) {
	query := `
		INSERT INTO trials (user_id, trial_limit, trial_used)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, userID, limit); err != nil {
		return nil, fmt.Errorf("create trial: %w", err)
	}

	return getRecord(ctx, r.db, userID)
}

func (r *repository) Consume(
	ctx context.Context,
	userID string,
) (ConsumeResult, error) {
	if r.mode == config.ConsumeSerializable {
		return r.consumeSerializable(ctx, userID)
	}
	return r.consumeConditional(ctx, userID)
}

func (r *repository) consumeConditional(
	ctx context.Context,
	userID string,
) (ConsumeResult, error) {
	query := `
		UPDATE trials
		SET trial_used = trial_used + 1, updated_at = NOW()
		WHERE user_id = $1 AND trial_used < trial_limit
		RETURNING trial_used, trial_limit`

	var res ConsumeResult
	err := r.db.GetContext(ctx, &res, query, userID)
	if err == nil {
		res.Success = true
		return res, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return ConsumeResult{}, fmt.Errorf("consume trial: %w", err)
	}

	rec, err := getRecord(ctx, r.db, userID)
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("consume trial: %w", err)
	}

	return ConsumeResult{TrialUsed: rec.TrialUsed, TrialLimit: rec.TrialLimit}, nil
}

func (r *repository) consumeSerializable(
	ctx context.Context,
	userID string,
) (ConsumeResult, error) {
	var res ConsumeResult

	err := core.InSerializableTx(ctx, r.db, func(tx *sqlx.Tx) error {
		rec, err := getRecord(ctx, tx, userID)
		if err != nil {
			return err
		}

		res = ConsumeResult{TrialUsed: rec.TrialUsed, TrialLimit: rec.TrialLimit}
		if rec.TrialUsed >= rec.TrialLimit {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE trials
			SET trial_used = $2, updated_at = NOW()
			WHERE user_id = $1`,
			userID,
			rec.TrialUsed+1,
		)
		if err != nil {
			return err
		}

		res.TrialUsed++
		res.Success = true
		return nil
	})
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("consume trial: %w", err)
	}

	return res, nil
}
