// AngelaMos | 2026
// meter.go

package trial

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/metrics"
)

type Meter struct {
	repo   Repository
	limit  int
	logger *slog.Logger
}

func NewMeter(repo Repository, limit int, logger *slog.Logger) *Meter {
	if limit < 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{repo: repo, limit: limit, logger: logger}
}

func (m *Meter) Limit() int {
	return m.limit
}

// Status returns the user's counter, creating it with the default limit on
// first sight.
func (m *Meter) Status(ctx context.Context, userID string) (*Record, error) {
	ctx, span := core.StartSpan(ctx, "trial.status",
		attribute.String("user_id", userID),
	)

	rec, err := m.repo.GetOrCreate(ctx, userID, m.limit)
	core.EndSpan(span, err)

	return rec, err
}

func (m *Meter) Get(ctx context.Context, userID string) (*Record, error) {
	return m.repo.Get(ctx, userID)
}

func (m *Meter) Consume(ctx context.Context, userID string) (ConsumeResult, error) {
	ctx, span := core.StartSpan(ctx, "trial.consume",
		attribute.String("user_id", userID),
	)

	res, err := m.repo.Consume(ctx, userID)
	core.EndSpan(span, err)

	switch {
	case err != nil:
		metrics.TrialConsumes.WithLabelValues("error").Inc()
		m.logger.Error("trial consume failed", "user_id", userID, "error", err)
	case res.Success:
		metrics.TrialConsumes.WithLabelValues("consumed").Inc()
	default:
		metrics.TrialConsumes.WithLabelValues("exhausted").Inc()
		m.logger.Debug("trial consume lost to limit",
			"user_id", userID,
			"trial_used", res.TrialUsed,
			"trial_limit", res.TrialLimit,
		)
	}

	return res, err
}
