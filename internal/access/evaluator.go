// AngelaMos | 2026
// evaluator.go

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement"
	"github.com/carterperez-dev/dreamdiary-backend/internal/metrics"
	"github.com/carterperez-dev/dreamdiary-backend/internal/trial"
)

type EntitlementReader interface {
	Get(ctx context.Context, userID, featureKey string) (*entitlement.Record, error)
}

type TrialStatus interface {
	Status(ctx context.Context, userID string) (*trial.Record, error)
}

type Evaluator struct {
	entitlements  EntitlementReader
	trials        TrialStatus
	trialFeatures map[string]struct{}
	now           func() time.Time
	logger        *slog.Logger
}

type Option func(*Evaluator)

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// WithTrialFeatures restricts the trial path to the named features. With no
// restriction every feature is trial eligible.
func WithTrialFeatures(features ...string) Option {
	return func(e *Evaluator) {
		if len(features) == 0 {
			e.trialFeatures = nil
			return
		}
		e.trialFeatures = make(map[string]struct{}, len(features))
		for _, f := range features {
			e.trialFeatures[f] = struct{}{}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

func NewEvaluator(
	entitlements EntitlementReader,
	trials TrialStatus,
	opts ...Option,
) *Evaluator {
	e := &Evaluator{
		entitlements: entitlements,
		trials:       trials,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) trialEligible(feature string) bool {
	if e.trialFeatures == nil {
		return true
	}
	_, ok := e.trialFeatures[feature]
	return ok
}

func (e *Evaluator) Evaluate(
	ctx context.Context,
	userID, featureKey string,
) (Verdict, error) {
	ctx, span := core.StartSpan(ctx, "access.evaluate",
		attribute.String("user_id", userID),
		attribute.String("feature", featureKey),
	)

	v, err := e.evaluate(ctx, userID, featureKey)
	core.EndSpan(span, err)

	if err == nil {
		metrics.AccessVerdicts.WithLabelValues(
			featureKey,
			string(v.AccessType),
			string(v.Reason),
		).Inc()
	}

	return v, err
}

func (e *Evaluator) evaluate(
	ctx context.Context,
	userID, featureKey string,
) (Verdict, error) {
	rec, err := e.entitlements.Get(ctx, userID, featureKey)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return Verdict{}, fmt.Errorf("evaluate access: %w", err)
	}

	now := e.now()
	if granted, ok := rec.Grants(now); ok {
		v := allow(Type(granted))
		v.ExpiresAt = rec.ExpiresAt
		return v, nil
	}

	if !e.trialEligible(featureKey) {
		return deny(ReasonSubscriptionRequired), nil
	}

	tr, err := e.trials.Status(ctx, userID)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluate access: %w", err)
	}

	if remaining := tr.Remaining(); remaining > 0 {
		return allowTrial(remaining), nil
	}

	e.logger.Debug("trial exhausted",
		"user_id", userID,
		"feature", featureKey,
		"trial_used", tr.TrialUsed,
		"trial_limit", tr.TrialLimit,
	)

	return deny(ReasonTrialExhausted), nil
}
