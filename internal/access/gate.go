// AngelaMos | 2026
// gate.go

package access

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/middleware"
	"github.com/carterperez-dev/dreamdiary-backend/internal/trial"
)

type TrialConsumer interface {
	Consume(ctx context.Context, userID string) (trial.ConsumeResult, error)
}

// Gate admits metered requests. Paid access passes untouched; trial access
// spends exactly one credit per admitted request.
type Gate struct {
	evaluator *Evaluator
	trials    TrialConsumer
	logger    *slog.Logger
}

func NewGate(evaluator *Evaluator, trials TrialConsumer, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{evaluator: evaluator, trials: trials, logger: logger}
}

func (g *Gate) Evaluator() *Evaluator {
	return g.evaluator
}

func (g *Gate) Authorize(
	ctx context.Context,
	userID, featureKey string,
) (Decision, error) {
	v, err := g.evaluator.Evaluate(ctx, userID, featureKey)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Verdict: v, Feature: featureKey}
	if !v.Allowed || v.AccessType != TypeFree {
		return d, nil
	}

	res, err := g.trials.Consume(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("authorize %s: %w", featureKey, err)
	}

	if !res.Success {
		d.Verdict = deny(ReasonTrialExhausted)
		return d, nil
	}

	remaining := res.Remaining()
	d.TrialRemaining = &remaining
	d.Consumed = true

	return d, nil
}

type DenialResponse struct {
	Error           string `json:"error"`
	Reason          Reason `json:"reason,omitempty"`
	TrialRemaining  int    `json:"trial_remaining"`
	SuggestedAction string `json:"suggested_action"`
}

type BillingErrorResponse struct {
	Error           string `json:"error"`
	SuggestedAction string `json:"suggested_action"`
}

func WriteDenial(w http.ResponseWriter, v Verdict) {
	core.JSON(w, http.StatusPaymentRequired, DenialResponse{
		Error:           string(ReasonSubscriptionRequired),
		Reason:          v.Reason,
		TrialRemaining:  0,
		SuggestedAction: v.Reason.SuggestedAction(),
	})
}

func WriteBillingError(w http.ResponseWriter) {
	core.JSON(w, http.StatusInternalServerError, BillingErrorResponse{
		Error:           "billing_error",
		SuggestedAction: "retry_later",
	})
}

// Require guards next behind featureKey. The admitted decision is available
// to next through DecisionFromContext.
func (g *Gate) Require(featureKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := middleware.GetUserID(r.Context())
			if userID == "" {
				core.JSONError(w, core.UnauthorizedError("authentication required"))
				return
			}

			d, err := g.Authorize(r.Context(), userID, featureKey)
			if err != nil {
				g.logger.Error("access check failed",
					"user_id", userID,
					"feature", featureKey,
					"error", err,
				)
				WriteBillingError(w)
				return
			}

			if !d.Allowed {
				g.logger.Debug("access denied",
					"user_id", userID,
					"feature", featureKey,
					"reason", d.Reason,
				)
				WriteDenial(w, d.Verdict)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), d)))
		})
	}
}

type decisionKey struct{}

func WithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}
