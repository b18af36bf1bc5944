// AngelaMos | 2026
// handler.go

package interpret

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/dreamdiary-backend/internal/access"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
)

const maxDreamBytes = 64 * 1024

type InterpretRequest struct {
	DreamText string `json:"dream_text" validate:"required,min=10,max=20000"`
}

type InterpretResponse struct {
	Interpretation string      `json:"interpretation"`
	AccessType     access.Type `json:"access_type"`
	TrialRemaining *int        `json:"trial_remaining"`
}

type Handler struct {
	interpreter Interpreter
	feature     string
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewHandler serves interpretations of feature. A nil interpreter makes the
// route answer 503 without touching the trial meter.
func NewHandler(interpreter Interpreter, feature string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		interpreter: interpreter,
		feature:     feature,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router, gate *access.Gate) {
	if h.interpreter == nil {
		r.Post("/interpretations", h.unavailable)
		return
	}
	r.With(h.validateBody, gate.Require(h.feature)).Post("/interpretations", h.Create)
}

func (h *Handler) unavailable(w http.ResponseWriter, _ *http.Request) {
	core.JSONError(w, core.ConfigError("interpretation_unavailable", "interpretation is not configured"))
}

type requestKey struct{}

// validateBody rejects malformed input before the gate can spend a credit.
func (h *Handler) validateBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDreamBytes)

		var req InterpretRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			core.BadRequest(w, "invalid request body")
			return
		}
		req.DreamText = strings.TrimSpace(req.DreamText)

		if err := h.validator.Struct(req); err != nil {
			core.BadRequest(w, core.FormatValidationError(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(withRequest(r.Context(), req)))
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := requestFrom(ctx)
	if !ok {
		core.BadRequest(w, "invalid request body")
		return
	}
	d, _ := access.DecisionFromContext(ctx)

	text, err := h.interpreter.Interpret(ctx, req.DreamText)
	if err != nil {
		h.logger.Error("interpretation failed",
			"feature", h.feature,
			"access_type", d.AccessType,
			"consumed", d.Consumed,
			"error", err,
		)
		core.JSONError(w, core.UpstreamError("interpretation failed", err))
		return
	}

	core.OK(w, InterpretResponse{
		Interpretation: text,
		AccessType:     d.AccessType,
		TrialRemaining: d.TrialRemaining,
	})
}

func withRequest(ctx context.Context, req InterpretRequest) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

func requestFrom(ctx context.Context) (InterpretRequest, bool) {
	req, ok := ctx.Value(requestKey{}).(InterpretRequest)
	return req, ok
}
