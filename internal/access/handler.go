// AngelaMos | 2026
// handler.go

package access

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/middleware"
)

type Handler struct {
	evaluator      *Evaluator
	defaultFeature string
}

func NewHandler(evaluator *Evaluator, defaultFeature string) *Handler {
	return &Handler{evaluator: evaluator, defaultFeature: defaultFeature}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/billing/access", h.GetAccess)
}

type AccessResponse struct {
	Feature string `json:"feature"`
	Verdict
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// GetAccess reports the verdict for a feature without spending a credit.
func (h *Handler) GetAccess(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		core.JSONError(w, core.UnauthorizedError("authentication required"))
		return
	}

	feature := r.URL.Query().Get("feature")
	if feature == "" {
		feature = h.defaultFeature
	}

	v, err := h.evaluator.Evaluate(r.Context(), userID, feature)
	if err != nil {
		WriteBillingError(w)
		return
	}

	core.OK(w, AccessResponse{
		Feature:         feature,
		Verdict:         v,
		SuggestedAction: v.Reason.SuggestedAction(),
	})
}
