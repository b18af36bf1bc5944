// AngelaMos | 2026
// handler.go

package billing

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/metrics"
	"github.com/carterperez-dev/dreamdiary-backend/internal/middleware"
)

const webhookBodyLimit = 1024 * 1024

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/billing/plans", h.ListPlans)
	r.Post("/billing/checkout", h.Checkout)
	r.Post("/billing/portal", h.Portal)
}

func (h *Handler) ListPlans(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, PlansResponse{Plans: h.service.Plans()})
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		core.JSONError(w, core.UnauthorizedError("authentication required"))
		return
	}

	var req CreateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	sess, err := h.service.Checkout(r.Context(), claims.UserID, claims.Email, req.Plan)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.Created(w, CheckoutResponse{SessionID: sess.ID, URL: sess.URL})
}

func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		core.JSONError(w, core.UnauthorizedError("authentication required"))
		return
	}

	url, err := h.service.Portal(r.Context(), userID)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, PortalResponse{URL: url})
}

// WebhookHandler verifies Stripe deliveries and hands them to the
// reconciler. A 5xx response makes Stripe retry.
type WebhookHandler struct {
	secret     string
	reconciler *Reconciler
	logger     *slog.Logger
}

func NewWebhookHandler(secret string, reconciler *Reconciler, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		secret:     secret,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		core.JSON(w, status, webhookErrorResponse{Error: "method not allowed"})
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		status = http.StatusServiceUnavailable
		core.JSON(w, status, webhookErrorResponse{Error: "webhook secret not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		core.JSON(w, status, webhookErrorResponse{Error: "failed to read request body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		status = http.StatusBadRequest
		core.JSON(w, status, webhookErrorResponse{Error: "missing Stripe signature"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.logger.Warn("stripe webhook rejected",
			"error", fmt.Errorf("%w: %w", core.ErrSignature, err),
		)
		status = http.StatusBadRequest
		core.JSON(w, status, webhookErrorResponse{Error: "invalid Stripe signature"})
		return
	}
	eventType = string(event.Type)

	ev := Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data != nil {
		ev.Raw = event.Data.Raw
	}

	outcome, err := h.reconciler.Apply(r.Context(), ev)
	if err != nil {
		h.logger.Error("stripe webhook processing failed",
			"event_id", event.ID,
			"type", eventType,
			"error", err,
		)
		status = http.StatusInternalServerError
		core.JSON(w, status, webhookErrorResponse{Error: "processing failed"})
		return
	}

	h.logger.Debug("stripe webhook processed",
		"event_id", event.ID,
		"type", eventType,
		"outcome", outcome,
	)
	core.JSON(w, status, webhookReceivedResponse{Received: true})
}
