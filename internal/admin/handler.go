// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/dreamdiary-backend/internal/access"
	"github.com/carterperez-dev/dreamdiary-backend/internal/billing"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/trial"
)

type AccountReader interface {
	Snapshot(ctx context.Context, userID string) (*billing.AccountSnapshot, error)
}

type TrialReader interface {
	Get(ctx context.Context, userID string) (*trial.Record, error)
}

type VerdictReader interface {
	Evaluate(ctx context.Context, userID, feature string) (access.Verdict, error)
}

type Resyncer interface {
	Resync(ctx context.Context, userID string) (billing.Outcome, error)
}

type HandlerConfig struct {
	DBStats        func() sql.DBStats
	RedisStats     func() *redis.PoolStats
	Accounts       AccountReader
	Trials         TrialReader
	Verdicts       VerdictReader
	Resyncer       Resyncer
	DefaultFeature string
	Logger         *slog.Logger
}

// Handler is the support console for inspecting and repairing a user's
// billing state.
type Handler struct {
	cfg HandlerConfig
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{cfg: cfg}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/billing/users/{userID}", h.GetAccount)
		r.Post("/billing/users/{userID}/resync", h.ResyncAccount)
	})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	snap, err := h.cfg.Accounts.Snapshot(ctx, userID)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	resp := AccountResponse{AccountSnapshot: snap}

	if h.cfg.Trials != nil {
		rec, err := h.cfg.Trials.Get(ctx, userID)
		switch {
		case err == nil:
			resp.Trial = rec
		case !errors.Is(err, core.ErrNotFound):
			core.InternalServerError(w, err)
			return
		}
	}

	if h.cfg.Verdicts != nil {
		v, err := h.cfg.Verdicts.Evaluate(ctx, userID, h.cfg.DefaultFeature)
		if err != nil {
			core.InternalServerError(w, err)
			return
		}
		resp.Verdict = &v
	}

	core.OK(w, resp)
}

func (h *Handler) ResyncAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if h.cfg.Resyncer == nil {
		core.JSONError(w, core.ConfigError("billing_not_configured", "billing is not configured"))
		return
	}

	outcome, err := h.cfg.Resyncer.Resync(r.Context(), userID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "subscription")
		return
	case errors.Is(err, core.ErrConfig):
		core.JSONError(w, core.ConfigError("billing_not_configured", "billing is not configured"))
		return
	case err != nil:
		core.JSONError(w, core.UpstreamError("resync subscription", err))
		return
	}

	h.cfg.Logger.Info("subscription resynced by admin",
		"user_id", userID,
		"outcome", outcome,
	)
	core.OK(w, ResyncResponse{UserID: userID, Outcome: string(outcome)})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	core.OK(w, SystemStatsResponse{
		Database: h.dbStats(),
		Redis:    h.redisStats(),
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc,
			MemSys:       memStats.Sys,
			NumGC:        memStats.NumGC,
		},
	})
}

func (h *Handler) dbStats() *DBPoolStats {
	if h.cfg.DBStats == nil {
		return nil
	}

	stats := h.cfg.DBStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) redisStats() *RedisPoolStats {
	if h.cfg.RedisStats == nil {
		return nil
	}

	stats := h.cfg.RedisStats()
	if stats == nil {
		return nil
	}
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
		StaleConns: stats.StaleConns,
	}
}
