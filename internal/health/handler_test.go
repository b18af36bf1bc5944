// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingOK(context.Context) error   { return nil }
func pingFail(context.Context) error { return errors.New("connection refused") }

func readiness(t *testing.T, h *Handler) (int, ReadinessResponse) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name   string
		deps   []Dependency
		code   int
		status string
	}{
		{
			name: "all healthy",
			deps: []Dependency{
				{Name: "database", Checker: CheckerFunc(pingOK)},
				{Name: "redis", Checker: CheckerFunc(pingOK)},
			},
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name: "required dependency down",
			deps: []Dependency{
				{Name: "database", Checker: CheckerFunc(pingFail)},
				{Name: "redis", Checker: CheckerFunc(pingOK)},
			},
			code:   http.StatusServiceUnavailable,
			status: "unavailable",
		},
		{
			name: "optional dependency down",
			deps: []Dependency{
				{Name: "database", Checker: CheckerFunc(pingOK)},
				{Name: "redis", Checker: CheckerFunc(pingFail), Optional: true},
			},
			code:   http.StatusOK,
			status: "degraded",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := readiness(t, NewHandler("1.0.0", tc.deps...))
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.status, body.Status)
			assert.Len(t, body.Checks, len(tc.deps))
		})
	}
}

func TestShutdownFailsProbes(t *testing.T) {
	h := NewHandler("1.0.0")
	h.SetShutdown(true)

	rr := httptest.NewRecorder()
	h.Liveness(rr, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
