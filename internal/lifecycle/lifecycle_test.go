package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/mood-bot/internal/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdown_RunsInOrder(t *testing.T) {
	s := NewShutdown(testLogger())

	var order []string
	for _, name := range []string{"poller", "scheduler", "dispatcher", "store"} {
		name := name
		s.Register(name, func(context.Context) error {
			order = append(order, name)
			if name == "scheduler" {
				return errors.New("stuck")
			}
			return nil
		})
	}
	s.Register("nil", nil)

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler: stuck")
	assert.Equal(t, []string{"poller", "scheduler", "dispatcher", "store"}, order)

	assert.NoError(t, s.Execute(context.Background()))
	assert.Len(t, order, 4)
}

func TestShutdown_SkipsAfterDeadline(t *testing.T) {
	s := NewShutdown(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	ran := 0
	s.Register("first", func(context.Context) error {
		ran++
		cancel()
		return nil
	})
	s.Register("second", func(context.Context) error {
		ran++
		return nil
	})

	err := s.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ran)
}

func TestProbes(t *testing.T) {
	checker := health.NewChecker(testLogger())
	failing := false
	checker.AddCheck("store", health.CheckFunc(func(context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	}))

	probes := NewProbes(checker, testLogger())
	assert.NoError(t, probes.Liveness(context.Background()))
	assert.ErrorIs(t, probes.Readiness(context.Background()), ErrNotReady)

	probes.SetReady(true)
	rec := httptest.NewRecorder()
	probes.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "OK", body.Checks["store"])

	failing = true
	rec = httptest.NewRecorder()
	probes.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	probes.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
