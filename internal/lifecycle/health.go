package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/Proton-105/mood-bot/internal/health"
)

var ErrNotReady = errors.New("application is not ready")

// Probes serves liveness and readiness. Readiness fails until SetReady(true) and whenever a
// dependency check fails.
type Probes struct {
	checker *health.Checker
	ready   atomic.Bool
	log     *slog.Logger
}

func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

func (p *Probes) SetReady(ready bool) {
	p.ready.Store(ready)
}

// Liveness reports that the process is running.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

func (p *Probes) Readiness(ctx context.Context) error {
	_, err := p.readiness(ctx)
	return err
}

func (p *Probes) readiness(ctx context.Context) (map[string]string, error) {
	if !p.ready.Load() {
		return nil, ErrNotReady
	}
	if p.checker == nil {
		return nil, nil
	}

	results, healthy := p.checker.Check(ctx)
	if !healthy {
		return results, errors.New("dependency check failed")
	}
	return results, nil
}

// LivenessHandler serves /livez.
func (p *Probes) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.write(w, http.StatusOK, map[string]any{"status": "ok"})
	})
}

// ReadinessHandler serves /healthz with the per-component results.
func (p *Probes) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results, err := p.readiness(r.Context())
		if err != nil {
			p.write(w, http.StatusServiceUnavailable, map[string]any{"status": err.Error(), "checks": results})
			return
		}
		p.write(w, http.StatusOK, map[string]any{"status": "ok", "checks": results})
	})
}

func (p *Probes) write(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		p.log.Warn("probe response not written", slog.Any("error", err))
	}
}
