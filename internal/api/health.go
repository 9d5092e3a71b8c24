package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	depOK       = "ok"
	depDown     = "down"
	depDisabled = "disabled"
)

// dependency checks one backing service. A nil ping means the dependency is not configured.
type dependency struct {
	name     string
	critical bool // down turns readiness into "error" (503) instead of "degraded"
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	deps    []dependency
	env     string
	version string
}

// NewHealthHandler builds the health endpoints. A nil pool or client is reported as "disabled",
// which is how the in-memory store and lock run.
func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	pg := dependency{name: "postgres", critical: true}
	if pgPool != nil {
		pg.ping = pgPool.Ping
	}
	rd := dependency{name: "redis"}
	if rdb != nil {
		rd.ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	return &HealthHandler{
		deps:    []dependency{pg, rd},
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadinessResponse{
		Status:       "ok",
		Version:      h.version,
		Env:          h.env,
		Dependencies: make(map[string]string, len(h.deps)),
	}

	for _, p := range h.deps {
		state := p.check(ctx)
		resp.Dependencies[p.name] = state
		if state != depDown {
			continue
		}
		if p.critical {
			resp.Status = "error"
		} else if resp.Status == "ok" {
			resp.Status = "degraded"
		}
	}

	code := http.StatusOK
	if resp.Status == "error" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (p dependency) check(ctx context.Context) string {
	if p.ping == nil {
		return depDisabled
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.ping(pingCtx); err != nil {
		return depDown
	}
	return depOK
}
