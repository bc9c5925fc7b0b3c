package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
)

// Handler serves liveness, readiness and detailed health endpoints
// over the three backing stores
type Handler struct {
	db          *sqlx.DB
	clickhouse  driver.Conn
	redis       *goredis.Client
	startTime   time.Time
	serviceName string
	version     string
}

// NewHandler creates a health handler.
// Any store may be nil; nil stores are skipped in checks.
func NewHandler(db *sqlx.DB, ch driver.Conn, redis *goredis.Client, serviceName, version string) *Handler {
	return &Handler{
		db:          db,
		clickhouse:  ch,
		redis:       redis,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// Status is the aggregate health response
type Status struct {
	Status     string               `json:"status"` // healthy|degraded|unhealthy
	Timestamp  time.Time            `json:"timestamp"`
	Uptime     string               `json:"uptime"`
	Service    string               `json:"service"`
	Version    string               `json:"version"`
	Components map[string]Component `json:"components,omitempty"`
}

// Component is the health of one backing store
type Component struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HandleLiveness reports process liveness only; no dependency checks
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, Status{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).String(),
		Service:   h.serviceName,
		Version:   h.version,
	})
}

// HandleReadiness reports whether every configured store is reachable.
// Returns 503 when any check fails so the instance is pulled from rotation.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := h.checkAll(ctx)

	code := http.StatusOK
	overall := "healthy"
	for _, c := range components {
		if c.Status != "healthy" {
			code = http.StatusServiceUnavailable
			overall = "unhealthy"
			break
		}
	}

	writeStatus(w, code, Status{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(h.startTime).String(),
		Service:    h.serviceName,
		Version:    h.version,
		Components: components,
	})
}

// HandleHealth reports detailed per-component health; a partial outage
// is reported as degraded with 200 so dashboards keep receiving data
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	components := h.checkAll(ctx)

	healthy, total := 0, len(components)
	for _, c := range components {
		if c.Status == "healthy" {
			healthy++
		}
	}

	overall := "healthy"
	code := http.StatusOK
	switch {
	case total > 0 && healthy == 0:
		overall = "unhealthy"
		code = http.StatusServiceUnavailable
	case healthy < total:
		overall = "degraded"
	}

	writeStatus(w, code, Status{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(h.startTime).String(),
		Service:    h.serviceName,
		Version:    h.version,
		Components: components,
	})
}

func (h *Handler) checkAll(ctx context.Context) map[string]Component {
	components := make(map[string]Component)
	if h.db != nil {
		components["postgres"] = h.checkPostgres(ctx)
	}
	if h.clickhouse != nil {
		components["clickhouse"] = h.checkClickHouse(ctx)
	}
	if h.redis != nil {
		components["redis"] = h.checkRedis(ctx)
	}
	return components
}

func (h *Handler) checkPostgres(ctx context.Context) Component {
	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		return Component{Status: "unhealthy", Message: err.Error()}
	}
	return Component{Status: "healthy", Latency: time.Since(start).String()}
}

func (h *Handler) checkClickHouse(ctx context.Context) Component {
	start := time.Now()
	if err := h.clickhouse.Ping(ctx); err != nil {
		return Component{Status: "unhealthy", Message: err.Error()}
	}
	return Component{Status: "healthy", Latency: time.Since(start).String()}
}

func (h *Handler) checkRedis(ctx context.Context) Component {
	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return Component{Status: "unhealthy", Message: err.Error()}
	}
	return Component{Status: "healthy", Latency: time.Since(start).String()}
}

func writeStatus(w http.ResponseWriter, code int, status Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
