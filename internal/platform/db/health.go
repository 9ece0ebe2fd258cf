package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the connection pool snapshot exposed by the health
// endpoint alongside the prometheus gauges.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// HealthStatus is the body of the /health/db response.
type HealthStatus struct {
	Status string     `json:"status"`
	PingMs int64      `json:"ping_ms"`
	Error  string     `json:"error,omitempty"`
	Pool   *PoolStats `json:"pool"`
}

// GetPoolStats snapshots the pool counters.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// healthStatus folds a ping outcome and a pool snapshot into the
// response body and its HTTP status.
func healthStatus(stats *PoolStats, pingLatency time.Duration, pingErr error) (int, *HealthStatus) {
	body := &HealthStatus{
		Status: "healthy",
		PingMs: pingLatency.Milliseconds(),
		Pool:   stats,
	}
	if pingErr != nil {
		stats.Healthy = false
		body.Status = "unhealthy"
		body.Error = pingErr.Error()
		return http.StatusServiceUnavailable, body
	}
	return http.StatusOK, body
}

// HealthHandler reports database reachability with pool statistics.
// Result entry and validation both write through this pool, so an
// unhealthy response means the result pipeline is down.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		latency := time.Since(start)

		code, body := healthStatus(GetPoolStats(pool), latency, err)
		return c.JSON(code, body)
	}
}
