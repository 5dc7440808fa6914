package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the result of a health check.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Latency       time.Duration `json:"latency_ns"`
	TotalConns    int32         `json:"total_conns,omitempty"`
	AcquiredConns int32         `json:"acquired_conns,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Check pings p and, for a pool, reports its connection counts.
func Check(ctx context.Context, p Pinger) HealthStatus {
	var status HealthStatus
	if p == nil {
		status.Error = "pool is nil"
		return status
	}

	start := time.Now()
	err := p.Ping(ctx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = fmt.Sprintf("ping failed: %v", err)
		return status
	}

	status.Healthy = true
	if pool, ok := p.(*pgxpool.Pool); ok {
		stats := pool.Stat()
		status.TotalConns = stats.TotalConns()
		status.AcquiredConns = stats.AcquiredConns()
	}
	return status
}
