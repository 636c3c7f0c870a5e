package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ===== Postgres pool =====

// RegisterDBPool exports database/sql pool stats as go_sql_* series labelled db_name="pare".
// Call once per process.
func RegisterDBPool(db *sql.DB, reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(collectors.NewDBStatsCollector(db, "pare"))
}

// PoolStatus grades the pool for /ready.
type PoolStatus string

const (
	PoolHealthy   PoolStatus = "healthy"
	PoolDegraded  PoolStatus = "degraded"
	PoolUnhealthy PoolStatus = "unhealthy"
)

// slowAcquire is the mean wait for a connection above which the pool is degraded.
const slowAcquire = 100 * time.Millisecond

// PoolReport is the readiness view of the sync pipeline's connection pool.
type PoolReport struct {
	Status      PoolStatus `json:"status"`
	InUse       int        `json:"in_use"`
	Idle        int        `json:"idle"`
	MaxOpen     int        `json:"max_open"`
	Utilization float64    `json:"utilization"`
	WaitCount   int64      `json:"wait_count"`
	AvgWaitMs   float64    `json:"avg_wait_ms"`
	Message     string     `json:"message,omitempty"`
}

// AssessPool grades s for readiness.
func AssessPool(s sql.DBStats) PoolReport {
	r := PoolReport{
		Status:    PoolHealthy,
		InUse:     s.InUse,
		Idle:      s.Idle,
		MaxOpen:   s.MaxOpenConnections,
		WaitCount: s.WaitCount,
	}
	var avgWait time.Duration
	if s.WaitCount > 0 {
		avgWait = s.WaitDuration / time.Duration(s.WaitCount)
		r.AvgWaitMs = float64(avgWait.Microseconds()) / 1000
	}
	if s.MaxOpenConnections > 0 {
		r.Utilization = float64(s.InUse) / float64(s.MaxOpenConnections)
	}

	switch {
	case r.Utilization >= 0.95:
		r.Status, r.Message = PoolUnhealthy, "pool exhausted"
	case r.Utilization >= 0.80:
		r.Status, r.Message = PoolDegraded, "pool utilization high"
	}
	if r.Status == PoolHealthy && avgWait > slowAcquire {
		r.Status, r.Message = PoolDegraded, "slow connection acquire"
	}
	return r
}
