package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type poolMetric struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
	read      func(*pgxpool.Stat) float64
}

// PoolStatsCollector exports pgxpool statistics, read from the pool on
// every scrape.
type PoolStatsCollector struct {
	pool    *pgxpool.Pool
	metrics []poolMetric
}

// NewPoolStatsCollector creates a collector for pool under namespace.
func NewPoolStatsCollector(pool *pgxpool.Pool, namespace string) *PoolStatsCollector {
	gauge := func(name, help string, read func(*pgxpool.Stat) int32) poolMetric {
		return poolMetric{
			desc:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, nil),
			valueType: prometheus.GaugeValue,
			read:      func(s *pgxpool.Stat) float64 { return float64(read(s)) },
		}
	}
	return &PoolStatsCollector{
		pool: pool,
		metrics: []poolMetric{
			gauge("total_conns", "Connections open in the pool", (*pgxpool.Stat).TotalConns),
			gauge("idle_conns", "Idle connections in the pool", (*pgxpool.Stat).IdleConns),
			gauge("acquired_conns", "Connections held by message writers", (*pgxpool.Stat).AcquiredConns),
			gauge("max_conns", "Pool size limit", (*pgxpool.Stat).MaxConns),
			{
				desc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", "empty_acquire_total"),
					"Acquires that had to wait because the pool was exhausted", nil, nil),
				valueType: prometheus.CounterValue,
				read:      func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) },
			},
		},
	}
}

func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	stats := c.pool.Stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.valueType, m.read(stats))
	}
}

// RegisterPoolStatsCollector registers a collector for pool with reg. An
// already registered collector is not an error.
func RegisterPoolStatsCollector(reg prometheus.Registerer, pool *pgxpool.Pool, namespace string) (*PoolStatsCollector, error) {
	collector := NewPoolStatsCollector(pool, namespace)
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
	}
	return collector, nil
}
