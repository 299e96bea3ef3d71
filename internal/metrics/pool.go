package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type poolStat struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*pgxpool.Stat) float64
}

// PoolCollector implements prometheus.Collector for pgxpool statistics.
// Stats are read during each scrape; there is no polling goroutine.
type PoolCollector struct {
	pools map[string]*pgxpool.Pool
	stats []poolStat
}

func poolDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(namespace+"_pgxpool_"+name, help, []string{"backend"}, nil)
}

// NewPoolCollector creates a collector that exports pgxpool stats per named pool.
func NewPoolCollector(pools map[string]*pgxpool.Pool) *PoolCollector {
	return &PoolCollector{
		pools: pools,
		stats: []poolStat{
			{poolDesc("acquire_count", "Cumulative count of successful connection acquires."), prometheus.CounterValue,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
			{poolDesc("acquire_duration_seconds", "Cumulative time spent acquiring connections."), prometheus.CounterValue,
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
			{poolDesc("canceled_acquire_count", "Cumulative count of acquires canceled by context."), prometheus.CounterValue,
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
			{poolDesc("empty_acquire_count", "Cumulative count of acquires that waited on an empty pool."), prometheus.CounterValue,
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
			{poolDesc("acquired_conns", "Number of currently acquired connections."), prometheus.GaugeValue,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
			{poolDesc("idle_conns", "Number of idle connections in the pool."), prometheus.GaugeValue,
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
			{poolDesc("total_conns", "Total number of connections in the pool."), prometheus.GaugeValue,
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
			{poolDesc("max_conns", "Maximum number of connections allowed."), prometheus.GaugeValue,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, s := range c.stats {
		ch <- s.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for name, pool := range c.pools {
		stat := pool.Stat()
		for _, s := range c.stats {
			ch <- prometheus.MustNewConstMetric(s.desc, s.kind, s.value(stat), name)
		}
	}
}
