package db

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	poolConnsDesc = prometheus.NewDesc(
		"materials_db_pool_connections",
		"Connections in the metadata pool by state",
		[]string{"state"}, nil,
	)
	poolMaxConnsDesc = prometheus.NewDesc(
		"materials_db_pool_max_connections",
		"Configured maximum size of the metadata pool",
		nil, nil,
	)
	poolAcquiresDesc = prometheus.NewDesc(
		"materials_db_pool_acquires_total",
		"Connection acquisitions by result",
		[]string{"result"}, nil,
	)
	poolAcquireSecondsDesc = prometheus.NewDesc(
		"materials_db_pool_acquire_seconds_total",
		"Time spent waiting to acquire connections",
		nil, nil,
	)
)

// poolCollector exports pgxpool statistics on every scrape
type poolCollector struct {
	pool *pgxpool.Pool
}

// Collector returns a Prometheus collector over the pool statistics
func (db *DB) Collector() prometheus.Collector {
	return poolCollector{pool: db.Pool}
}

func (c poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolConnsDesc
	ch <- poolMaxConnsDesc
	ch <- poolAcquiresDesc
	ch <- poolAcquireSecondsDesc
}

func (c poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()

	ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(s.AcquiredConns()), "acquired")
	ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(s.IdleConns()), "idle")
	ch <- prometheus.MustNewConstMetric(poolConnsDesc, prometheus.GaugeValue, float64(s.ConstructingConns()), "constructing")
	ch <- prometheus.MustNewConstMetric(poolMaxConnsDesc, prometheus.GaugeValue, float64(s.MaxConns()))

	ch <- prometheus.MustNewConstMetric(poolAcquiresDesc, prometheus.CounterValue, float64(s.AcquireCount()), "ok")
	ch <- prometheus.MustNewConstMetric(poolAcquiresDesc, prometheus.CounterValue, float64(s.EmptyAcquireCount()), "waited")
	ch <- prometheus.MustNewConstMetric(poolAcquiresDesc, prometheus.CounterValue, float64(s.CanceledAcquireCount()), "canceled")
	ch <- prometheus.MustNewConstMetric(poolAcquireSecondsDesc, prometheus.CounterValue, s.AcquireDuration().Seconds())
}
