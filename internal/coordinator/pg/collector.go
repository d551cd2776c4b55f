package pg

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolCollector publica las stats del pgxpool como métricas prometheus.
type PoolCollector struct {
	pool *pgxpool.Pool

	total    *prometheus.Desc
	idle     *prometheus.Desc
	acquired *prometheus.Desc
	waiting  *prometheus.Desc
}

func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{
		pool: pool,
		total: prometheus.NewDesc(
			"covenant_pg_pool_total_conns", "Conexiones totales del pool.", nil, nil),
		idle: prometheus.NewDesc(
			"covenant_pg_pool_idle_conns", "Conexiones idle del pool.", nil, nil),
		acquired: prometheus.NewDesc(
			"covenant_pg_pool_acquired_conns", "Conexiones en uso.", nil, nil),
		waiting: prometheus.NewDesc(
			"covenant_pg_pool_empty_acquire_count", "Acquires que tuvieron que esperar.", nil, nil),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.acquired
	ch <- c.waiting
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(st.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.CounterValue, float64(st.EmptyAcquireCount()))
}
