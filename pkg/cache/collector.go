package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mqtt2influxdb/metric"
)

// collector turns Stats snapshots into Prometheus samples at scrape time
type collector struct {
	stats     func() Stats
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	entries   *prometheus.Desc
	capacity  *prometheus.Desc
}

func newCollector(name string, stats func() Stats) *collector {
	desc := func(metricName, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metric.Namespace, "cache", metricName),
			help, nil, prometheus.Labels{"cache": name})
	}
	return &collector{
		stats:     stats,
		hits:      desc("hits_total", "Lookups that found their key"),
		misses:    desc("misses_total", "Lookups that did not find their key"),
		evictions: desc("evictions_total", "Entries dropped to make room"),
		entries:   desc("entries", "Entries currently cached"),
		capacity:  desc("capacity", "Maximum number of entries"),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.entries
	ch <- c.capacity
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Len))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
}

// Register exports the counters of c under the label cache=name
func Register[K comparable, V any](registry metric.MetricsRegistrar, name string, c *LRU[K, V]) error {
	return registry.Register("cache", name, newCollector(name, c.Stats))
}
