package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/mqtt2influxdb/errors"
)

// MetricsRegistrar is what the cache and the worker pool need to publish
// their own collectors
type MetricsRegistrar interface {
	Register(owner, name string, c prometheus.Collector) error
	Unregister(owner, name string) bool
}

// MetricsRegistry owns the Prometheus registry: the core bridge metrics, the
// Go runtime collectors and whatever components register under an owner name.
type MetricsRegistry struct {
	prom    *prometheus.Registry
	Metrics *Metrics

	mu    sync.Mutex
	owned map[string]prometheus.Collector // "owner.name"
}

func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:    prometheus.NewRegistry(),
		Metrics: NewMetrics(),
		owned:   make(map[string]prometheus.Collector),
	}
	r.prom.MustRegister(r.Metrics.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry is the gatherer behind the /metrics handler
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the bridge metrics. A nil registry yields nil metrics,
// whose Record methods are no-ops.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	if r == nil {
		return nil
	}
	return r.Metrics
}

// Register adds c under owner and name. Registering the same owner and name
// twice, or a collector whose descriptors clash with an existing one, is
// invalid.
func (r *MetricsRegistry) Register(owner, name string, c prometheus.Collector) error {
	key := owner + "." + name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owned[key]; ok {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered by %s", name, owner),
			"MetricsRegistry", "Register", "register "+key)
	}
	if err := r.prom.Register(c); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if stderrors.As(err, &dup) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", "register "+key)
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register "+key)
	}
	r.owned[key] = c
	return nil
}

// Unregister removes what owner registered as name
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	key := owner + "." + name

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.owned[key]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.owned, key)
	return true
}
