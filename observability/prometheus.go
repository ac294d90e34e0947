package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by a prometheus Registerer.
// Dotted metric names are rewritten to underscore form before registration.
type PrometheusFactory struct {
	registerer prometheus.Registerer
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory creates a factory registering metrics on reg.
// Passing nil uses prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{registerer: reg}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name),
		Help: name,
	})
	if err := f.registerer.Register(c); err != nil {
		// Duplicate registrations reuse the existing collector.
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				c = existing
			}
		}
	}
	return promCounter{c}
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    name,
		Buckets: prometheus.DefBuckets,
	})
	if err := f.registerer.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				h = existing
			}
		}
	}
	return promHistogram{h}
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

type promCounter struct {
	c prometheus.Counter
}

func (p promCounter) Inc()          { p.c.Inc() }
func (p promCounter) Add(v float64) { p.c.Add(v) }

type promHistogram struct {
	h prometheus.Histogram
}

func (p promHistogram) Observe(v float64) { p.h.Observe(v) }
