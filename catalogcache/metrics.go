package catalogcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests      *prometheus.CounterVec
	fetchErrors   prometheus.Counter
	invalidations prometheus.Counter
}

// newMetrics builds the cache counters; a nil registerer leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "book_catalog_cache_requests_total",
			Help: "Catalog page requests by cache result (hit or miss).",
		}, []string{"result"}),
		fetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "book_catalog_cache_fetch_errors_total",
			Help: "Catalog page fetches that failed at the transport.",
		}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "book_catalog_cache_invalidations_total",
			Help: "Explicit invalidations of the catalog cache.",
		}),
	}
}

func (m *metrics) hit()         { m.requests.WithLabelValues("hit").Inc() }
func (m *metrics) miss()        { m.requests.WithLabelValues("miss").Inc() }
func (m *metrics) fetchFailed() { m.fetchErrors.Inc() }
func (m *metrics) invalidated() { m.invalidations.Inc() }
