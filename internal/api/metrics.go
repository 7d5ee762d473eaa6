package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// newMetrics builds a per-server registry. epochFn backs the current epoch
// gauge and returns false when no epoch is defined yet.
func newMetrics(epochFn func() (uint64, bool)) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ddnsq",
			Name:      "operations_total",
			Help:      "Operations by name and outcome code.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ddnsq",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	currentEpoch := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ddnsq",
		Name:      "current_epoch",
		Help:      "Epoch of the current tick, or -1 before the registry is configured.",
	}, func() float64 {
		e, ok := epochFn()
		if !ok {
			return -1
		}
		return float64(e)
	})
	m.registry.MustRegister(m.operations, m.duration, currentEpoch)
	return m
}

// observe counts one operation. outcome is "ok" or the error code.
func (m *metrics) observe(op, outcome string) {
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
