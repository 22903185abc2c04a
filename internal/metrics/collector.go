// Package metrics exposes forge3d's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "forge3d"

// Collector owns a private registry so several servers can coexist in one
// process
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	modelsLoaded     prometheus.Gauge
	modelTransitions *prometheus.CounterVec

	searchCache *prometheus.CounterVec

	logger *zap.Logger
}

func NewCollector(logger *zap.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		operationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of service operations by outcome",
			},
			[]string{"operation", "status"},
		),
		operationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Service operation duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"operation"},
		),

		modelsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_loaded",
			Help:      "1 while the generation models are resident",
		}),
		modelTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_transitions_total",
				Help:      "Model load and unload transitions",
			},
			[]string{"action", "status"},
		),

		searchCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_cache_total",
				Help:      "Image search cache lookups",
			},
			[]string{"result"},
		),
	}
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) RecordOperation(operation string, err error, duration time.Duration) {
	c.operationsTotal.WithLabelValues(operation, outcome(err)).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ModelsLoaded implements models.Observer
func (c *Collector) ModelsLoaded(loaded bool) {
	if loaded {
		c.modelsLoaded.Set(1)
	} else {
		c.modelsLoaded.Set(0)
	}
}

// ModelTransition implements models.Observer
func (c *Collector) ModelTransition(action string, err error) {
	c.modelTransitions.WithLabelValues(action, outcome(err)).Inc()
}

func (c *Collector) SearchCache(hit bool) {
	if hit {
		c.searchCache.WithLabelValues("hit").Inc()
	} else {
		c.searchCache.WithLabelValues("miss").Inc()
	}
}

// Handler serves the registry in the exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(c.logger),
	})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
