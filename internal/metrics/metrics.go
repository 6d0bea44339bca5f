// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shortlink"

var (
	// LinksCreated количество созданных ссылок.
	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_created_total",
		Help:      "Total number of short links created",
	})

	// CodeCollisions количество повторных генераций кода из-за коллизий.
	CodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "code_collisions_total",
		Help:      "Total number of generated codes rejected as already taken",
	})

	// Resolutions итоги разрешения кодов: resolved, not_found, expired.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "Short code resolutions partitioned by outcome",
	}, []string{"outcome"})

	// ReapedLinks количество ссылок, удалённых чисткой.
	ReapedLinks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reaped_links_total",
		Help:      "Total number of expired links deleted by the reaper",
	})

	// ReaperRuns запуски чистки по результату: ok, error.
	ReaperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reaper_runs_total",
		Help:      "Reaper sweeps partitioned by result",
	}, []string{"result"})

	// HTTPRequests HTTP-запросы по методу, шаблону маршрута и статусу.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"method", "route", "status"})

	// HTTPDuration длительность HTTP-запросов в секундах.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// HTTPInFlight запросы в обработке.
	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Number of HTTP requests currently being served",
	})
)
