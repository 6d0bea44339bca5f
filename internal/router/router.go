package router

import (
	"github.com/Totarae/shortlink/internal/handlers"
	"github.com/Totarae/shortlink/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter создаёт и настраивает маршрутизатор
func NewRouter(handler *handlers.Handler, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)                 // Идентификатор запроса
	r.Use(middleware.LoggingMiddleware(logger)) // Подключаем логирование
	r.Use(middleware.MetricsMiddleware)         // Prometheus

	// promhttp сам сжимает ответ, поэтому /metrics вне gzip
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.GzipMiddleware) // Gzip-сжатие

		r.Post("/", handler.ReceiveURL)
		r.Post("/api/shorten", handler.ReceiveShorten)
		r.Post("/api/preview", handler.Preview)
		r.Get("/api/admin/urls", handler.AdminList)
		r.Get("/api/admin/urls/export", handler.AdminExport)
		r.Get("/ping", handler.Ping)
		r.Get("/{id}", handler.ResponseURL)
	})
	return r
}
