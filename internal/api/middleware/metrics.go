// metrics.go — Prometheus HTTP метрики Audio Server.
// Регистрирует метрики: as_http_requests_total, as_http_request_duration_seconds.
// Бизнес-метрики обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as_http_requests_total",
			Help: "Общее количество HTTP-запросов к Audio Server",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "as_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Audio Server в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// AudiosTotal — текущее количество аудиозаписей (gauge).
	AudiosTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "as_audios_total",
			Help: "Текущее количество аудиозаписей",
		},
	)

	// OperationsTotal — общее количество операций над аудиозаписями.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "as_operations_total",
			Help: "Общее количество операций над аудиозаписями",
		},
		[]string{"operation", "result"},
	)
)

// MetricsMiddleware считает запросы и их длительность.
// Оборванная передача учитывается со статусом "aborted".
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := normalizePath(r.URL.Path)
			rw := newResponseWriter(w)

			defer func() {
				rec := recover()
				status := strconv.Itoa(rw.statusCode)
				if rec != nil {
					status = "aborted"
				}
				httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
				httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// normalizePath заменяет идентификаторы и имена файлов в пути на шаблоны,
// чтобы число лейблов метрик не росло с числом записей.
// /api/audios/a1b2.../download → /api/audios/{id}/download
func normalizePath(path string) string {
	switch {
	case path == "/health/live", path == "/health/ready", path == "/metrics",
		path == "/api/audios", path == "/api/maintenance/reconcile":
		return path
	case strings.HasPrefix(path, "/uploads/"):
		return "/uploads/{fileName}"
	case strings.HasPrefix(path, "/api/audios/"):
		rest := strings.TrimPrefix(path, "/api/audios/")
		id, suffix, _ := strings.Cut(rest, "/")
		if id == "" {
			return path
		}
		switch suffix {
		case "":
			return "/api/audios/{id}"
		case "download":
			return "/api/audios/{id}/download"
		}
	}
	return "other"
}
