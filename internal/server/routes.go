package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendance_service/internal/metrics"
)

type RouteOptions struct {
	// ScanRatePerMinute limits /scan per client address. Zero disables it.
	ScanRatePerMinute int
	ScanBurst         int
}

func New(handler *Handler, opts RouteOptions) http.Handler {
	scanHandler := http.Handler(http.HandlerFunc(handler.Scan))
	if opts.ScanRatePerMinute > 0 {
		scanHandler = NewRateLimiter(opts.ScanRatePerMinute, opts.ScanBurst).Middleware(scanHandler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handler.Index)
	mux.Handle("GET /scan", scanHandler)
	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return logging(handler.Logger, metrics.Middleware(mux))
}

func logging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
