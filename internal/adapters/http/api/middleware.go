package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/leadrank/pkg/logger"
	"github.com/okian/leadrank/pkg/metrics"
)

// RequestIDHeader carries the request ID in and out.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the request ID MetricsMiddleware attached to ctx.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// MetricsMiddleware tags the request with an ID, then records Prometheus
// metrics and a debug log line for it once the handler returns.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	log := logger.Get().Named("http")
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		elapsed := time.Since(start)
		durationMs := float64(elapsed.Milliseconds())
		status := strconv.Itoa(rec.status)

		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)

		fields := []logger.Field{
			logger.String("endpoint", endpoint),
			logger.String("method", r.Method),
			logger.Int("status", rec.status),
			logger.String("owner", r.Header.Get(OwnerHeader)),
			logger.String("request_id", id),
			logger.Duration("duration", elapsed),
		}
		if rec.status < http.StatusBadRequest {
			log.Debug(r.Context(), "request served", fields...)
			return
		}

		kind, severity := classifyStatus(rec.status)
		metrics.RecordErrorByEndpoint(endpoint, r.Method, kind)
		metrics.RecordErrorByType(kind, severity)
		metrics.RecordErrorLatency("http", kind, durationMs)
		if rec.status >= http.StatusInternalServerError {
			log.Warn(r.Context(), "request failed", fields...)
		} else {
			log.Debug(r.Context(), "request rejected", fields...)
		}
	}
}

// classifyStatus maps an error status to the error type and severity labels.
func classifyStatus(code int) (kind, severity string) {
	switch {
	case code >= http.StatusInternalServerError:
		return "server_error", "high"
	case code == http.StatusTooManyRequests:
		return "backpressure", "medium"
	case code == http.StatusConflict:
		return "rank_conflict", "high"
	case code == http.StatusNotFound:
		return "not_found", "low"
	case code >= http.StatusBadRequest:
		return "client_error", "medium"
	default:
		return "unknown", "low"
	}
}

// statusRecorder remembers the status code written through it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status, rw.wroteHeader = code, true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
