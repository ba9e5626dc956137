package middleware

import (
	"net/http"
	"time"

	"matchday/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggerMiddleware tags each request with a request id, attaches a request
// scoped logger to the context and logs the outcome.
func LoggerMiddleware(logger zerolog.Logger, m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			lg := logger.With().Str("request_id", requestID).Logger()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx, route := withRouteHolder(lg.WithContext(r.Context()))
			next.ServeHTTP(rec, r.WithContext(ctx))

			d := time.Since(start)
			m.RecordHTTPRequest(r.Method, route.route(), rec.status, d)

			ev := lg.Debug()
			if rec.status >= http.StatusInternalServerError {
				ev = lg.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.RequestURI()).
				Str("route", route.route()).
				Int("status", rec.status).
				Dur("duration", d).
				Msg("HTTP request")
		})
	}
}
