package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/logger"
)

// RequestLogger logs one entry per request, at warn for 4xx and error for 5xx.
// Handlers find the request logger with logger.FromContext.
func RequestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			reqLog := log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			next.ServeHTTP(rec, r.WithContext(logger.WithLogger(r.Context(), reqLog)))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
			}

			switch {
			case rec.status >= 500:
				reqLog.Error("http request - server error", fields...)
			case rec.status >= 400:
				reqLog.Warn("http request - client error", fields...)
			default:
				reqLog.Info("http request", fields...)
			}
		}

		return http.HandlerFunc(fn)
	}
}
