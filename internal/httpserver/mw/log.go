package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/onionroute/internal/earlyboot"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

// statusWriter captures status code and bytes written.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	// Ensure status is set if handler wrote body without calling WriteHeader.
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Flush keeps streaming responses working through the proxy.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Log returns a middleware that logs one line per HTTP request.
// Requests routed or short-circuited by the early hook also carry tenant_id.
func Log(loggerClient logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w}
			ctx, trace := earlyboot.WithTrace(r.Context())

			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path),
				logger.Int("status", ww.status),
				logger.Int("bytes", ww.bytes),
				logger.Duration("duration", time.Since(start)),
				logger.String("remote_ip", r.RemoteAddr),
				logger.String("user_agent", r.UserAgent()),
				logger.String("request_id", middleware.GetReqID(r.Context())),
			}
			if trace.TenantID > 0 {
				fields = append(fields,
					logger.Int64("tenant_id", trace.TenantID),
					logger.String("early_boot", trace.Outcome.String()))
			}

			switch {
			case ww.status >= 500:
				loggerClient.Error("http_request", fields...)
			case ww.status >= 400:
				loggerClient.Warn("http_request", fields...)
			default:
				loggerClient.Info("http_request", fields...)
			}
		})
	}
}
