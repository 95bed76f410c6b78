package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aethermarket/coordinator/internal/logging"
)

// requestLogger emits one structured line per request, mirroring the
// teacher's per-request logrus entries but keyed on chi's request ID.
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(rec, r)
			log.WithField("request_id", middleware.GetReqID(r.Context())).
				WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", rec.Status()).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("http request")
		})
	}
}
