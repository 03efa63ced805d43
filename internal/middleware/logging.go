package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gmbdash/server/internal/observability"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// RequestLog records every request in Prometheus and ships it to Loki.
// It labels by chi route pattern so ids in paths do not explode cardinality.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		observability.RequestStarted()
		defer observability.RequestFinished()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		observability.ObserveRequest(r.Method, route, status, elapsed)
		observability.LogRequest(GetRequestID(r.Context()), r.Method, route, status, elapsed)
	})
}
