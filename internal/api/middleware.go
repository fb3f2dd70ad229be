package api

import (
	"log"
	"net/http"
	"time"
)

const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps the event stream working behind the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return colorBoldRed
	case code >= 400:
		return colorYellow
	default:
		return colorBoldGreen
	}
}

// LoggingMiddleware logs status, method, URI and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[%s%d%s] %s %s%s%s %.2fms",
			statusColor(rec.status), rec.status, colorReset, r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Microseconds())/1e3,
		)
	})
}
