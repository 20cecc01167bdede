package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code. Flush is
// forwarded so streaming handlers behind this middleware still flush frames.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath normalizes paths to avoid high cardinality in metrics.
func normalizePath(path string) string {
	if strings.HasPrefix(path, "/chats/") && len(path) > len("/chats/") {
		rest := path[len("/chats/"):]
		switch {
		case strings.HasSuffix(rest, "/messages/ai"):
			return "/chats/:id/messages/ai"
		case strings.HasSuffix(rest, "/messages"):
			return "/chats/:id/messages"
		default:
			return "/chats/:id"
		}
	}
	return path
}
