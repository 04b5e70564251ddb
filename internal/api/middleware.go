package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"bomet/pkg/metrics"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// statusRecorder remembers the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// failingBody replays a read error to the handler, e.g. a body over the cap.
type failingBody struct{ err error }

func (f failingBody) Read([]byte) (int, error) { return 0, f.err }

// withRequestLog logs every request's method, path, origin and remote
// address, plus the body of POST and PUT requests.
func (h *Handler) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", redactedURI(r)),
			zap.String("remote", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
		}

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			fields = append(fields, zap.ByteString("body", h.captureBody(w, r)))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields = append(fields,
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
		h.logger.Info("request", fields...)
	})
}

// captureBody reads the capped body and puts an equivalent reader back.
func (h *Handler) captureBody(w http.ResponseWriter, r *http.Request) []byte {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		r.Body = io.NopCloser(failingBody{err: err})
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data
}

// redactedURI returns the request path with the admin key masked.
func redactedURI(r *http.Request) string {
	q := r.URL.Query()
	if !q.Has("key") {
		return r.URL.RequestURI()
	}
	q.Set("key", "***")
	return r.URL.Path + "?" + q.Encode()
}

func observeLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
