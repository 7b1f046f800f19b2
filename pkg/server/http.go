package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forgehq/forge/pkg/metrics"
	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

// newRouter builds the chi mux for the three endpoints of §6.2: a
// non-streaming completion, a newline-delimited streaming completion, and a
// health probe. Grounded on teacher's chi.RouteContext-based pattern
// (pkg/transport/http_metrics_middleware.go's getRoutePattern), generalized
// from a metrics-only middleware into the full request-handling surface.
func newRouter(engine *Engine, reg *metrics.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware(reg))

	r.Post("/request", handleRequest(engine))
	r.Post("/stream", handleStream(engine))
	r.Get("/health", handleHealth(engine))
	return r
}

func handleRequest(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orchtypes.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, orcherr.New(orcherr.CodeValidationError, "malformed request body: "+err.Error()))
			return
		}

		resp, err := engine.HandleRequest(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// handleStream writes one JSON object per line as tokens arrive (NDJSON),
// flushing after each so a client sees incremental progress.
func handleStream(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orchtypes.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, orcherr.New(orcherr.CodeValidationError, "malformed request body: "+err.Error()))
			return
		}

		tokens, err := engine.HandleStream(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, canFlush := w.(http.Flusher)
		enc := json.NewEncoder(w)
		for tok := range tokens {
			if err := enc.Encode(tok); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

func handleHealth(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body := struct {
			Healthy   bool            `json:"healthy"`
			Providers map[string]bool `json:"providers"`
		}{
			Healthy:   engine.healthy(ctx),
			Providers: engine.Health(ctx),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if oe, ok := orcherr.CodeOf(err); ok {
		switch oe {
		case orcherr.CodeValidationError, orcherr.CodeConfigurationError:
			status = http.StatusBadRequest
		case orcherr.CodeProviderUnavailable, orcherr.CodeNoToolCapableProvider:
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

// responseWriter wraps http.ResponseWriter to capture status and size for
// the metrics middleware, mirroring teacher's
// pkg/transport/http_metrics_middleware.go responseWriter.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func metricsMiddleware(reg *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			if reg != nil {
				reg.RecordHTTPRequest(routePattern(r), r.Method, wrapped.statusCode, time.Since(start))
			}
		})
	}
}

// routePattern extracts the matched chi route template (e.g. "/request")
// rather than the raw path, so requests fan into a small, bounded label set.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
