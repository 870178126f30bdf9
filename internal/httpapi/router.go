// Package httpapi exposes the HTTP surface from §6 over the
// Supervisor and Inspector: stdlib net/http with a
// []func(http.Handler) http.Handler middleware chain, and route
// dispatch via Go's method+pattern ServeMux matching rather than a
// hand-rolled path-param extractor.
package httpapi

import (
	"net/http"
	"time"

	"github.com/madcok-co/consumerd/internal/inspector"
	"github.com/madcok-co/consumerd/internal/logging"
	"github.com/madcok-co/consumerd/internal/spec"
	"github.com/madcok-co/consumerd/internal/supervisor"
	"github.com/madcok-co/consumerd/internal/validate"
)

// Middleware is a standard http.Handler-wrapping middleware func.
type Middleware func(http.Handler) http.Handler

// Server wires the Supervisor and Inspector to HTTP handlers.
type Server struct {
	supervisor *supervisor.Supervisor
	inspector  *inspector.Inspector
	validator  *validate.Validator
	logger     logging.Logger
}

// NewServer builds a Server. All four dependencies are required.
func NewServer(sup *supervisor.Supervisor, insp *inspector.Inspector, v *validate.Validator, logger logging.Logger) *Server {
	return &Server{supervisor: sup, inspector: insp, validator: v, logger: logger.Named("httpapi")}
}

// Handler builds the full routed, middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("GET /consumers/", s.handleListConsumers)
	mux.HandleFunc("POST /consumers/", s.handleCreateConsumer)
	mux.HandleFunc("GET /consumers/{id}", s.handleGetConsumer)
	mux.HandleFunc("PUT /consumers/{id}", s.handleUpdateConsumer)
	mux.HandleFunc("DELETE /consumers/{id}", s.handleDeleteConsumer)
	mux.HandleFunc("POST /consumers/{id}/start", s.handleStartConsumer)
	mux.HandleFunc("POST /consumers/{id}/stop", s.handleStopConsumer)

	mux.HandleFunc("GET /consumergroups/", s.handleListConsumerGroups)
	mux.HandleFunc("GET /consumergroups/{group_id}/offsets", s.handleGroupOffsets)

	mux.HandleFunc("GET /monitor/consumer-group-offsets", s.handleMonitorOffsets)
	mux.HandleFunc("GET /monitor/consumer-group-lag", s.handleMonitorLag)

	var handler http.Handler = mux
	chain := []Middleware{s.recoverMiddleware, s.loggingMiddleware, corsMiddleware}
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}
	return handler
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", sw.status, "duration_ms", time.Since(start).Milliseconds())
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// handleHealthz reports store reachability and the count of ACTIVE
// consumers (SPEC_FULL.md §12), using List as the reachability probe
// since it round-trips the Store on every call.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	specs, err := s.supervisor.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "error",
			"store":  "unreachable",
			"error":  err.Error(),
		})
		return
	}

	active := 0
	for _, cs := range specs {
		if cs.Status == spec.StatusActive {
			active++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"store":            "reachable",
		"active_consumers": active,
	})
}
