// Package httpapi implements the thin HTTP/SSE control surface described
// as an external collaborator: a command submission endpoint, a state
// query endpoint, and a server-sent-events stream. Grounded on
// internal/api/server.go's gorilla/mux router, CORS middleware, and
// flat handler-method shape.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elata-eeg/daqd/internal/broker"
	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/events"
	"github.com/elata-eeg/daqd/internal/graph"
)

// Reconfigurer is the subset of *executor.Supervisor the control
// endpoint needs; named as an interface so tests can substitute a
// fake without building a real graph.
type Reconfigurer interface {
	Inbox(stageID string) *control.Inbox
	CurrentGraph() *graph.Graph
	Reconfigure(ctx context.Context, cfg *graph.Config) (<-chan error, error)
}

// StateCache is the optional read/write-through cache httpapi consults
// for the state endpoint instead of recomputing it from the live graph
// on every poll. internal/statecache.Cache implements this against
// Redis; a nil StateCache means "always compute live".
type StateCache interface {
	Get(ctx context.Context) (json.RawMessage, bool)
	Set(ctx context.Context, state json.RawMessage)
}

// Server wires the control submission, state query, SSE, and metrics
// endpoints together behind one gorilla/mux router.
type Server struct {
	supervisor Reconfigurer
	broker     *broker.Broker
	bus        *events.Bus
	cache      StateCache
	log        *slog.Logger
}

// NewServer builds a Server. cache may be nil (state is always computed
// live from supervisor/broker in that case).
func NewServer(supervisor Reconfigurer, b *broker.Broker, bus *events.Bus, cache StateCache, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{supervisor: supervisor, broker: b, bus: bus, cache: cache, log: log}
}

// Router builds the gorilla/mux router serving every endpoint, with the
// CORS middleware applied ahead of every handler so browser-based
// viewers (an external collaborator) can call the API from any origin.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/control", s.handleControl).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// ListenAndServe starts an HTTP server of its own on addr via
// http.ListenAndServe, blocking until it returns an error. That server is
// not exposed, so it cannot be shut down gracefully; callers that need
// Shutdown build their own *http.Server around Router().
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("httpapi listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Kind: kind, Detail: detail}})
}

type errorDetail struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}
