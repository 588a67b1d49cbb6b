package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/elata-eeg/daqd/internal/pool"
)

// stageState is the per-stage slice of the state query response: its
// type and the parameter values it was declared with. Stages don't
// expose a uniform live-parameter getter (each owns its own atomics),
// so this surfaces the graph's declared configuration rather than a
// snapshot of in-flight atomic state. A value changed by UpdateParam is
// not reflected here; the params shown change only when a Reconfigure
// declares new ones.
type stageState struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
}

// stateResponse answers §4.8's state query endpoint: current graph
// config, stage list, parameter values, and broker subscriber counts.
type stateResponse struct {
	GraphVersion      int                  `json:"graph_version"`
	RunID             string               `json:"run_id"`
	Stages            []stageState         `json:"stages"`
	PoolStats         map[string]pool.Stats `json:"pool_stats"`
	SubscriberCounts  map[string]int       `json:"subscriber_counts"`
}

func (s *Server) computeState() stateResponse {
	resp := stateResponse{
		SubscriberCounts: s.broker.SubscriberCounts(),
	}

	g := s.supervisor.CurrentGraph()
	if g == nil {
		return resp
	}

	resp.GraphVersion = g.Config.Version
	resp.RunID = g.Config.RunID
	resp.Stages = make([]stageState, 0, len(g.Config.Stages))
	for _, sc := range g.Config.Stages {
		resp.Stages = append(resp.Stages, stageState{ID: sc.ID, Type: sc.Type, Params: sc.Params})
	}
	resp.PoolStats = g.Pools.StatsByName()
	return resp
}

// handleState answers the state query either from the cache (if
// configured) or by computing it live from the supervisor and broker.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		if raw, ok := s.cache.Get(r.Context()); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(raw)
			return
		}
	}

	resp := s.computeState()
	s.cacheState(r.Context(), resp)
	writeJSON(w, http.StatusOK, resp)
}

// invalidateCache recomputes and re-pushes the state response after a
// control command changes it, so the next poll (cached or not) reflects
// the command's effect rather than serving a stale snapshot.
func (s *Server) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cacheState(ctx, s.computeState())
}

func (s *Server) cacheState(ctx context.Context, resp stateResponse) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	s.cache.Set(ctx, raw)
}
