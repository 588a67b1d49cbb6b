package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elata-eeg/daqd/internal/control"
	"github.com/elata-eeg/daqd/internal/events"
	"github.com/elata-eeg/daqd/internal/graph"
)

// controlRequest is the wire shape of §6's control command JSON:
// stage-addressed commands carry stage_id/cmd/key/value; the graph-level
// Reconfigure command carries cmd="Reconfigure" and an inline config.
type controlRequest struct {
	StageID string          `json:"stage_id"`
	Cmd     string          `json:"cmd"`
	Key     string          `json:"key"`
	Value   interface{}     `json:"value"`
	Config  *graph.Config   `json:"config"`
}

func kindFromString(s string) (control.Kind, error) {
	switch s {
	case "Pause":
		return control.Pause, nil
	case "Resume":
		return control.Resume, nil
	case "UpdateParam":
		return control.UpdateParam, nil
	case "Shutdown":
		return control.Shutdown, nil
	case "Reconfigure":
		return control.Reconfigure, nil
	default:
		return 0, fmt.Errorf("unknown cmd %q", s)
	}
}

// handleControl decodes one control command and routes it: Reconfigure
// replaces the running graph; every other command is addressed to a
// single stage's inbox. Responses are {"ok":true} or
// {"error":{kind,detail}} per §6.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "protocol", "malformed control request: "+err.Error())
		return
	}

	kind, err := kindFromString(req.Cmd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "protocol", err.Error())
		return
	}

	if kind == control.Reconfigure {
		s.handleReconfigure(w, r, req)
		return
	}

	if req.StageID == "" {
		writeError(w, http.StatusBadRequest, "protocol", "stage_id is required for a stage-addressed command")
		return
	}
	inbox := s.supervisor.Inbox(req.StageID)
	if inbox == nil {
		writeError(w, http.StatusNotFound, "configuration", fmt.Sprintf("unknown stage %q", req.StageID))
		return
	}

	cmd := control.Command{StageID: req.StageID, Kind: kind, Key: req.Key, Value: req.Value}
	if !inbox.Send(cmd) {
		writeError(w, http.StatusServiceUnavailable, "backpressure", fmt.Sprintf("stage %q control inbox is full", req.StageID))
		return
	}

	if kind == control.UpdateParam {
		s.bus.Publish(events.KindParameterChanged, map[string]interface{}{
			"stage_id": req.StageID,
			"key":      req.Key,
			"value":    req.Value,
		})
	}

	s.invalidateCache(r.Context())
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request, req controlRequest) {
	if req.Config == nil {
		writeError(w, http.StatusBadRequest, "configuration", "reconfigure requires a config object")
		return
	}
	if err := req.Config.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "configuration", err.Error())
		return
	}
	if _, err := s.supervisor.Reconfigure(r.Context(), req.Config); err != nil {
		writeError(w, http.StatusInternalServerError, "configuration", err.Error())
		return
	}
	s.invalidateCache(r.Context())
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
