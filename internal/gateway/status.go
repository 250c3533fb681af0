package gateway

import (
	"encoding/json"
	"net/http"
)

// PendingCall describes the call awaiting a decision.
type PendingCall struct {
	CallID   string `json:"call_id"`
	Tool     string `json:"tool"`
	Position int    `json:"position"`
	Total    int    `json:"total"`
}

// StatusResponse is the JSON response for GET /status. Arguments of the
// pending call are deliberately left out.
type StatusResponse struct {
	State         string       `json:"state"`
	ThreadID      string       `json:"thread_id,omitempty"`
	Pending       *PendingCall `json:"pending,omitempty"`
	Tools         int          `json:"tools"`
	UptimeSeconds int64        `json:"uptime_seconds"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			State:         g.deps.Controller.State().String(),
			ThreadID:      g.deps.ThreadID,
			UptimeSeconds: int64(g.now().Sub(g.startedAt).Seconds()),
		}

		if g.deps.ThreadID != "" {
			if d := g.deps.Controller.Pending(g.deps.ThreadID); d.Pending() {
				resp.Pending = &PendingCall{
					CallID:   d.Call.ID,
					Tool:     d.Call.Name,
					Position: d.Position,
					Total:    d.Total,
				}
			}
		}
		if g.deps.Catalogue != nil {
			resp.Tools = g.deps.Catalogue.Len()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
