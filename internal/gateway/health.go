package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"` // "ok" or "degraded"
	EngineCircuit string `json:"engine_circuit,omitempty"`
}

// handleHealth returns 200 while the engine circuit is closed or half-open
// and 503 while it is open.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.deps.Circuit != nil {
			st := g.deps.Circuit.State()
			resp.EngineCircuit = st.String()
			if st == gobreaker.StateOpen {
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
