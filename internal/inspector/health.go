package inspector

import (
	"encoding/json"
	"net/http"
)

// HealthStatus is the /healthz response body, following the same shape as the status endpoint the inspector's REST API was modeled on.
type HealthStatus struct {
	Status     string `json:"status"`
	PackCount  int    `json:"pack_count"`
	ReadyCount int    `json:"ready_count"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	infos := s.mgr.List()
	ready := 0
	for _, p := range infos {
		if p.State.String() == "ready" {
			ready++
		}
	}

	status := HealthStatus{Status: "ok", PackCount: len(infos), ReadyCount: ready}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}
