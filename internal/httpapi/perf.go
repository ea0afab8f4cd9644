package httpapi

import "net/http"

// handlePerfLatency serves the rolling latency window. ?op=<name> narrows
// the response to one operation.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"ops":          []any{},
		})
		return
	}
	if op := r.URL.Query().Get("op"); op != "" {
		st, ok := s.metrics.OperationStats(op)
		if !ok {
			respondError(w, http.StatusNotFound, "not_found", "no samples for op "+op)
			return
		}
		respondJSON(w, http.StatusOK, st)
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotOperations())
}
