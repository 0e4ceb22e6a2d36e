package workerhost

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// StatsResponse is the JSON body returned by the per-room translation
// stats endpoint.
type StatsResponse struct {
	RoomID        string `json:"room_id"`
	PipelineCount int    `json:"pipeline_count"`
}

// RegisterStatsRoute mounts GET /rooms/{room_id}/translation-stats on r,
// reporting the live pipeline count for the room's Coordinator.
func RegisterStatsRoute(r *mux.Router, host *Host) {
	r.HandleFunc("/rooms/{room_id}/translation-stats", func(w http.ResponseWriter, req *http.Request) {
		roomID := mux.Vars(req)["room_id"]
		coord, ok := host.Coordinator(roomID)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(StatsResponse{
			RoomID:        roomID,
			PipelineCount: coord.PipelineCount(),
		})
	}).Methods(http.MethodGet)
}
