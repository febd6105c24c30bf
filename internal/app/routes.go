package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Sync
	r.HandleFunc("/api/sync/status", deps.SyncHandler.GetStatus).Methods("GET")
	r.HandleFunc("/api/sync/meetup", deps.SyncHandler.TriggerMeetupSync).Methods("POST")
	r.HandleFunc("/api/sync/discord", deps.SyncHandler.TriggerDiscordSync).Methods("POST")

	// Tokens
	r.HandleFunc("/api/token/organizer/refresh", deps.TokenHandler.RefreshOrganizer).Methods("POST")

	// Account linking, the redirect route has to win over the linking id route
	r.HandleFunc("/api/link", deps.LinkHandler.CreateLink).Methods("POST")
	r.HandleFunc("/link/redirect", deps.LinkHandler.CompleteLink).Methods("GET")
	r.HandleFunc("/link/{linkingId}", deps.LinkHandler.StartLink).Methods("GET")
}
