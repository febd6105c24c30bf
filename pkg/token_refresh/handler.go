package token_refresh

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/lock"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/rest"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	log "github.com/sirupsen/logrus"
)

type OrganizerRefreshRunner interface {
	RefreshNow(ctx context.Context) (time.Time, error)
}

type RefreshDTO struct {
	NextRefresh time.Time `json:"nextRefresh"`
}

type Handler struct {
	organizer OrganizerRefreshRunner
}

func NewHandler(organizer OrganizerRefreshRunner) *Handler {
	return &Handler{organizer: organizer}
}

// RefreshOrganizer godoc
// @Summary Refresh the organizer's Meetup token now
// @Tags Token
// @Produce json
// @Success 200 {object} RefreshDTO
// @Failure 409 {object} rest.ErrorResponse "Refresh already in progress"
// @Failure 412 {object} rest.ErrorResponse "No refresh token stored"
// @Failure 502 {object} rest.ErrorResponse "Meetup rejected the refresh"
// @Failure 503 {object} rest.ErrorResponse "Redis unavailable"
// @Router /api/token/organizer/refresh [post]
func (h *Handler) RefreshOrganizer(w http.ResponseWriter, r *http.Request) {
	log.Info("Organizer token refresh requested")
	next, err := h.organizer.RefreshNow(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, lock.ErrLockUnavailable):
			rest.WriteError(w, http.StatusConflict, "Organizer token refresh already in progress")
		case errors.Is(err, ErrNoRefreshToken):
			rest.WriteError(w, http.StatusPreconditionFailed, "No organizer refresh token stored")
		case errors.Is(err, store.ErrStoreUnavailable):
			rest.WriteError(w, http.StatusServiceUnavailable, "Store unavailable")
		default:
			rest.WriteError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	rest.WriteJSON(w, http.StatusOK, RefreshDTO{NextRefresh: next})
}
