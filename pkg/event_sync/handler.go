package event_sync

import (
	"context"
	"net/http"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/rest"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/scheduler"
	log "github.com/sirupsen/logrus"
)

type SyncRunner interface {
	TriggerNow(ctx context.Context)
	LastStatus() (SyncStatus, bool)
}

type QueueScheduler interface {
	TaskScheduler
	Len() int
}

type EventErrorDTO struct {
	EventId string `json:"eventId"`
	Error   string `json:"error"`
}

type LastRunDTO struct {
	FinishedAt    time.Time       `json:"finishedAt"`
	Error         string          `json:"error,omitempty"`
	EventsSeen    int             `json:"eventsSeen"`
	EventsMatched int             `json:"eventsMatched"`
	EventsSynced  int             `json:"eventsSynced"`
	EventsDeleted int             `json:"eventsDeleted"`
	NewSeries     int             `json:"newSeries"`
	Errors        int             `json:"errors"`
	EventErrors   []EventErrorDTO `json:"eventErrors,omitempty"`
	DurationMs    int64           `json:"durationMs"`
}

type StatusDTO struct {
	LastRun     *LastRunDTO `json:"lastRun"`
	QueuedTasks int         `json:"queuedTasks"`
}

type Handler struct {
	sync      SyncRunner
	scheduler QueueScheduler
	discord   DiscordSyncer
}

func NewHandler(sync SyncRunner, scheduler QueueScheduler, discord DiscordSyncer) *Handler {
	return &Handler{sync: sync, scheduler: scheduler, discord: discord}
}

// GetStatus godoc
// @Summary Last synchronization outcome
// @Tags Sync
// @Produce json
// @Success 200 {object} StatusDTO
// @Router /api/sync/status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	log.Debug("Reading sync status")
	status := StatusDTO{QueuedTasks: h.scheduler.Len()}
	if last, ok := h.sync.LastStatus(); ok {
		status.LastRun = statusToDTO(last)
	}
	rest.WriteJSON(w, http.StatusOK, status)
}

// TriggerMeetupSync godoc
// @Summary Start a Meetup synchronization in the background
// @Tags Sync
// @Success 202
// @Router /api/sync/meetup [post]
func (h *Handler) TriggerMeetupSync(w http.ResponseWriter, r *http.Request) {
	log.Info("Meetup sync requested")
	// the run outlives the request, it is bounded by the sync timeout
	h.sync.TriggerNow(context.WithoutCancel(r.Context()))
	w.WriteHeader(http.StatusAccepted)
}

// TriggerDiscordSync godoc
// @Summary Queue a Discord synchronization
// @Tags Sync
// @Success 202
// @Router /api/sync/discord [post]
func (h *Handler) TriggerDiscordSync(w http.ResponseWriter, r *http.Request) {
	log.Info("Discord sync requested")
	h.scheduler.AddTaskNow(DiscordSyncTaskName, scheduler.OneShot(func(ctx context.Context) {
		if err := h.discord.SyncDiscord(ctx); err != nil {
			log.Errorf("Discord sync failed: %v", err)
		}
	}))
	w.WriteHeader(http.StatusAccepted)
}

func statusToDTO(status SyncStatus) *LastRunDTO {
	dto := &LastRunDTO{
		FinishedAt:    status.FinishedAt,
		EventsSeen:    status.Result.EventsSeen,
		EventsMatched: status.Result.EventsMatched,
		EventsSynced:  status.Result.EventsSynced,
		EventsDeleted: status.Result.EventsDeleted,
		NewSeries:     status.Result.NewSeries,
		Errors:        status.Result.Errors,
		DurationMs:    status.Result.Duration.Milliseconds(),
	}
	if status.Err != nil {
		dto.Error = status.Err.Error()
	}
	for _, eventErr := range status.Result.EventErrors {
		dto.EventErrors = append(dto.EventErrors, EventErrorDTO{EventId: eventErr.EventId, Error: eventErr.Err.Error()})
	}
	return dto
}
