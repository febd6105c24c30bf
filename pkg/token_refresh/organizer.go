package token_refresh

import (
	"context"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/utils"
	log "github.com/sirupsen/logrus"
)

// OrganizerRefresher keeps the organizer token fresh on a multi-day cadence. The next due time
// is persisted so that a restart does not trigger an immediate refresh.
type OrganizerRefresher struct {
	service  Service
	repo     Repository
	clock    utils.Clock
	interval time.Duration
	retry    time.Duration
}

func NewOrganizerRefresher(service Service, repo Repository, clock utils.Clock, cfg config.Refresh) *OrganizerRefresher {
	return &OrganizerRefresher{
		service:  service,
		repo:     repo,
		clock:    clock,
		interval: cfg.OrganizerInterval,
		retry:    cfg.OrganizerRetry,
	}
}

// FirstRun returns the persisted due time, or now if none is stored.
func (o *OrganizerRefresher) FirstRun(ctx context.Context) time.Time {
	now := o.clock.Now()
	next, ok, err := o.repo.GetOrganizerNextRefresh(ctx)
	if err != nil {
		log.Errorf("failed to read next organizer refresh time, refreshing now: %v", err)
		return now
	}
	if !ok {
		return now
	}
	log.Infof("Next organizer token refresh @ %s", next.Format(time.RFC3339))
	return next
}

// RefreshNow refreshes the organizer token and returns when the next refresh is due.
func (o *OrganizerRefresher) RefreshNow(ctx context.Context) (time.Time, error) {
	_, err := o.service.Refresh(ctx, OrganizerPrincipal())
	if err != nil {
		next := o.clock.Now().Add(o.retry)
		log.Errorf("Could not refresh the organizer's OAuth token, retrying @ %s: %v", next.Format(time.RFC3339), err)
		return next, err
	}

	next := o.clock.Now().Add(o.interval)
	if err := o.repo.SetOrganizerNextRefresh(ctx, next); err != nil {
		log.Errorf("%v", err)
	}
	log.Infof("Refreshed the organizer's Meetup OAuth token. Next refresh @ %s", next.Format(time.RFC3339))
	return next, nil
}

// Task is the scheduler entry point. It always reschedules itself.
func (o *OrganizerRefresher) Task(ctx context.Context) (time.Time, bool) {
	next, _ := o.RefreshNow(ctx)
	return next, true
}
