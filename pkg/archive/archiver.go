package archive

import (
	"context"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/utils"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/event_sync"
	log "github.com/sirupsen/logrus"
)

type Stats struct {
	EventsAdded       int64
	ParticipantsAdded int64
	HostsAdded        int64
	LinksAdded        int64
	Errors            int64
}

type UserLister interface {
	ListUsers(ctx context.Context) ([]int64, error)
}

// Archiver copies past events, their attendance and the account links from Redis to Postgres
// for long-term reporting. It is best effort: failures are counted and the run goes on.
type Archiver struct {
	events   event_sync.Repository
	users    UserLister
	repo     Repository
	clock    utils.Clock
	interval time.Duration
}

func NewArchiver(events event_sync.Repository, users UserLister, repo Repository, clock utils.Clock, interval time.Duration) *Archiver {
	return &Archiver{events: events, users: users, repo: repo, clock: clock, interval: interval}
}

func (a *Archiver) Archive(ctx context.Context) (Stats, error) {
	stats := Stats{}
	seriesIds, err := a.events.ListSeries(ctx)
	if err != nil {
		return stats, err
	}

	now := a.clock.Now()
	for _, seriesId := range seriesIds {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		seriesType, err := a.events.GetSeriesType(ctx, seriesId)
		if err != nil {
			log.Errorf("Archive: %v", err)
			stats.Errors++
		}
		events, err := a.events.ListSeriesEvents(ctx, seriesId)
		if err != nil {
			log.Errorf("Archive: %v", err)
			stats.Errors++
			continue
		}
		for _, event := range events {
			if event.Time.After(now) {
				continue
			}
			a.archiveEvent(ctx, event, seriesType, &stats)
		}
	}

	a.archiveLinks(ctx, &stats)

	log.Infof("Archive: %d events, %d participants, %d hosts, %d links added, %d errors",
		stats.EventsAdded, stats.ParticipantsAdded, stats.HostsAdded, stats.LinksAdded, stats.Errors)
	return stats, nil
}

func (a *Archiver) archiveEvent(ctx context.Context, event event_sync.StoredEvent, seriesType event_sync.SeriesType, stats *Stats) {
	added, err := a.repo.InsertEvent(ctx, ArchivedEvent{
		MeetupId:   event.Id,
		Start:      event.Time,
		Name:       event.Name,
		SeriesId:   event.SeriesId,
		SeriesType: string(seriesType),
		Urlname:    event.Urlname,
	})
	if err != nil {
		log.Errorf("Archive: %v", err)
		stats.Errors++
		// participants reference the event row
		return
	}
	if added {
		stats.EventsAdded++
	}

	participants, err := a.repo.InsertParticipants(ctx, event.Id, event.AttendeeIds)
	if err != nil {
		log.Errorf("Archive: %v", err)
		stats.Errors++
	}
	stats.ParticipantsAdded += participants

	hosts, err := a.repo.InsertHosts(ctx, event.Id, event.HostIds)
	if err != nil {
		log.Errorf("Archive: %v", err)
		stats.Errors++
	}
	stats.HostsAdded += hosts
}

func (a *Archiver) archiveLinks(ctx context.Context, stats *Stats) {
	userIds, err := a.users.ListUsers(ctx)
	if err != nil {
		log.Errorf("Archive: %v", err)
		stats.Errors++
		return
	}
	linked, err := a.events.LinkedDiscordUsers(ctx, userIds)
	if err != nil {
		log.Errorf("Archive: %v", err)
		stats.Errors++
		return
	}
	for meetupUserId, discordUserId := range linked {
		changed, err := a.repo.StoreLink(ctx, meetupUserId, discordUserId)
		if err != nil {
			log.Errorf("Archive: %v", err)
			stats.Errors++
			continue
		}
		if changed {
			stats.LinksAdded++
		}
	}
}

// Task is the scheduler entry point, it repeats every interval.
func (a *Archiver) Task(ctx context.Context) (time.Time, bool) {
	if _, err := a.Archive(ctx); err != nil {
		log.Errorf("Archive run failed: %v", err)
	}
	return a.clock.Now().Add(a.interval), true
}
