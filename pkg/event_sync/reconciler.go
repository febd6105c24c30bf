package event_sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/utils"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/meetup"
	log "github.com/sirupsen/logrus"
)

// ClientProvider hands out the Meetup client currently in use.
type ClientProvider interface {
	Get() (meetup.Client, bool)
}

type Reconciler struct {
	clients   ClientProvider
	repo      Repository
	policy    *NamingPolicy
	clock     utils.Clock
	rateLimit time.Duration
}

func NewReconciler(clients ClientProvider, repo Repository, policy *NamingPolicy, clock utils.Clock, rateLimit time.Duration) *Reconciler {
	return &Reconciler{
		clients:   clients,
		repo:      repo,
		policy:    policy,
		clock:     clock,
		rateLimit: rateLimit,
	}
}

// Reconcile pulls the upcoming Meetup events matching the naming policy together with their
// attendance into the store. Stored future events missing from the upcoming list are checked
// once more and removed when Meetup no longer knows them. The failure of a single event is
// recorded and skipped.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	result := ReconcileResult{StartedAt: r.clock.Now()}

	client, ok := r.clients.Get()
	if !ok {
		return result, ErrClientUnavailable
	}

	events, err := client.GetUpcomingEvents(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch upcoming events: %w", err)
	}
	result.EventsSeen = len(events)

	upcoming := make(map[string]struct{}, len(events))
	var starters, continuations []taggedEvent
	for _, event := range events {
		upcoming[event.Id] = struct{}{}
		if !r.policy.Matches(event.Name) {
			log.Tracef("Syncing task: ignoring event %q", event.Name)
			continue
		}
		result.EventsMatched++
		log.Debugf("Syncing task: found event %q", event.Name)

		tags, err := ParseSeriesTags(event.Name)
		if err != nil {
			log.Warnf("Syncing task: skipping event %q: %v", event.Name, err)
			result.addError(event.Id, err)
			continue
		}
		if tags.ContinuesEvent != "" {
			continuations = append(continuations, taggedEvent{event: event, tags: tags})
		} else {
			starters = append(starters, taggedEvent{event: event, tags: tags})
		}
	}

	// continuations go last so that they find the series of an event from the same pass
	fetched := 0
	for _, tagged := range append(starters, continuations...) {
		if fetched > 0 {
			if err := r.pause(ctx); err != nil {
				return r.finish(result), err
			}
		}
		fetched++

		if err := r.syncEvent(ctx, client, tagged.event, tagged.tags, &result); err != nil {
			if ctx.Err() != nil {
				return r.finish(result), ctx.Err()
			}
			log.Errorf("Event sync of %s failed: %v", tagged.event.Id, err)
			result.addError(tagged.event.Id, err)
		}
	}

	if err := r.recheckMissing(ctx, client, upcoming, fetched, &result); err != nil {
		return r.finish(result), err
	}

	result = r.finish(result)
	log.Infof("Meetup sync: %d events seen, %d matched, %d synced, %d deleted, %d new series, %d errors",
		result.EventsSeen, result.EventsMatched, result.EventsSynced, result.EventsDeleted, result.NewSeries, result.Errors)
	return result, nil
}

type taggedEvent struct {
	event meetup.Event
	tags  SeriesTags
}

// recheckMissing queries the attendance of stored events that have not started yet but were
// absent from the upcoming list. Only a context error aborts the pass.
func (r *Reconciler) recheckMissing(ctx context.Context, client meetup.Client, upcoming map[string]struct{}, fetched int, result *ReconcileResult) error {
	eventIds, err := r.repo.ListEventIds(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Errorf("Syncing task: failed to list stored events: %v", err)
		return nil
	}

	now := r.clock.Now()
	for _, eventId := range eventIds {
		if _, ok := upcoming[eventId]; ok {
			continue
		}
		stored, ok, err := r.repo.GetEvent(ctx, eventId)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			result.addError(eventId, err)
			continue
		}
		if !ok || !stored.Time.After(now) {
			continue
		}

		if fetched > 0 {
			if err := r.pause(ctx); err != nil {
				return err
			}
		}
		fetched++

		log.Debugf("Syncing task: event %s is missing from the upcoming events, checking it", eventId)
		event := meetup.Event{
			Id:      stored.Id,
			Name:    stored.Name,
			Time:    stored.Time,
			Link:    stored.Link,
			Urlname: stored.Urlname,
			HostIds: stored.HostIds,
		}
		if err := r.syncEvent(ctx, client, event, SeriesTags{}, result); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("Event sync of %s failed: %v", eventId, err)
			result.addError(eventId, err)
		}
	}
	return nil
}

func (r *Reconciler) syncEvent(ctx context.Context, client meetup.Client, event meetup.Event, tags SeriesTags, result *ReconcileResult) error {
	attendees, err := client.GetAttendees(ctx, event.Urlname, event.Id)
	if errors.Is(err, meetup.ErrResourceNotFound) {
		log.Infof("Event %s no longer exists on Meetup, removing it", event.Id)
		if err := r.repo.DeleteEvent(ctx, event.Id); err != nil {
			return err
		}
		result.EventsDeleted++
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch attendees: %w", err)
	}

	snapshot := partition(event, attendees)
	snapshot.Tags = tags
	upserted, err := r.repo.UpsertEvent(ctx, snapshot)
	if err != nil {
		return err
	}
	result.EventsSynced++
	if upserted.NewSeries {
		log.Infof("Event %q starts new series %s", event.Name, upserted.SeriesId)
		result.NewSeries++
	}
	return nil
}

// partition splits the attendance into players and hosts. A host is never counted as player.
func partition(event meetup.Event, attendees []meetup.Attendee) EventSnapshot {
	hosts := make(map[int64]struct{}, len(event.HostIds))
	for _, hostId := range event.HostIds {
		hosts[hostId] = struct{}{}
	}
	for _, attendee := range attendees {
		if attendee.Role == meetup.RoleHost {
			hosts[attendee.UserId] = struct{}{}
		}
	}

	players := make(map[int64]struct{}, len(attendees))
	for _, attendee := range attendees {
		if _, isHost := hosts[attendee.UserId]; !isHost {
			players[attendee.UserId] = struct{}{}
		}
	}

	return EventSnapshot{
		Event:       event,
		SeriesType:  ClassifySeries(event.Name),
		AttendeeIds: sortedIds(players),
		HostIds:     sortedIds(hosts),
	}
}

func sortedIds(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Reconciler) pause(ctx context.Context) error {
	if r.rateLimit <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.rateLimit)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) finish(result ReconcileResult) ReconcileResult {
	result.Duration = r.clock.Now().Sub(result.StartedAt)
	return result
}
