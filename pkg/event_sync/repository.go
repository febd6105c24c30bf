package event_sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/meetup"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	seriesIdAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	seriesIdLength   = 16
)

// EventSnapshot is one event together with the attendance fetched in the current pass.
type EventSnapshot struct {
	Event       meetup.Event
	SeriesType  SeriesType
	Tags        SeriesTags
	AttendeeIds []int64
	HostIds     []int64
}

type UpsertResult struct {
	SeriesId  string
	NewSeries bool
}

type Repository interface {
	// UpsertEvent merges the snapshot into the store. Repeating it with the same snapshot
	// leaves the store unchanged.
	UpsertEvent(ctx context.Context, snapshot EventSnapshot) (UpsertResult, error)
	DeleteEvent(ctx context.Context, eventId string) error
	GetEvent(ctx context.Context, eventId string) (StoredEvent, bool, error)
	ListEventIds(ctx context.Context) ([]string, error)
	ListSeries(ctx context.Context) ([]string, error)
	ListSeriesEvents(ctx context.Context, seriesId string) ([]StoredEvent, error)
	GetSeriesType(ctx context.Context, seriesId string) (SeriesType, error)
	// LinkedDiscordUsers maps Meetup user ids to the Discord user ids they are linked with.
	// Users without a link are left out.
	LinkedDiscordUsers(ctx context.Context, meetupUserIds []int64) (map[int64]string, error)
}

type RepositoryImpl struct {
	client redis.UniversalClient
}

func NewRepository(client redis.UniversalClient) *RepositoryImpl {
	return &RepositoryImpl{client: client}
}

func (r *RepositoryImpl) UpsertEvent(ctx context.Context, snapshot EventSnapshot) (UpsertResult, error) {
	event := snapshot.Event
	tags := snapshot.Tags
	seriesKey := store.EventSeriesKey(event.Id)
	usersKey := store.EventUsersKey(event.Id)
	hostsKey := store.EventHostsKey(event.Id)

	keys := []string{usersKey, hostsKey, seriesKey}
	var continuedKey, channelKey string
	if tags.ContinuesEvent != "" {
		continuedKey = store.EventSeriesKey(tags.ContinuesEvent)
		keys = append(keys, continuedKey)
	}
	if tags.ChannelId != "" {
		channelKey = store.ChannelSeriesKey(tags.ChannelId)
		keys = append(keys, channelKey)
	}

	result, err := store.WithTransaction(ctx, r.client, keys,
		func(ctx context.Context, tx *redis.Tx, pipe redis.Pipeliner) (UpsertResult, error) {
			result := UpsertResult{}
			seriesId, err := getString(ctx, tx, seriesKey)
			if err != nil {
				return result, err
			}
			var indicatedSeriesId, channelSeriesId string
			if continuedKey != "" {
				if indicatedSeriesId, err = getString(ctx, tx, continuedKey); err != nil {
					return result, err
				}
			}
			if channelKey != "" {
				if channelSeriesId, err = getString(ctx, tx, channelKey); err != nil {
					return result, err
				}
			}

			switch {
			case seriesId != "":
				if indicatedSeriesId != "" && indicatedSeriesId != seriesId {
					return result, fmt.Errorf("%w: event %s is in series %s, name points to %s",
						ErrSeriesMismatch, event.Id, seriesId, indicatedSeriesId)
				}
				if channelSeriesId != "" && channelSeriesId != seriesId {
					return result, fmt.Errorf("%w: channel %s", ErrChannelTaken, tags.ChannelId)
				}
			case tags.ContinuesEvent != "":
				if indicatedSeriesId == "" {
					return result, fmt.Errorf("%w: event %s", ErrSeriesNotFound, tags.ContinuesEvent)
				}
				seriesId = indicatedSeriesId
				pipe.Set(ctx, seriesKey, seriesId, 0)
			default:
				if channelSeriesId != "" {
					return result, fmt.Errorf("%w: channel %s", ErrChannelTaken, tags.ChannelId)
				}
				seriesId, err = gonanoid.Generate(seriesIdAlphabet, seriesIdLength)
				if err != nil {
					return result, fmt.Errorf("failed to generate series id: %w", err)
				}
				result.NewSeries = true
				pipe.Set(ctx, seriesKey, seriesId, 0)
				if tags.ChannelId != "" {
					pipe.SAdd(ctx, store.DiscordChannelsKey, tags.ChannelId)
					pipe.Set(ctx, channelKey, seriesId, 0)
					pipe.Set(ctx, store.SeriesChannelKey(seriesId), tags.ChannelId, 0)
				}
			}
			result.SeriesId = seriesId

			pipe.SAdd(ctx, store.EventsKey, event.Id)
			pipe.SAdd(ctx, store.SeriesEventsKey(seriesId), event.Id)
			pipe.SAdd(ctx, store.SeriesKey, seriesId)

			pipe.Del(ctx, usersKey)
			if len(snapshot.AttendeeIds) > 0 {
				pipe.SAdd(ctx, usersKey, idsToMembers(snapshot.AttendeeIds)...)
			}
			pipe.Del(ctx, hostsKey)
			if len(snapshot.HostIds) > 0 {
				pipe.SAdd(ctx, hostsKey, idsToMembers(snapshot.HostIds)...)
			}

			eventKey := store.EventKey(event.Id)
			pipe.HSet(ctx, eventKey, store.EventNameField, event.Name)
			pipe.HSet(ctx, eventKey, store.EventTimeField, event.Time.UTC().Format(time.RFC3339))
			pipe.HSet(ctx, eventKey, store.EventLinkField, event.Link)
			pipe.HSet(ctx, eventKey, store.EventUrlnameField, event.Urlname)

			if snapshot.SeriesType != "" {
				pipe.SetNX(ctx, store.SeriesTypeKey(seriesId), string(snapshot.SeriesType), 0)
			}
			// a series stays online once any of its sessions was flagged
			if tags.Online {
				pipe.Set(ctx, store.SeriesOnlineKey(seriesId), "true", 0)
			}
			return result, nil
		})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to store event %s: %w", event.Id, err)
	}
	return result, nil
}

// DeleteEvent removes an event that Meetup no longer knows. The series itself is kept.
func (r *RepositoryImpl) DeleteEvent(ctx context.Context, eventId string) error {
	seriesKey := store.EventSeriesKey(eventId)
	_, err := store.WithTransaction(ctx, r.client, []string{seriesKey},
		func(ctx context.Context, tx *redis.Tx, pipe redis.Pipeliner) (struct{}, error) {
			seriesId, err := tx.Get(ctx, seriesKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return struct{}{}, store.Unavailable(err)
			}
			if seriesId != "" {
				pipe.SRem(ctx, store.SeriesEventsKey(seriesId), eventId)
			}
			pipe.SRem(ctx, store.EventsKey, eventId)
			pipe.Del(ctx, store.EventKey(eventId), seriesKey, store.EventUsersKey(eventId), store.EventHostsKey(eventId))
			return struct{}{}, nil
		})
	if err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventId, err)
	}
	return nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, eventId string) (StoredEvent, bool, error) {
	pipe := r.client.Pipeline()
	fieldsCmd := pipe.HGetAll(ctx, store.EventKey(eventId))
	seriesCmd := pipe.Get(ctx, store.EventSeriesKey(eventId))
	usersCmd := pipe.SMembers(ctx, store.EventUsersKey(eventId))
	hostsCmd := pipe.SMembers(ctx, store.EventHostsKey(eventId))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return StoredEvent{}, false, fmt.Errorf("failed to read event %s: %w", eventId, store.Unavailable(err))
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return StoredEvent{}, false, nil
	}
	event := StoredEvent{
		Id:          eventId,
		Name:        fields[store.EventNameField],
		Link:        fields[store.EventLinkField],
		Urlname:     fields[store.EventUrlnameField],
		SeriesId:    seriesCmd.Val(),
		AttendeeIds: membersToIds(usersCmd.Val()),
		HostIds:     membersToIds(hostsCmd.Val()),
	}
	if value := fields[store.EventTimeField]; value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			log.Warnf("ignoring invalid time %q of event %s", value, eventId)
		} else {
			event.Time = parsed
		}
	}
	return event, true, nil
}

func (r *RepositoryImpl) ListEventIds(ctx context.Context) ([]string, error) {
	return r.sortedMembers(ctx, store.EventsKey)
}

func (r *RepositoryImpl) ListSeries(ctx context.Context) ([]string, error) {
	return r.sortedMembers(ctx, store.SeriesKey)
}

// ListSeriesEvents returns the stored events of a series ordered by start time.
func (r *RepositoryImpl) ListSeriesEvents(ctx context.Context, seriesId string) ([]StoredEvent, error) {
	eventIds, err := r.sortedMembers(ctx, store.SeriesEventsKey(seriesId))
	if err != nil {
		return nil, err
	}
	events := make([]StoredEvent, 0, len(eventIds))
	for _, eventId := range eventIds {
		event, ok, err := r.GetEvent(ctx, eventId)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, event)
		}
	}
	slices.SortStableFunc(events, func(a, b StoredEvent) int {
		return a.Time.Compare(b.Time)
	})
	return events, nil
}

func (r *RepositoryImpl) GetSeriesType(ctx context.Context, seriesId string) (SeriesType, error) {
	value, err := r.client.Get(ctx, store.SeriesTypeKey(seriesId)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read type of series %s: %w", seriesId, store.Unavailable(err))
	}
	return SeriesType(value), nil
}

func (r *RepositoryImpl) LinkedDiscordUsers(ctx context.Context, meetupUserIds []int64) (map[int64]string, error) {
	linked := make(map[int64]string, len(meetupUserIds))
	if len(meetupUserIds) == 0 {
		return linked, nil
	}
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(meetupUserIds))
	for i, userId := range meetupUserIds {
		cmds[i] = pipe.Get(ctx, store.UserDiscordKey(userId))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read linked discord users: %w", store.Unavailable(err))
	}
	for i, cmd := range cmds {
		if discordId := cmd.Val(); discordId != "" {
			linked[meetupUserIds[i]] = discordId
		}
	}
	return linked, nil
}

func (r *RepositoryImpl) sortedMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, store.Unavailable(err))
	}
	slices.Sort(members)
	return members, nil
}

func getString(ctx context.Context, tx *redis.Tx, key string) (string, error) {
	value, err := tx.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", store.Unavailable(err)
	}
	return value, nil
}

func idsToMembers(ids []int64) []any {
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		members = append(members, strconv.FormatInt(id, 10))
	}
	return members
}

func membersToIds(members []string) []int64 {
	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			log.Warnf("ignoring invalid meetup user id %q", member)
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
