package archive

import (
	"context"
	"sync"
)

type eventUser struct {
	eventId string
	userId  int64
}

// RepositoryStub keeps archived rows in memory with the same conflict rules as Postgres.
type RepositoryStub struct {
	mu           sync.Mutex
	events       map[string]ArchivedEvent
	participants map[eventUser]struct{}
	hosts        map[eventUser]struct{}
	links        map[int64]string
	eventErr     error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		events:       make(map[string]ArchivedEvent),
		participants: make(map[eventUser]struct{}),
		hosts:        make(map[eventUser]struct{}),
		links:        make(map[int64]string),
	}
}

func (r *RepositoryStub) InsertEvent(ctx context.Context, event ArchivedEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.eventErr != nil {
		return false, r.eventErr
	}
	if _, ok := r.events[event.MeetupId]; ok {
		return false, nil
	}
	r.events[event.MeetupId] = event
	return true, nil
}

func (r *RepositoryStub) InsertParticipants(ctx context.Context, eventId string, meetupUserIds []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return insertInto(r.participants, eventId, meetupUserIds), nil
}

func (r *RepositoryStub) InsertHosts(ctx context.Context, eventId string, meetupUserIds []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return insertInto(r.hosts, eventId, meetupUserIds), nil
}

func (r *RepositoryStub) StoreLink(ctx context.Context, meetupUserId int64, discordUserId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.links[meetupUserId] == discordUserId {
		return false, nil
	}
	for otherMeetupId, otherDiscordId := range r.links {
		if otherDiscordId == discordUserId {
			delete(r.links, otherMeetupId)
		}
	}
	r.links[meetupUserId] = discordUserId
	return true, nil
}

func (r *RepositoryStub) SetEventError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventErr = err
}

func (r *RepositoryStub) Events() map[string]ArchivedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[string]ArchivedEvent, len(r.events))
	for id, event := range r.events {
		result[id] = event
	}
	return result
}

func (r *RepositoryStub) Links() map[int64]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[int64]string, len(r.links))
	for meetupId, discordId := range r.links {
		result[meetupId] = discordId
	}
	return result
}

func insertInto(rows map[eventUser]struct{}, eventId string, userIds []int64) int64 {
	var added int64
	for _, userId := range userIds {
		key := eventUser{eventId: eventId, userId: userId}
		if _, ok := rows[key]; ok {
			continue
		}
		rows[key] = struct{}{}
		added++
	}
	return added
}
