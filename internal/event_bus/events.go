package event_bus

import "time"

const (
	OrganizerTokenRefreshedType EventType = "token.organizer.refreshed"
	MeetupSyncCompletedType     EventType = "sync.meetup.completed"
	MeetupSyncFailedType        EventType = "sync.meetup.failed"
)

// OrganizerTokenRefreshed is published after the organizer's OAuth tokens were replaced.
type OrganizerTokenRefreshed struct {
	AccessToken string
	RefreshedAt time.Time
}

type MeetupSyncCompleted struct {
	EventsMatched int
	EventsSynced  int
	NewSeries     int
	Errors        int
	Duration      time.Duration
}

type MeetupSyncFailed struct {
	Err      error
	TimedOut bool
}
