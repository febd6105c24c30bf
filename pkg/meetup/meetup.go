package meetup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRemoteApi is the parent of every error reported by the Meetup API.
var ErrRemoteApi = errors.New("meetup api error")

// ErrResourceNotFound is returned when Meetup no longer knows the requested event.
var ErrResourceNotFound = errors.New("meetup resource not found")

type ApiError struct {
	StatusCode int
	Message    string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("meetup api returned status %d: %s", e.StatusCode, e.Message)
}

func (e *ApiError) Unwrap() error {
	return ErrRemoteApi
}

// IsAuthFailure reports whether the credentials used for the request were rejected.
func (e *ApiError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

type Event struct {
	Id      string
	Name    string
	Time    time.Time
	Link    string
	Urlname string
	HostIds []int64
}

type Role string

const (
	RoleAttendee Role = "attendee"
	RoleHost     Role = "host"
)

type Attendee struct {
	UserId int64
	Role   Role
}

type Client interface {
	// GetUpcomingEvents lists the upcoming events of all configured groups.
	GetUpcomingEvents(ctx context.Context) ([]Event, error)
	// GetAttendees lists the members with a "yes" RSVP for the event.
	GetAttendees(ctx context.Context, urlname string, eventId string) ([]Attendee, error)
}
