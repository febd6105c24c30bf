package meetup

import (
	"context"
	"sync"
	"time"
)

type ClientStub struct {
	mu                   sync.RWMutex
	events               []Event
	attendees            map[string][]Attendee // eventId -> attendees
	attendeeErrs         map[string]error
	getUpcomingEventsErr error
	delay                time.Duration
	attendeeCalls        int
}

func NewClientStub() *ClientStub {
	return &ClientStub{
		attendees:    make(map[string][]Attendee),
		attendeeErrs: make(map[string]error),
	}
}

func (c *ClientStub) GetUpcomingEvents(ctx context.Context) ([]Event, error) {
	c.mu.RLock()
	delay := c.delay
	c.mu.RUnlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.getUpcomingEventsErr != nil {
		return nil, c.getUpcomingEventsErr
	}
	result := make([]Event, len(c.events))
	copy(result, c.events)
	return result, nil
}

func (c *ClientStub) GetAttendees(ctx context.Context, urlname string, eventId string) ([]Attendee, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attendeeCalls++
	if err, ok := c.attendeeErrs[eventId]; ok {
		return nil, err
	}
	result := make([]Attendee, len(c.attendees[eventId]))
	copy(result, c.attendees[eventId])
	return result, nil
}

func (c *ClientStub) SetEvents(events ...Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = events
}

func (c *ClientStub) SetAttendees(eventId string, attendees ...Attendee) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attendees[eventId] = attendees
}

func (c *ClientStub) SetAttendeesError(eventId string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attendeeErrs[eventId] = err
}

func (c *ClientStub) SetUpcomingEventsError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getUpcomingEventsErr = err
}

// SetDelay makes GetUpcomingEvents block for d, or until its context is done.
func (c *ClientStub) SetDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

func (c *ClientStub) AttendeeCalls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attendeeCalls
}

func (c *ClientStub) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
	c.attendees = make(map[string][]Attendee)
	c.attendeeErrs = make(map[string]error)
	c.getUpcomingEventsErr = nil
	c.delay = 0
	c.attendeeCalls = 0
}
