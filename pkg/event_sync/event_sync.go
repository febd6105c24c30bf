package event_sync

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrClientUnavailable is returned while no organizer token has been loaded yet.
var ErrClientUnavailable = errors.New("meetup client unavailable")

// ErrTimeout is reported when a reconciliation did not finish within its budget. The
// abandoned run may still complete in the background.
var ErrTimeout = errors.New("meetup sync timed out")

var (
	// ErrConflictingTags marks an event that both continues a series and claims a channel.
	ErrConflictingTags = errors.New("event continues a series and asks for a channel")
	// ErrSeriesNotFound is returned for a continuation whose referenced event has no series yet.
	ErrSeriesNotFound = errors.New("referenced event has no series yet")
	ErrSeriesMismatch = errors.New("event already belongs to a different series")
	ErrChannelTaken   = errors.New("discord channel already belongs to another series")
)

type SeriesType string

const (
	SeriesAdventure SeriesType = "adventure"
	SeriesCampaign  SeriesType = "campaign"
	SeriesOneShot   SeriesType = "oneshot"
	SeriesIntro     SeriesType = "intro"
)

var (
	introRegex    = regexp.MustCompile(`(?i)\bintro\b|\bsession\s*0\b`)
	oneShotRegex  = regexp.MustCompile(`(?i)one\s*-?\s*shot`)
	campaignRegex = regexp.MustCompile(`(?i)campaign`)

	continuationRegex = regexp.MustCompile(`(?i)[\[\(]\s*campaign\s*([a-zA-Z0-9]+)\s*[\]\)]`)
	channelRegex      = regexp.MustCompile(`(?i)[\[\(]\s*channel\s*([0-9]+)\s*[\]\)]`)
	onlineRegex       = regexp.MustCompile(`(?i)[\[\(]\s*online\s*[\]\)]`)
)

// SeriesTags are the shortcodes of an event name that steer its series assignment.
type SeriesTags struct {
	// ContinuesEvent is the id of an event whose series this event joins, e.g. "[campaign 300100]".
	ContinuesEvent string
	// ChannelId binds a new series to an existing Discord channel, e.g. "[channel 1234]".
	ChannelId string
	Online    bool
}

// ParseSeriesTags extracts the series shortcodes from an event name.
func ParseSeriesTags(name string) (SeriesTags, error) {
	tags := SeriesTags{Online: onlineRegex.MatchString(name)}
	if m := continuationRegex.FindStringSubmatch(name); m != nil {
		tags.ContinuesEvent = m[1]
	}
	if m := channelRegex.FindStringSubmatch(name); m != nil {
		tags.ChannelId = m[1]
	}
	if tags.ContinuesEvent != "" && tags.ChannelId != "" {
		return SeriesTags{}, ErrConflictingTags
	}
	return tags, nil
}

// ClassifySeries derives the kind of adventure from an event name.
func ClassifySeries(name string) SeriesType {
	switch {
	case introRegex.MatchString(name):
		return SeriesIntro
	case oneShotRegex.MatchString(name):
		return SeriesOneShot
	case campaignRegex.MatchString(name):
		return SeriesCampaign
	default:
		return SeriesAdventure
	}
}

// NamingPolicy is the allow-list deciding which Meetup events are synchronized.
type NamingPolicy struct {
	patterns []*regexp.Regexp
}

func NewNamingPolicy(patterns []string) (*NamingPolicy, error) {
	if len(patterns) == 0 {
		return nil, errors.New("naming policy needs at least one pattern")
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid event naming pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &NamingPolicy{patterns: compiled}, nil
}

func (p *NamingPolicy) Matches(name string) bool {
	for _, re := range p.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

type EventError struct {
	EventId string
	Err     error
}

type ReconcileResult struct {
	EventsSeen    int
	EventsMatched int
	EventsSynced  int
	EventsDeleted int
	NewSeries     int
	Errors        int
	EventErrors   []EventError
	StartedAt     time.Time
	Duration      time.Duration
}

func (r *ReconcileResult) addError(eventId string, err error) {
	r.Errors++
	r.EventErrors = append(r.EventErrors, EventError{EventId: eventId, Err: err})
}

// StoredEvent is an event as it was last reconciled into Redis.
type StoredEvent struct {
	Id          string
	Name        string
	Time        time.Time
	Link        string
	Urlname     string
	SeriesId    string
	AttendeeIds []int64
	HostIds     []int64
}
