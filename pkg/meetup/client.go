package meetup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type ClientImpl struct {
	httpClient *http.Client
	baseUrl    string
	groups     []string
}

func NewClient(httpClient *http.Client, baseUrl string, groups []string) *ClientImpl {
	return &ClientImpl{
		httpClient: httpClient,
		baseUrl:    strings.TrimSuffix(baseUrl, "/"),
		groups:     groups,
	}
}

// NewClientWithToken returns a client authenticating every request with the given access token.
func NewClientWithToken(accessToken string, baseUrl string, groups []string) *ClientImpl {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(context.Background(), tokenSource)
	httpClient.Timeout = 30 * time.Second
	return NewClient(httpClient, baseUrl, groups)
}

type apiMember struct {
	Id           int64  `json:"id"`
	Name         string `json:"name"`
	EventContext struct {
		Host bool `json:"host"`
	} `json:"event_context"`
}

type apiEvent struct {
	Id         string      `json:"id"`
	Name       string      `json:"name"`
	TimeMs     int64       `json:"time"`
	Link       string      `json:"link"`
	EventHosts []apiMember `json:"event_hosts"`
	Group      struct {
		Urlname string `json:"urlname"`
	} `json:"group"`
}

type apiRsvp struct {
	Member   apiMember `json:"member"`
	Response string    `json:"response"`
}

func (e apiEvent) toEvent() Event {
	hostIds := make([]int64, 0, len(e.EventHosts))
	for _, host := range e.EventHosts {
		hostIds = append(hostIds, host.Id)
	}
	return Event{
		Id:      e.Id,
		Name:    e.Name,
		Time:    time.UnixMilli(e.TimeMs).UTC(),
		Link:    e.Link,
		Urlname: e.Group.Urlname,
		HostIds: hostIds,
	}
}

// GetUpcomingEvents queries every configured group. A group that fails aborts the whole call,
// a partial event list would make the reconciliation believe events vanished.
func (c *ClientImpl) GetUpcomingEvents(ctx context.Context) ([]Event, error) {
	var events []Event
	for _, urlname := range c.groups {
		query := url.Values{
			"status":    {"upcoming"},
			"has_ended": {"false"},
			"page":      {"200"},
			"fields":    {"event_hosts"},
			"only":      {"id,name,time,link,group.urlname,event_hosts.id,event_hosts.name"},
		}
		endpoint := fmt.Sprintf("%s/%s/events?%s", c.baseUrl, url.PathEscape(urlname), query.Encode())

		var apiEvents []apiEvent
		if err := c.get(ctx, endpoint, &apiEvents); err != nil {
			return nil, fmt.Errorf("failed to get upcoming events of group %s: %w", urlname, err)
		}
		log.Debugf("Meetup group %s has %d upcoming events", urlname, len(apiEvents))
		for _, e := range apiEvents {
			events = append(events, e.toEvent())
		}
	}
	return events, nil
}

func (c *ClientImpl) GetAttendees(ctx context.Context, urlname string, eventId string) ([]Attendee, error) {
	query := url.Values{
		"page": {"200"},
		"only": {"response,member"},
		"omit": {"member.photo"},
	}
	endpoint := fmt.Sprintf("%s/%s/events/%s/rsvps?%s", c.baseUrl, url.PathEscape(urlname),
		url.PathEscape(eventId), query.Encode())

	var rsvps []apiRsvp
	if err := c.get(ctx, endpoint, &rsvps); err != nil {
		return nil, fmt.Errorf("failed to get rsvps of event %s: %w", eventId, err)
	}

	attendees := make([]Attendee, 0, len(rsvps))
	for _, rsvp := range rsvps {
		if rsvp.Response != "yes" {
			continue
		}
		role := RoleAttendee
		if rsvp.Member.EventContext.Host {
			role = RoleHost
		}
		attendees = append(attendees, Attendee{UserId: rsvp.Member.Id, Role: role})
	}
	return attendees, nil
}

// GetSelf returns the id of the member the access token belongs to.
func (c *ClientImpl) GetSelf(ctx context.Context) (int64, error) {
	var member apiMember
	if err := c.get(ctx, fmt.Sprintf("%s/members/self?only=id", c.baseUrl), &member); err != nil {
		return 0, fmt.Errorf("failed to get authenticated member: %w", err)
	}
	return member.Id, nil
}

func (c *ClientImpl) get(ctx context.Context, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrResourceNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &ApiError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
