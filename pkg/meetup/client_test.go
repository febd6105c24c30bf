package meetup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientImpl_GetUpcomingEvents(t *testing.T) {
	t.Run("should query all groups and map events", func(t *testing.T) {
		// given
		var paths []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			assert.Equal(t, "upcoming", r.URL.Query().Get("status"))
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/group-a/events":
				_, _ = w.Write([]byte(`[{"id":"e1","name":"Dragons Session 0","time":1700000000000,
					"link":"https://meetup.com/group-a/events/e1","group":{"urlname":"group-a"},
					"event_hosts":[{"id":7,"name":"Host"}]}]`))
			case "/group-b/events":
				_, _ = w.Write([]byte(`[]`))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()
		client := NewClient(server.Client(), server.URL, []string{"group-a", "group-b"})

		// when
		events, err := client.GetUpcomingEvents(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"/group-a/events", "/group-b/events"}, paths)
		require.Len(t, events, 1)
		assert.Equal(t, Event{
			Id:      "e1",
			Name:    "Dragons Session 0",
			Time:    time.UnixMilli(1700000000000).UTC(),
			Link:    "https://meetup.com/group-a/events/e1",
			Urlname: "group-a",
			HostIds: []int64{7},
		}, events[0])
	})

	t.Run("should return api error with status code", func(t *testing.T) {
		// given
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":[{"code":"auth_fail"}]}`))
		}))
		defer server.Close()
		client := NewClient(server.Client(), server.URL, []string{"group-a"})

		// when
		_, err := client.GetUpcomingEvents(context.Background())

		// then
		require.ErrorIs(t, err, ErrRemoteApi)
		var apiErr *ApiError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.True(t, apiErr.IsAuthFailure())
	})
}

func TestClientImpl_GetAttendees(t *testing.T) {
	t.Run("should keep yes rsvps and mark hosts", func(t *testing.T) {
		// given
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/group-a/events/e1/rsvps", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[
				{"member":{"id":1,"name":"Player One","event_context":{"host":false}},"response":"yes"},
				{"member":{"id":2,"name":"Player Two","event_context":{"host":false}},"response":"no"},
				{"member":{"id":3,"name":"Game Master","event_context":{"host":true}},"response":"yes"},
				{"member":{"id":4,"name":"Waiting","event_context":{"host":false}},"response":"waitlist"}
			]`))
		}))
		defer server.Close()
		client := NewClient(server.Client(), server.URL, nil)

		// when
		attendees, err := client.GetAttendees(context.Background(), "group-a", "e1")

		// then
		require.NoError(t, err)
		assert.Equal(t, []Attendee{
			{UserId: 1, Role: RoleAttendee},
			{UserId: 3, Role: RoleHost},
		}, attendees)
	})

	t.Run("should return not found for deleted event", func(t *testing.T) {
		// given
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()
		client := NewClient(server.Client(), server.URL, nil)

		// when
		_, err := client.GetAttendees(context.Background(), "group-a", "gone")

		// then
		require.ErrorIs(t, err, ErrResourceNotFound)
	})
}

func TestNewClientWithToken(t *testing.T) {
	t.Run("should send bearer token", func(t *testing.T) {
		// given
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer organizer-token", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`[]`))
		}))
		defer server.Close()
		client := NewClientWithToken("organizer-token", server.URL, []string{"group-a"})

		// when
		events, err := client.GetUpcomingEvents(context.Background())

		// then
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
