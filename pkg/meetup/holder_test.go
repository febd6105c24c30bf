package meetup

import (
	"context"
	"testing"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/event_bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenClient struct {
	*ClientStub
	token string
}

func TestClientHolder(t *testing.T) {
	factory := func(accessToken string) Client {
		return &tokenClient{ClientStub: NewClientStub(), token: accessToken}
	}

	t.Run("should report unavailable client before first token", func(t *testing.T) {
		// given
		holder := NewClientHolder(factory)

		// when
		client, ok := holder.Get()

		// then
		assert.False(t, ok)
		assert.Nil(t, client)
	})

	t.Run("should swap client when organizer token is refreshed", func(t *testing.T) {
		// given
		holder := NewClientHolder(factory)
		holder.SetAccessToken("first")
		before, ok := holder.Get()
		require.True(t, ok)
		bus := event_bus.NewEventBus()
		holder.SubscribeTo(bus)

		// when
		err := bus.Publish(event_bus.NewEvent(context.Background(), event_bus.OrganizerTokenRefreshedType,
			event_bus.OrganizerTokenRefreshed{AccessToken: "second"}))

		// then
		require.NoError(t, err)
		after, ok := holder.Get()
		require.True(t, ok)
		assert.Equal(t, "first", before.(*tokenClient).token)
		assert.Equal(t, "second", after.(*tokenClient).token)
	})

	t.Run("should ignore empty access token", func(t *testing.T) {
		// given
		holder := NewClientHolder(factory)
		holder.SetAccessToken("first")

		// when
		holder.SetAccessToken("")

		// then
		client, ok := holder.Get()
		require.True(t, ok)
		assert.Equal(t, "first", client.(*tokenClient).token)
	})
}
