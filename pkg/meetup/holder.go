package meetup

import (
	"sync/atomic"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/event_bus"
	log "github.com/sirupsen/logrus"
)

type clientRef struct {
	client Client
}

// ClientHolder keeps the Meetup client currently in use. The client is replaced as a whole
// whenever the organizer token changes. Readers take a snapshot with Get and keep using it for
// the duration of one operation.
type ClientHolder struct {
	current atomic.Pointer[clientRef]
	factory func(accessToken string) Client
}

func NewClientHolder(factory func(accessToken string) Client) *ClientHolder {
	return &ClientHolder{factory: factory}
}

// Get returns the current client, or false while no organizer token is available yet.
func (h *ClientHolder) Get() (Client, bool) {
	ref := h.current.Load()
	if ref == nil {
		return nil, false
	}
	return ref.client, true
}

func (h *ClientHolder) Set(client Client) {
	if client == nil {
		h.current.Store(nil)
		return
	}
	h.current.Store(&clientRef{client: client})
}

// SetAccessToken builds a fresh client for the token and swaps it in.
func (h *ClientHolder) SetAccessToken(accessToken string) {
	if accessToken == "" {
		return
	}
	h.Set(h.factory(accessToken))
}

// SubscribeTo swaps the client whenever the organizer token is refreshed.
func (h *ClientHolder) SubscribeTo(bus *event_bus.EventBus) (unsubscribe func()) {
	return event_bus.SubscribeTyped(bus, event_bus.OrganizerTokenRefreshedType,
		func(e event_bus.EventT[event_bus.OrganizerTokenRefreshed]) error {
			log.Info("Replacing Meetup client after organizer token refresh")
			h.SetAccessToken(e.Data.AccessToken)
			return nil
		})
}
