package token_refresh

import (
	"context"
	"errors"
	"fmt"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	"golang.org/x/oauth2"
)

// ErrNoRefreshToken means the principal has to link their Meetup account again.
var ErrNoRefreshToken = errors.New("no refresh token available")

type PrincipalKind int

const (
	Organizer PrincipalKind = iota + 1
	User
)

// Principal is an identity whose Meetup OAuth tokens are tracked.
type Principal struct {
	Kind   PrincipalKind
	UserId int64
}

func OrganizerPrincipal() Principal {
	return Principal{Kind: Organizer}
}

func UserPrincipal(meetupUserId int64) Principal {
	return Principal{Kind: User, UserId: meetupUserId}
}

// LockName is the name of the lock serializing refreshes of this principal.
func (p Principal) LockName() string {
	if p.Kind == Organizer {
		return store.OrganizerRefreshLockKey
	}
	return store.UserRefreshLockKey(p.UserId)
}

func (p Principal) String() string {
	if p.Kind == Organizer {
		return "organizer"
	}
	return fmt.Sprintf("meetup user %d", p.UserId)
}

type TokenExchanger interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}
