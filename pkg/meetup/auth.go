package meetup

import (
	"context"
	"errors"
	"fmt"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"golang.org/x/oauth2"
)

type Auth struct {
	oauthConfig *oauth2.Config
}

func NewAuth(cfg config.Application) *Auth {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Meetup.ClientId,
		ClientSecret: cfg.Meetup.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.Meetup.AuthUrl,
			TokenURL:  cfg.Meetup.TokenUrl,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: cfg.Host + "/link/redirect",
	}
	return &Auth{oauthConfig: oauthConfig}
}

// ExchangeRefreshToken trades a refresh token for a new token pair. When Meetup does not
// issue a new refresh token the old one is kept in the result.
func (a *Auth) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tokenSource := a.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &ApiError{StatusCode: retrieveErr.Response.StatusCode, Message: retrieveErr.ErrorCode}
		}
		return nil, fmt.Errorf("unable to refresh Meetup token: %w", err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

// AuthCodeURL is where a user starts the Meetup authorization. The linking id travels as state.
func (a *Auth) AuthCodeURL(state string) string {
	return a.oauthConfig.AuthCodeURL(state)
}

func (a *Auth) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &ApiError{StatusCode: retrieveErr.Response.StatusCode, Message: retrieveErr.ErrorCode}
		}
		return nil, fmt.Errorf("unable to exchange Meetup authorization code: %w", err)
	}
	return token, nil
}
