package discord

import (
	"context"
	"errors"
	"fmt"
)

// ErrDiscordApi is the parent of every error reported by the Discord API.
var ErrDiscordApi = errors.New("discord api error")

type ApiError struct {
	StatusCode int
	Message    string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("discord api returned status %d: %s", e.StatusCode, e.Message)
}

func (e *ApiError) Unwrap() error {
	return ErrDiscordApi
}

type Client interface {
	AssignRole(ctx context.Context, userId string, roleId string) error
	// ChannelForSeries returns the channel linked with the series, or false if there is none.
	ChannelForSeries(ctx context.Context, seriesId string) (string, bool, error)
}

// SeriesRoles are the roles granting access to a series' channel.
type SeriesRoles struct {
	PlayerRoleId string
	HostRoleId   string
}

type RoleDirectory interface {
	RolesForSeries(ctx context.Context, seriesId string) (SeriesRoles, error)
}

// ClientImpl talks to Discord for role changes and reads the channel mapping from Redis.
type ClientImpl struct {
	*RestClient
	*SeriesDirectory
}

func NewClientImpl(rest *RestClient, directory *SeriesDirectory) *ClientImpl {
	return &ClientImpl{RestClient: rest, SeriesDirectory: directory}
}
