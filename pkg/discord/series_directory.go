package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	"github.com/redis/go-redis/v9"
)

// SeriesDirectory reads the Discord channel and roles attached to an event series.
type SeriesDirectory struct {
	client redis.UniversalClient
}

func NewSeriesDirectory(client redis.UniversalClient) *SeriesDirectory {
	return &SeriesDirectory{client: client}
}

func (d *SeriesDirectory) ChannelForSeries(ctx context.Context, seriesId string) (string, bool, error) {
	channelId, err := d.client.Get(ctx, store.SeriesChannelKey(seriesId)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && channelId == "") {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read channel of series %s: %w", seriesId, store.Unavailable(err))
	}
	return channelId, true, nil
}

func (d *SeriesDirectory) RolesForSeries(ctx context.Context, seriesId string) (SeriesRoles, error) {
	values, err := d.client.MGet(ctx, store.SeriesRoleKey(seriesId), store.SeriesHostRoleKey(seriesId)).Result()
	if err != nil {
		return SeriesRoles{}, fmt.Errorf("failed to read roles of series %s: %w", seriesId, store.Unavailable(err))
	}
	roles := SeriesRoles{}
	if value, ok := values[0].(string); ok {
		roles.PlayerRoleId = value
	}
	if value, ok := values[1].(string); ok {
		roles.HostRoleId = value
	}
	return roles, nil
}
