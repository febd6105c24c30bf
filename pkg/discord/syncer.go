package discord

import (
	"context"
	"fmt"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/utils"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/event_sync"
	log "github.com/sirupsen/logrus"
)

type SyncResult struct {
	SeriesSynced  int
	SeriesSkipped int
	RolesAssigned int
	Errors        int
}

// Syncer grants the players and hosts of upcoming events access to their series' channel.
type Syncer struct {
	events event_sync.Repository
	client Client
	roles  RoleDirectory
	clock  utils.Clock
}

func NewSyncer(events event_sync.Repository, client Client, roles RoleDirectory, clock utils.Clock) *Syncer {
	return &Syncer{events: events, client: client, roles: roles, clock: clock}
}

func (s *Syncer) SyncDiscord(ctx context.Context) error {
	_, err := s.Sync(ctx)
	return err
}

// Sync walks all series. Series without a channel or player role are not set up on Discord
// yet and are skipped. A failing series never stops the others.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	result := SyncResult{}
	seriesIds, err := s.events.ListSeries(ctx)
	if err != nil {
		return result, err
	}

	for _, seriesId := range seriesIds {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		synced, err := s.syncSeries(ctx, seriesId, &result)
		if err != nil {
			log.Errorf("Discord sync of series %s failed: %v", seriesId, err)
			result.Errors++
			continue
		}
		if synced {
			result.SeriesSynced++
		} else {
			result.SeriesSkipped++
		}
	}
	log.Infof("Discord sync: %d series synced, %d skipped, %d roles assigned, %d errors",
		result.SeriesSynced, result.SeriesSkipped, result.RolesAssigned, result.Errors)
	return result, nil
}

func (s *Syncer) syncSeries(ctx context.Context, seriesId string, result *SyncResult) (bool, error) {
	channelId, ok, err := s.client.ChannelForSeries(ctx, seriesId)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Tracef("series %s has no channel yet", seriesId)
		return false, nil
	}
	roles, err := s.roles.RolesForSeries(ctx, seriesId)
	if err != nil {
		return false, err
	}
	if roles.PlayerRoleId == "" {
		log.Debugf("series %s with channel %s has no player role yet", seriesId, channelId)
		return false, nil
	}

	events, err := s.events.ListSeriesEvents(ctx, seriesId)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	players := make(map[int64]struct{})
	hosts := make(map[int64]struct{})
	for _, event := range events {
		if event.Time.Before(now) {
			continue
		}
		for _, userId := range event.AttendeeIds {
			players[userId] = struct{}{}
		}
		for _, userId := range event.HostIds {
			hosts[userId] = struct{}{}
		}
	}

	var errs []error
	if err := s.assign(ctx, players, roles.PlayerRoleId, result); err != nil {
		errs = append(errs, err)
	}
	if roles.HostRoleId != "" {
		if err := s.assign(ctx, hosts, roles.HostRoleId, result); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return false, fmt.Errorf("%d role assignment batch(es) failed: %w", len(errs), errs[0])
	}
	return true, nil
}

func (s *Syncer) assign(ctx context.Context, meetupUserIds map[int64]struct{}, roleId string, result *SyncResult) error {
	if len(meetupUserIds) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(meetupUserIds))
	for id := range meetupUserIds {
		ids = append(ids, id)
	}
	linked, err := s.events.LinkedDiscordUsers(ctx, ids)
	if err != nil {
		return err
	}

	var firstErr error
	for meetupUserId, discordUserId := range linked {
		if err := s.client.AssignRole(ctx, discordUserId, roleId); err != nil {
			log.Errorf("failed to assign role %s to discord user %s (meetup user %d): %v",
				roleId, discordUserId, meetupUserId, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.RolesAssigned++
	}
	return firstErr
}
