package token_refresh

import (
	"context"
	"errors"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/lock"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/utils"
	log "github.com/sirupsen/logrus"
)

const refreshBuckets = 96

// ShouldRefreshNow spreads the first refresh of never-refreshed users over four days. Every user
// falls into one of 96 hourly buckets, the current bucket is derived from the UTC day and hour.
func ShouldRefreshNow(userId int64, now time.Time) bool {
	now = now.UTC()
	daysSinceEpoch := now.Unix() / int64(24*time.Hour/time.Second)
	bucket := (daysSinceEpoch%4)*24 + int64(now.Hour())
	userBucket := ((userId % refreshBuckets) + refreshBuckets) % refreshBuckets
	return userBucket == bucket
}

type SweepResult struct {
	Refreshed int
	Skipped   int
	Failed    int
}

type UserSweeper struct {
	service    Service
	repo       Repository
	clock      utils.Clock
	staleAfter time.Duration
}

func NewUserSweeper(service Service, repo Repository, clock utils.Clock, cfg config.Refresh) *UserSweeper {
	return &UserSweeper{
		service:    service,
		repo:       repo,
		clock:      clock,
		staleAfter: cfg.UserStaleAfter,
	}
}

// Sweep refreshes the tokens of all users that are due. A failure for one user never stops the
// sweep over the others.
func (s *UserSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	result := SweepResult{}
	userIds, err := s.repo.ListUsers(ctx)
	if err != nil {
		return result, err
	}
	log.Infof("Users token refresh: checking %d users", len(userIds))

	for _, userId := range userIds {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		due, err := s.isDue(ctx, userId)
		if err != nil {
			log.Errorf("failed to check token refresh of meetup user %d: %v", userId, err)
			result.Failed++
			continue
		}
		if !due {
			result.Skipped++
			continue
		}

		_, err = s.service.Refresh(ctx, UserPrincipal(userId))
		switch {
		case err == nil:
			result.Refreshed++
		case errors.Is(err, lock.ErrLockUnavailable):
			log.Debugf("token of meetup user %d is being refreshed elsewhere, skipping", userId)
			result.Skipped++
		case errors.Is(err, ErrNoRefreshToken):
			result.Skipped++
		default:
			log.Errorf("Could not refresh the OAuth token of meetup user %d: %v", userId, err)
			result.Failed++
		}
	}
	log.Infof("Users token refresh: %d refreshed, %d skipped, %d failed", result.Refreshed, result.Skipped, result.Failed)
	return result, nil
}

func (s *UserSweeper) isDue(ctx context.Context, userId int64) (bool, error) {
	p := UserPrincipal(userId)
	if _, err := s.repo.GetRefreshToken(ctx, p); err != nil {
		if errors.Is(err, ErrNoRefreshToken) {
			return false, nil
		}
		return false, err
	}
	now := s.clock.Now()
	lastRefresh, ok, err := s.repo.GetLastRefreshTime(ctx, p)
	if err != nil {
		return false, err
	}
	if ok {
		return now.Sub(lastRefresh) >= s.staleAfter, nil
	}
	return ShouldRefreshNow(userId, now), nil
}
