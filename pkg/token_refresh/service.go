package token_refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/event_bus"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/lock"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type Service interface {
	// Refresh exchanges the principal's refresh token while holding the principal's lock.
	Refresh(ctx context.Context, p Principal) (*oauth2.Token, error)
}

type ServiceImpl struct {
	repo            Repository
	locker          lock.Locker
	exchanger       TokenExchanger
	eventBus        *event_bus.EventBus
	clock           utils.Clock
	lockWait        time.Duration
	lockLease       time.Duration
	exchangeTimeout time.Duration
}

func NewService(repo Repository, locker lock.Locker, exchanger TokenExchanger, eventBus *event_bus.EventBus,
	clock utils.Clock, cfg config.Application) *ServiceImpl {
	return &ServiceImpl{
		repo:            repo,
		locker:          locker,
		exchanger:       exchanger,
		eventBus:        eventBus,
		clock:           clock,
		lockWait:        cfg.Lock.Wait,
		lockLease:       cfg.Lock.Lease,
		exchangeTimeout: cfg.Refresh.ExchangeTimeout,
	}
}

func (s *ServiceImpl) Refresh(ctx context.Context, p Principal) (*oauth2.Token, error) {
	var token *oauth2.Token
	err := lock.WithLock(ctx, s.locker, p.LockName(), s.lockWait, s.lockLease, func(ctx context.Context) error {
		refreshToken, err := s.repo.GetRefreshToken(ctx, p)
		if err != nil {
			return err
		}

		exchangeCtx, cancel := context.WithTimeout(ctx, s.exchangeTimeout)
		defer cancel()
		newToken, err := s.exchanger.ExchangeRefreshToken(exchangeCtx, refreshToken)
		if err != nil {
			return fmt.Errorf("failed to exchange refresh token of %s: %w", p, err)
		}

		// a failed write loses the new pair, the next scheduled attempt starts over
		if err := s.repo.StoreTokens(ctx, p, newToken, s.clock.Now()); err != nil {
			return err
		}
		token = newToken
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Refreshed Meetup OAuth tokens of %s", p)
	if p.Kind == Organizer && s.eventBus != nil {
		event := event_bus.NewEvent(ctx, event_bus.OrganizerTokenRefreshedType, event_bus.OrganizerTokenRefreshed{
			AccessToken: token.AccessToken,
			RefreshedAt: s.clock.Now(),
		})
		if err := s.eventBus.Publish(event); err != nil {
			log.Errorf("failed to publish organizer token refresh: %v", err)
		}
	}
	return token, nil
}
