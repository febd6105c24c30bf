package token_refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type Repository interface {
	// GetRefreshToken returns ErrNoRefreshToken when the principal has none.
	GetRefreshToken(ctx context.Context, p Principal) (string, error)
	GetAccessToken(ctx context.Context, p Principal) (string, error)
	// StoreTokens replaces the principal's token pair and records the refresh time atomically.
	StoreTokens(ctx context.Context, p Principal, token *oauth2.Token, refreshedAt time.Time) error
	GetLastRefreshTime(ctx context.Context, p Principal) (time.Time, bool, error)
	GetOrganizerNextRefresh(ctx context.Context) (time.Time, bool, error)
	SetOrganizerNextRefresh(ctx context.Context, next time.Time) error
	ListUsers(ctx context.Context) ([]int64, error)
}

type RepositoryImpl struct {
	client redis.UniversalClient
}

func NewRepository(client redis.UniversalClient) *RepositoryImpl {
	return &RepositoryImpl{client: client}
}

func (r *RepositoryImpl) GetRefreshToken(ctx context.Context, p Principal) (string, error) {
	var cmd *redis.StringCmd
	if p.Kind == Organizer {
		cmd = r.client.Get(ctx, store.OrganizerRefreshTokenKey)
	} else {
		cmd = r.client.HGet(ctx, store.UserTokensKey(p.UserId), store.UserTokensRefreshTokenField)
	}
	token, err := cmd.Result()
	if errors.Is(err, redis.Nil) || (err == nil && token == "") {
		return "", ErrNoRefreshToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token of %s: %w", p, store.Unavailable(err))
	}
	return token, nil
}

func (r *RepositoryImpl) GetAccessToken(ctx context.Context, p Principal) (string, error) {
	var cmd *redis.StringCmd
	if p.Kind == Organizer {
		cmd = r.client.Get(ctx, store.OrganizerAccessTokenKey)
	} else {
		cmd = r.client.HGet(ctx, store.UserTokensKey(p.UserId), store.UserTokensAccessTokenField)
	}
	token, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read access token of %s: %w", p, store.Unavailable(err))
	}
	return token, nil
}

func (r *RepositoryImpl) StoreTokens(ctx context.Context, p Principal, token *oauth2.Token, refreshedAt time.Time) error {
	var keys []string
	if p.Kind == Organizer {
		keys = []string{store.OrganizerAccessTokenKey, store.OrganizerRefreshTokenKey}
	} else {
		keys = []string{store.UserTokensKey(p.UserId)}
	}
	refreshedAtValue := refreshedAt.UTC().Format(time.RFC3339)

	_, err := store.WithTransaction(ctx, r.client, keys,
		func(ctx context.Context, tx *redis.Tx, pipe redis.Pipeliner) (struct{}, error) {
			if p.Kind == Organizer {
				pipe.Set(ctx, store.OrganizerAccessTokenKey, token.AccessToken, 0)
				if token.RefreshToken != "" {
					pipe.Set(ctx, store.OrganizerRefreshTokenKey, token.RefreshToken, 0)
				}
				pipe.Set(ctx, store.OrganizerLastRefreshTimeKey, refreshedAtValue, 0)
				return struct{}{}, nil
			}
			tokensKey := store.UserTokensKey(p.UserId)
			pipe.HSet(ctx, tokensKey, store.UserTokensAccessTokenField, token.AccessToken)
			if token.RefreshToken != "" {
				pipe.HSet(ctx, tokensKey, store.UserTokensRefreshTokenField, token.RefreshToken)
			}
			pipe.Set(ctx, store.UserLastRefreshTimeKey(p.UserId), refreshedAtValue, 0)
			return struct{}{}, nil
		})
	if err != nil {
		return fmt.Errorf("failed to store tokens of %s: %w", p, err)
	}
	return nil
}

func (r *RepositoryImpl) GetLastRefreshTime(ctx context.Context, p Principal) (time.Time, bool, error) {
	key := store.OrganizerLastRefreshTimeKey
	if p.Kind == User {
		key = store.UserLastRefreshTimeKey(p.UserId)
	}
	return r.getTime(ctx, key)
}

func (r *RepositoryImpl) GetOrganizerNextRefresh(ctx context.Context) (time.Time, bool, error) {
	return r.getTime(ctx, store.OrganizerNextRefreshTimeKey)
}

func (r *RepositoryImpl) SetOrganizerNextRefresh(ctx context.Context, next time.Time) error {
	err := r.client.Set(ctx, store.OrganizerNextRefreshTimeKey, next.UTC().Format(time.RFC3339), 0).Err()
	if err != nil {
		return fmt.Errorf("failed to store next organizer refresh time: %w", store.Unavailable(err))
	}
	return nil
}

func (r *RepositoryImpl) ListUsers(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, store.UsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list meetup users: %w", store.Unavailable(err))
	}
	userIds := make([]int64, 0, len(members))
	for _, member := range members {
		userId, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			log.Warnf("ignoring invalid meetup user id %q", member)
			continue
		}
		userIds = append(userIds, userId)
	}
	return userIds, nil
}

// getTime reads an RFC3339 timestamp. Unparseable values are treated as missing.
func (r *RepositoryImpl) getTime(ctx context.Context, key string) (time.Time, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read %s: %w", key, store.Unavailable(err))
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		log.Warnf("ignoring invalid timestamp %q in %s", value, key)
		return time.Time{}, false, nil
	}
	return parsed, true, nil
}
