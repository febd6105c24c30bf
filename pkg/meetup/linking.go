package meetup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

var ErrLinkingTokenNotFound = errors.New("linking token not found or expired")

// ErrAlreadyLinked is returned when either account is already linked with a different one.
var ErrAlreadyLinked = errors.New("account already linked")

const (
	linkingIdAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	linkingIdLength   = 16
)

// Linker hands out short-lived links that connect a Discord user with their Meetup account.
type Linker struct {
	client  redis.UniversalClient
	baseUrl string
	ttl     time.Duration
}

func NewLinker(client redis.UniversalClient, baseUrl string, ttl time.Duration) *Linker {
	return &Linker{client: client, baseUrl: strings.TrimSuffix(baseUrl, "/"), ttl: ttl}
}

// GenerateLinkingURL stores a linking id for the Discord user and returns the URL to send them.
func (l *Linker) GenerateLinkingURL(ctx context.Context, discordUserId string) (string, error) {
	linkingId, err := gonanoid.Generate(linkingIdAlphabet, linkingIdLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate linking id: %w", err)
	}
	if err := l.client.Set(ctx, store.LinkingKey(linkingId), discordUserId, l.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store linking id: %w", store.Unavailable(err))
	}
	return fmt.Sprintf("%s/link/%s", l.baseUrl, linkingId), nil
}

// Pending reports whether the linking id exists and has not been used yet.
func (l *Linker) Pending(ctx context.Context, linkingId string) (bool, error) {
	count, err := l.client.Exists(ctx, store.LinkingKey(linkingId)).Result()
	if err != nil {
		return false, store.Unavailable(err)
	}
	return count == 1, nil
}

// LinkUser consumes the linking id and stores the Discord mapping in both directions together
// with the user's OAuth tokens. A linking id can only be used once. Linking the same pair again
// only replaces the tokens.
func (l *Linker) LinkUser(ctx context.Context, linkingId string, meetupUserId int64, token *oauth2.Token) (string, error) {
	linkingKey := store.LinkingKey(linkingId)
	discordKey := store.UserDiscordKey(meetupUserId)
	tokensKey := store.UserTokensKey(meetupUserId)
	meetupId := strconv.FormatInt(meetupUserId, 10)

	return store.WithTransaction(ctx, l.client, []string{linkingKey, discordKey, tokensKey},
		func(ctx context.Context, tx *redis.Tx, pipe redis.Pipeliner) (string, error) {
			discordUserId, err := tx.Get(ctx, linkingKey).Result()
			if errors.Is(err, redis.Nil) {
				return "", ErrLinkingTokenNotFound
			}
			if err != nil {
				return "", store.Unavailable(err)
			}

			reverseKey := store.DiscordUserMeetupKey(discordUserId)
			if err := tx.Watch(ctx, reverseKey).Err(); err != nil {
				return "", store.Unavailable(err)
			}
			linkedMeetupId, err := getOptional(ctx, tx, reverseKey)
			if err != nil {
				return "", err
			}
			if linkedMeetupId != "" && linkedMeetupId != meetupId {
				return "", fmt.Errorf("%w: discord user %s is linked with meetup user %s", ErrAlreadyLinked, discordUserId, linkedMeetupId)
			}
			linkedDiscordId, err := getOptional(ctx, tx, discordKey)
			if err != nil {
				return "", err
			}
			if linkedDiscordId != "" && linkedDiscordId != discordUserId {
				return "", fmt.Errorf("%w: meetup user %d is linked with discord user %s", ErrAlreadyLinked, meetupUserId, linkedDiscordId)
			}

			pipe.Del(ctx, linkingKey)
			pipe.Set(ctx, discordKey, discordUserId, 0)
			pipe.Set(ctx, reverseKey, meetupId, 0)
			pipe.SAdd(ctx, store.UsersKey, meetupUserId)
			if token != nil {
				pipe.HSet(ctx, tokensKey,
					store.UserTokensAccessTokenField, token.AccessToken,
					store.UserTokensRefreshTokenField, token.RefreshToken)
			}
			return discordUserId, nil
		})
}

func getOptional(ctx context.Context, tx *redis.Tx, key string) (string, error) {
	value, err := tx.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", store.Unavailable(err)
	}
	return value, nil
}
