package token_refresh

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRefreshNow(t *testing.T) {
	t.Run("should be deterministic for same user and time", func(t *testing.T) {
		// given
		now := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

		// when
		first := ShouldRefreshNow(1234, now)
		second := ShouldRefreshNow(1234, now)

		// then
		assert.Equal(t, first, second)
	})

	t.Run("should match user bucket derived from day and hour", func(t *testing.T) {
		// given
		// 2024-03-10 is day 19792 since epoch, 19792 % 4 = 0, so 14:xx is bucket 14
		now := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

		// then
		assert.True(t, ShouldRefreshNow(14, now))
		assert.True(t, ShouldRefreshNow(96+14, now))
		assert.False(t, ShouldRefreshNow(15, now))
		assert.False(t, ShouldRefreshNow(14, now.Add(time.Hour)))
	})

	t.Run("should use UTC regardless of location", func(t *testing.T) {
		// given
		zurich := time.FixedZone("CET", 3600)
		utc := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

		// then
		assert.Equal(t, ShouldRefreshNow(14, utc), ShouldRefreshNow(14, utc.In(zurich)))
	})

	t.Run("should give every user exactly one bucket in four days", func(t *testing.T) {
		// given
		start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		userId := int64(4711)

		// when
		hits := 0
		for hour := 0; hour < 96; hour++ {
			if ShouldRefreshNow(userId, start.Add(time.Duration(hour)*time.Hour)) {
				hits++
			}
		}

		// then
		assert.Equal(t, 1, hits)
	})
}

func TestUserSweeper_Sweep(t *testing.T) {
	addUser := func(t *testing.T, env serviceTestEnv, userId int64, refreshToken string, lastRefresh *time.Time) {
		t.Helper()
		_, err := env.server.SAdd(store.UsersKey, strconv.FormatInt(userId, 10))
		require.NoError(t, err)
		if refreshToken != "" {
			env.server.HSet(store.UserTokensKey(userId), store.UserTokensRefreshTokenField, refreshToken)
		}
		if lastRefresh != nil {
			require.NoError(t, env.server.Set(store.UserLastRefreshTimeKey(userId), lastRefresh.Format(time.RFC3339)))
		}
	}

	t.Run("should refresh stale users and skip recent ones", func(t *testing.T) {
		// given
		env := setupServiceTest(t)
		sweeper := NewUserSweeper(env.service, env.repo, env.clock, env.cfg.Refresh)
		stale := testNow.Add(-31 * 24 * time.Hour)
		recent := testNow.Add(-24 * time.Hour)
		addUser(t, env, 1, "stale-refresh", &stale)
		addUser(t, env, 2, "recent-refresh", &recent)
		addUser(t, env, 3, "", nil)

		// when
		result, err := sweeper.Sweep(env.ctx)

		// then
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Refreshed: 1, Skipped: 2}, result)
		assert.Equal(t, []string{"stale-refresh"}, env.exchanger.Exchanged())
	})

	t.Run("should refresh never refreshed user only in its bucket", func(t *testing.T) {
		// given
		env := setupServiceTest(t)
		sweeper := NewUserSweeper(env.service, env.repo, env.clock, env.cfg.Refresh)
		// testNow is bucket 14
		addUser(t, env, 14, "in-bucket", nil)
		addUser(t, env, 15, "other-bucket", nil)

		// when
		result, err := sweeper.Sweep(env.ctx)

		// then
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Refreshed: 1, Skipped: 1}, result)
		assert.Equal(t, []string{"in-bucket"}, env.exchanger.Exchanged())
	})

	t.Run("should continue sweep after a failed refresh", func(t *testing.T) {
		// given
		env := setupServiceTest(t)
		sweeper := NewUserSweeper(env.service, env.repo, env.clock, env.cfg.Refresh)
		stale := testNow.Add(-40 * 24 * time.Hour)
		addUser(t, env, 1, "first", &stale)
		addUser(t, env, 2, "second", &stale)
		env.exchanger.SetError(errors.New("invalid_grant"))

		// when
		result, err := sweeper.Sweep(env.ctx)

		// then
		require.NoError(t, err)
		assert.Equal(t, 2, result.Failed)
		assert.Len(t, env.exchanger.Exchanged(), 2)
	})
}
