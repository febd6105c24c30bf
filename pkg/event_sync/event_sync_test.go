package event_sync

import (
	"testing"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamingPolicy(t *testing.T) {
	policy, err := NewNamingPolicy(config.DefaultNamingPatterns)
	require.NoError(t, err)

	t.Run("should match session zero, intro and one-shot events", func(t *testing.T) {
		for _, name := range []string{
			"Session 0 [Intro]",
			"Curse of Strahd Session 0",
			"Dungeon crawl [Intro games series]",
			"Tomb of Horrors [D&D One-Shot]",
			"Into the Wild [oneshot]",
			"Dark Heresy (New Campaign)",
			"Dark Heresy Session 2 [campaign 300400]",
		} {
			assert.True(t, policy.Matches(name), name)
		}
	})

	t.Run("should ignore events without a marker", func(t *testing.T) {
		for _, name := range []string{
			"Board game night",
			"Curse of Strahd Session 10",
			"Pathfinder session 3",
			"Introduction to painting miniatures",
		} {
			assert.False(t, policy.Matches(name), name)
		}
	})

	t.Run("should reject invalid pattern", func(t *testing.T) {
		// when
		_, err := NewNamingPolicy([]string{"(unclosed"})

		// then
		assert.Error(t, err)
	})

	t.Run("should reject empty pattern list", func(t *testing.T) {
		// when
		_, err := NewNamingPolicy(nil)

		// then
		assert.Error(t, err)
	})
}

func TestClassifySeries(t *testing.T) {
	t.Run("should derive series type from event name", func(t *testing.T) {
		assert.Equal(t, SeriesIntro, ClassifySeries("Session 0 [Intro]"))
		assert.Equal(t, SeriesIntro, ClassifySeries("Dungeon crawl [Intro games series]"))
		assert.Equal(t, SeriesOneShot, ClassifySeries("Tomb of Horrors [One-Shot]"))
		assert.Equal(t, SeriesCampaign, ClassifySeries("Dark Heresy [New Campaign]"))
		assert.Equal(t, SeriesAdventure, ClassifySeries("Lost Mine [New Adventure]"))
	})
}

func TestParseSeriesTags(t *testing.T) {
	t.Run("should read continuation, channel and online shortcodes", func(t *testing.T) {
		continuation, err := ParseSeriesTags("Dark Heresy Session 2 (Campaign abc123) [Online]")
		require.NoError(t, err)
		assert.Equal(t, SeriesTags{ContinuesEvent: "abc123", Online: true}, continuation)

		channel, err := ParseSeriesTags("Lost Mine [New Adventure] [channel 7001]")
		require.NoError(t, err)
		assert.Equal(t, SeriesTags{ChannelId: "7001"}, channel)
	})

	t.Run("should not read new campaign as continuation", func(t *testing.T) {
		tags, err := ParseSeriesTags("Dark Heresy [New campaign]")
		require.NoError(t, err)
		assert.Equal(t, SeriesTags{}, tags)
	})

	t.Run("should reject continuation with channel", func(t *testing.T) {
		_, err := ParseSeriesTags("Session 2 [campaign 300400] [channel 7001]")
		assert.ErrorIs(t, err, ErrConflictingTags)
	})
}
