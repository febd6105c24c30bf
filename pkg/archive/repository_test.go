package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/test_utils"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool
var dbErr error

func TestMain(m *testing.M) {
	pgContainer, openDb, dbErr = test_utils.TestWithDB()
	if dbErr != nil {
		log.Warnf("database tests will be skipped: %v", dbErr)
	}
	code := m.Run()
	if pgContainer != nil {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			log.Errorf("failed to terminate container: %s", err)
		}
	}
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, *RepositoryImpl, *pgxpool.Pool) {
	if dbErr != nil {
		t.Skipf("postgres unavailable: %v", dbErr)
	}
	ctx := context.Background()
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})
	return ctx, NewRepository(db), db
}

func TestRepositoryImpl_InsertEvent(t *testing.T) {
	event := ArchivedEvent{
		MeetupId:   "300100",
		Start:      time.Date(2024, 3, 2, 18, 30, 0, 0, time.UTC),
		Name:       "Session 0 [Intro]",
		SeriesId:   "series-1",
		SeriesType: "intro",
		Urlname:    "SwissRPG-Zurich",
	}

	t.Run("should insert event once", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)

		// when
		first, err := repo.InsertEvent(ctx, event)
		require.NoError(t, err)
		second, err := repo.InsertEvent(ctx, event)
		require.NoError(t, err)

		// then
		assert.True(t, first)
		assert.False(t, second)
		var name, seriesType string
		var start time.Time
		err = db.QueryRow(ctx, `SELECT name, series_type, start_time FROM game_events WHERE meetup_id = $1`, event.MeetupId).
			Scan(&name, &seriesType, &start)
		require.NoError(t, err)
		assert.Equal(t, event.Name, name)
		assert.Equal(t, "intro", seriesType)
		assert.True(t, event.Start.Equal(start))
	})

	t.Run("should insert participants and hosts without duplicates", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)
		_, err := repo.InsertEvent(ctx, event)
		require.NoError(t, err)

		// when
		firstParticipants, err := repo.InsertParticipants(ctx, event.MeetupId, []int64{11, 12})
		require.NoError(t, err)
		secondParticipants, err := repo.InsertParticipants(ctx, event.MeetupId, []int64{11, 12, 13})
		require.NoError(t, err)
		hosts, err := repo.InsertHosts(ctx, event.MeetupId, []int64{99})
		require.NoError(t, err)

		// then
		assert.Equal(t, int64(2), firstParticipants)
		assert.Equal(t, int64(1), secondParticipants)
		assert.Equal(t, int64(1), hosts)
	})
}

func TestRepositoryImpl_StoreLink(t *testing.T) {
	t.Run("should replace stale links", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		changed, err := repo.StoreLink(ctx, 11, "discord-a")
		require.NoError(t, err)
		require.True(t, changed)

		// when
		unchanged, err := repo.StoreLink(ctx, 11, "discord-a")
		require.NoError(t, err)
		relinked, err := repo.StoreLink(ctx, 12, "discord-a")
		require.NoError(t, err)

		// then
		assert.False(t, unchanged)
		assert.True(t, relinked)
		var count int
		err = db.QueryRow(ctx, `SELECT COUNT(*) FROM meetup_discord_linking`).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		var meetupId int64
		err = db.QueryRow(ctx, `SELECT meetup_id FROM meetup_discord_linking WHERE discord_id = $1`, "discord-a").Scan(&meetupId)
		require.NoError(t, err)
		assert.Equal(t, int64(12), meetupId)
	})
}
