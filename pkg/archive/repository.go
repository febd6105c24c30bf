package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

type ArchivedEvent struct {
	MeetupId   string
	Start      time.Time
	Name       string
	SeriesId   string
	SeriesType string
	Urlname    string
}

type Repository interface {
	// InsertEvent stores the event unless it is archived already. It reports whether a row was added.
	InsertEvent(ctx context.Context, event ArchivedEvent) (bool, error)
	InsertParticipants(ctx context.Context, eventId string, meetupUserIds []int64) (int64, error)
	InsertHosts(ctx context.Context, eventId string, meetupUserIds []int64) (int64, error)
	// StoreLink replaces stale mappings of either side. It reports whether anything changed.
	StoreLink(ctx context.Context, meetupUserId int64, discordUserId string) (bool, error)
}

// DB is satisfied by *pgxpool.Pool and *pgx.Conn.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

type RepositoryImpl struct {
	db DB
}

func NewRepository(db DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) InsertEvent(ctx context.Context, event ArchivedEvent) (bool, error) {
	query := `INSERT INTO game_events (meetup_id, start_time, name, event_series_id, series_type, urlname)
			  VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
			  ON CONFLICT DO NOTHING`
	tag, err := r.db.Exec(ctx, query, event.MeetupId, event.Start, event.Name, event.SeriesId, event.SeriesType, event.Urlname)
	if err != nil {
		return false, fmt.Errorf("failed to archive event %s: %w", event.MeetupId, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepositoryImpl) InsertParticipants(ctx context.Context, eventId string, meetupUserIds []int64) (int64, error) {
	return r.insertUsers(ctx, "game_event_participants", eventId, meetupUserIds)
}

func (r *RepositoryImpl) InsertHosts(ctx context.Context, eventId string, meetupUserIds []int64) (int64, error) {
	return r.insertUsers(ctx, "game_event_hosts", eventId, meetupUserIds)
}

func (r *RepositoryImpl) insertUsers(ctx context.Context, table string, eventId string, meetupUserIds []int64) (int64, error) {
	if len(meetupUserIds) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (event_meetup_id, user_meetup_id)
			  SELECT $1, unnest($2::BIGINT[])
			  ON CONFLICT DO NOTHING`, table)
	tag, err := r.db.Exec(ctx, query, eventId, meetupUserIds)
	if err != nil {
		return 0, fmt.Errorf("failed to archive %s of event %s: %w", table, eventId, err)
	}
	return tag.RowsAffected(), nil
}

func (r *RepositoryImpl) StoreLink(ctx context.Context, meetupUserId int64, discordUserId string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM meetup_discord_linking WHERE meetup_id = $1 AND discord_id = $2`,
		meetupUserId, discordUserId).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to read link of meetup user %d: %w", meetupUserId, err)
	}
	if count == 1 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `DELETE FROM meetup_discord_linking WHERE meetup_id = $1 OR discord_id = $2`,
		meetupUserId, discordUserId)
	if err != nil {
		return false, fmt.Errorf("failed to clear stale links of meetup user %d: %w", meetupUserId, err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO meetup_discord_linking (meetup_id, discord_id) VALUES ($1, $2)`,
		meetupUserId, discordUserId)
	if err != nil {
		return false, fmt.Errorf("failed to store link of meetup user %d: %w", meetupUserId, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}
