package test_utils

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	postgresImage   = "postgres:18.1-alpine"
	archiveSnapshot = "archive-clean"
)

var archiveDbConfig = config.Database{
	User:   "test_swissrpg",
	Pass:   "test_swissrpg",
	Name:   "swissrpg",
	Schema: "swissrpg",
}

// initScript resolves dev/init.sql relative to this file, independent of the test's working directory.
func initScript() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "dev", "init.sql")
}

// recoverAsError turns a panic into *err. testcontainers panics instead of failing when it
// finds no Docker host.
func recoverAsError(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("docker unavailable: %v", r)
	}
}

// TestWithDB starts Postgres with the archive schema applied and snapshotted, tests Restore the
// snapshot when done. The returned function opens a fresh pool. An error means Docker is not
// usable and database tests should be skipped.
func TestWithDB() (_ *postgres.PostgresContainer, _ func() *pgxpool.Pool, err error) {
	defer recoverAsError(&err)
	ctx := context.Background()

	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithInitScripts(initScript()),
		postgres.WithDatabase(archiveDbConfig.Name),
		postgres.WithUsername(archiveDbConfig.User),
		postgres.WithPassword(archiveDbConfig.Pass),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	cfg := archiveDbConfig
	if cfg.Host, err = container.Host(ctx); err != nil {
		return container, nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container, nil, fmt.Errorf("failed to get container port: %w", err)
	}
	cfg.Port = port.Int()
	log.Debugf("Archive test database listening on %s:%d", cfg.Host, cfg.Port)

	if err := database.Migrate(cfg); err != nil {
		return container, nil, err
	}
	if err := container.Snapshot(ctx, postgres.WithSnapshotName(archiveSnapshot)); err != nil {
		return container, nil, fmt.Errorf("failed to snapshot archive database: %w", err)
	}

	return container, func() *pgxpool.Pool {
		pool, err := database.Open(cfg)
		if err != nil {
			log.Fatalf("Failed to open archive test database: %v", err)
		}
		return pool
	}, nil
}
