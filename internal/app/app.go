package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/database"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/store"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/archive"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const (
	organizerRefreshTaskName = "organizer token refresh"
	archiveTaskName          = "archive"
)

// Application wires configuration, stores, background tasks, router, and server lifecycle.
type Application struct {
	cfg   config.Application
	redis *redis.Client
	db    *pgxpool.Pool
	deps  *Dependencies
	sweep *cron.Cron
	srv   *http.Server
}

// NewApplication constructs the full application, ready to Run().
func NewApplication(configFile string) (*Application, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	redisClient, err := store.Open(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	var db *pgxpool.Pool
	var archiveDb archive.DB
	if cfg.Archive.Enabled {
		if err := database.Migrate(cfg.Database); err != nil {
			_ = redisClient.Close()
			return nil, err
		}
		db, err = database.Open(cfg.Database)
		if err != nil {
			_ = redisClient.Close()
			return nil, err
		}
		archiveDb = db
	}

	deps, err := BuildDependencies(ctx, redisClient, archiveDb, cfg)
	if err != nil {
		_ = redisClient.Close()
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	r := mux.NewRouter()
	SetupMiddleware(r)
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Http.Addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{
		cfg:   cfg,
		redis: redisClient,
		db:    db,
		deps:  deps,
		sweep: cron.New(),
		srv:   srv,
	}, nil
}

// Run starts the background tasks and the HTTP server and blocks until SIGINT or SIGTERM.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.deps.Scheduler.Run(ctx)
	}()

	a.scheduleTasks(ctx)
	if err := a.deps.Orchestrator.Start(ctx); err != nil {
		stop()
		wg.Wait()
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("failed to shut down http server: %v", err)
	}
	<-a.sweep.Stop().Done()
	a.deps.Orchestrator.Stop()
	wg.Wait()
	return runErr
}

func (a *Application) scheduleTasks(ctx context.Context) {
	organizer := a.deps.OrganizerRefresher
	a.deps.Scheduler.AddTaskAt(organizer.FirstRun(ctx), organizerRefreshTaskName, organizer.Task)

	_, err := a.sweep.AddFunc(a.cfg.Refresh.UserSweep, func() {
		if _, err := a.deps.UserSweeper.Sweep(ctx); err != nil {
			log.Errorf("Users token refresh failed: %v", err)
		}
	})
	if err != nil {
		log.Errorf("invalid user sweep schedule %q, user tokens are not refreshed: %v", a.cfg.Refresh.UserSweep, err)
	} else {
		a.sweep.Start()
	}

	if a.deps.Archiver != nil {
		a.deps.Scheduler.AddTaskNow(archiveTaskName, a.deps.Archiver.Task)
	}
}

func (a *Application) close() {
	if err := a.redis.Close(); err != nil {
		log.Errorf("failed to close redis client: %v", err)
	}
	if a.db != nil {
		a.db.Close()
	}
}
