package app

import (
	"context"
	"net/http"
	"time"

	"github.com/dthul/swissrpg-discord-bot-sub001/internal/config"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/event_bus"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/lock"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/scheduler"
	"github.com/dthul/swissrpg-discord-bot-sub001/internal/utils"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/archive"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/discord"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/event_sync"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/meetup"
	"github.com/dthul/swissrpg-discord-bot-sub001/pkg/token_refresh"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock     utils.Clock
	EventBus  *event_bus.EventBus
	Scheduler *scheduler.Scheduler
	Locker    *lock.RedisLocker

	MeetupAuth    *meetup.Auth
	MeetupClients *meetup.ClientHolder
	Linker        *meetup.Linker
	LinkHandler   *meetup.LinkHandler

	TokenRepo          *token_refresh.RepositoryImpl
	TokenService       *token_refresh.ServiceImpl
	OrganizerRefresher *token_refresh.OrganizerRefresher
	UserSweeper        *token_refresh.UserSweeper
	TokenHandler       *token_refresh.Handler

	EventRepo    *event_sync.RepositoryImpl
	Reconciler   *event_sync.Reconciler
	Orchestrator *event_sync.Orchestrator
	SyncHandler  *event_sync.Handler

	DiscordSyncer *discord.Syncer

	// Archiver is nil unless the archive is enabled.
	Archiver *archive.Archiver
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(ctx context.Context, client redis.UniversalClient, archiveDb archive.DB,
	cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()
	deps.Scheduler = scheduler.New()
	deps.Locker = lock.NewRedisLocker(client)

	deps.TokenRepo = token_refresh.NewRepository(client)
	deps.MeetupAuth = meetup.NewAuth(cfg)
	deps.MeetupClients = meetup.NewClientHolder(func(accessToken string) meetup.Client {
		return meetup.NewClientWithToken(accessToken, cfg.Meetup.ApiUrl, cfg.Meetup.Groups)
	})
	deps.MeetupClients.SubscribeTo(deps.EventBus)
	accessToken, err := deps.TokenRepo.GetAccessToken(ctx, token_refresh.OrganizerPrincipal())
	switch {
	case err != nil:
		log.Warnf("Could not read the organizer access token, Meetup sync waits for the first refresh: %v", err)
	case accessToken == "":
		log.Warn("No organizer access token stored, Meetup sync waits for the first refresh")
	default:
		deps.MeetupClients.SetAccessToken(accessToken)
	}
	deps.Linker = meetup.NewLinker(client, cfg.Host, cfg.Meetup.LinkingTtl)
	deps.LinkHandler = meetup.NewLinkHandler(deps.Linker, deps.MeetupAuth, cfg.Meetup.ApiUrl)

	deps.TokenService = token_refresh.NewService(deps.TokenRepo, deps.Locker, deps.MeetupAuth, deps.EventBus, deps.Clock, cfg)
	deps.OrganizerRefresher = token_refresh.NewOrganizerRefresher(deps.TokenService, deps.TokenRepo, deps.Clock, cfg.Refresh)
	deps.UserSweeper = token_refresh.NewUserSweeper(deps.TokenService, deps.TokenRepo, deps.Clock, cfg.Refresh)
	deps.TokenHandler = token_refresh.NewHandler(deps.OrganizerRefresher)

	policy, err := event_sync.NewNamingPolicy(cfg.Sync.Patterns)
	if err != nil {
		return nil, err
	}
	deps.EventRepo = event_sync.NewRepository(client)
	deps.Reconciler = event_sync.NewReconciler(deps.MeetupClients, deps.EventRepo, policy, deps.Clock, cfg.Sync.RateLimit)

	discordRest := discord.NewRestClient(&http.Client{Timeout: 15 * time.Second}, cfg.Discord.ApiUrl, cfg.Discord.Token, cfg.Discord.GuildId)
	directory := discord.NewSeriesDirectory(client)
	deps.DiscordSyncer = discord.NewSyncer(deps.EventRepo, discord.NewClientImpl(discordRest, directory), directory, deps.Clock)

	deps.Orchestrator = event_sync.NewOrchestrator(deps.Reconciler, deps.Scheduler, deps.DiscordSyncer, deps.EventBus, cfg.Sync)
	deps.SyncHandler = event_sync.NewHandler(deps.Orchestrator, deps.Scheduler, deps.DiscordSyncer)

	if archiveDb != nil {
		deps.Archiver = archive.NewArchiver(deps.EventRepo, deps.TokenRepo, archive.NewRepository(archiveDb), deps.Clock, cfg.Archive.Interval)
	}

	return deps, nil
}
