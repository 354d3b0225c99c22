package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/config"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/clock"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/dependencies/random"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/chat"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/events"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/identity"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/maintenance"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/moderation"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/presence"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/rooms"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/memory"
	redisstorage "github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/redis"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/sqlstore"
)

// Maintenance job names
const (
	JobRetention      = "message-retention"
	JobSpawnExpiry    = "spawn-expiry"
	JobAutoSpawn      = "auto-spawn"
	JobBanSweep       = "ban-sweep"
	JobKnockPurge     = "knock-purge"
	JobSessionCleanup = "session-cleanup"
	JobPresenceSweep  = "presence-sweep"
	JobHubCleanup     = "hub-cleanup"
)

// App contains all wired application components
type App struct {
	Config config.Config

	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Realtime
	Hubs      *realtime.HubManager
	Publisher realtime.Publisher
	// Relay is set when events fan out through redis
	Relay *realtime.RedisRelay

	// Services
	Poster            *chat.Poster
	IdentityService   *identity.Service
	RoomService       *rooms.Service
	ModerationService *moderation.Service
	ChatService       *chat.Service
	EventsService     *events.Service
	Sweeper           *presence.Sweeper
	Scheduler         *maintenance.Scheduler

	logger *slog.Logger
}

// New creates a new application with all dependencies wired. A nil logger
// discards output.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	hubs := realtime.NewHubManager(logger)
	var publisher realtime.Publisher = realtime.NewLocalBroker(hubs, logger)
	var relay *realtime.RedisRelay
	if rs, ok := store.(*redisstorage.Storage); ok {
		relay = realtime.NewRedisRelay(rs.Client(), cfg.Storage.RelayChannel, hubs, logger)
		publisher = relay
	}

	app, err := newWithDependencies(store, clock.New(), random.New(), hubs, publisher, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	app.Relay = relay
	return app, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case config.StorageMemory, "":
		return memory.New(), nil
	case config.StorageRedis:
		return redisstorage.New(cfg.Redis)
	case config.StorageSQL:
		return sqlstore.Open(ctx, cfg.SQL)
	default:
		return nil, errors.New("invalid storage type: must be 'memory', 'redis' or 'sql'")
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	clk clock.Clock,
	rnd random.Random,
	hubs *realtime.HubManager,
	publisher realtime.Publisher,
	cfg config.Config,
	logger *slog.Logger,
) (*App, error) {
	evaluator := presence.NewEvaluator(cfg.Presence)
	poster := chat.NewPoster(store, publisher, clk, logger)
	bans := moderation.NewBans(store, clk)

	roomService := rooms.New(store, bans, poster, publisher, evaluator, clk, rnd, cfg.Rooms, logger)
	moderationService := moderation.New(store, roomService, publisher, clk, cfg.Moderation, logger)
	identityService := identity.New(store, clk, roomService, cfg.Identity, logger)
	eventsService := events.New(store, poster, publisher, clk, rnd, cfg.Events, logger)
	chatService := chat.New(poster, eventsService, cfg.Chat, logger)
	sweeper := presence.NewSweeper(store, roomService, evaluator, clk, logger)

	app := &App{
		Config:            cfg,
		Storage:           store,
		Clock:             clk,
		Random:            rnd,
		Hubs:              hubs,
		Publisher:         publisher,
		Poster:            poster,
		IdentityService:   identityService,
		RoomService:       roomService,
		ModerationService: moderationService,
		ChatService:       chatService,
		EventsService:     eventsService,
		Sweeper:           sweeper,
		Scheduler:         maintenance.NewScheduler(logger),
		logger:            logger,
	}
	if err := app.addJobs(cfg.Maintenance); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) addJobs(cfg config.MaintenanceConfig) error {
	jobs := []maintenance.Job{
		{Name: JobRetention, Interval: cfg.RetentionInterval, Run: a.ChatService.SweepRetention},
		{Name: JobSpawnExpiry, Interval: cfg.ExpiryInterval, Run: a.EventsService.ExpireSweep},
		{Name: JobAutoSpawn, Interval: cfg.SpawnInterval, Run: a.EventsService.AutoSpawn},
		{Name: JobBanSweep, Interval: cfg.CleanupInterval, Run: a.ModerationService.SweepBans},
		{Name: JobKnockPurge, Interval: cfg.CleanupInterval, Run: a.ModerationService.PurgeKnocks},
		{Name: JobSessionCleanup, Interval: cfg.CleanupInterval, Run: func(context.Context) (int, error) {
			return a.IdentityService.CleanExpiredSessions(), nil
		}},
		{Name: JobPresenceSweep, Interval: cfg.PresenceInterval, Run: a.Sweeper.Sweep},
		{Name: JobHubCleanup, Interval: cfg.CleanupInterval, Run: func(context.Context) (int, error) {
			return a.Hubs.CleanupEmptyHubs(), nil
		}},
	}
	for _, job := range jobs {
		if err := a.Scheduler.Add(job); err != nil {
			return err
		}
	}
	return nil
}

// Router builds the HTTP handler for the app
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:            a.logger,
		IdentityService:   a.IdentityService,
		RoomService:       a.RoomService,
		ModerationService: a.ModerationService,
		ChatService:       a.ChatService,
		EventsService:     a.EventsService,
		Scheduler:         a.Scheduler,
		Hubs:              a.Hubs,
		Stream:            a.Config.Stream,
		Storage:           a.Storage,
	})
}

// Start begins background work: the event relay subscription and, when
// enabled, the maintenance scheduler
func (a *App) Start(ctx context.Context) error {
	if a.Relay != nil {
		if err := a.Relay.Start(ctx); err != nil {
			return fmt.Errorf("start event relay: %w", err)
		}
	}
	if a.Config.Maintenance.Enabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	return nil
}

// Close stops background work, ends open streams and releases storage
func (a *App) Close() error {
	a.Scheduler.Stop()
	var errs []error
	if a.Relay != nil {
		errs = append(errs, a.Relay.Close())
	}
	a.Hubs.Close()
	errs = append(errs, a.Storage.Close())
	return errors.Join(errs...)
}
