// Package config loads server settings from the environment, optionally seeded
// from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/chat"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/events"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/identity"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/moderation"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/presence"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/rooms"
	redisstorage "github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/redis"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/sqlstore"
)

// Storage type constants
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQL    = "sql"
)

// Prefix is prepended to every environment variable name
const Prefix = "LOUNGE_"

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LogConfig selects the log level and handler
type LogConfig struct {
	Level  slog.Level
	Format string // json or text
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type  string
	Redis redisstorage.Config
	SQL   sqlstore.Config
	// RelayChannel is the redis pub/sub channel used to fan events out across instances
	RelayChannel string
}

// MaintenanceConfig holds the sweep intervals
type MaintenanceConfig struct {
	Enabled           bool
	RetentionInterval time.Duration
	ExpiryInterval    time.Duration
	SpawnInterval     time.Duration
	CleanupInterval   time.Duration
	PresenceInterval  time.Duration
}

// Config is the full server configuration
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Storage     StorageConfig
	Identity    identity.Config
	Presence    presence.Config
	Rooms       rooms.Config
	Moderation  moderation.Config
	Chat        chat.Config
	Events      events.Config
	Stream      realtime.StreamConfig
	Maintenance MaintenanceConfig
}

// Default returns the configuration used when no variables are set
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log:        LogConfig{Level: slog.LevelInfo, Format: "json"},
		Storage:    StorageConfig{Type: StorageMemory, Redis: redisstorage.DefaultConfig(), SQL: sqlstore.DefaultConfig(), RelayChannel: realtime.DefaultRelayChannel},
		Identity:   identity.DefaultConfig(),
		Presence:   presence.DefaultConfig(),
		Rooms:      rooms.DefaultConfig(),
		Moderation: moderation.DefaultConfig(),
		Chat:       chat.DefaultConfig(),
		Events:     events.DefaultConfig(),
		Stream:     realtime.DefaultStreamConfig(),
		Maintenance: MaintenanceConfig{
			Enabled:           true,
			RetentionInterval: 10 * time.Minute,
			ExpiryInterval:    15 * time.Second,
			SpawnInterval:     5 * time.Minute,
			CleanupInterval:   5 * time.Minute,
			PresenceInterval:  time.Minute,
		},
	}
}

// Load reads .env (if present) and then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a variable lookup. Unset variables keep their defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	r := reader{getenv: getenv}

	cfg.Server.Host = r.str("HOST", cfg.Server.Host)
	cfg.Server.Port = r.int("PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = r.duration("READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = r.duration("WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = r.duration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Log.Level = r.level("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(r.str("LOG_FORMAT", cfg.Log.Format))

	cfg.Storage.Type = strings.ToLower(r.str("STORAGE", cfg.Storage.Type))
	cfg.Storage.Redis.URL = r.str("REDIS_URL", cfg.Storage.Redis.URL)
	cfg.Storage.Redis.PoolSize = r.int("REDIS_POOL_SIZE", cfg.Storage.Redis.PoolSize)
	cfg.Storage.RelayChannel = r.str("REDIS_CHANNEL", cfg.Storage.RelayChannel)
	cfg.Storage.SQL.Dialect = sqlstore.Dialect(strings.ToLower(r.str("SQL_DIALECT", string(cfg.Storage.SQL.Dialect))))
	cfg.Storage.SQL.DSN = r.str("SQL_DSN", cfg.Storage.SQL.DSN)
	cfg.Storage.SQL.MaxOpenConns = r.int("SQL_MAX_OPEN_CONNS", cfg.Storage.SQL.MaxOpenConns)

	cfg.Identity.GuestSecret = r.str("GUEST_SECRET", cfg.Identity.GuestSecret)
	cfg.Identity.SessionTTL = r.duration("SESSION_TTL", cfg.Identity.SessionTTL)
	cfg.Identity.ProfileCacheTTL = r.duration("PROFILE_CACHE_TTL", cfg.Identity.ProfileCacheTTL)
	cfg.Identity.ProfileCacheSize = r.int("PROFILE_CACHE_SIZE", cfg.Identity.ProfileCacheSize)
	cfg.Identity.AdminUsernames = r.list("ADMIN_USERNAMES", cfg.Identity.AdminUsernames)
	cfg.Identity.ModeratorUsernames = r.list("MODERATOR_USERNAMES", cfg.Identity.ModeratorUsernames)
	cfg.Identity.BcryptCost = r.int("BCRYPT_COST", cfg.Identity.BcryptCost)
	cfg.Rooms.BcryptCost = cfg.Identity.BcryptCost

	cfg.Presence.AFKAfter = r.duration("AFK_AFTER", cfg.Presence.AFKAfter)
	cfg.Presence.DisconnectAfter = r.duration("DISCONNECT_AFTER", cfg.Presence.DisconnectAfter)
	cfg.Identity.OnlineWindow = cfg.Presence.DisconnectAfter

	cfg.Rooms.DefaultCapacity = r.int("ROOM_DEFAULT_CAPACITY", cfg.Rooms.DefaultCapacity)
	cfg.Rooms.MaxCapacity = r.int("ROOM_MAX_CAPACITY", cfg.Rooms.MaxCapacity)
	cfg.Rooms.HostOnLeave = rooms.HostPolicy(strings.ToLower(r.str("HOST_ON_LEAVE", string(cfg.Rooms.HostOnLeave))))

	cfg.Moderation.KnockWindow = r.duration("KNOCK_WINDOW", cfg.Moderation.KnockWindow)
	cfg.Moderation.AccessKeyTTL = r.duration("ACCESS_KEY_TTL", cfg.Moderation.AccessKeyTTL)

	cfg.Chat.MaxLength = r.int("MESSAGE_MAX_LENGTH", cfg.Chat.MaxLength)
	cfg.Chat.Retention = r.duration("MESSAGE_RETENTION", cfg.Chat.Retention)
	cfg.Chat.PermanentRetention = r.duration("PERMANENT_MESSAGE_RETENTION", cfg.Chat.PermanentRetention)
	cfg.Chat.MessagesPerSecond = r.float("MESSAGES_PER_SECOND", cfg.Chat.MessagesPerSecond)
	cfg.Chat.Burst = r.int("MESSAGE_BURST", cfg.Chat.Burst)

	cfg.Events.GhostDuration = r.duration("GHOST_DURATION", cfg.Events.GhostDuration)
	cfg.Events.PumpkinDuration = r.duration("PUMPKIN_DURATION", cfg.Events.PumpkinDuration)
	cfg.Events.SpawnChance = r.float("SPAWN_CHANCE", cfg.Events.SpawnChance)
	cfg.Events.Phrases = r.list("GHOST_PHRASES", cfg.Events.Phrases)
	cfg.Events.Rewards = r.rewards("REWARD_TIERS", cfg.Events.Rewards)

	cfg.Stream.HeartbeatInterval = r.duration("HEARTBEAT_INTERVAL", cfg.Stream.HeartbeatInterval)
	cfg.Stream.MaxDuration = r.duration("STREAM_MAX_DURATION", cfg.Stream.MaxDuration)

	cfg.Maintenance.Enabled = r.bool("MAINTENANCE", cfg.Maintenance.Enabled)
	cfg.Maintenance.RetentionInterval = r.duration("RETENTION_INTERVAL", cfg.Maintenance.RetentionInterval)
	cfg.Maintenance.ExpiryInterval = r.duration("EXPIRY_INTERVAL", cfg.Maintenance.ExpiryInterval)
	cfg.Maintenance.SpawnInterval = r.duration("SPAWN_INTERVAL", cfg.Maintenance.SpawnInterval)
	cfg.Maintenance.CleanupInterval = r.duration("CLEANUP_INTERVAL", cfg.Maintenance.CleanupInterval)
	cfg.Maintenance.PresenceInterval = r.duration("PRESENCE_INTERVAL", cfg.Maintenance.PresenceInterval)

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.Redis.URL == "" {
			errs = append(errs, errors.New("redis storage needs LOUNGE_REDIS_URL"))
		}
	case StorageSQL:
		switch c.Storage.SQL.Dialect {
		case sqlstore.DialectSQLite, sqlstore.DialectPostgres:
		default:
			errs = append(errs, fmt.Errorf("unknown sql dialect %q", c.Storage.SQL.Dialect))
		}
		if c.Storage.SQL.DSN == "" {
			errs = append(errs, errors.New("sql storage needs LOUNGE_SQL_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}
	if err := c.Presence.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Rooms.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Moderation.KnockWindow <= 0 || c.Moderation.AccessKeyTTL <= 0 {
		errs = append(errs, errors.New("knock window and access key ttl must be positive"))
	}
	if c.Chat.MaxLength <= 0 || c.Chat.MessagesPerSecond <= 0 || c.Chat.Burst <= 0 {
		errs = append(errs, errors.New("message length and rate limits must be positive"))
	}
	if err := c.Events.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Stream.HeartbeatInterval <= 0 || c.Stream.MaxDuration <= c.Stream.HeartbeatInterval {
		errs = append(errs, errors.New("stream duration must exceed the heartbeat interval"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger described by the log settings
func (c LogConfig) NewLogger(w *os.File) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(r.getenv(Prefix + key))
	return v, v != ""
}

func (r *reader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s%s=%q: %w", Prefix, key, value, err))
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *reader) bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) level(key string, def slog.Level) slog.Level {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		r.fail(key, v, err)
		return def
	}
	return level
}

// list parses a comma separated value, dropping empty entries
func (r *reader) list(key string, def []string) []string {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// rewards parses "reward:weight,reward:weight"
func (r *reader) rewards(key string, def []events.RewardTier) []events.RewardTier {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	var tiers []events.RewardTier
	for _, part := range strings.Split(v, ",") {
		reward, weight, found := strings.Cut(strings.TrimSpace(part), ":")
		if !found {
			r.fail(key, v, errors.New("want reward:weight pairs"))
			return def
		}
		rw, err1 := strconv.Atoi(reward)
		wt, err2 := strconv.Atoi(weight)
		if err := errors.Join(err1, err2); err != nil {
			r.fail(key, v, err)
			return def
		}
		tiers = append(tiers, events.RewardTier{Reward: rw, Weight: wt})
	}
	return tiers
}
