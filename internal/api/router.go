package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/apierr"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/handler"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/middleware"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/response"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/chat"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/events"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/identity"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/maintenance"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/moderation"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/rooms"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger            *slog.Logger
	IdentityService   *identity.Service
	RoomService       *rooms.Service
	ModerationService *moderation.Service
	ChatService       *chat.Service
	EventsService     *events.Service
	Scheduler         *maintenance.Scheduler
	Hubs              *realtime.HubManager
	Stream            realtime.StreamConfig
	Storage           handler.Pinger
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// Create handlers
	identityHandler := handler.NewIdentityHandler(cfg.IdentityService, cfg.ChatService, cfg.EventsService)
	roomHandler := handler.NewRoomHandler(cfg.RoomService)
	moderationHandler := handler.NewModerationHandler(cfg.ModerationService)
	messageHandler := handler.NewMessageHandler(cfg.ChatService)
	spawnHandler := handler.NewSpawnHandler(cfg.EventsService)
	streamHandler := handler.NewStreamHandler(cfg.RoomService, cfg.Hubs, cfg.Stream, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Scheduler, cfg.Storage)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.IdentityService)
	optionalAuthMiddleware := middleware.OptionalAuth(cfg.IdentityService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Entry routes (no auth required)
	api.HandleFunc("/identity/guest", identityHandler.CreateGuest).Methods(http.MethodPost)
	api.HandleFunc("/identity/register", identityHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/identity/login", identityHandler.Login).Methods(http.MethodPost)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", adminHandler.Health).Methods(http.MethodGet)

	// Directory routes are readable by anyone
	public := api.NewRoute().Subrouter()
	public.Use(optionalAuthMiddleware)
	public.HandleFunc("/users/online", identityHandler.ListOnline).Methods(http.MethodGet)
	public.HandleFunc("/rooms", roomHandler.List).Methods(http.MethodGet)
	public.HandleFunc("/rooms/{id}", roomHandler.Get).Methods(http.MethodGet)
	public.HandleFunc("/rooms/{id}/members", roomHandler.Members).Methods(http.MethodGet)
	public.HandleFunc("/rooms/{id}/spawns", spawnHandler.List).Methods(http.MethodGet)

	// Protected identity routes
	me := api.PathPrefix("/identity").Subrouter()
	me.Use(authMiddleware)
	me.HandleFunc("/logout", identityHandler.Logout).Methods(http.MethodPost)
	me.HandleFunc("/me", identityHandler.GetMe).Methods(http.MethodGet)
	me.HandleFunc("/me", identityHandler.UpdateMe).Methods(http.MethodPatch)
	me.HandleFunc("/me/balance", identityHandler.Balance).Methods(http.MethodGet)
	me.HandleFunc("/me/mentions", identityHandler.Mentions).Methods(http.MethodGet)
	me.HandleFunc("/me/mentions/read", identityHandler.MarkMentionsRead).Methods(http.MethodPost)
	me.HandleFunc("/me/events", streamHandler.UserEvents).Methods(http.MethodGet)

	// Lobby stream
	lobby := api.PathPrefix("/lobby").Subrouter()
	lobby.Use(authMiddleware)
	lobby.HandleFunc("/events", streamHandler.LobbyEvents).Methods(http.MethodGet)

	// Room routes
	roomRoutes := api.PathPrefix("/rooms").Subrouter()
	roomRoutes.Use(authMiddleware)
	roomRoutes.HandleFunc("", roomHandler.Create).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}", roomHandler.Update).Methods(http.MethodPatch)
	roomRoutes.HandleFunc("/{id}", roomHandler.Delete).Methods(http.MethodDelete)
	roomRoutes.HandleFunc("/{id}/join", roomHandler.Join).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/leave", roomHandler.Leave).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/heartbeat", roomHandler.Heartbeat).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/members/me/style", roomHandler.UpdateStyle).Methods(http.MethodPatch)
	roomRoutes.HandleFunc("/{id}/host/grant", roomHandler.GrantHost).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/host/revoke", roomHandler.RevokeHost).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/host/pass", roomHandler.PassHost).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/host/claim", roomHandler.ClaimHost).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/kick", roomHandler.Kick).Methods(http.MethodPost)

	// Moderation routes
	roomRoutes.HandleFunc("/{id}/bans", moderationHandler.ListBans).Methods(http.MethodGet)
	roomRoutes.HandleFunc("/{id}/bans", moderationHandler.Ban).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/bans/{identity}", moderationHandler.Unban).Methods(http.MethodDelete)
	roomRoutes.HandleFunc("/{id}/mutes", moderationHandler.Mute).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/mutes/{identity}", moderationHandler.Unmute).Methods(http.MethodDelete)
	roomRoutes.HandleFunc("/{id}/knocks", moderationHandler.Knock).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/knocks", moderationHandler.PendingKnocks).Methods(http.MethodGet)

	// Message and event routes
	roomRoutes.HandleFunc("/{id}/messages", messageHandler.List).Methods(http.MethodGet)
	roomRoutes.HandleFunc("/{id}/messages", messageHandler.Send).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/announcements", messageHandler.Announce).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/spawns", spawnHandler.Trigger).Methods(http.MethodPost)
	roomRoutes.HandleFunc("/{id}/spawns/{spawn}/claim", spawnHandler.Claim).Methods(http.MethodPost)

	// Streams
	roomRoutes.HandleFunc("/{id}/events", streamHandler.RoomEvents).Methods(http.MethodGet)
	roomRoutes.HandleFunc("/{id}/ws", streamHandler.RoomSocket).Methods(http.MethodGet)

	knocks := api.PathPrefix("/knocks").Subrouter()
	knocks.Use(authMiddleware)
	knocks.HandleFunc("/{id}/resolve", moderationHandler.ResolveKnock).Methods(http.MethodPost)

	// Staff-only routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authMiddleware)
	admin.Use(middleware.RequireStaff)
	admin.HandleFunc("/bans", moderationHandler.ListSiteBans).Methods(http.MethodGet)
	admin.HandleFunc("/bans", moderationHandler.SiteBan).Methods(http.MethodPost)
	admin.HandleFunc("/bans/{identity}", moderationHandler.SiteUnban).Methods(http.MethodDelete)
	admin.HandleFunc("/maintenance", adminHandler.RunMaintenance).Methods(http.MethodPost)

	return r
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteError(w, &apierr.Error{Kind: apierr.KindNotFound, Code: "ROUTE_NOT_FOUND", Message: "no such endpoint"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusMethodNotAllowed, apierr.ErrorResponse{
		Status:  "error",
		Kind:    apierr.KindValidation,
		Code:    "METHOD_NOT_ALLOWED",
		Message: "method not allowed",
	})
}
