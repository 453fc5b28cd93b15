package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/eventhub/internal/attendance"
	"github.com/dukerupert/eventhub/internal/auth"
	"github.com/dukerupert/eventhub/internal/config"
	"github.com/dukerupert/eventhub/internal/directory"
	"github.com/dukerupert/eventhub/internal/handler"
	"github.com/dukerupert/eventhub/internal/image"
	"github.com/dukerupert/eventhub/internal/middleware"
	"github.com/dukerupert/eventhub/internal/profile"
	"github.com/dukerupert/eventhub/internal/search"
	"github.com/dukerupert/eventhub/internal/store"
	ws "github.com/dukerupert/eventhub/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	eventH        *handler.EventHandler
	attendeeH     *handler.AttendeeHandler
	userH         *handler.UserHandler
	tokens        *auth.Tokens
	rateLimiter   *middleware.RateLimiter
	registerLimit int
	wsOrigins     []string
	logger        *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	eventStore := store.NewEventStore(db)
	attendeeStore := store.NewAttendeeStore(db)
	categoryStore := store.NewCategoryStore(db)
	userStore := store.NewUserStore(db)

	images, err := newImageStore(cfg)
	if err != nil {
		return nil, err
	}

	categories := search.NewCategoryCache(categoryStore, cfg.CategoryTTL)
	searchSvc := search.NewService(eventStore, categories, cfg.QueryTimeout, logger.With("component", "search"))
	dirSvc := directory.NewService(eventStore, categoryStore, categories, images, cfg.QueryTimeout, logger.With("component", "directory"))
	registry := attendance.NewRegistry(eventStore, attendeeStore, logger.With("component", "attendance"),
		attendance.WithTimeout(cfg.QueryTimeout))
	profiles := profile.NewService(userStore, images, cfg.QueryTimeout, logger.With("component", "profile"))
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	return &Server{
		db:            db,
		hub:           hub,
		eventH:        handler.NewEventHandler(dirSvc, searchSvc, hub, logger.With("component", "event")),
		attendeeH:     handler.NewAttendeeHandler(registry, hub, logger.With("component", "attendee")),
		userH:         handler.NewUserHandler(userStore, profiles, tokens, logger.With("component", "user")),
		tokens:        tokens,
		rateLimiter:   middleware.NewRateLimiter(),
		registerLimit: cfg.RegisterLimit,
		wsOrigins:     cfg.WSOrigins,
		logger:        logger,
	}, nil
}

// newImageStore uses S3 when a bucket is configured and the local disk
// otherwise.
func newImageStore(cfg *config.Config) (image.Store, error) {
	if s3cfg := cfg.S3.Image(); s3cfg.Enabled() {
		return image.NewS3Store(s3cfg), nil
	}
	local, err := image.NewLocalStore(cfg.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("create image store: %w", err)
	}
	return local, nil
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /api/ws", ws.HandleWebSocket(s.hub, s.wsOrigins, s.logger.With("component", "websocket")))

	// Users
	mux.HandleFunc("POST /api/users/register", s.rateLimitedHandler(s.userH.Register, middleware.RealIP, 10))
	mux.HandleFunc("POST /api/users/login", s.rateLimitedHandler(s.userH.Login, middleware.RealIP, 10))
	mux.HandleFunc("GET /api/users/{id}", s.userH.Get)
	mux.Handle("PATCH /api/users/{id}", middleware.RequireAuth(http.HandlerFunc(s.userH.Update)))
	mux.HandleFunc("GET /api/users/{id}/image", s.userH.GetImage)
	mux.Handle("PUT /api/users/{id}/image", middleware.RequireAuth(http.HandlerFunc(s.userH.PutImage)))
	mux.Handle("DELETE /api/users/{id}/image", middleware.RequireAuth(http.HandlerFunc(s.userH.DeleteImage)))

	// Events
	mux.HandleFunc("GET /api/events", s.eventH.Search)
	mux.HandleFunc("GET /api/events/categories", s.eventH.Categories)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.Handle("POST /api/events", middleware.RequireAuth(http.HandlerFunc(s.eventH.Create)))
	mux.Handle("PATCH /api/events/{id}", middleware.RequireAuth(http.HandlerFunc(s.eventH.Update)))
	mux.Handle("DELETE /api/events/{id}", middleware.RequireAuth(http.HandlerFunc(s.eventH.Delete)))
	mux.HandleFunc("GET /api/events/{id}/image", s.eventH.GetImage)
	mux.Handle("PUT /api/events/{id}/image", middleware.RequireAuth(http.HandlerFunc(s.eventH.PutImage)))

	// Attendees
	mux.HandleFunc("GET /api/events/{id}/attendees", s.attendeeH.List)
	mux.Handle("POST /api/events/{id}/attendees", middleware.RequireAuth(
		s.rateLimitedHandler(s.attendeeH.Register, middleware.ClientKey, s.registerLimit)))
	mux.Handle("DELETE /api/events/{id}/attendees", middleware.RequireAuth(
		s.rateLimitedHandler(s.attendeeH.Cancel, middleware.ClientKey, s.registerLimit)))
	mux.Handle("PATCH /api/events/{eventId}/attendees/{userId}", middleware.RequireAuth(http.HandlerFunc(s.attendeeH.ChangeStatus)))

	var h http.Handler = mux
	h = middleware.Identify(s.tokens)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// rateLimitedHandler limits h per key and per minute. Each route counts in
// its own window.
func (s *Server) rateLimitedHandler(h http.HandlerFunc, keyFunc func(*http.Request) string, limit int) http.HandlerFunc {
	scoped := func(r *http.Request) string {
		return r.Pattern + "|" + keyFunc(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, scoped, limit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}
