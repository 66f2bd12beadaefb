package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/koukarei/Avery-sub001/repository"
	"github.com/koukarei/Avery-sub001/scoring"
	ws "github.com/koukarei/Avery-sub001/websocket"
	"gorm.io/gorm"
)

// Server holds all server dependencies
type Server struct {
	config        *Config
	gormDB        *repository.GORMRepository
	rawDB         *gorm.DB
	imageStore    *repository.ImageStore
	gateway       Gateway
	orchestrator  *Orchestrator
	registry      *SessionRegistry
	playHandler   *PlayHandler
	authService   *AuthService
	authEndpoints *AuthEndpoints
	playEndpoints *PlayEndpoints
	wsHub         *ws.Hub
	upgrader      websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the database connection
func (s *Server) SetDatabase(db *repository.GORMRepository, rawDB *gorm.DB) {
	s.gormDB = db
	s.rawDB = rawDB
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices() error {
	// Initialize image store
	if s.config.Storage.Endpoint != "" {
		imageStore, err := repository.NewImageStore(repository.ImageStoreConfig{
			Endpoint:  s.config.Storage.Endpoint,
			AccessKey: s.config.Storage.AccessKey,
			SecretKey: s.config.Storage.SecretKey,
			Bucket:    s.config.Storage.Bucket,
			UseSSL:    s.config.Storage.UseSSL,
			CacheSize: s.config.Storage.CacheSize,
		})
		if err != nil {
			return err
		}
		s.imageStore = imageStore
		slog.Info("Image store initialized", "bucket", s.config.Storage.Bucket)
	} else {
		slog.Warn("Storage endpoint not configured, running without image store")
	}

	// Initialize AI gateway
	if s.config.AI.GeminiAPIKey != "" && s.imageStore != nil {
		gemini, err := NewGeminiGateway(s.config.AI.GeminiAPIKey, s.imageStore)
		if err != nil {
			return err
		}
		s.gateway = NewRetryingGateway(gemini, s.config.AI.Timeout, s.config.AI.MaxRetries)
		slog.Info("Gemini gateway initialized",
			"timeout", s.config.AI.Timeout, "max_retries", s.config.AI.MaxRetries)
	}

	// Initialize game orchestration
	if s.gateway != nil && s.gormDB != nil {
		weights := scoring.Weights{
			Lambda:        s.config.Scoring.Lambda,
			Grammar:       s.config.Scoring.GrammarWeight,
			Vocabulary:    s.config.Scoring.VocabularyWeight,
			Effectiveness: s.config.Scoring.EffectivenessWeight,
		}
		s.orchestrator = NewOrchestrator(s.gateway, s.gormDB, weights)
		s.registry = NewSessionRegistry(s.orchestrator)
		s.playHandler = NewPlayHandler(s.orchestrator, s.registry)
		slog.Info("Game orchestrator initialized")
	}

	// Initialize authentication services
	if s.config.JWT.Secret != "" && s.gormDB != nil {
		s.authService = NewAuthService(s.gormDB, s.config.JWT.Secret)
		s.authEndpoints = NewAuthEndpoints(s.authService)
		slog.Info("Authentication service initialized")
	}

	// Initialize the REST read surface
	if s.gormDB != nil && s.imageStore != nil {
		s.playEndpoints = NewPlayEndpoints(s.gormDB, s.imageStore)
	}

	// Initialize WebSocket hub
	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	return nil
}

// SeedDatabase loads demo players and leaderboards when the database is empty.
func (s *Server) SeedDatabase() error {
	if s.gormDB == nil || s.imageStore == nil {
		slog.Warn("Skipping database seeding, database or image store not configured")
		return nil
	}
	return NewDatabaseSeeder(s.gormDB, s.imageStore).SeedDatabase()
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// API v1 route group
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)

		// WebSocket route (protected)
		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Get("/ws", s.websocketHandlerFunc)
			})
		} else {
			r.Get("/ws", s.websocketHandlerFunc)
		}

		// Authentication routes
		if s.authEndpoints != nil {
			r.Route("/auth", func(r chi.Router) {
				// Public auth routes (no middleware)
				r.Post("/login", s.authEndpoints.LoginHandler)
				r.Post("/signup", s.authEndpoints.SignupHandler)
				r.Post("/refresh", s.authEndpoints.RefreshHandler)

				// Protected auth routes (with middleware)
				r.Group(func(r chi.Router) {
					r.Use(s.authService.Middleware)
					r.Post("/logout", s.authEndpoints.LogoutHandler)
					r.Get("/me", s.authEndpoints.MeHandler)
				})
			})
		}

		// Leaderboard and round routes (protected)
		if s.playEndpoints != nil && s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				s.playEndpoints.RegisterRoutes(r)
			})
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if s.registry != nil {
		s.registry.Stop()
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests for security
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	// Parse allowed origins (comma-separated list)
	allowedOrigins := strings.Split(allowedOriginsStr, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	for _, allowed := range allowedOrigins {
		if allowed == origin {
			slog.Info("WebSocket connection accepted", "origin", origin)
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.rawDB != nil {
		if sqlDB, err := s.rawDB.DB(); err == nil {
			if err := sqlDB.Ping(); err != nil {
				dbStatus = "down"
				status = "degraded"
			} else {
				dbStatus = "up"
			}
		} else {
			dbStatus = "down"
			status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"API v1","version":"1.0.0"}`))
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	// Get user from context (set by auth middleware)
	user, ok := UserFromContext(r.Context())
	if !ok {
		slog.Error("WebSocket connection failed - user not found in context")
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	if s.orchestrator == nil {
		http.Error(w, "Game service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("WebSocket connection established", "user_id", user.ID, "email", user.Email)

	// Register client with hub and bind a play session to the connection
	client := s.wsHub.RegisterClient(conn, user.ID)
	session := s.orchestrator.NewSession(user.ID)
	s.registry.Register(session)

	client.ActionHandler = func(c *ws.Client, raw []byte) ([]byte, bool) {
		return s.playHandler.HandleFrame(c, session, raw)
	}
	client.CloseHandler = func(c *ws.Client) {
		s.playHandler.HandleClose(c, session)
	}

	// Start goroutines for reading, dispatching and writing
	go client.ReadPump()
	go client.DispatchLoop()
	go client.WritePump()
}
