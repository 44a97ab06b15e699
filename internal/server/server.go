// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "sameem/docs" // swagger docs
	"sameem/internal/cache"
	"sameem/internal/config"
	"sameem/internal/database"
	"sameem/internal/featureflags"
	"sameem/internal/middleware"
	"sameem/internal/models"
	"sameem/internal/notifications"
	"sameem/internal/repository"
	"sameem/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// consumedTicketGrace bounds how long a GETDEL'd ws ticket stays valid
// in-process. The websocket upgrade can pass through AuthRequired more than
// once during the handshake; the ticket is already gone from Redis by then.
const consumedTicketGrace = 30 * time.Second

type consumedTicketEntry struct {
	userID    uint
	consumeAt time.Time
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	consumedTickets   map[string]consumedTicketEntry
	consumedTicketsMu sync.Mutex

	userRepo    repository.UserRepository
	messageRepo repository.MessageRepository
	friendRepo  repository.FriendRepository
	callLogRepo repository.CallLogRepository
	reportRepo  repository.ReportRepository

	notifier *notifications.Notifier
	hub      *notifications.Hub
	chatHub  *notifications.ChatHub
	callHub  *notifications.CallHub
	typing   *notifications.TypingTracker
	hubs     []wireableHub // all hubs for wiring/shutdown iteration

	featureFlags *featureflags.Manager

	userService       *service.UserService
	chatService       *service.ChatService
	friendService     *service.FriendService
	gameService       *service.GameService
	callService       *service.CallService
	moderationService *service.ModerationService
	avatarService     *service.AvatarService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	friendRepo := repository.NewFriendRepository(db)
	callLogRepo := repository.NewCallLogRepository(db)
	reportRepo := repository.NewReportRepository(db)

	prom := middleware.InitMetrics("sameem-api")

	server := &Server{
		config:          cfg,
		db:              db,
		redis:           redisClient,
		promMiddleware:  prom,
		consumedTickets: make(map[string]consumedTicketEntry),
		userRepo:        userRepo,
		messageRepo:     messageRepo,
		friendRepo:      friendRepo,
		callLogRepo:     callLogRepo,
		reportRepo:      reportRepo,
		featureFlags:    featureflags.NewManager(cfg.FeatureFlags),
	}

	// The hubs run fine without Redis (single-instance, in-memory); the
	// notifier degrades to no-ops so local fan-out still works.
	server.notifier = notifications.NewNotifier(redisClient)
	server.hub = notifications.NewHub(redisClient)
	server.chatHub = notifications.NewChatHub()
	server.callHub = notifications.NewCallHub()
	server.typing = notifications.NewTypingTracker(server.notifier)
	server.hubs = []wireableHub{server.hub, server.chatHub, server.callHub}

	server.userService = service.NewUserService(userRepo)
	server.chatService = service.NewChatService(messageRepo, userRepo, reportRepo, server.hub, server.notifier)
	server.friendService = service.NewFriendService(friendRepo, userRepo, messageRepo, server.hub)
	server.gameService = service.NewGameService(messageRepo, userRepo, server.notifier)
	server.callService = service.NewCallService(callLogRepo, userRepo)
	server.moderationService = service.NewModerationService(reportRepo, messageRepo, userRepo, server.hub)
	server.avatarService = service.NewAvatarService(userRepo, cfg)

	server.hub.SetPresenceCallbacks(server.onUserOnline, server.onUserOffline)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// OpenTelemetry spans. The tracer is a no-op unless InitTracing ran.
	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)
	api.Get("/", s.HealthCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Sameem Backend Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Public avatar bytes
	app.Get("/media/avatars/:file", s.ServeAvatar)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	// WebSocket ticket issuance
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	// User routes
	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Put("/me/username", s.RenameMyUsername)
	users.Put("/me/settings", s.UpdateMySettings)
	users.Put("/me/fcm-token", s.RegisterFCMToken)
	users.Post("/me/avatar", s.UploadMyAvatar)
	users.Get("/blocked", s.GetBlockedUsers)
	users.Get("/", s.GetAllUsers)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	users.Post("/:id/block", s.BlockUser)
	users.Delete("/:id/block", s.UnblockUser)
	users.Get("/:id", s.GetUserProfile)

	// Friend routes
	friends := protected.Group("/friends")
	friends.Get("/", s.GetContacts)
	// Specific /requests routes before generic /:userId
	friends.Post("/requests", middleware.RateLimit(
		s.redis, 5, 5*time.Minute, "friend_request"), s.SendFriendRequest)
	friends.Get("/requests", s.GetPendingRequests)
	friends.Get("/requests/sent", s.GetSentRequests)
	friends.Post("/requests/:requestId/accept", s.AcceptFriendRequest)
	friends.Post("/requests/:requestId/reject", s.RejectFriendRequest)
	// Generic /:userId route must be last
	friends.Delete("/:userId", s.RemoveFriend)

	// Conversation routes, keyed by the DM partner
	conversations := protected.Group("/conversations")
	conversations.Get("/:userId/messages", s.GetMessages)
	conversations.Post("/:userId/messages", middleware.RateLimit(
		s.redis, 15, time.Minute, "send_chat"), s.SendMessage)
	conversations.Post("/:userId/read", s.MarkConversationRead)
	conversations.Get("/:userId/unread", s.GetUnreadCount)

	// Message routes (edit/delete/report act on a message id)
	messages := protected.Group("/messages")
	messages.Put("/:id", s.EditMessage)
	messages.Delete("/:id", s.DeleteMessage)
	messages.Post("/:id/report", middleware.RateLimit(
		s.redis, 5, 5*time.Minute, "report_message"), s.ReportMessage)

	// Game routes, keyed by the DM partner
	games := protected.Group("/games")
	games.Post("/invitations", s.InviteToGame)
	games.Post("/invitations/:messageId/accept", s.AcceptGameInvitation)
	games.Post("/invitations/:messageId/decline", s.DeclineGameInvitation)
	games.Get("/:userId", s.GetGameState)
	games.Post("/:userId/moves", s.MakeGameMove)
	games.Post("/:userId/forfeit", s.ForfeitGame)

	// Call routes
	calls := protected.Group("/calls")
	calls.Post("/", middleware.RateLimit(
		s.redis, 10, time.Minute, "start_call"), s.StartCall)
	calls.Get("/pending", s.GetPendingCalls)
	calls.Get("/history", s.GetCallHistory)
	calls.Delete("/history", s.ClearCallHistory)
	calls.Post("/:callId/answer", s.AnswerCall)
	calls.Post("/:callId/candidates", s.AppendCallCandidate)
	calls.Get("/:callId/candidates", s.GetCallCandidates)
	calls.Post("/:callId/end", s.EndCall)

	// Websocket endpoints - protected by AuthRequired
	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/", s.WebsocketHandler())         // General notifications + presence
	ws.Get("/chat", s.WebSocketChatHandler()) // Real-time chat + typing
	ws.Get("/call", s.WebSocketCallHandler()) // WebRTC call signaling

	// Admin routes
	admin := protected.Group("/admin", s.AdminRequired())
	admin.Get("/feature-flags", s.GetFeatureFlags)
	admin.Get("/stats", s.GetAdminStats)
	admin.Get("/reports", s.GetReports)
	admin.Get("/reports/:id", s.GetReport)
	admin.Post("/reports/:id/resolve", s.ResolveReport)
	admin.Delete("/conversations/:userA/:userB", s.AdminDeleteConversation)
	admin.Post("/users/:id/admin", s.SetUserAdmin)
	admin.Post("/users/:id/suspend", s.SetUserSuspended)
	admin.Put("/users/:id/username", s.AdminRenameUser)
	admin.Delete("/users/:id", s.AdminDeleteUser)
}

// HealthCheck is a legacy/simple alias for ReadinessCheck
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return s.ReadinessCheck(c)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis carries presence, unread counters and fan-out; without it the
		// instance is degraded.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "Sameem",
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(uint)

		admin, err := s.isAdminByUserID(c.Context(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewUnauthorizedError("Admin access required"))
		}

		return c.Next()
	}
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		isWSPath := strings.HasPrefix(path, "/api/ws")

		// 1. Try WebSocket ticket first (short-lived, single-use)
		ticket := c.Query("ticket")
		if ticket != "" && s.redis != nil {
			// The upgrade handshake can re-enter this middleware after the
			// ticket was already consumed from Redis; honor the in-process
			// record for a short grace window.
			if isWSPath {
				if userID, ok := s.lookupConsumedTicket(ticket); ok {
					c.Locals("userID", userID)
					c.Locals("wsTicket", ticket)
					ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
					c.SetUserContext(ctx)
					return c.Next()
				}
			}

			key := cache.WSTicketKey(ticket)
			userIDStr, err := s.redis.GetDel(c.Context(), key).Result()
			if err == nil {
				userID, parseErr := strconv.ParseUint(userIDStr, 10, 32)
				if parseErr == nil {
					if isWSPath {
						s.rememberConsumedTicket(ticket, uint(userID))
						c.Locals("wsTicket", ticket)
					}
					c.Locals("userID", uint(userID))
					ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, uint(userID))
					c.SetUserContext(ctx)
					return c.Next()
				}
			}
			// If ticket was provided but invalid/expired, we fail if it's a WS path
			if isWSPath {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
			}
		}

		// 2. Fall back to JWT (Bearer token or query param)
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Reject token in query param for WS routes (must use ticket)
		if tokenString == "" && !isWSPath {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(s.config.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token claims"))
		}

		if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != jwtIssuer {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token issuer"))
		}
		if audience, audienceOk := claims["aud"].(string); !audienceOk || audience != jwtAudience {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token audience"))
		}

		sub, ok := claims["sub"].(string)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid subject claim"))
		}

		userID, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid user ID in token"))
		}

		// Check JTI for revocation
		if jti, exists := claims["jti"].(string); exists && jti != "" {
			if s.redis != nil {
				isBlacklisted, err := s.redis.Exists(c.Context(), cache.JTIBlacklistKey(jti)).Result()
				if err == nil && isBlacklisted > 0 {
					return models.RespondWithError(c, fiber.StatusUnauthorized,
						models.NewUnauthorizedError("Token has been revoked"))
				}
			}
		}

		c.Locals("userID", uint(userID))
		if jti, exists := claims["jti"].(string); exists {
			c.Locals("jti", jti)
		}
		if exp, exists := claims["exp"].(float64); exists {
			c.Locals("exp", int64(exp))
		}
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, uint(userID))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// rememberConsumedTicket records a GETDEL'd ticket so later passes of the
// same websocket handshake still authenticate. Stale entries prune lazily.
func (s *Server) rememberConsumedTicket(ticket string, userID uint) {
	now := time.Now()

	s.consumedTicketsMu.Lock()
	defer s.consumedTicketsMu.Unlock()

	for t, entry := range s.consumedTickets {
		if now.Sub(entry.consumeAt) > consumedTicketGrace {
			delete(s.consumedTickets, t)
		}
	}
	s.consumedTickets[ticket] = consumedTicketEntry{userID: userID, consumeAt: now}
}

func (s *Server) lookupConsumedTicket(ticket string) (uint, bool) {
	s.consumedTicketsMu.Lock()
	defer s.consumedTicketsMu.Unlock()

	entry, ok := s.consumedTickets[ticket]
	if !ok {
		return 0, false
	}
	if time.Since(entry.consumeAt) > consumedTicketGrace {
		delete(s.consumedTickets, ticket)
		return 0, false
	}
	return entry.userID, true
}

// consumeWSTicket drops the in-process ticket record once the socket it
// authenticated is gone. Accepts the raw Locals value so callers do not need
// a type assertion.
func (s *Server) consumeWSTicket(ctx context.Context, ticket any) {
	str, ok := ticket.(string)
	if !ok || str == "" {
		return
	}

	s.consumedTicketsMu.Lock()
	delete(s.consumedTickets, str)
	s.consumedTicketsMu.Unlock()

	if s.redis != nil {
		s.redis.Del(ctx, cache.WSTicketKey(str))
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Sameem Chat API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	// Wire all hubs to Redis subscriber if available
	if s.notifier != nil {
		for _, h := range s.hubs {
			h := h
			go func() {
				if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil {
					log.Printf("failed to start %s wiring: %v", h.Name(), err)
				}
			}()
		}
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop all wiring goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	// Shutdown the HTTP/WS server
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	// Close WebSocket connections gracefully
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			log.Printf("error shutting down %s: %v", h.Name(), err)
		}
	}

	// Close database connection
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	// Close Redis connection
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
