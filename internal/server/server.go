package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-chat/config"
	"marketplace-chat/internal/handler"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/observability"
	redisclient "marketplace-chat/internal/redis"
	"marketplace-chat/internal/services"
	"marketplace-chat/internal/transport/httpdto"
	"marketplace-chat/pkg/database"
	"marketplace-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Chat               *handler.ChatHandler
	Notification       *handler.NotificationHandler
	ChatSocket         gin.HandlerFunc
	NotificationSocket gin.HandlerFunc
}

// Dependencies are the shared clients routes and health checks need. Redis
// and RateLimiter may be nil.
type Dependencies struct {
	DB          *gorm.DB
	Redis       *goredis.Client
	RateLimiter *redisclient.RateLimiter
	Auth        *services.AuthService
	Metrics     *observability.Metrics
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.App.Mode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.App.Mode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(l))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.App.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router for in-process tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(h *Handlers, deps Dependencies) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(otelgin.Middleware(s.config.Telemetry.ServiceName))
	s.engine.Use(middleware.CORS(s.config.App.AllowedOrigins))
	s.engine.Use(middleware.MetricsMiddleware(deps.Metrics))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		checks := gin.H{"database": "ok"}
		healthy := true
		if err := database.HealthCheck(c.Request.Context(), deps.DB); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if deps.Redis != nil {
			checks["redis"] = "ok"
			if err := redisclient.Ping(c.Request.Context(), deps.Redis); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, httpdto.Response[gin.H]{Data: checks, Error: "unhealthy", Code: "UNHEALTHY"})
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy", "checks": checks}))
	})

	s.engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	s.engine.GET("/ws/chat", h.ChatSocket)
	s.engine.GET("/ws/notifications", h.NotificationSocket)

	auth := middleware.AuthMiddleware(deps.Auth)

	chat := s.engine.Group("/chat", auth)
	{
		chat.POST("/initiate", h.Chat.Initiate)
		chat.GET("/heads", h.Chat.Heads)
		chat.GET("/unread-count", h.Chat.UnreadCount)
		chat.POST("/message", middleware.MessageRateLimitMiddleware(deps.RateLimiter, s.logger), h.Chat.Send)
		chat.PATCH("/mark-read", h.Chat.MarkRead)
		chat.GET("/:chatId", h.Chat.Get)
		chat.GET("/:chatId/messages", h.Chat.Messages)
	}

	notifications := s.engine.Group("/notifications", auth)
	{
		notifications.GET("", h.Notification.List)
		notifications.GET("/unread-count", h.Notification.UnreadCount)
		notifications.PUT("/mark-all-read", h.Notification.MarkAllRead)
		notifications.PUT("/fcm-token", h.Notification.UpdateFCMToken)
		notifications.DELETE("/fcm-token", h.Notification.RemoveFCMToken)
		notifications.PUT("/:id/read", h.Notification.MarkRead)
	}
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests and
// runs the shutdown hooks in order.
func (s *Server) Start(hooks ...func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.App.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		s.logger.Error("server failed", zap.Error(err))
		return err
	case sig := <-quit:
		s.logger.Info("shutdown signal received", zap.String("signal", sig.String()),
			zap.Duration("wait", s.config.App.ShutdownWait))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.App.ShutdownWait)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	runHooks(ctx, s.logger, hooks)

	s.logger.Info("Server stopped gracefully")
	return nil
}

func runHooks(ctx context.Context, l *logger.Logger, hooks []func(context.Context) error) {
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			l.Warn("shutdown hook failed", zap.Error(err))
		}
	}
}
