package main

import (
	"context"
	"log"
	"time"

	"marketplace-chat/config"
	"marketplace-chat/internal/background"
	"marketplace-chat/internal/events"
	"marketplace-chat/internal/handler"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/push"
	redisclient "marketplace-chat/internal/redis"
	"marketplace-chat/internal/repository"
	"marketplace-chat/internal/server"
	"marketplace-chat/internal/services"
	"marketplace-chat/internal/websocket"
	"marketplace-chat/pkg/database"
	"marketplace-chat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const backgroundTimeout = 15 * time.Second

func main() {
	cfg := config.LoadConfig()
	l := logger.New(cfg.App.LogMode)
	defer l.Sync()

	if err := run(cfg, l); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func run(cfg *config.Config, l *logger.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, l, cfg.Telemetry, cfg.App.Mode)
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.Database, cfg.App.Mode == server.DebugMode)
	if err != nil {
		return err
	}
	if err := repository.InitSchema(db); err != nil {
		return err
	}

	var (
		redis          *goredis.Client
		limiter        *redisclient.RateLimiter
		connectLimiter websocket.ConnectLimiter
		messageLimiter websocket.MessageLimiter
	)
	if cfg.Redis.Enabled() {
		redis = redisclient.NewClient(cfg.Redis)
		if err := redisclient.Ping(ctx, redis); err != nil {
			l.Warn("redis unreachable, rate limits fail open", zap.Error(err))
		}
		limiter = redisclient.NewRateLimiter(redis, redisclient.RateLimitConfig{
			MessageLimit:  cfg.RateLimit.MessagesPerMinute,
			MessageWindow: time.Minute,
			ConnectLimit:  cfg.RateLimit.ConnectsPerMinute,
			ConnectWindow: time.Minute,
		})
		connectLimiter = limiter
		messageLimiter = limiter
	} else {
		l.Info("redis not configured, rate limiting disabled")
	}

	metrics := observability.NewMetrics()
	runner := background.NewDetached(l.Named("background"), backgroundTimeout, metrics.BackgroundFailure)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled() {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.MessageTopic)
		l.Info("publishing chat events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.MessageTopic))
	}

	tokens := repository.NewUserTokenRepository(db)
	products := repository.NewProductRepository(db)
	dispatcher := newDispatcher(ctx, cfg.Firebase, tokens, l, metrics)

	auth := services.NewAuthService(cfg.JWT)

	notificationGateway := websocket.NewNotificationGateway(websocket.NotificationGatewayDeps{
		Auth:           auth,
		Registry:       websocket.NewMemoryRegistry(),
		ConnectLimiter: connectLimiter,
		Logger:         l,
		Metrics:        metrics,
	})
	notificationService := services.NewNotificationService(services.NotificationServiceDeps{
		Notifications: repository.NewNotificationRepository(db),
		Products:      products,
		Tokens:        tokens,
		Emitter:       notificationGateway,
		Pusher:        dispatcher,
		Runner:        runner,
		Logger:        l,
		Metrics:       metrics,
	})
	chatService := services.NewChatService(services.ChatServiceDeps{
		Chats:     repository.NewChatRepository(db),
		Messages:  repository.NewMessageRepository(db),
		Users:     repository.NewUserRepository(db),
		Products:  products,
		Notifier:  notificationService,
		Publisher: publisher,
		Runner:    runner,
		Logger:    l,
		Metrics:   metrics,
	})
	chatGateway := websocket.NewChatGateway(websocket.ChatGatewayDeps{
		Auth:           auth,
		Registry:       websocket.NewMemoryRegistry(),
		Chats:          chatService,
		ConnectLimiter: connectLimiter,
		MessageLimiter: messageLimiter,
		Logger:         l,
		Metrics:        metrics,
	})

	s := server.New(cfg, l)
	s.SetupRoutes(&server.Handlers{
		Chat:               handler.NewChatHandler(chatService, chatGateway),
		Notification:       handler.NewNotificationHandler(notificationService),
		ChatSocket:         chatGateway.Handle,
		NotificationSocket: notificationGateway.Handle,
	}, server.Dependencies{
		DB:          db,
		Redis:       redis,
		RateLimiter: limiter,
		Auth:        auth,
		Metrics:     metrics,
	})

	// sockets are hijacked and outlive the HTTP drain, so close them before
	// the runner and the stores go away
	return s.Start(
		chatGateway.Shutdown,
		notificationGateway.Shutdown,
		runner.Shutdown,
		func(context.Context) error { return publisher.Close() },
		shutdownTracing,
		func(context.Context) error {
			if redis == nil {
				return nil
			}
			return redis.Close()
		},
		func(context.Context) error { return database.Close(db) },
	)
}

// newDispatcher returns a dispatcher that delivers through FCM when
// credentials are configured and drops pushes otherwise.
func newDispatcher(ctx context.Context, cfg config.FirebaseConfig, tokens repository.UserTokenRepository, l *logger.Logger, metrics *observability.Metrics) *push.Dispatcher {
	if !cfg.Enabled() {
		l.Info("firebase not configured, push notifications disabled")
		return push.NewDispatcher(nil, tokens, l, metrics)
	}
	client, err := push.NewFirebaseMessenger(ctx, cfg)
	if err != nil {
		l.Error("firebase init failed, push notifications disabled", zap.Error(err))
		return push.NewDispatcher(nil, tokens, l, metrics)
	}
	return push.NewDispatcher(client, tokens, l, metrics)
}
