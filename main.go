package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"chat-engine/internal/backend"
	"chat-engine/internal/config"
	"chat-engine/internal/db"
	"chat-engine/internal/emotes"
	"chat-engine/internal/handlers"
	"chat-engine/internal/kafka"
	"chat-engine/internal/middleware"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/rabbitmq"
	"chat-engine/internal/ratelimit"
	"chat-engine/internal/repositories"
	"chat-engine/internal/session"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := observability.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment, cfg.TraceRatio)
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(tctx); err != nil {
			log.Printf("tracer shutdown: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.AuditExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	emitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment)

	kv, closeKV := openKV(cfg)
	defer closeKV()

	client, err := backend.New(cfg.BackendURL, backend.NewHTTPClient(cfg.BackendTimeout))
	if err != nil {
		log.Fatalf("invalid backend url: %v", err)
	}
	live := backend.DefaultLiveOptions()
	live.HandshakeTimeout = cfg.BackendTimeout
	client = client.WithLiveOptions(live)

	policy := ratelimit.DefaultPolicy()
	if cfg.TierPolicyPath != "" {
		if p, err := config.LoadTierPolicy(cfg.TierPolicyPath); err != nil {
			log.Printf("tier policy not loaded, using defaults path=%s err=%v", cfg.TierPolicyPath, err)
		} else {
			policy = p
		}
	}

	registry := session.NewRegistry(ctx, func(token string) session.Remote {
		return client.WithToken(token)
	}, session.Options{Engine: cfg.Engine, Policy: policy, KV: kv}, cfg.SessionIdleTTL)
	defer registry.Close()

	hub := ws.NewHub()
	registry.SetHook(func(event string, s *session.Session) {
		userID := s.User().ID
		rec := telemetry.Record{
			EventType: telemetry.EventSessionClosed,
			Text:      "session " + event,
			SessionID: s.ID(),
			UserID:    &userID,
			Fields:    map[string]string{"reason": event},
		}
		if event == session.EventCreated {
			rec.EventType = telemetry.EventSessionStarted
		} else {
			hub.CloseSession(s.ID())
		}
		emitter.Record(context.Background(), rec)
	})
	go registry.Run(ctx, time.Minute)

	if cfg.TierPolicyPath != "" {
		go func() {
			err := config.WatchTierPolicy(ctx, cfg.TierPolicyPath, 250*time.Millisecond, registry.SetPolicy)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("tier policy watcher stopped: %v", err)
			}
		}()
	}

	startNotificationFeed(ctx, cfg, registry.Deliver)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": registry.Len()})
	})
	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	api := router.Group("/")
	api.Use(middleware.AuthMiddleware(registry))
	api.Use(middleware.RateLimit(rate.Limit(cfg.APIRate), cfg.APIBurst))
	handlers.Routes{
		Session:       handlers.NewSessionHandler(registry),
		Chat:          handlers.NewChatHandler(emitter),
		Draft:         handlers.NewDraftHandler(emitter),
		Emotes:        handlers.NewEmoteHandler(),
		Notifications: handlers.NewNotificationHandler(),
		WebSocket:     ws.NewSessionWebSocketHandler(hub).Handle,
	}.Register(api)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", "X-Device-ID"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("chat-engine listening addr=%s backend=%s", server.Addr, cfg.BackendURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown signal received")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// openKV picks the recent-emote store: Redis, then SQL, then memory.
func openKV(cfg config.Config) (emotes.KV, func()) {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Printf("recent emotes stored in redis addr=%s", cfg.RedisAddr)
		return repositories.NewRedisKV(rdb, cfg.RedisPrefix, 0), func() { _ = rdb.Close() }
	}
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to db: %v", err)
		}
		return repositories.NewKVRepo(database), func() { _ = database.Close() }
	}
	log.Printf("recent emotes stored in memory")
	return repositories.NewMemoryKV(), func() {}
}

func startNotificationFeed(ctx context.Context, cfg config.Config, deliver func(models.NotificationDelivery) int) {
	switch cfg.NotificationFeed {
	case "amqp":
		consumer := rabbitmq.NewNotificationConsumer(cfg.RabbitMQURL, cfg.NotificationExchange, cfg.NotificationQueue, deliver)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("notification consumer stopped source=amqp err=%v", err)
			}
		}()
	case "kafka":
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic, deliver)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("notification consumer stopped source=kafka err=%v", err)
			}
		}()
	case "", "none":
	default:
		log.Printf("unknown notification feed %q, live notifications disabled", cfg.NotificationFeed)
	}
}
