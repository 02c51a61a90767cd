// Package config loads gateway and engine settings from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Engine holds the per-session tunables.
type Engine struct {
	MaxMessageLength int
	CatalogRefresh   time.Duration
	SearchDebounce   time.Duration
	SearchPageSize   int
	RecentLimit      int
	PulseDuration    time.Duration
	GroupWindow      time.Duration
	StreamPoll       time.Duration
	RateLimitTick    time.Duration
	Location         *time.Location
}

// Config is the full gateway configuration.
type Config struct {
	Port           string
	Environment    string
	ServiceName    string
	BackendURL     string
	BackendTimeout time.Duration

	DatabaseURL string
	RedisAddr   string
	RedisPrefix string

	RabbitMQURL          string
	AuditExchange        string
	AuditRoutingKey      string
	NotificationFeed     string
	NotificationExchange string
	NotificationQueue    string
	KafkaBrokers         []string
	KafkaTopic           string
	KafkaGroupID         string

	OTLPEndpoint string
	TraceRatio   float64

	TierPolicyPath string
	CORSOrigins    []string
	DebugRoutes    bool

	SessionIdleTTL time.Duration
	APIRate        float64
	APIBurst       int

	Engine Engine
}

// Load reads an optional .env file then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	loc := time.Local
	if name := getEnv("ENGINE_TIMEZONE", ""); name != "" {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		} else {
			log.Printf("config: unknown timezone %q, using local: %v", name, err)
		}
	}

	return Config{
		Port:           getEnv("PORT", "8083"),
		Environment:    getEnv("APP_ENV", "development"),
		ServiceName:    getEnv("SERVICE_NAME", "chat-engine"),
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8090"),
		BackendTimeout: getDuration("BACKEND_TIMEOUT", 15*time.Second),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		RedisPrefix: getEnv("REDIS_PREFIX", "chat-engine:"),

		RabbitMQURL:          getEnv("RABBITMQ_URL", ""),
		AuditExchange:        getEnv("AUDIT_EXCHANGE", "audit.events"),
		AuditRoutingKey:      getEnv("AUDIT_ROUTING_KEY", "audit.chat-engine"),
		NotificationFeed:     strings.ToLower(getEnv("NOTIFICATION_FEED", "none")),
		NotificationExchange: getEnv("NOTIFICATION_EXCHANGE", "notifications"),
		NotificationQueue:    getEnv("NOTIFICATION_QUEUE", "chat-engine.notifications"),
		KafkaBrokers:         getList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "notifications"),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "chat-engine"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceRatio:   getFloat("OTEL_TRACES_SAMPLER_RATIO", 1),

		TierPolicyPath: getEnv("TIER_POLICY_PATH", ""),
		CORSOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		DebugRoutes:    getBool("DEBUG_ROUTES", false),

		SessionIdleTTL: getDuration("SESSION_IDLE_TTL", 30*time.Minute),
		APIRate:        getFloat("API_RATE", 20),
		APIBurst:       getInt("API_BURST", 40),

		Engine: Engine{
			MaxMessageLength: getInt("MAX_MESSAGE_LENGTH", 500),
			CatalogRefresh:   getDuration("EMOTE_REFRESH_INTERVAL", 30*time.Minute),
			SearchDebounce:   getDuration("EMOTE_SEARCH_DEBOUNCE", 400*time.Millisecond),
			SearchPageSize:   getInt("EMOTE_SEARCH_PAGE_SIZE", 16),
			RecentLimit:      getInt("RECENT_EMOTES_LIMIT", 24),
			PulseDuration:    getDuration("NOTIFICATION_PULSE", 1500*time.Millisecond),
			GroupWindow:      getDuration("MESSAGE_GROUP_WINDOW", 60*time.Second),
			StreamPoll:       getDuration("STREAM_POLL_INTERVAL", 30*time.Second),
			RateLimitTick:    time.Second,
			Location:         loc,
		},
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid int key=%s value=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: invalid float key=%s value=%q, using %v", key, raw, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: invalid bool key=%s value=%q, using %v", key, raw, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: invalid duration key=%s value=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
