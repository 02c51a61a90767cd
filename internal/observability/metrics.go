package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_engine_http_requests_total",
			Help: "Total number of HTTP requests processed by the gateway.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_engine_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_engine_ws_active_connections",
			Help: "Number of active snapshot websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_engine_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_engine_active_sessions",
			Help: "Number of live engine sessions.",
		},
	)
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_engine_sends_total",
			Help: "Message send attempts by outcome.",
		},
		[]string{"outcome"},
	)
	staleResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_engine_stale_responses_total",
			Help: "Responses discarded because a newer request superseded them.",
		},
		[]string{"kind"},
	)
	catalogFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_engine_emote_catalog_fetches_total",
			Help: "Emote catalog initialize calls by result.",
		},
		[]string{"result"},
	)
	emoteSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_engine_emote_searches_total",
			Help: "Remote emote searches by result.",
		},
		[]string{"result"},
	)
	notificationDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_engine_notification_deliveries_total",
			Help: "Live notifications delivered to sessions by source.",
		},
		[]string{"source", "result"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_engine_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		activeSessions,
		sendsTotal,
		staleResponsesTotal,
		catalogFetchesTotal,
		emoteSearchesTotal,
		notificationDeliveriesTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

func IncSend(outcome string) {
	sendsTotal.WithLabelValues(outcome).Inc()
}

func IncStaleResponse(kind string) {
	staleResponsesTotal.WithLabelValues(kind).Inc()
}

func IncCatalogFetch(result string) {
	catalogFetchesTotal.WithLabelValues(result).Inc()
}

func IncEmoteSearch(result string) {
	emoteSearchesTotal.WithLabelValues(result).Inc()
}

func IncNotificationDelivery(source, result string) {
	notificationDeliveriesTotal.WithLabelValues(source, result).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
