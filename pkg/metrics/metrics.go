package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "junction_messages_total",
			Help: "Total number of messages and events observed per rate label (count)",
		},
		[]string{"label"},
	)

	ForwardingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "junction_forwarding_requests_total",
			Help: "Total number of HTTP forwarding requests to operator endpoints (count)",
		},
		[]string{"kind", "status"},
	)

	ForwardingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "junction_forwarding_duration_ms",
			Help:    "Duration of HTTP forwarding requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"kind"},
	)

	RoutedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "junction_routed_messages_total",
			Help: "Total number of router decisions (count)",
		},
		[]string{"direction", "result"},
	)

	WorkersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "junction_workers_active",
			Help: "Number of registered workers (count)",
		},
		[]string{"kind"},
	)

	WorkerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "junction_worker_operations_total",
			Help: "Total number of worker start/stop operations (count)",
		},
		[]string{"kind", "operation", "status"},
	)

	BrokerMessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "junction_broker_messages_published_total",
			Help: "Total number of messages published to the broker (count)",
		},
		[]string{"broker", "suffix"},
	)

	BrokerMessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "junction_broker_messages_consumed_total",
			Help: "Total number of messages consumed from the broker (count)",
		},
		[]string{"broker", "suffix", "status"},
	)

	BrokerMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "junction_broker_message_size_bytes",
			Help:    "Size of broker messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		},
		[]string{"broker", "direction"},
	)

	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "junction_store_operations_total",
			Help: "Total number of persistent store operations (count)",
		},
		[]string{"store", "operation", "status"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "junction_store_operation_duration_ms",
			Help:    "Duration of persistent store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"store", "operation"},
	)

	PluginCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "junction_plugin_calls_total",
			Help: "Total number of plugin hook invocations (count)",
		},
		[]string{"plugin", "hook", "status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of connection retry attempts (count)",
		},
		[]string{"target", "result"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

func RegisterGatewayMetrics() {
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(ForwardingRequestsTotal)
	prometheus.MustRegister(ForwardingDuration)
	prometheus.MustRegister(RoutedMessagesTotal)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(WorkerOperationsTotal)
	prometheus.MustRegister(PluginCallsTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(BrokerMessagesPublishedTotal)
	prometheus.MustRegister(BrokerMessagesConsumedTotal)
	prometheus.MustRegister(BrokerMessageSizeBytes)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterStoreMetrics() {
	prometheus.MustRegister(StoreOperationsTotal)
	prometheus.MustRegister(StoreOperationDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func IncMessages(label string) {
	MessagesTotal.WithLabelValues(label).Inc()
}

func IncForwardingRequest(kind, status string) {
	ForwardingRequestsTotal.WithLabelValues(kind, status).Inc()
}

func ObserveForwardingDuration(kind string, duration time.Duration) {
	ForwardingDuration.WithLabelValues(kind).Observe(float64(duration.Milliseconds()))
}

func IncRoutedMessages(direction, result string) {
	RoutedMessagesTotal.WithLabelValues(direction, result).Inc()
}

func SetWorkersActive(kind string, count int) {
	WorkersActive.WithLabelValues(kind).Set(float64(count))
}

func IncWorkerOperation(kind, operation, status string) {
	WorkerOperationsTotal.WithLabelValues(kind, operation, status).Inc()
}

func IncBrokerPublished(broker, suffix string) {
	BrokerMessagesPublishedTotal.WithLabelValues(broker, suffix).Inc()
}

func IncBrokerConsumed(broker, suffix, status string) {
	BrokerMessagesConsumedTotal.WithLabelValues(broker, suffix, status).Inc()
}

func ObserveBrokerMessageSize(broker, direction string, sizeBytes int) {
	BrokerMessageSizeBytes.WithLabelValues(broker, direction).Observe(float64(sizeBytes))
}

func IncStoreOperation(store, operation, status string) {
	StoreOperationsTotal.WithLabelValues(store, operation, status).Inc()
}

func ObserveStoreOperationDuration(store, operation string, duration time.Duration) {
	StoreOperationDuration.WithLabelValues(store, operation).Observe(float64(duration.Milliseconds()))
}

func IncPluginCall(plugin, hook, status string) {
	PluginCallsTotal.WithLabelValues(plugin, hook, status).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
