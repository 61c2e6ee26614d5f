package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Store          StoreConfig          `mapstructure:"store"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Channels       ChannelsConfig       `mapstructure:"channels"`
	Routers        RoutersConfig        `mapstructure:"routers"`
	Plugins        []PluginConfig       `mapstructure:"plugins"`
	API            APIConfig            `mapstructure:"api"`
	ConnectRetry   RetryConfig          `mapstructure:"connect_retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type StoreConfig struct {
	Type  string      `mapstructure:"type"` // "redis" or "memory"
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"` // "amqp" or "memory"
	AMQP  AMQPConfig  `mapstructure:"amqp"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type AMQPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Exchange string `mapstructure:"exchange"`
	Prefetch int    `mapstructure:"prefetch"`

	// Management API used by the queue health check. Empty disables it.
	ManagementURL      string `mapstructure:"management_url"`
	ManagementUser     string `mapstructure:"management_user"`
	ManagementPassword string `mapstructure:"management_password"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	EventsTopic string   `mapstructure:"events_topic"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	LoggingPath string `mapstructure:"logging_path"`
	MaxLogs     int    `mapstructure:"max_logs"`
}

type ChannelsConfig struct {
	// Types maps a channel type tag to a transport implementation name.
	Types               map[string]string `mapstructure:"types"`
	InboundMessageTTL   int               `mapstructure:"inbound_message_ttl"`
	OutboundMessageTTL  int               `mapstructure:"outbound_message_ttl"`
	MetricWindow        float64           `mapstructure:"metric_window"`
	ForwardingTimeout   time.Duration     `mapstructure:"forwarding_timeout"`
	AllowExpiredReplies bool              `mapstructure:"allow_expired_replies"`
}

type RoutersConfig struct {
	Types []string `mapstructure:"types"`
}

type PluginConfig struct {
	Type   string                 `mapstructure:"type"`
	Config map[string]interface{} `mapstructure:"config"`
}

type APIConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// InboundTTL and OutboundTTL convert the configured seconds into durations.
func (c ChannelsConfig) InboundTTL() time.Duration {
	return time.Duration(c.InboundMessageTTL) * time.Second
}

func (c ChannelsConfig) OutboundTTL() time.Duration {
	return time.Duration(c.OutboundMessageTTL) * time.Second
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
