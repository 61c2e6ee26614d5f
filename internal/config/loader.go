package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"junction/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	// A missing .env file is not an error; values may come from the process env.
	_ = godotenv.Load()

	viper.Reset()

	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", constants.DefaultHTTPTimeout)
	viper.SetDefault("server.write_timeout_seconds", constants.DefaultHTTPTimeout)

	viper.SetDefault("store.type", "redis")
	viper.SetDefault("store.redis.host", "localhost")
	viper.SetDefault("store.redis.port", 6379)

	viper.SetDefault("broker.type", "amqp")
	viper.SetDefault("broker.amqp.host", "localhost")
	viper.SetDefault("broker.amqp.port", 5672)
	viper.SetDefault("broker.amqp.user", "guest")
	viper.SetDefault("broker.amqp.password", "guest")
	viper.SetDefault("broker.amqp.vhost", "/")
	viper.SetDefault("broker.amqp.exchange", constants.DefaultExchange)
	viper.SetDefault("broker.amqp.prefetch", 20)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.max_logs", constants.DefaultMaxLogs)

	viper.SetDefault("channels.types", map[string]string{"telnet": "telnet"})
	viper.SetDefault("channels.inbound_message_ttl", constants.DefaultInboundMessageTTL)
	viper.SetDefault("channels.outbound_message_ttl", constants.DefaultOutboundMessageTTL)
	viper.SetDefault("channels.metric_window", constants.DefaultMetricWindow)
	viper.SetDefault("channels.forwarding_timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("channels.allow_expired_replies", false)

	viper.SetDefault("routers.types", []string{constants.RouterTypeFromAddress})

	viper.SetDefault("connect_retry.max_attempts", 5)
	viper.SetDefault("connect_retry.initial_interval", "1s")
	viper.SetDefault("connect_retry.max_interval", "10s")
	viper.SetDefault("connect_retry.multiplier", 2.0)
}

func bindEnvVariables() {
	viper.BindEnv("store.type", "STORE_TYPE")
	viper.BindEnv("store.redis.host", "STORE_REDIS_HOST")
	viper.BindEnv("store.redis.port", "STORE_REDIS_PORT")
	viper.BindEnv("store.redis.password", "STORE_REDIS_PASSWORD")
	viper.BindEnv("store.redis.db", "STORE_REDIS_DB")
	viper.BindEnv("store.redis.key_prefix", "STORE_REDIS_KEY_PREFIX")

	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.amqp.host", "BROKER_AMQP_HOST")
	viper.BindEnv("broker.amqp.port", "BROKER_AMQP_PORT")
	viper.BindEnv("broker.amqp.user", "BROKER_AMQP_USER")
	viper.BindEnv("broker.amqp.password", "BROKER_AMQP_PASSWORD")
	viper.BindEnv("broker.amqp.vhost", "BROKER_AMQP_VHOST")
	viper.BindEnv("broker.amqp.management_url", "BROKER_AMQP_MANAGEMENT_URL")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.events_topic", "BROKER_KAFKA_EVENTS_TOPIC")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")
	viper.BindEnv("logging.logging_path", "LOGGING_LOGGING_PATH")

	viper.BindEnv("channels.allow_expired_replies", "CHANNELS_ALLOW_EXPIRED_REPLIES")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
