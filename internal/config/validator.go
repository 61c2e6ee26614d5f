package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateStore(cfg.Store); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateLogging(cfg.Logging); err != nil {
		errors = append(errors, err)
	}

	if err := validateChannels(cfg.Channels); err != nil {
		errors = append(errors, err)
	}

	if err := validatePlugins(cfg.Plugins); err != nil {
		errors = append(errors, err)
	}

	if err := validateRetry(cfg.ConnectRetry); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateStore(cfg StoreConfig) error {
	switch cfg.Type {
	case "redis":
		return validateRedis(cfg.Redis)
	case "memory":
		return nil
	case "":
		return &ValidationError{
			Field:   "store.type",
			Message: "store type is required",
		}
	default:
		return &ValidationError{
			Field:   "store.type",
			Message: fmt.Sprintf("unknown store type: %s (supported: redis, memory)", cfg.Type),
		}
	}
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "store.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "store.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.DB < 0 {
		return &ValidationError{
			Field:   "store.redis.db",
			Message: "db must be non-negative",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	switch cfg.Type {
	case "amqp":
		return validateAMQP(cfg.AMQP)
	case "memory":
		return nil
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: amqp, memory)", cfg.Type),
		}
	}
}

func validateAMQP(cfg AMQPConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "broker.amqp.host",
			Message: "AMQP host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "broker.amqp.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.Exchange == "" {
		return &ValidationError{
			Field:   "broker.amqp.exchange",
			Message: "exchange name is required",
		}
	}

	if cfg.Prefetch < 0 {
		return &ValidationError{
			Field:   "broker.amqp.prefetch",
			Message: "prefetch must be non-negative",
		}
	}

	if cfg.ManagementURL != "" {
		u, err := url.Parse(cfg.ManagementURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{
				Field:   "broker.amqp.management_url",
				Message: fmt.Sprintf("invalid management URL: %s", cfg.ManagementURL),
			}
		}
	}

	return nil
}

func validateLogging(cfg LoggingConfig) error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if cfg.Level != "" && !validLevels[strings.ToLower(cfg.Level)] {
		return &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", cfg.Level),
		}
	}

	if cfg.MaxLogs < 1 {
		return &ValidationError{
			Field:   "logging.max_logs",
			Message: "max_logs must be at least 1",
		}
	}

	return nil
}

func validateChannels(cfg ChannelsConfig) error {
	if len(cfg.Types) == 0 {
		return &ValidationError{
			Field:   "channels.types",
			Message: "at least one channel type is required",
		}
	}

	for tag, impl := range cfg.Types {
		if impl == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("channels.types.%s", tag),
				Message: "transport implementation name cannot be empty",
			}
		}
	}

	if cfg.InboundMessageTTL < 1 {
		return &ValidationError{
			Field:   "channels.inbound_message_ttl",
			Message: "TTL must be at least 1 second",
		}
	}

	if cfg.OutboundMessageTTL < 1 {
		return &ValidationError{
			Field:   "channels.outbound_message_ttl",
			Message: "TTL must be at least 1 second",
		}
	}

	if cfg.MetricWindow <= 0 {
		return &ValidationError{
			Field:   "channels.metric_window",
			Message: "metric window must be positive",
		}
	}

	if cfg.ForwardingTimeout <= 0 {
		return &ValidationError{
			Field:   "channels.forwarding_timeout",
			Message: "forwarding timeout must be positive",
		}
	}

	return nil
}

func validatePlugins(plugins []PluginConfig) error {
	for i, p := range plugins {
		if p.Type == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("plugins[%d].type", i),
				Message: "plugin type is required",
			}
		}
	}
	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "connect_retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   "connect_retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier < 0 {
		return &ValidationError{
			Field:   "connect_retry.multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}
