package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  type: memory
broker:
  type: memory
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 600, cfg.Channels.InboundMessageTTL)
	assert.Equal(t, 172800, cfg.Channels.OutboundMessageTTL)
	assert.Equal(t, 10.0, cfg.Channels.MetricWindow)
	assert.Equal(t, 10*time.Second, cfg.Channels.ForwardingTimeout)
	assert.False(t, cfg.Channels.AllowExpiredReplies)
	assert.Equal(t, 100, cfg.Logging.MaxLogs)
	assert.Equal(t, []string{"from_address"}, cfg.Routers.Types)
	assert.Equal(t, "telnet", cfg.Channels.Types["telnet"])
	assert.Equal(t, 10*time.Minute, cfg.Channels.InboundTTL())
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
store:
  type: redis
  redis:
    host: redis.internal
    port: 6380
    key_prefix: junction
broker:
  type: memory
channels:
  types:
    telnet: telnet
    sms: telnet
  inbound_message_ttl: 30
  allow_expired_replies: true
plugins:
  - type: kafka_events
    config:
      topic: lifecycle
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis.internal", cfg.Store.Redis.Host)
	assert.Equal(t, "junction", cfg.Store.Redis.KeyPrefix)
	assert.Len(t, cfg.Channels.Types, 2)
	assert.Equal(t, 30, cfg.Channels.InboundMessageTTL)
	assert.True(t, cfg.Channels.AllowExpiredReplies)
	require.Len(t, cfg.Plugins, 1)
	assert.Equal(t, "kafka_events", cfg.Plugins[0].Type)
	assert.Equal(t, "lifecycle", cfg.Plugins[0].Config["topic"])
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
			Store:  StoreConfig{Type: "memory"},
			Broker: BrokerConfig{Type: "memory"},
			Logging: LoggingConfig{
				Level:   "info",
				MaxLogs: 100,
			},
			Channels: ChannelsConfig{
				Types:              map[string]string{"telnet": "telnet"},
				InboundMessageTTL:  600,
				OutboundMessageTTL: 600,
				MetricWindow:       10,
				ForwardingTimeout:  time.Second,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{"valid", func(cfg *Config) {}, ""},
		{"bad port", func(cfg *Config) { cfg.Server.Port = 0 }, "server.port"},
		{"unknown store", func(cfg *Config) { cfg.Store.Type = "mongo" }, "store.type"},
		{"redis without host", func(cfg *Config) { cfg.Store = StoreConfig{Type: "redis", Redis: RedisConfig{Port: 6379}} }, "store.redis.host"},
		{"unknown broker", func(cfg *Config) { cfg.Broker.Type = "kafka" }, "broker.type"},
		{"amqp without exchange", func(cfg *Config) {
			cfg.Broker = BrokerConfig{Type: "amqp", AMQP: AMQPConfig{Host: "rabbit", Port: 5672}}
		}, "broker.amqp.exchange"},
		{"zero ttl", func(cfg *Config) { cfg.Channels.InboundMessageTTL = 0 }, "channels.inbound_message_ttl"},
		{"zero window", func(cfg *Config) { cfg.Channels.MetricWindow = 0 }, "channels.metric_window"},
		{"no channel types", func(cfg *Config) { cfg.Channels.Types = nil }, "channels.types"},
		{"plugin without type", func(cfg *Config) { cfg.Plugins = []PluginConfig{{}} }, "plugins[0].type"},
		{"bad log level", func(cfg *Config) { cfg.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
