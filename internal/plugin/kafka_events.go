package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"junction/internal/config"
	"junction/internal/constants"
	"junction/internal/logger"
	"junction/internal/worker"
	"junction/pkg/metrics"
	"junction/pkg/tracing"
)

const KafkaEventsName = "kafka_events"

const (
	LifecycleChannelStarted = "channel_started"
	LifecycleChannelStopped = "channel_stopped"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type KafkaEventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LifecycleEvent is what the Kafka events plugin writes for every channel
// start and stop.
type LifecycleEvent struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Channel   ChannelInfo `json:"channel"`
	Timestamp time.Time   `json:"timestamp"`
}

// MessageWriter is the subset of *kafka.Writer the plugin uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventsPlugin publishes channel lifecycle events to a Kafka topic.
type KafkaEventsPlugin struct {
	log    logger.Logger
	writer MessageWriter
	topic  string
}

func NewKafkaEventsPlugin(log logger.Logger) *KafkaEventsPlugin {
	return &KafkaEventsPlugin{log: log}
}

// NewKafkaEventsPluginWithWriter builds a started plugin around w.
func NewKafkaEventsPluginWithWriter(log logger.Logger, w MessageWriter, topic string) *KafkaEventsPlugin {
	return &KafkaEventsPlugin{log: log, writer: w, topic: topic}
}

// Start falls back to the global broker.kafka settings for anything the
// plugin config leaves out.
func (p *KafkaEventsPlugin) Start(_ context.Context, raw map[string]interface{}, global *config.Config) error {
	var cfg KafkaEventsConfig
	if err := worker.DecodeConfig(raw, &cfg); err != nil {
		return err
	}
	if len(cfg.Brokers) == 0 && global != nil {
		cfg.Brokers = global.Broker.Kafka.Brokers
	}
	if cfg.Topic == "" && global != nil {
		cfg.Topic = global.Broker.Kafka.EventsTopic
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return fmt.Errorf("kafka events plugin requires brokers and topic")
	}

	p.topic = cfg.Topic
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
	}
	p.log.Infow("Kafka events plugin configured", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return nil
}

func (p *KafkaEventsPlugin) Stop(context.Context) error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *KafkaEventsPlugin) ChannelStarted(ctx context.Context, ch ChannelInfo) error {
	return p.publish(ctx, LifecycleChannelStarted, ch)
}

func (p *KafkaEventsPlugin) ChannelStopped(ctx context.Context, ch ChannelInfo) error {
	return p.publish(ctx, LifecycleChannelStopped, ch)
}

func (p *KafkaEventsPlugin) publish(ctx context.Context, event string, ch ChannelInfo) error {
	if p.writer == nil {
		return fmt.Errorf("kafka events plugin is not started")
	}

	ev := LifecycleEvent{
		ID:        uuid.New().String(),
		Event:     event,
		Channel:   ch,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ch.ID),
		Value:   body,
		Headers: tracing.InjectKafkaHeaders(ctx, nil),
		Time:    ev.Timestamp,
	})
	metrics.ObserveKafkaWriteDuration(KafkaEventsName, p.topic, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to write lifecycle event: %w", err)
	}
	metrics.IncKafkaMessagesWritten(KafkaEventsName, p.topic)
	return nil
}
