package broker

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"junction/internal/config"
	"junction/internal/constants"
	"junction/internal/logger"
	"junction/pkg/errors"
	"junction/pkg/logging"
	"junction/pkg/metrics"
	"junction/pkg/tracing"
)

// AMQPBroker publishes to a single durable direct exchange. Queues are named
// after their routing key and declared lazily.
type AMQPBroker struct {
	conn     *amqp.Connection
	exchange string
	prefetch int
	log      logger.Logger

	mu       sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool
	closed   bool
}

func AMQPURL(cfg config.AMQPConfig) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.VHost,
	}
	if cfg.VHost == "/" || cfg.VHost == "" {
		u.Path = "/"
	}
	return u.String()
}

func NewAMQPBroker(cfg config.AMQPConfig, log logger.Logger) (*AMQPBroker, error) {
	conn, err := amqp.Dial(AMQPURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}
	return newAMQPBrokerWithConn(conn, cfg, log)
}

func newAMQPBrokerWithConn(conn *amqp.Connection, cfg config.AMQPConfig, log logger.Logger) (*AMQPBroker, error) {
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}

	exchange := cfg.Exchange
	if exchange == "" {
		exchange = constants.DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	log.Infow("AMQP broker connected",
		"host", cfg.Host,
		"vhost", cfg.VHost,
		"exchange", exchange,
	)

	return &AMQPBroker{
		conn:     conn,
		exchange: exchange,
		prefetch: prefetch,
		log:      log,
		pubCh:    ch,
		declared: make(map[string]bool),
	}, nil
}

func (b *AMQPBroker) declareLocked(ch *amqp.Channel, routingKey string) error {
	if b.declared[routingKey] {
		return nil
	}
	if _, err := ch.QueueDeclare(routingKey, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", routingKey, err)
	}
	if err := ch.QueueBind(routingKey, routingKey, b.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", routingKey, err)
	}
	b.declared[routingKey] = true
	return nil
}

func (b *AMQPBroker) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrServiceUnavailable.WithMessage("amqp broker is closed")
	}
	if err := b.declareLocked(b.pubCh, routingKey); err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      tracing.InjectAMQPHeaders(ctx, nil),
		Body:         body,
	}
	if err := b.pubCh.Publish(b.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", routingKey, err)
	}

	metrics.IncBrokerPublished("amqp", suffixOf(routingKey))
	metrics.ObserveBrokerMessageSize("amqp", "publish", len(body))
	return nil
}

func (b *AMQPBroker) Subscribe(ctx context.Context, routingKey string, handler HandlerFunc) (Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	b.mu.Lock()
	if err := b.declareLocked(ch, routingKey); err != nil {
		b.mu.Unlock()
		ch.Close()
		return nil, err
	}
	b.mu.Unlock()

	tag := routingKey + "-" + uuid.NewString()
	deliveries, err := ch.Consume(routingKey, tag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume %s: %w", routingKey, err)
	}

	sub := &amqpSubscription{
		ch:         ch,
		tag:        tag,
		routingKey: routingKey,
		done:       make(chan struct{}),
	}
	go sub.loop(ctx, deliveries, handler, b.log)

	b.log.Infow("Subscribed to queue", "routing_key", routingKey, "consumer_tag", tag)
	return sub, nil
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if err := b.pubCh.Close(); err != nil {
		b.log.Warnw("Failed to close publish channel", "error", err)
	}
	return b.conn.Close()
}

// IsClosed reports whether the underlying connection has gone away.
func (b *AMQPBroker) IsClosed() bool {
	return b.conn.IsClosed()
}

type amqpSubscription struct {
	ch         *amqp.Channel
	tag        string
	routingKey string
	done       chan struct{}
	closed     atomic.Bool
}

func (s *amqpSubscription) loop(ctx context.Context, deliveries <-chan amqp.Delivery, handler HandlerFunc, log logger.Logger) {
	defer close(s.done)
	suffix := suffixOf(s.routingKey)

	for d := range deliveries {
		s.handle(ctx, d, handler, log, suffix)
	}
}

func (s *amqpSubscription) handle(ctx context.Context, d amqp.Delivery, handler HandlerFunc, log logger.Logger, suffix string) {
	msgCtx, span := tracing.StartSpanFromAMQPHeaders(ctx, "amqp.consume."+suffix, d.Headers)
	defer span.End()

	traceID := span.SpanContext().TraceID()
	if traceID.IsValid() {
		msgCtx = logging.WithTraceID(msgCtx, traceID.String())
	}

	metrics.ObserveBrokerMessageSize("amqp", "consume", len(d.Body))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
			}
		}()
		return handler(msgCtx, d.Body)
	}()

	status := "success"
	if err != nil {
		status = "error"
		log.ErrorwCtx(msgCtx, "Failed to handle message",
			"routing_key", s.routingKey,
			"error", err,
		)
		span.RecordError(err)
	}
	metrics.IncBrokerConsumed("amqp", suffix, status)

	if ackErr := d.Ack(false); ackErr != nil {
		log.WarnwCtx(msgCtx, "Failed to ack message", "routing_key", s.routingKey, "error", ackErr)
	}
}

func (s *amqpSubscription) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	cancelErr := s.ch.Cancel(s.tag, false)
	if cancelErr == nil {
		<-s.done
	}
	if err := s.ch.Close(); err != nil && cancelErr == nil {
		return err
	}
	if cancelErr != nil {
		<-s.done
	}
	return cancelErr
}
