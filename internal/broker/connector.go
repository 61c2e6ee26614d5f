package broker

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"junction/internal/constants"
	"junction/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Connector publishes and consumes the typed traffic of one named
// endpoint: a transport, a destination or an amqp_queue.
type Connector struct {
	broker Broker
	name   string
}

func NewConnector(b Broker, name string) *Connector {
	return &Connector{broker: b, name: name}
}

func (c *Connector) Name() string {
	return c.name
}

func (c *Connector) publish(ctx context.Context, suffix string, v interface{}) error {
	key, err := RoutingKey(c.name, suffix)
	if err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", suffix, err)
	}
	return c.broker.Publish(ctx, key, body)
}

func (c *Connector) PublishInbound(ctx context.Context, msg models.Message) error {
	return c.publish(ctx, constants.RoutingInbound, msg)
}

func (c *Connector) PublishOutbound(ctx context.Context, msg models.Message) error {
	return c.publish(ctx, constants.RoutingOutbound, msg)
}

func (c *Connector) PublishEvent(ctx context.Context, ev models.Event) error {
	return c.publish(ctx, constants.RoutingEvent, ev)
}

func (c *Connector) PublishStatus(ctx context.Context, st models.Status) error {
	return c.publish(ctx, constants.RoutingStatus, st)
}

// PublishRaw publishes an already-shaped payload, such as the API form of a
// message bound for an operator queue.
func (c *Connector) PublishRaw(ctx context.Context, suffix string, v interface{}) error {
	return c.publish(ctx, suffix, v)
}

// consume decodes each delivery into T and drops payloads that fail
// validate before they reach handler.
func consume[T any](ctx context.Context, c *Connector, suffix string, validate func(*T) error, handler func(context.Context, T) error) (Subscription, error) {
	key, err := RoutingKey(c.name, suffix)
	if err != nil {
		return nil, err
	}
	return c.broker.Subscribe(ctx, key, func(ctx context.Context, body []byte) error {
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return fmt.Errorf("failed to unmarshal %s payload: %w", key, err)
		}
		if err := validate(&v); err != nil {
			return fmt.Errorf("invalid %s payload: %w", key, err)
		}
		return handler(ctx, v)
	})
}

func (c *Connector) ConsumeInbound(ctx context.Context, handler func(context.Context, models.Message) error) (Subscription, error) {
	return consume(ctx, c, constants.RoutingInbound, models.ValidateMessage, handler)
}

func (c *Connector) ConsumeOutbound(ctx context.Context, handler func(context.Context, models.Message) error) (Subscription, error) {
	return consume(ctx, c, constants.RoutingOutbound, models.ValidateMessage, handler)
}

func (c *Connector) ConsumeEvent(ctx context.Context, handler func(context.Context, models.Event) error) (Subscription, error) {
	return consume(ctx, c, constants.RoutingEvent, models.ValidateEvent, handler)
}

func (c *Connector) ConsumeStatus(ctx context.Context, handler func(context.Context, models.Status) error) (Subscription, error) {
	return consume(ctx, c, constants.RoutingStatus, models.ValidateStatus, handler)
}

// Subscriptions closes a group of subscriptions together.
type Subscriptions []Subscription

func (s Subscriptions) Close() error {
	var first error
	for _, sub := range s {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
