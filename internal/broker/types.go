// Package broker moves messages, events and statuses between transports,
// forwarding workers and routers. Every queue is addressed by a routing key
// of the form "<connector>.<suffix>".
package broker

import (
	"context"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Broker interface {
	Publisher
	// Subscribe starts consuming routingKey until the subscription is
	// closed. Consumers of the same key compete for messages.
	Subscribe(ctx context.Context, routingKey string, handler HandlerFunc) (Subscription, error)
	Close() error
}

// Subscription.Close stops delivery and waits for the in-flight handler.
type Subscription interface {
	Close() error
}

// HandlerFunc errors are logged and the message is acknowledged anyway;
// nothing is redelivered.
type HandlerFunc func(ctx context.Context, body []byte) error
