// Package bootstrap connects the process to its backing services at
// startup, retrying while they come up.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"junction/internal/broker"
	"junction/internal/config"
	"junction/internal/logger"
	"junction/internal/store"
	"junction/pkg/retry"
)

type Connector struct {
	Config *config.Config
	Logger logger.Logger
	policy retry.Policy
}

func NewConnector(cfg *config.Config, log logger.Logger) *Connector {
	return &Connector{
		Config: cfg,
		Logger: log,
		policy: retry.PolicyFromConfig(cfg.ConnectRetry),
	}
}

func (c *Connector) retry(ctx context.Context, target string, fn func() error) error {
	return retry.RetryWithCallback(ctx, target, c.policy, fn, func(attempt int, err error, next time.Duration) {
		c.Logger.WarnwCtx(ctx, "Connection attempt failed, retrying",
			"target", target,
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
}

// InitBroker connects to the configured message broker.
func (c *Connector) InitBroker(ctx context.Context) (broker.Broker, error) {
	var b broker.Broker
	err := c.retry(ctx, "broker", func() error {
		var err error
		b, err = broker.NewBroker(c.Config.Broker, c.Logger)
		if err != nil && c.Config.Broker.Type != "amqp" {
			// Only a remote broker can come up later.
			return retry.NewFatalError(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	c.Logger.InfowCtx(ctx, "Broker connected", "type", c.Config.Broker.Type)
	return b, nil
}

// Shutdown closes whatever was opened. Nil arguments are skipped.
func (c *Connector) Shutdown(ctx context.Context, b broker.Broker, s store.Store) []error {
	var errs []error

	if b != nil {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("broker close error: %w", err))
		}
	}

	if s != nil {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close error: %w", err))
		}
	}

	if len(errs) == 0 {
		c.Logger.InfowCtx(ctx, "Backing services closed")
	}
	return errs
}
