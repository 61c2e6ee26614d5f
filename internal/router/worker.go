package router

import (
	"context"
	"fmt"

	"junction/internal/broker"
	"junction/internal/logger"
	"junction/internal/stores"
	"junction/internal/worker"
	"junction/pkg/logging"
	"junction/pkg/metrics"
	"junction/pkg/models"
	"junction/pkg/tracing"
)

type WorkerDeps struct {
	Broker   broker.Broker
	Messages *stores.MessageStore
	Policies *Registry
	Logs     *logger.WorkerLogs
	Log      logger.Logger
}

type WorkerConfig struct {
	RouterID     string             `mapstructure:"router_id"`
	Type         string             `mapstructure:"type"`
	Channel      string             `mapstructure:"channel"`
	Destinations []DestinationRoute `mapstructure:"destinations"`
}

// DestinationRoute is the part of a destination the worker routes on.
// Destinations are listed in registration order.
type DestinationRoute struct {
	ID     string                 `mapstructure:"id"`
	Config map[string]interface{} `mapstructure:"config"`
}

type route struct {
	id        string
	isDefault bool
	matcher   Matcher
	conn      *broker.Connector
}

// Worker consumes a channel's inbound messages and events and hands them
// to the matching destinations, and relays destination replies back to the
// channel.
type Worker struct {
	name     string
	cfg      WorkerConfig
	deps     WorkerDeps
	base     logger.Logger
	log      logger.Logger
	closeLog func() error
	channel  *broker.Connector
	routes   []route
	subs     broker.Subscriptions
}

func WorkerFactory(deps WorkerDeps) worker.Factory {
	return func(name string, config map[string]interface{}) (worker.Worker, error) {
		var cfg WorkerConfig
		if err := worker.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewWorker(name, cfg, deps)
	}
}

func NewWorker(name string, cfg WorkerConfig, deps WorkerDeps) (*Worker, error) {
	if cfg.Channel == "" {
		return nil, fmt.Errorf("router worker %s: channel is required", name)
	}
	policy, ok := deps.Policies.Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("router worker %s: unknown router type %q", name, cfg.Type)
	}

	base := deps.Log.WithFields("worker", name, "router_id", cfg.RouterID)
	w := &Worker{
		name:     name,
		cfg:      cfg,
		deps:     deps,
		base:     base,
		log:      base,
		closeLog: func() error { return nil },
		channel:  broker.NewConnector(deps.Broker, cfg.Channel),
	}
	for _, d := range cfg.Destinations {
		matcher, err := policy.Compile(d.Config)
		if err != nil {
			return nil, fmt.Errorf("router worker %s: destination %s: %w", name, d.ID, err)
		}
		isDefault, _ := d.Config["default"].(bool)
		w.routes = append(w.routes, route{
			id:        d.ID,
			isDefault: isDefault,
			matcher:   matcher,
			conn:      broker.NewConnector(deps.Broker, d.ID),
		})
	}
	return w, nil
}

func (w *Worker) Start(ctx context.Context) error {
	log, closeLog, err := w.deps.Logs.Open(w.base, w.name)
	if err != nil {
		return err
	}
	w.log, w.closeLog = log, closeLog

	if err := w.subscribe(ctx); err != nil {
		w.subs.Close()
		w.subs = nil
		closeLog()
		return err
	}

	w.log.Infow("Router worker started", "channel", w.cfg.Channel, "destinations", len(w.routes))
	return nil
}

func (w *Worker) subscribe(ctx context.Context) error {
	inbound, err := w.channel.ConsumeInbound(ctx, w.handleInbound)
	if err != nil {
		return err
	}
	w.subs = append(w.subs, inbound)

	events, err := w.channel.ConsumeEvent(ctx, w.handleEvent)
	if err != nil {
		return err
	}
	w.subs = append(w.subs, events)

	for _, r := range w.routes {
		sub, err := r.conn.ConsumeOutbound(ctx, func(ctx context.Context, msg models.Message) error {
			return w.handleOutbound(ctx, r.id, msg)
		})
		if err != nil {
			return err
		}
		w.subs = append(w.subs, sub)
	}
	return nil
}

func (w *Worker) Stop(context.Context) error {
	err := w.subs.Close()
	w.subs = nil
	if closeErr := w.closeLog(); closeErr != nil && err == nil {
		err = closeErr
	}
	w.closeLog = func() error { return nil }
	return err
}

func (w *Worker) context(ctx context.Context) context.Context {
	ctx = logging.WithRouterID(ctx, w.cfg.RouterID)
	return logging.WithChannelID(ctx, w.cfg.Channel)
}

// match returns the routes whose matcher accepts the message, or the
// default routes when none does. A matcher error counts as no match.
func (w *Worker) match(ctx context.Context, address string, msg models.Message) []route {
	var matched, defaults []route
	for _, r := range w.routes {
		if r.isDefault {
			defaults = append(defaults, r)
		}
		ok, err := r.matcher.Match(ctx, address, msg)
		if err != nil {
			w.log.WarnwCtx(ctx, "Destination matcher failed", "destination_id", r.id, "error", err)
			continue
		}
		if ok {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return defaults
	}
	return matched
}

func (w *Worker) handleInbound(ctx context.Context, msg models.Message) error {
	ctx = logging.WithMessageID(w.context(ctx), msg.MessageID)
	ctx, span := tracing.StartWorkerSpan(ctx, "router", "inbound", w.cfg.RouterID,
		tracing.MessageIDKey.String(msg.MessageID))
	defer span.End()

	if msg.ToAddr == "" {
		w.log.WarnwCtx(ctx, "Inbound message has no to address, dropping")
		metrics.IncRoutedMessages("inbound", "dropped")
		return nil
	}

	targets := w.match(ctx, msg.ToAddr, msg)
	if len(targets) == 0 {
		w.log.InfowCtx(ctx, "No destination for inbound message", "to", msg.ToAddr)
		metrics.IncRoutedMessages("inbound", "unrouted")
		return nil
	}

	for _, r := range targets {
		if err := w.deps.Messages.StoreInbound(ctx, r.id, msg); err != nil {
			w.log.ErrorwCtx(ctx, "Failed to store inbound message", "destination_id", r.id, "error", err)
		}
		if err := r.conn.PublishInbound(ctx, msg); err != nil {
			w.log.ErrorwCtx(ctx, "Failed to route inbound message", "destination_id", r.id, "error", err)
			metrics.IncRoutedMessages("inbound", "error")
			continue
		}
		metrics.IncRoutedMessages("inbound", "routed")
	}
	return nil
}

// handleOutbound relays a destination's message to the channel. The
// outbound record is kept under both the destination and the channel so
// events can be correlated back to it on either side.
func (w *Worker) handleOutbound(ctx context.Context, destinationID string, msg models.Message) (err error) {
	ctx = logging.WithMessageID(w.context(ctx), msg.MessageID)
	ctx, span := tracing.StartWorkerSpan(ctx, "router", "outbound", w.cfg.RouterID,
		tracing.MessageIDKey.String(msg.MessageID),
		tracing.DestinationKey.String(destinationID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := w.deps.Messages.StoreOutbound(ctx, destinationID, msg); err != nil {
		return err
	}
	msg.TransportName = w.cfg.Channel
	if err := w.deps.Messages.StoreOutbound(ctx, w.cfg.Channel, msg); err != nil {
		return err
	}
	if err := w.channel.PublishOutbound(ctx, msg); err != nil {
		metrics.IncRoutedMessages("outbound", "error")
		return err
	}
	metrics.IncRoutedMessages("outbound", "routed")
	return nil
}

func (w *Worker) handleEvent(ctx context.Context, ev models.Event) (err error) {
	ctx = logging.WithMessageID(w.context(ctx), ev.UserMessageID)
	ctx, span := tracing.StartWorkerSpan(ctx, "router", "event", w.cfg.RouterID,
		tracing.MessageIDKey.String(ev.UserMessageID),
		tracing.EventTypeKey.String(ev.EventType),
	)
	defer func() { tracing.EndSpan(span, err) }()

	outbound, err := w.deps.Messages.LoadOutbound(ctx, w.cfg.Channel, ev.UserMessageID)
	if err != nil {
		return err
	}
	if outbound == nil {
		w.log.WarnwCtx(ctx, "Cannot find message for event, not routing", "event_id", ev.EventID)
		metrics.IncRoutedMessages("event", "dropped")
		return nil
	}
	if outbound.FromAddr == "" {
		w.log.WarnwCtx(ctx, "Outbound message has no from address, cannot route event", "event_id", ev.EventID)
		metrics.IncRoutedMessages("event", "dropped")
		return nil
	}

	if err := w.deps.Messages.StoreEvent(ctx, w.cfg.Channel, ev); err != nil {
		w.log.ErrorwCtx(ctx, "Failed to store event", "event_id", ev.EventID, "error", err)
	}

	targets := w.match(ctx, outbound.FromAddr, *outbound)
	if len(targets) == 0 {
		metrics.IncRoutedMessages("event", "unrouted")
		return nil
	}
	for _, r := range targets {
		if err := w.deps.Messages.StoreEvent(ctx, r.id, ev); err != nil {
			w.log.ErrorwCtx(ctx, "Failed to store event", "destination_id", r.id, "error", err)
		}
		if err := r.conn.PublishEvent(ctx, ev); err != nil {
			w.log.ErrorwCtx(ctx, "Failed to route event", "destination_id", r.id, "error", err)
			metrics.IncRoutedMessages("event", "error")
			continue
		}
		metrics.IncRoutedMessages("event", "routed")
	}
	return nil
}
