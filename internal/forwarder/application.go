// Package forwarder holds the workers that hand a channel's traffic to the
// operator: the application worker for messages and events, and the status
// worker for transport health reports.
package forwarder

import (
	"context"
	"fmt"
	"time"

	"junction/internal/broker"
	"junction/internal/constants"
	"junction/internal/logger"
	"junction/internal/stores"
	"junction/internal/worker"
	"junction/pkg/logging"
	"junction/pkg/metrics"
	"junction/pkg/models"
	"junction/pkg/tracing"
)

// Deps are the shared collaborators every forwarding worker is built with.
type Deps struct {
	Broker   broker.Broker
	Messages *stores.MessageStore
	Rates    *stores.RateStore
	Statuses *stores.StatusStore
	Poster   *Poster
	Log      logger.Logger
}

type ApplicationConfig struct {
	// Connector is the channel or destination id whose traffic is consumed.
	Connector      string        `mapstructure:"transport_name"`
	MOURL          string        `mapstructure:"mo_message_url"`
	MOURLAuthToken string        `mapstructure:"mo_message_url_auth_token"`
	MOURLTimeout   time.Duration `mapstructure:"mo_message_url_timeout"`
	AMQPQueue      string        `mapstructure:"message_queue"`
	MetricWindow   float64       `mapstructure:"metric_window"`
}

// ApplicationWorker persists and forwards inbound messages and delivery
// events for one connector.
type ApplicationWorker struct {
	name string
	cfg  ApplicationConfig
	deps Deps
	log  logger.Logger
	subs broker.Subscriptions
}

func ApplicationFactory(deps Deps) worker.Factory {
	return func(name string, config map[string]interface{}) (worker.Worker, error) {
		var cfg ApplicationConfig
		if err := worker.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewApplicationWorker(name, cfg, deps)
	}
}

func NewApplicationWorker(name string, cfg ApplicationConfig, deps Deps) (*ApplicationWorker, error) {
	if cfg.Connector == "" {
		return nil, fmt.Errorf("application worker %s: transport_name is required", name)
	}
	if cfg.MetricWindow <= 0 {
		cfg.MetricWindow = constants.DefaultMetricWindow
	}
	return &ApplicationWorker{
		name: name,
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.WithFields("worker", name),
	}, nil
}

func (w *ApplicationWorker) Start(ctx context.Context) error {
	if w.cfg.MOURL == "" && w.cfg.AMQPQueue == "" {
		w.log.Infow("No mo_url or amqp_queue configured, not consuming", "connector", w.cfg.Connector)
		return nil
	}

	conn := broker.NewConnector(w.deps.Broker, w.cfg.Connector)
	inbound, err := conn.ConsumeInbound(ctx, w.handleInbound)
	if err != nil {
		return err
	}
	events, err := conn.ConsumeEvent(ctx, w.handleEvent)
	if err != nil {
		inbound.Close()
		return err
	}
	w.subs = broker.Subscriptions{inbound, events}
	return nil
}

func (w *ApplicationWorker) Stop(context.Context) error {
	err := w.subs.Close()
	w.subs = nil
	return err
}

func (w *ApplicationWorker) handleInbound(ctx context.Context, msg models.Message) error {
	ctx = logging.WithChannelID(ctx, w.cfg.Connector)
	ctx = logging.WithMessageID(ctx, msg.MessageID)
	ctx, span := tracing.StartWorkerSpan(ctx, "forwarder", "inbound", w.cfg.Connector,
		tracing.MessageIDKey.String(msg.MessageID))
	defer span.End()

	if err := w.deps.Messages.StoreInbound(ctx, w.cfg.Connector, msg); err != nil {
		w.log.ErrorwCtx(ctx, "Failed to store inbound message", "error", err)
	}

	apiMsg := models.MessageToAPI(w.cfg.Connector, msg)

	if w.cfg.MOURL != "" {
		w.post(ctx, "message", w.cfg.MOURL, w.cfg.MOURLAuthToken, apiMsg)
	}
	if w.cfg.AMQPQueue != "" {
		w.publish(ctx, constants.RoutingInbound, apiMsg)
	}

	if err := w.deps.Rates.Increment(ctx, w.cfg.Connector, models.RateInbound, w.cfg.MetricWindow); err != nil {
		w.log.ErrorwCtx(ctx, "Failed to increment inbound rate", "error", err)
	}
	metrics.IncMessages(models.RateInbound)
	return nil
}

func (w *ApplicationWorker) handleEvent(ctx context.Context, ev models.Event) error {
	ctx = logging.WithChannelID(ctx, w.cfg.Connector)
	ctx = logging.WithMessageID(ctx, ev.UserMessageID)
	ctx, span := tracing.StartWorkerSpan(ctx, "forwarder", "event", w.cfg.Connector,
		tracing.MessageIDKey.String(ev.UserMessageID),
		tracing.EventTypeKey.String(ev.EventType),
	)
	defer span.End()

	// An event outliving its outbound record is not stored, so it cannot
	// revive the message's expired status.
	outbound, err := w.deps.Messages.LoadOutbound(ctx, w.cfg.Connector, ev.UserMessageID)
	if err != nil {
		w.log.ErrorwCtx(ctx, "Failed to load outbound message for event", "event_id", ev.EventID, "error", err)
		return nil
	}
	if outbound == nil {
		w.log.WarnwCtx(ctx, "Cannot find message for event", "event_id", ev.EventID)
		return nil
	}

	if err := w.deps.Messages.StoreEvent(ctx, w.cfg.Connector, ev); err != nil {
		w.log.ErrorwCtx(ctx, "Failed to store event", "event_id", ev.EventID, "error", err)
	}

	apiEv, ok := models.EventToAPI(w.cfg.Connector, ev)
	if !ok {
		w.log.WarnwCtx(ctx, "Dropping event with unknown type",
			"event_type", ev.EventType,
			"delivery_status", ev.DeliveryStatus,
		)
		return nil
	}

	eventURL, err := w.deps.Messages.LoadEventURL(ctx, w.cfg.Connector, ev.UserMessageID)
	if err != nil {
		w.log.ErrorwCtx(ctx, "Failed to load event url", "error", err)
	}
	if eventURL != "" {
		token, err := w.deps.Messages.LoadEventAuthToken(ctx, w.cfg.Connector, ev.UserMessageID)
		if err != nil {
			w.log.ErrorwCtx(ctx, "Failed to load event auth token", "error", err)
		}
		w.post(ctx, "event", eventURL, token, apiEv)
	}
	if w.cfg.AMQPQueue != "" {
		w.publish(ctx, constants.RoutingEvent, apiEv)
	}

	if err := w.deps.Rates.Increment(ctx, w.cfg.Connector, apiEv.EventType, w.cfg.MetricWindow); err != nil {
		w.log.ErrorwCtx(ctx, "Failed to increment event rate", "error", err)
	}
	metrics.IncMessages(apiEv.EventType)
	return nil
}

// post delivers body once. Failures are logged and never returned: the
// caller's persistence and metrics must still happen.
func (w *ApplicationWorker) post(ctx context.Context, kind, target, token string, body interface{}) {
	deliver(ctx, w.deps.Poster, w.log, kind, target, token, w.cfg.MOURLTimeout, body)
}

func (w *ApplicationWorker) publish(ctx context.Context, suffix string, body interface{}) {
	conn := broker.NewConnector(w.deps.Broker, w.cfg.AMQPQueue)
	if err := conn.PublishRaw(ctx, suffix, body); err != nil {
		w.log.ErrorwCtx(ctx, "Failed to publish to amqp queue",
			"queue", w.cfg.AMQPQueue,
			"suffix", suffix,
			"error", err,
		)
	}
}

func deliver(ctx context.Context, poster *Poster, log logger.Logger, kind, target, token string, timeout time.Duration, body interface{}) {
	start := time.Now()
	resp, err := poster.Post(ctx, target, body, token, timeout)
	metrics.ObserveForwardingDuration(kind, time.Since(start))

	if err != nil {
		metrics.IncForwardingRequest(kind, "error")
		log.ErrorwCtx(ctx, "Error sending "+kind,
			"body", body,
			"error", err,
		)
		return
	}
	if !resp.OK() {
		metrics.IncForwardingRequest(kind, "rejected")
		log.ErrorwCtx(ctx, "Error sending "+kind,
			"body", body,
			"status_code", resp.StatusCode,
			"response", string(resp.Body),
		)
		return
	}
	metrics.IncForwardingRequest(kind, "success")
}
