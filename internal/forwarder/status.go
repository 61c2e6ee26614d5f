package forwarder

import (
	"context"
	"fmt"
	"time"

	"junction/internal/broker"
	"junction/internal/logger"
	"junction/internal/worker"
	"junction/pkg/logging"
	"junction/pkg/models"
	"junction/pkg/tracing"
)

type StatusConfig struct {
	Connector string        `mapstructure:"transport_name"`
	StatusURL string        `mapstructure:"status_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StatusWorker records transport status reports and relays them to the
// channel's status_url.
type StatusWorker struct {
	name string
	cfg  StatusConfig
	deps Deps
	log  logger.Logger
	sub  broker.Subscription
}

func StatusFactory(deps Deps) worker.Factory {
	return func(name string, config map[string]interface{}) (worker.Worker, error) {
		var cfg StatusConfig
		if err := worker.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewStatusWorker(name, cfg, deps)
	}
}

func NewStatusWorker(name string, cfg StatusConfig, deps Deps) (*StatusWorker, error) {
	if cfg.Connector == "" {
		return nil, fmt.Errorf("status worker %s: transport_name is required", name)
	}
	return &StatusWorker{
		name: name,
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.WithFields("worker", name),
	}, nil
}

func (w *StatusWorker) Start(ctx context.Context) error {
	sub, err := broker.NewConnector(w.deps.Broker, w.cfg.Connector).ConsumeStatus(ctx, w.handleStatus)
	if err != nil {
		return err
	}
	w.sub = sub
	return nil
}

func (w *StatusWorker) Stop(context.Context) error {
	if w.sub == nil {
		return nil
	}
	err := w.sub.Close()
	w.sub = nil
	return err
}

func (w *StatusWorker) handleStatus(ctx context.Context, st models.Status) error {
	ctx = logging.WithChannelID(ctx, w.cfg.Connector)
	ctx, span := tracing.StartWorkerSpan(ctx, "forwarder", "status", w.cfg.Connector)
	defer span.End()

	if st.ChannelID == "" {
		st.ChannelID = w.cfg.Connector
	}
	if !st.Level.Valid() {
		w.log.WarnwCtx(ctx, "Dropping status with unknown level", "component", st.Component, "status", st.Level)
		return nil
	}

	if err := w.deps.Statuses.StoreStatus(ctx, w.cfg.Connector, st); err != nil {
		w.log.ErrorwCtx(ctx, "Failed to store status", "component", st.Component, "error", err)
	}

	if w.cfg.StatusURL != "" {
		deliver(ctx, w.deps.Poster, w.log, "status", w.cfg.StatusURL, "", w.cfg.Timeout, st)
	}
	return nil
}
