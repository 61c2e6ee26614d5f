package channel

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"junction/internal/config"
	"junction/internal/constants"
	"junction/internal/logger"
	"junction/internal/plugin"
	"junction/internal/sender"
	"junction/internal/store"
	"junction/internal/stores"
	"junction/internal/transport"
	"junction/internal/worker"
	"junction/pkg/errors"
	"junction/pkg/logging"
)

// Service owns every channel. Operations on one channel id are serialized;
// different channels proceed independently.
type Service struct {
	store      store.Store
	supervisor *worker.Supervisor
	transports *transport.Registry
	plugins    *plugin.Manager
	sender     *sender.Sender
	messages   *stores.MessageStore
	rates      *stores.RateStore
	statuses   *stores.StatusStore
	logs       *logger.WorkerLogs
	cfg        config.ChannelsConfig
	locks      *worker.KeyedMutex
	claims     ClaimLookup
	log        logger.Logger
}

// ClaimLookup reports which router, if any, consumes a channel.
type ClaimLookup interface {
	// WithClaim runs fn with the id of the router consuming channelID, or
	// "" when there is none. The answer holds until fn returns.
	WithClaim(ctx context.Context, channelID string, fn func(routerID string) error) error
}

type unclaimed struct{}

func (unclaimed) WithClaim(_ context.Context, _ string, fn func(string) error) error {
	return fn("")
}

type Deps struct {
	Store      store.Store
	Supervisor *worker.Supervisor
	Transports *transport.Registry
	Plugins    *plugin.Manager
	Sender     *sender.Sender
	Messages   *stores.MessageStore
	Rates      *stores.RateStore
	Statuses   *stores.StatusStore
	Logs       *logger.WorkerLogs
	Log        logger.Logger
}

func NewService(cfg config.ChannelsConfig, deps Deps) *Service {
	return &Service{
		store:      deps.Store,
		supervisor: deps.Supervisor,
		transports: deps.Transports,
		plugins:    deps.Plugins,
		sender:     deps.Sender,
		messages:   deps.Messages,
		rates:      deps.Rates,
		statuses:   deps.Statuses,
		logs:       deps.Logs,
		cfg:        cfg,
		locks:      worker.NewKeyedMutex(),
		claims:     unclaimed{},
		log:        deps.Log,
	}
}

// SetClaims installs the router lookup consulted before a channel is given
// forwarding targets or deleted. Routers are built on top of channels, so
// this is wired after both services exist.
func (s *Service) SetClaims(claims ClaimLookup) {
	s.claims = claims
}

func propertiesKey(id string) string {
	return id + ":" + constants.ChannelPropertiesSuffix
}

func (s *Service) metricWindow() float64 {
	if s.cfg.MetricWindow <= 0 {
		return constants.DefaultMetricWindow
	}
	return s.cfg.MetricWindow
}

func (s *Service) forwardingTimeout() float64 {
	if s.cfg.ForwardingTimeout <= 0 {
		return constants.DefaultHTTPTimeout.Seconds()
	}
	return s.cfg.ForwardingTimeout.Seconds()
}

// ValidTypes returns the channel types that resolve to a known transport.
func (s *Service) ValidTypes() []string {
	types := make([]string, 0, len(s.cfg.Types))
	for tag, impl := range s.cfg.Types {
		if s.transports.Has(impl) {
			types = append(types, tag)
		}
	}
	sort.Strings(types)
	return types
}

func (s *Service) validateType(channelType string) error {
	impl, ok := s.cfg.Types[channelType]
	if !ok || !s.transports.Has(impl) {
		return errors.ErrInvalidChannelType.
			WithMessage("Invalid channel type %q, must be one of: %s", channelType, strings.Join(s.ValidTypes(), ", ")).
			WithDetail("valid_types", s.ValidTypes())
	}
	return nil
}

// Create validates and persists a new channel, starting it when start is
// true. An empty id is replaced by a generated one.
func (s *Service) Create(ctx context.Context, id string, props Properties, start bool) (*Channel, error) {
	if err := s.validateType(props.Type); err != nil {
		return nil, err
	}
	if err := props.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.New().String()
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	ch := &Channel{ID: id, Properties: props}
	normalize(ch)

	if err := s.save(ctx, ch); err != nil {
		return nil, err
	}
	s.log.InfowCtx(logging.WithChannelID(ctx, id), "Channel created", "type", ch.Type)

	if start {
		if err := s.start(ctx, ch); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// normalize pins config.transport_name to the channel id on a copy of the
// config so the caller's map is left alone.
func normalize(ch *Channel) {
	cfg := make(map[string]interface{}, len(ch.Config)+1)
	for k, v := range ch.Config {
		cfg[k] = v
	}
	cfg["transport_name"] = ch.ID
	ch.Config = cfg
}

func (s *Service) save(ctx context.Context, ch *Channel) error {
	raw, err := json.Marshal(ch.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal channel properties: %w", err)
	}
	if err := s.store.Set(ctx, propertiesKey(ch.ID), string(raw), 0); err != nil {
		return err
	}
	return s.store.SAdd(ctx, constants.ChannelsSetKey, ch.ID)
}

func (s *Service) load(ctx context.Context, id string) (*Channel, error) {
	raw, ok, err := s.store.Get(ctx, propertiesKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrChannelNotFound.WithMessage("Channel with id %s not found", id).WithDetail("channel_id", id)
	}

	ch := &Channel{ID: id}
	if err := json.Unmarshal([]byte(raw), &ch.Properties); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel %s: %w", id, err)
	}
	return ch, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Channel, error) {
	return s.load(ctx, id)
}

// List returns the ids of every persisted channel.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.SMembers(ctx, constants.ChannelsSetKey)
}

func (s *Service) IsRunning(id string) bool {
	_, ok := s.supervisor.Lookup(id)
	return ok
}

func (s *Service) Start(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	ch, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.start(ctx, ch)
}

// start registers the application, status and transport workers in that
// order so the consumers exist before the transport produces anything. A
// failure unwinds what was already started.
func (s *Service) start(ctx context.Context, ch *Channel) error {
	ctx = logging.WithChannelID(ctx, ch.ID)

	if err := s.startApplication(ctx, ch); err != nil {
		return err
	}
	if err := s.startStatus(ctx, ch); err != nil {
		s.stopWorker(ctx, ch.applicationWorkerName())
		return err
	}
	if err := s.startTransport(ctx, ch); err != nil {
		s.stopWorker(ctx, ch.statusWorkerName())
		s.stopWorker(ctx, ch.applicationWorkerName())
		return err
	}

	s.plugins.ChannelStarted(ctx, ch.Info())
	s.log.InfowCtx(ctx, "Channel started")
	return nil
}

func (s *Service) startApplication(ctx context.Context, ch *Channel) error {
	_, err := s.supervisor.CreateAndRegister(ctx, ch.applicationWorkerName(), constants.WorkerKindApplication,
		ch.applicationConfig(s.metricWindow(), s.forwardingTimeout()))
	return err
}

func (s *Service) startStatus(ctx context.Context, ch *Channel) error {
	_, err := s.supervisor.CreateAndRegister(ctx, ch.statusWorkerName(), constants.WorkerKindStatus,
		ch.statusConfig(s.forwardingTimeout()))
	return err
}

func (s *Service) startTransport(ctx context.Context, ch *Channel) error {
	impl := s.cfg.Types[ch.Type]
	_, err := s.supervisor.CreateAndRegister(ctx, ch.transportWorkerName(), transport.WorkerKind(impl), ch.transportConfig())
	return err
}

func (s *Service) stopWorker(ctx context.Context, name string) {
	if err := s.supervisor.StopAndDeregister(ctx, name); err != nil {
		s.log.ErrorwCtx(ctx, "Failed to stop worker", "worker", name, "error", err)
	}
}

func (s *Service) Stop(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	ch, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	s.stop(ctx, ch)
	return nil
}

// stop drains the application worker before the transport feeding it goes
// away. Stopping a channel that is not running is a no-op.
func (s *Service) stop(ctx context.Context, ch *Channel) {
	ctx = logging.WithChannelID(ctx, ch.ID)
	if !s.IsRunning(ch.ID) {
		return
	}

	s.stopWorker(ctx, ch.applicationWorkerName())
	s.stopWorker(ctx, ch.statusWorkerName())
	s.stopWorker(ctx, ch.transportWorkerName())

	s.plugins.ChannelStopped(ctx, ch.Info())
	s.log.InfowCtx(ctx, "Channel stopped")
}

// Restart stops the channel's workers, if running, and starts them again.
func (s *Service) Restart(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	ch, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	s.stop(ctx, ch)
	return s.start(ctx, ch)
}

// Update merges the given top-level properties into the channel and
// restarts only the workers whose configuration changed.
func (s *Service) Update(ctx context.Context, id string, patch map[string]interface{}) (*Channel, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	old, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := merge(old, patch)
	if err != nil {
		return nil, err
	}
	if err := s.validateType(updated.Type); err != nil {
		return nil, err
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	normalize(updated)

	err = s.claims.WithClaim(ctx, id, func(routerID string) error {
		if routerID != "" && updated.HasForwarding() {
			return errors.ErrAPIUsage.WithMessage(
				"Channel %s is consumed by router %s and cannot have a mo_url or amqp_queue", id, routerID)
		}
		return s.save(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	ctx = logging.WithChannelID(ctx, id)
	changed := diff(old, updated)
	if !changed.any() || !s.IsRunning(id) {
		return updated, nil
	}

	if changed.transport {
		s.log.InfowCtx(ctx, "Channel config changed, restarting all workers")
		s.stop(ctx, old)
		return updated, s.start(ctx, updated)
	}
	if changed.application {
		s.log.InfowCtx(ctx, "Channel forwarding changed, restarting application worker")
		s.stopWorker(ctx, old.applicationWorkerName())
		if err := s.startApplication(ctx, updated); err != nil {
			return nil, err
		}
	}
	if changed.status {
		s.log.InfowCtx(ctx, "Channel status url changed, restarting status worker")
		s.stopWorker(ctx, old.statusWorkerName())
		if err := s.startStatus(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func merge(ch *Channel, patch map[string]interface{}) (*Channel, error) {
	raw, err := json.Marshal(ch.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal channel properties: %w", err)
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel properties: %w", err)
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		merged[k] = v
	}

	raw, err = json.Marshal(merged)
	if err != nil {
		return nil, errors.ErrValidation.WithCause(err)
	}
	out := &Channel{ID: ch.ID}
	if err := json.Unmarshal(raw, &out.Properties); err != nil {
		return nil, errors.ErrValidation.WithMessage("invalid channel properties: %v", err)
	}
	return out, nil
}

// Delete stops the channel and removes everything persisted for it. A
// channel consumed by a router cannot be deleted until the router is.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	ch, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.claims.WithClaim(ctx, id, func(routerID string) error {
		if routerID != "" {
			return errors.ErrAPIUsage.WithMessage(
				"Channel %s is consumed by router %s, delete the router first", id, routerID)
		}
		return s.remove(ctx, ch)
	})
}

func (s *Service) remove(ctx context.Context, ch *Channel) error {
	id := ch.ID
	s.stop(ctx, ch)

	if err := s.store.Delete(ctx, propertiesKey(id)); err != nil {
		return err
	}
	if err := s.store.SRem(ctx, constants.ChannelsSetKey, id); err != nil {
		return err
	}
	if err := s.statuses.DeleteStatuses(ctx, id); err != nil {
		return err
	}
	s.log.InfowCtx(logging.WithChannelID(ctx, id), "Channel deleted")
	return nil
}

// StartAll starts every persisted channel that is not already running.
// Failures are logged so one broken channel does not keep the rest down.
func (s *Service) StartAll(ctx context.Context) error {
	ids, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if s.IsRunning(id) {
			continue
		}
		if err := s.Start(ctx, id); err != nil {
			s.log.ErrorwCtx(logging.WithChannelID(ctx, id), "Failed to start channel", "error", err)
		}
	}
	return nil
}

// StopAll stops every running channel.
func (s *Service) StopAll(ctx context.Context) error {
	ids, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil && !errors.IsNotFound(err) {
			s.log.ErrorwCtx(logging.WithChannelID(ctx, id), "Failed to stop channel", "error", err)
		}
	}
	return nil
}
