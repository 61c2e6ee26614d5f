package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"junction/internal/channel"
	"junction/internal/config"
	"junction/internal/constants"
	"junction/internal/logger"
	"junction/internal/sender"
	"junction/internal/store"
	"junction/internal/stores"
	"junction/internal/worker"
	"junction/pkg/errors"
	"junction/pkg/logging"
	"junction/pkg/models"
)

// ChannelLookup resolves the channel a router consumes.
type ChannelLookup interface {
	Get(ctx context.Context, id string) (*channel.Channel, error)
}

// Service owns every router and its destinations. Operations on one router,
// including its destinations, are serialized.
type Service struct {
	store      store.Store
	supervisor *worker.Supervisor
	policies   *Registry
	channels   ChannelLookup
	sender     *sender.Sender
	messages   *stores.MessageStore
	logs       *logger.WorkerLogs
	cfg        config.RoutersConfig
	channelCfg config.ChannelsConfig
	locks      *worker.KeyedMutex
	// claims serializes the channel ownership check with the write that
	// makes it true.
	claims sync.Mutex
	now    func() time.Time
	log    logger.Logger
}

type Deps struct {
	Store      store.Store
	Supervisor *worker.Supervisor
	Policies   *Registry
	Channels   ChannelLookup
	Sender     *sender.Sender
	Messages   *stores.MessageStore
	Logs       *logger.WorkerLogs
	Log        logger.Logger
}

func NewService(cfg config.RoutersConfig, channelCfg config.ChannelsConfig, deps Deps) *Service {
	return &Service{
		store:      deps.Store,
		supervisor: deps.Supervisor,
		policies:   deps.Policies,
		channels:   deps.Channels,
		sender:     deps.Sender,
		messages:   deps.Messages,
		logs:       deps.Logs,
		cfg:        cfg,
		channelCfg: channelCfg,
		locks:      worker.NewKeyedMutex(),
		now:        time.Now,
		log:        deps.Log,
	}
}

func (s *Service) metricWindow() float64 {
	if s.channelCfg.MetricWindow <= 0 {
		return constants.DefaultMetricWindow
	}
	return s.channelCfg.MetricWindow
}

func (s *Service) forwardingTimeout() float64 {
	if s.channelCfg.ForwardingTimeout <= 0 {
		return constants.DefaultHTTPTimeout.Seconds()
	}
	return s.channelCfg.ForwardingTimeout.Seconds()
}

// ValidTypes returns the enabled router types that have a policy. With no
// types configured every registered policy is enabled.
func (s *Service) ValidTypes() []string {
	if len(s.cfg.Types) == 0 {
		return s.policies.Names()
	}
	types := make([]string, 0, len(s.cfg.Types))
	for _, t := range s.cfg.Types {
		if _, ok := s.policies.Get(t); ok {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}

func (s *Service) policy(routerType string) (Policy, error) {
	for _, t := range s.ValidTypes() {
		if t == routerType {
			p, _ := s.policies.Get(t)
			return p, nil
		}
	}
	return nil, errors.ErrInvalidRouterType.
		WithMessage("Invalid router type %q, must be one of: %s", routerType, strings.Join(s.ValidTypes(), ", ")).
		WithDetail("valid_types", s.ValidTypes())
}

func (s *Service) validate(ctx context.Context, id string, props Properties) error {
	p, err := s.policy(props.Type)
	if err != nil {
		return err
	}
	if err := p.ValidateConfig(props.Config); err != nil {
		return err
	}
	channelID, _ := props.Config["channel"].(string)
	if channelID == "" {
		return invalidConfig("channel: Missing data for required field.")
	}
	return s.validateChannel(ctx, id, channelID)
}

// validateChannel checks that the channel exists, does not forward its
// traffic directly and is not consumed by another router.
func (s *Service) validateChannel(ctx context.Context, routerID, channelID string) error {
	ch, err := s.channels.Get(ctx, channelID)
	if errors.IsNotFound(err) {
		return invalidConfig("channel: Channel with id %s does not exist", channelID)
	}
	if err != nil {
		return err
	}
	if ch.HasForwarding() {
		return invalidConfig("channel: Channel %s already has a mo_url or amqp_queue configured", channelID)
	}

	owner, err := s.claimant(ctx, channelID, routerID)
	if err != nil {
		return err
	}
	if owner != "" {
		return invalidConfig("channel: Channel %s already has a router %s", channelID, owner)
	}
	return nil
}

// claimant returns the id of the router consuming channelID, ignoring
// except, or "" when there is none.
func (s *Service) claimant(ctx context.Context, channelID, except string) (string, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		if id == except {
			continue
		}
		other, err := s.load(ctx, id)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		if other.Channel() == channelID {
			return id, nil
		}
	}
	return "", nil
}

// WithClaim runs fn with the id of the router consuming channelID, or ""
// when the channel is unclaimed. No router can claim the channel until fn
// returns.
func (s *Service) WithClaim(ctx context.Context, channelID string, fn func(routerID string) error) error {
	s.claims.Lock()
	defer s.claims.Unlock()

	owner, err := s.claimant(ctx, channelID, "")
	if err != nil {
		return err
	}
	return fn(owner)
}

// Create validates, persists and starts a new router. An empty id is
// replaced by a generated one.
func (s *Service) Create(ctx context.Context, id string, props Properties) (*Router, error) {
	if id == "" {
		id = uuid.New().String()
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	s.claims.Lock()
	if err := s.validate(ctx, id, props); err != nil {
		s.claims.Unlock()
		return nil, err
	}
	r := &Router{ID: id, Properties: props}
	r.Config = copyConfig(props.Config)
	err := s.save(ctx, r)
	s.claims.Unlock()
	if err != nil {
		return nil, err
	}

	ctx = logging.WithRouterID(ctx, id)
	s.log.InfowCtx(ctx, "Router created", "type", r.Type, "channel", r.Channel())

	if err := s.start(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func copyConfig(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *Service) save(ctx context.Context, r *Router) error {
	raw, err := json.Marshal(r.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal router config: %w", err)
	}
	if err := s.store.Set(ctx, configKey(r.ID), string(raw), 0); err != nil {
		return err
	}
	return s.store.SAdd(ctx, constants.RoutersSetKey, r.ID)
}

func (s *Service) load(ctx context.Context, id string) (*Router, error) {
	raw, ok, err := s.store.Get(ctx, configKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrRouterNotFound.WithMessage("Router with id %s not found", id).WithDetail("router_id", id)
	}

	r := &Router{ID: id}
	if err := json.Unmarshal([]byte(raw), &r.Properties); err != nil {
		return nil, fmt.Errorf("failed to unmarshal router %s: %w", id, err)
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Router, error) {
	return s.load(ctx, id)
}

type Report struct {
	*Router
	Running      bool           `json:"running"`
	Destinations []*Destination `json:"destinations"`
}

// Report returns the router with its destinations in registration order.
func (s *Service) Report(ctx context.Context, id string) (*Report, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dests, err := s.destinations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Report{Router: r, Running: s.IsRunning(id), Destinations: dests}, nil
}

func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.SMembers(ctx, constants.RoutersSetKey)
}

func (s *Service) IsRunning(id string) bool {
	_, ok := s.supervisor.Lookup(id)
	return ok
}

// Replace swaps the router's properties for props and restarts its worker.
func (s *Service) Replace(ctx context.Context, id string, props Properties) (*Router, error) {
	return s.update(ctx, id, func(*Router) (*Router, error) {
		r := &Router{ID: id, Properties: props}
		r.Config = copyConfig(props.Config)
		return r, nil
	})
}

// Update merges the given top-level properties into the router.
func (s *Service) Update(ctx context.Context, id string, patch map[string]interface{}) (*Router, error) {
	return s.update(ctx, id, func(old *Router) (*Router, error) {
		return merge(old, patch)
	})
}

func (s *Service) update(ctx context.Context, id string, apply func(*Router) (*Router, error)) (*Router, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	old, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := apply(old)
	if err != nil {
		return nil, err
	}

	s.claims.Lock()
	if err := s.validate(ctx, id, updated.Properties); err != nil {
		s.claims.Unlock()
		return nil, err
	}
	err = s.save(ctx, updated)
	s.claims.Unlock()
	if err != nil {
		return nil, err
	}

	ctx = logging.WithRouterID(ctx, id)
	if !s.IsRunning(id) {
		return updated, nil
	}
	s.log.InfowCtx(ctx, "Router config changed, restarting router worker")
	s.stopWorker(ctx, old.workerName())
	if err := s.startRouterWorker(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func merge(r *Router, patch map[string]interface{}) (*Router, error) {
	raw, err := json.Marshal(r.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal router config: %w", err)
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal router config: %w", err)
	}
	for k, v := range patch {
		if k == "id" || k == "destinations" {
			continue
		}
		merged[k] = v
	}

	raw, err = json.Marshal(merged)
	if err != nil {
		return nil, errors.ErrValidation.WithCause(err)
	}
	out := &Router{ID: r.ID}
	if err := json.Unmarshal(raw, &out.Properties); err != nil {
		return nil, errors.ErrValidation.WithMessage("invalid router properties: %v", err)
	}
	return out, nil
}

func (s *Service) Start(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.start(ctx, r)
}

// start brings up the destination workers before the router worker that
// feeds them. A failure unwinds what was already started.
func (s *Service) start(ctx context.Context, r *Router) error {
	ctx = logging.WithRouterID(ctx, r.ID)
	if s.IsRunning(r.ID) {
		return nil
	}

	dests, err := s.destinations(ctx, r.ID)
	if err != nil {
		return err
	}

	started := make([]string, 0, len(dests))
	rollback := func() {
		for _, name := range started {
			s.stopWorker(ctx, name)
		}
	}
	for _, d := range dests {
		if err := s.startDestinationWorker(ctx, d); err != nil {
			rollback()
			return err
		}
		started = append(started, d.workerName())
	}
	if err := s.startRouterWorkerWith(ctx, r, dests); err != nil {
		rollback()
		return err
	}

	s.log.InfowCtx(ctx, "Router started", "destinations", len(dests))
	return nil
}

func (s *Service) startRouterWorker(ctx context.Context, r *Router) error {
	dests, err := s.destinations(ctx, r.ID)
	if err != nil {
		return err
	}
	return s.startRouterWorkerWith(ctx, r, dests)
}

func (s *Service) startRouterWorkerWith(ctx context.Context, r *Router, dests []*Destination) error {
	routes := make([]map[string]interface{}, 0, len(dests))
	for _, d := range dests {
		routes = append(routes, map[string]interface{}{"id": d.ID, "config": d.Config})
	}
	_, err := s.supervisor.CreateAndRegister(ctx, r.workerName(), constants.WorkerKindRouter, map[string]interface{}{
		"router_id":    r.ID,
		"type":         r.Type,
		"channel":      r.Channel(),
		"destinations": routes,
	})
	return err
}

func (s *Service) startDestinationWorker(ctx context.Context, d *Destination) error {
	_, err := s.supervisor.CreateAndRegister(ctx, d.workerName(), constants.WorkerKindApplication,
		d.applicationConfig(s.metricWindow(), s.forwardingTimeout()))
	return err
}

func (s *Service) restartRouterWorker(ctx context.Context, r *Router) error {
	s.stopWorker(ctx, r.workerName())
	return s.startRouterWorker(ctx, r)
}

func (s *Service) stopWorker(ctx context.Context, name string) {
	if err := s.supervisor.StopAndDeregister(ctx, name); err != nil {
		s.log.ErrorwCtx(ctx, "Failed to stop worker", "worker", name, "error", err)
	}
}

func (s *Service) Stop(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	return s.stop(ctx, r)
}

// stop takes the router worker down before its destinations. Stopping a
// router that is not running is a no-op.
func (s *Service) stop(ctx context.Context, r *Router) error {
	ctx = logging.WithRouterID(ctx, r.ID)
	if !s.IsRunning(r.ID) {
		return nil
	}

	ids, err := s.store.SMembers(ctx, destinationsKey(r.ID))
	if err != nil {
		return err
	}
	s.stopWorker(ctx, r.workerName())
	for _, id := range ids {
		s.stopWorker(ctx, id)
	}
	s.log.InfowCtx(ctx, "Router stopped")
	return nil
}

// Delete stops the router and removes it together with its destinations.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.stop(ctx, r); err != nil {
		return err
	}

	ids, err := s.store.SMembers(ctx, destinationsKey(id))
	if err != nil {
		return err
	}
	keys := []string{configKey(id), destinationsKey(id)}
	for _, destID := range ids {
		keys = append(keys, destinationKey(id, destID))
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return err
	}
	if err := s.store.SRem(ctx, constants.RoutersSetKey, id); err != nil {
		return err
	}
	s.log.InfowCtx(logging.WithRouterID(ctx, id), "Router deleted")
	return nil
}

// StartAll starts every persisted router that is not already running.
func (s *Service) StartAll(ctx context.Context) error {
	ids, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.Start(ctx, id); err != nil {
			s.log.ErrorwCtx(logging.WithRouterID(ctx, id), "Failed to start router", "error", err)
		}
	}
	return nil
}

func (s *Service) StopAll(ctx context.Context) error {
	ids, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil && !errors.IsNotFound(err) {
			s.log.ErrorwCtx(logging.WithRouterID(ctx, id), "Failed to stop router", "error", err)
		}
	}
	return nil
}

// GetLogs returns up to n of the newest entries of the router worker's
// log. logger.AllLogs asks for every retained entry.
func (s *Service) GetLogs(ctx context.Context, id string, n int) ([]map[string]interface{}, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.logs == nil {
		return []map[string]interface{}{}, nil
	}
	return s.logs.Read(r.workerName(), n)
}

// SendDestinationMessage sends a message from a destination. The router
// worker relays it to the router's channel.
func (s *Service) SendDestinationMessage(ctx context.Context, routerID, destinationID string, req sender.Request) (models.APIMessage, error) {
	d, err := s.GetDestination(ctx, routerID, destinationID)
	if err != nil {
		return models.APIMessage{}, err
	}
	return s.sender.Send(ctx, sender.Target{
		ID:             d.ID,
		CharacterLimit: d.CharacterLimit,
		MetricWindow:   s.metricWindow(),
	}, req)
}

func (s *Service) GetDestinationMessageStatus(ctx context.Context, routerID, destinationID, messageID string) (*channel.MessageStatus, error) {
	if _, err := s.GetDestination(ctx, routerID, destinationID); err != nil {
		return nil, err
	}
	return channel.LoadMessageStatus(ctx, s.messages, destinationID, messageID)
}
