package router

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"junction/pkg/errors"
	"junction/pkg/logging"
)

func (s *Service) saveDestination(ctx context.Context, d *Destination) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal destination: %w", err)
	}
	if err := s.store.Set(ctx, destinationKey(d.RouterID, d.ID), string(raw), 0); err != nil {
		return err
	}
	return s.store.SAdd(ctx, destinationsKey(d.RouterID), d.ID)
}

func (s *Service) loadDestination(ctx context.Context, routerID, id string) (*Destination, error) {
	raw, ok, err := s.store.Get(ctx, destinationKey(routerID, id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrDestinationNotFound.
			WithMessage("Cannot find destination with id %s", id).
			WithDetail("router_id", routerID).
			WithDetail("destination_id", id)
	}

	var d Destination
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal destination %s: %w", id, err)
	}
	return &d, nil
}

// destinations returns the router's destinations in registration order.
func (s *Service) destinations(ctx context.Context, routerID string) ([]*Destination, error) {
	ids, err := s.store.SMembers(ctx, destinationsKey(routerID))
	if err != nil {
		return nil, err
	}

	dests := make([]*Destination, 0, len(ids))
	for _, id := range ids {
		d, err := s.loadDestination(ctx, routerID, id)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		dests = append(dests, d)
	}
	sort.SliceStable(dests, func(i, j int) bool {
		if dests[i].CreatedAt.Equal(dests[j].CreatedAt) {
			return dests[i].ID < dests[j].ID
		}
		return dests[i].CreatedAt.Before(dests[j].CreatedAt)
	})
	return dests, nil
}

func (s *Service) validateDestination(r *Router, props DestinationProperties) error {
	p, err := s.policy(r.Type)
	if err != nil {
		return err
	}
	return p.ValidateDestinationConfig(props.Config)
}

// CreateDestination adds a destination to the router. A running router
// picks it up straight away.
func (s *Service) CreateDestination(ctx context.Context, routerID, id string, props DestinationProperties) (*Destination, error) {
	unlock := s.locks.Lock(routerID)
	defer unlock()

	r, err := s.load(ctx, routerID)
	if err != nil {
		return nil, err
	}
	if err := s.validateDestination(r, props); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.New().String()
	}

	d := &Destination{ID: id, RouterID: routerID, CreatedAt: s.now().UTC(), DestinationProperties: props}
	d.Config = copyConfig(props.Config)
	if err := s.saveDestination(ctx, d); err != nil {
		return nil, err
	}

	ctx = logging.WithRouterID(ctx, routerID)
	s.log.InfowCtx(ctx, "Destination created", "destination_id", id)

	if !s.IsRunning(routerID) {
		return d, nil
	}
	if err := s.startDestinationWorker(ctx, d); err != nil {
		return nil, err
	}
	return d, s.restartRouterWorker(ctx, r)
}

func (s *Service) GetDestination(ctx context.Context, routerID, id string) (*Destination, error) {
	if _, err := s.load(ctx, routerID); err != nil {
		return nil, err
	}
	return s.loadDestination(ctx, routerID, id)
}

func (s *Service) ListDestinations(ctx context.Context, routerID string) ([]*Destination, error) {
	if _, err := s.load(ctx, routerID); err != nil {
		return nil, err
	}
	return s.destinations(ctx, routerID)
}

// ReplaceDestination swaps a destination's properties, keeping its id and
// registration order.
func (s *Service) ReplaceDestination(ctx context.Context, routerID, id string, props DestinationProperties) (*Destination, error) {
	return s.updateDestination(ctx, routerID, id, func(old *Destination) (*Destination, error) {
		d := &Destination{ID: id, RouterID: routerID, CreatedAt: old.CreatedAt, DestinationProperties: props}
		d.Config = copyConfig(props.Config)
		return d, nil
	})
}

func (s *Service) UpdateDestination(ctx context.Context, routerID, id string, patch map[string]interface{}) (*Destination, error) {
	return s.updateDestination(ctx, routerID, id, func(old *Destination) (*Destination, error) {
		return mergeDestination(old, patch)
	})
}

func (s *Service) updateDestination(ctx context.Context, routerID, id string, apply func(*Destination) (*Destination, error)) (*Destination, error) {
	unlock := s.locks.Lock(routerID)
	defer unlock()

	r, err := s.load(ctx, routerID)
	if err != nil {
		return nil, err
	}
	old, err := s.loadDestination(ctx, routerID, id)
	if err != nil {
		return nil, err
	}
	updated, err := apply(old)
	if err != nil {
		return nil, err
	}
	if err := s.validateDestination(r, updated.DestinationProperties); err != nil {
		return nil, err
	}
	if err := s.saveDestination(ctx, updated); err != nil {
		return nil, err
	}

	if !s.IsRunning(routerID) {
		return updated, nil
	}
	ctx = logging.WithRouterID(ctx, routerID)
	if forwardingChanged(old, updated) {
		s.stopWorker(ctx, old.workerName())
		if err := s.startDestinationWorker(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, s.restartRouterWorker(ctx, r)
}

func mergeDestination(d *Destination, patch map[string]interface{}) (*Destination, error) {
	raw, err := json.Marshal(d.DestinationProperties)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal destination: %w", err)
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal destination: %w", err)
	}
	for k, v := range patch {
		switch k {
		case "id", "router_id", "created_at":
			continue
		}
		merged[k] = v
	}

	raw, err = json.Marshal(merged)
	if err != nil {
		return nil, errors.ErrValidation.WithCause(err)
	}
	out := &Destination{ID: d.ID, RouterID: d.RouterID, CreatedAt: d.CreatedAt}
	if err := json.Unmarshal(raw, &out.DestinationProperties); err != nil {
		return nil, errors.ErrValidation.WithMessage("invalid destination properties: %v", err)
	}
	return out, nil
}

func (s *Service) DeleteDestination(ctx context.Context, routerID, id string) error {
	unlock := s.locks.Lock(routerID)
	defer unlock()

	r, err := s.load(ctx, routerID)
	if err != nil {
		return err
	}
	d, err := s.loadDestination(ctx, routerID, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, destinationKey(routerID, id)); err != nil {
		return err
	}
	if err := s.store.SRem(ctx, destinationsKey(routerID), id); err != nil {
		return err
	}

	ctx = logging.WithRouterID(ctx, routerID)
	s.log.InfowCtx(ctx, "Destination deleted", "destination_id", id)
	if !s.IsRunning(routerID) {
		return nil
	}
	s.stopWorker(ctx, d.workerName())
	return s.restartRouterWorker(ctx, r)
}
