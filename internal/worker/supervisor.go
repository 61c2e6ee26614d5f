package worker

import (
	"context"
	"sort"
	"sync"

	"junction/internal/logger"
	"junction/pkg/errors"
	"junction/pkg/metrics"
)

type entry struct {
	kind   string
	worker Worker
}

// Supervisor is the name -> worker registry. A name is registered at most
// once at any time; starts and stops are serialized per name.
type Supervisor struct {
	log       logger.Logger
	names     *KeyedMutex
	mu        sync.RWMutex
	factories map[string]Factory
	workers   map[string]entry
}

func NewSupervisor(log logger.Logger) *Supervisor {
	return &Supervisor{
		log:       log,
		names:     NewKeyedMutex(),
		factories: make(map[string]Factory),
		workers:   make(map[string]entry),
	}
}

func (s *Supervisor) RegisterKind(kind string, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[kind] = factory
}

func (s *Supervisor) HasKind(kind string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[kind]
	return ok
}

// CreateAndRegister builds a worker of the given kind, starts it and
// registers it under name. It fails with ErrConflict if name is taken.
func (s *Supervisor) CreateAndRegister(ctx context.Context, name, kind string, config map[string]interface{}) (Worker, error) {
	unlock := s.names.Lock(name)
	defer unlock()

	s.mu.RLock()
	factory, ok := s.factories[kind]
	_, exists := s.workers[name]
	s.mu.RUnlock()

	if !ok {
		return nil, errors.ErrInternal.WithMessage("unknown worker kind %q", kind)
	}
	if exists {
		return nil, errors.ErrConflict.WithMessage("worker %q is already registered", name)
	}

	w, err := factory(name, config)
	if err != nil {
		metrics.IncWorkerOperation(kind, "start", "error")
		return nil, err
	}
	// Workers outlive the request that created them.
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		metrics.IncWorkerOperation(kind, "start", "error")
		return nil, err
	}

	s.mu.Lock()
	s.workers[name] = entry{kind: kind, worker: w}
	count := s.countLocked(kind)
	s.mu.Unlock()

	metrics.IncWorkerOperation(kind, "start", "success")
	metrics.SetWorkersActive(kind, count)
	s.log.Infow("Worker started", "worker", name, "kind", kind)
	return w, nil
}

func (s *Supervisor) Lookup(name string) (Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.workers[name]
	return e.worker, ok
}

// StopAndDeregister stops the named worker and removes it. Unknown names are
// a no-op. The name is deregistered even if Stop fails.
func (s *Supervisor) StopAndDeregister(ctx context.Context, name string) error {
	unlock := s.names.Lock(name)
	defer unlock()

	s.mu.RLock()
	e, ok := s.workers[name]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	err := e.worker.Stop(ctx)

	s.mu.Lock()
	delete(s.workers, name)
	count := s.countLocked(e.kind)
	s.mu.Unlock()

	metrics.SetWorkersActive(e.kind, count)
	if err != nil {
		metrics.IncWorkerOperation(e.kind, "stop", "error")
		s.log.Errorw("Worker stopped with error", "worker", name, "kind", e.kind, "error", err)
		return err
	}
	metrics.IncWorkerOperation(e.kind, "stop", "success")
	s.log.Infow("Worker stopped", "worker", name, "kind", e.kind)
	return nil
}

// Names returns the registered worker names in sorted order.
func (s *Supervisor) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.workers))
	for name := range s.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll stops every registered worker, returning the first error seen.
func (s *Supervisor) StopAll(ctx context.Context) error {
	var first error
	for _, name := range s.Names() {
		if err := s.StopAndDeregister(ctx, name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Supervisor) countLocked(kind string) int {
	n := 0
	for _, e := range s.workers {
		if e.kind == kind {
			n++
		}
	}
	return n
}
