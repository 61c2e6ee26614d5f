// Package transport holds the transport implementations a channel type can
// resolve to and the registry that maps implementation names to them.
package transport

import (
	"sort"

	"junction/internal/broker"
	"junction/internal/logger"
	"junction/internal/worker"
)

// Deps are the collaborators every transport is built with.
type Deps struct {
	Broker broker.Broker
	Log    logger.Logger
	Logs   *logger.WorkerLogs
}

type Factory func(name string, config map[string]interface{}, deps Deps) (worker.Worker, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows every transport shipped with the gateway.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TelnetName, NewTelnetFactory)
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WorkerKind is the supervisor kind a transport implementation is
// registered under.
func WorkerKind(name string) string {
	return "transport:" + name
}

// RegisterWorkers makes every known transport startable by s.
func (r *Registry) RegisterWorkers(s *worker.Supervisor, deps Deps) {
	for name, factory := range r.factories {
		s.RegisterKind(WorkerKind(name), func(workerName string, config map[string]interface{}) (worker.Worker, error) {
			return factory(workerName, config, deps)
		})
	}
}
