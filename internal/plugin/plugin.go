// Package plugin lets optional components observe channel lifecycle. The
// core never depends on a plugin succeeding.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"time"

	"junction/internal/config"
	"junction/internal/logger"
	"junction/pkg/errors"
	"junction/pkg/metrics"
)

// ChannelInfo is the view of a channel handed to plugins.
type ChannelInfo struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

type Plugin interface {
	Start(ctx context.Context, cfg map[string]interface{}, global *config.Config) error
	Stop(ctx context.Context) error
	ChannelStarted(ctx context.Context, ch ChannelInfo) error
	ChannelStopped(ctx context.Context, ch ChannelInfo) error
}

type Factory func(log logger.Logger) Plugin

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KafkaEventsName, func(log logger.Logger) Plugin { return NewKafkaEventsPlugin(log) })
	return r
}

func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type namedPlugin struct {
	name   string
	plugin Plugin
}

// Manager owns the started plugins and fans lifecycle hooks out to them.
type Manager struct {
	plugins []namedPlugin
	log     logger.Logger
	timeout time.Duration
}

func NewManager(log logger.Logger) *Manager {
	return &Manager{log: log, timeout: 5 * time.Second}
}

// Load builds and starts every configured plugin. An unknown plugin type is
// a configuration error; a plugin that fails to start is logged and skipped.
func (m *Manager) Load(ctx context.Context, r *Registry, global *config.Config) error {
	for _, pc := range global.Plugins {
		factory, ok := r.factories[pc.Type]
		if !ok {
			return errors.ErrValidation.WithMessage("unknown plugin type %q, valid types are %v", pc.Type, r.Names())
		}
		p := factory(m.log.WithFields("plugin", pc.Type))
		if err := p.Start(ctx, pc.Config, global); err != nil {
			metrics.IncPluginCall(pc.Type, "start", "error")
			m.log.ErrorwCtx(ctx, "Failed to start plugin", "plugin", pc.Type, "error", err)
			continue
		}
		metrics.IncPluginCall(pc.Type, "start", "success")
		m.plugins = append(m.plugins, namedPlugin{name: pc.Type, plugin: p})
		m.log.InfowCtx(ctx, "Plugin started", "plugin", pc.Type)
	}
	return nil
}

// Add registers an already started plugin.
func (m *Manager) Add(name string, p Plugin) {
	m.plugins = append(m.plugins, namedPlugin{name: name, plugin: p})
}

func (m *Manager) ChannelStarted(ctx context.Context, ch ChannelInfo) {
	m.each(ctx, "channel_started", func(ctx context.Context, p Plugin) error {
		return p.ChannelStarted(ctx, ch)
	})
}

func (m *Manager) ChannelStopped(ctx context.Context, ch ChannelInfo) {
	m.each(ctx, "channel_stopped", func(ctx context.Context, p Plugin) error {
		return p.ChannelStopped(ctx, ch)
	})
}

func (m *Manager) Stop(ctx context.Context) {
	m.each(ctx, "stop", func(ctx context.Context, p Plugin) error {
		return p.Stop(ctx)
	})
	m.plugins = nil
}

func (m *Manager) each(ctx context.Context, hook string, call func(context.Context, Plugin) error) {
	if m == nil {
		return
	}
	for _, np := range m.plugins {
		err := m.safeCall(ctx, np, call)
		if err != nil {
			metrics.IncPluginCall(np.name, hook, "error")
			m.log.ErrorwCtx(ctx, "Plugin hook failed", "plugin", np.name, "hook", hook, "error", err)
			continue
		}
		metrics.IncPluginCall(np.name, hook, "success")
	}
}

func (m *Manager) safeCall(ctx context.Context, np namedPlugin, call func(context.Context, Plugin) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %s: %w", np.name, errors.RecoverPanic(r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	return call(ctx, np.plugin)
}
