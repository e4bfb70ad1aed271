package system

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"mcqq/pkg/connector"
	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// Option places a system in the chain at registration time.
type Option func(*placement)

type placement struct {
	before string
	after  string
}

// Before inserts the system just before name. Unknown names append.
func Before(name string) Option {
	return func(p *placement) { p.before = name }
}

// After inserts the system just after name. Unknown names append.
func After(name string) Option {
	return func(p *placement) { p.after = name }
}

// Manager holds the ordered system chain.
type Manager struct {
	mu      sync.RWMutex
	systems []System
}

// NewManager creates an empty chain.
func NewManager() *Manager {
	return &Manager{}
}

// Register initializes s and places it in the chain. An Initialize error
// aborts registration.
func (m *Manager) Register(ctx context.Context, s System, opts ...Option) error {
	var p placement
	for _, opt := range opts {
		opt(&p)
	}

	m.mu.RLock()
	exists := m.index(s.Name()) >= 0
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSystem, s.Name())
	}

	if err := s.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize %s: %w", s.Name(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index(s.Name()) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateSystem, s.Name())
	}
	pos := len(m.systems)
	switch {
	case p.before != "":
		if i := m.index(p.before); i >= 0 {
			pos = i
		}
	case p.after != "":
		if i := m.index(p.after); i >= 0 {
			pos = i + 1
		}
	}
	m.systems = slices.Insert(m.systems, pos, s)

	logger.Info().Str("system", s.Name()).Int("position", pos).Msg("System registered")
	return nil
}

// Unregister removes a system from the chain.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrSystemNotFound, name)
	}
	m.systems = slices.Delete(m.systems, i, i+1)
	return nil
}

// Get returns a system by name.
func (m *Manager) Get(name string) (System, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.index(name); i >= 0 {
		return m.systems[i], true
	}
	return nil, false
}

// Names returns the system names in chain order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.systems))
	for i, s := range m.systems {
		out[i] = s.Name()
	}
	return out
}

// Systems returns the chain in order.
func (m *Manager) Systems() []System {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.systems)
}

// BroadcastCommand offers info to each system in order and stops at the
// first one that claims it. A failing system is logged and skipped.
func (m *Manager) BroadcastCommand(ctx context.Context, info *message.BroadcastInfo, include, exclude []string) bool {
	if info == nil {
		return false
	}
	for _, s := range m.filtered(include, exclude) {
		if m.run(ctx, s, info) {
			logger.Debug().Str("system", s.Name()).Str("source", info.Source.String()).Msg("Message claimed")
			return true
		}
	}
	return false
}

// Handler returns the inbound callback for connectors.
func (m *Manager) Handler() connector.Handler {
	return func(ctx context.Context, info *message.BroadcastInfo) bool {
		return m.BroadcastCommand(ctx, info, nil, nil)
	}
}

func (m *Manager) run(ctx context.Context, s System, info *message.BroadcastInfo) (claimed bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("system", s.Name()).Interface("panic", r).Msg("System panicked")
			claimed = false
		}
	}()
	ok, err := s.ProcessBroadcastInfo(ctx, info)
	if err != nil {
		logger.Error().Err(err).Str("system", s.Name()).Msg("System failed")
		return false
	}
	return ok
}

func (m *Manager) filtered(include, exclude []string) []System {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]System, 0, len(m.systems))
	for _, s := range m.systems {
		if len(include) > 0 && !slices.Contains(include, s.Name()) {
			continue
		}
		if slices.Contains(exclude, s.Name()) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *Manager) index(name string) int {
	return slices.IndexFunc(m.systems, func(s System) bool { return s.Name() == name })
}
