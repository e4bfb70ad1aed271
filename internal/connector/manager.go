package connector

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"mcqq/pkg/connector"
	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// Manager 连接器管理器：按注册顺序保存连接器，负责生命周期与并发扇出
type Manager struct {
	mu     sync.RWMutex
	order  []connector.Connector
	byName map[string]connector.Connector
}

// NewManager 创建空的连接器管理器
func NewManager() *Manager {
	return &Manager{byName: make(map[string]connector.Connector)}
}

// Register 连接并注册连接器；名称重复返回 ErrDuplicateConnector，连接失败时不注册
func (m *Manager) Register(ctx context.Context, c connector.Connector) error {
	name := c.Name()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[name]; ok {
		return fmt.Errorf("%w: %s", connector.ErrDuplicateConnector, name)
	}
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", name, err)
	}
	m.byName[name] = c
	m.order = append(m.order, c)
	logger.Info().Str("connector", name).Msg("Connector registered")
	return nil
}

// Unregister 断开并移除连接器；断开失败时仍然移除，但返回错误
func (m *Manager) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	c, ok := m.byName[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", connector.ErrConnectorNotFound, name)
	}
	delete(m.byName, name)
	for i, x := range m.order {
		if x == c {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if err := c.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect %s: %w", name, err)
	}
	logger.Info().Str("connector", name).Msg("Connector unregistered")
	return nil
}

// Get 按名称精确查找
func (m *Manager) Get(name string) (connector.Connector, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byName[name]
	return c, ok
}

// All 按注册顺序返回所有连接器
func (m *Manager) All() []connector.Connector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]connector.Connector, len(m.order))
	copy(out, m.order)
	return out
}

// Names 按注册顺序返回连接器名称
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.order))
	for _, c := range m.order {
		out = append(out, c.Name())
	}
	return out
}

// Count 返回注册的连接器数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Targets resolves the destination set: all connectors, narrowed to include
// when it is non-empty, minus exclude. Names match exactly.
func (m *Manager) Targets(include, exclude []string) []connector.Connector {
	inc := toSet(include)
	exc := toSet(exclude)

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]connector.Connector, 0, len(m.order))
	for _, c := range m.order {
		name := c.Name()
		if len(inc) > 0 && !inc[name] {
			continue
		}
		if exc[name] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// BroadcastProcessedInfo 并发发送到目标连接器，等待全部完成。
// 每个目标收到独立的副本；单个目标失败或 panic 不影响其他目标。
// 返回值只包含失败的连接器。
func (m *Manager) BroadcastProcessedInfo(ctx context.Context, info *message.ProcessedInfo, include, exclude []string) map[string]error {
	targets := m.Targets(include, exclude)
	failures := make(map[string]error)
	if info == nil || len(targets) == 0 {
		return failures
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range targets {
		wg.Add(1)
		go func(c connector.Connector) {
			defer wg.Done()
			if err := safeSend(ctx, c, info.Clone()); err != nil {
				logger.Warn().Err(err).Str("connector", c.Name()).Msg("Send failed")
				mu.Lock()
				failures[c.Name()] = err
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return failures
}

func safeSend(ctx context.Context, c connector.Connector, info *message.ProcessedInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("connector", c.Name()).
				Str("stack", string(debug.Stack())).
				Msgf("send panic: %v", r)
			err = fmt.Errorf("send panic: %v", r)
		}
	}()
	return c.SendMessage(ctx, info)
}

// DisconnectAll 并发断开所有连接器并汇总错误；不会因单个失败而中止
func (m *Manager) DisconnectAll(ctx context.Context) error {
	all := m.All()
	errs := make([]error, len(all))

	var wg sync.WaitGroup
	for i, c := range all {
		wg.Add(1)
		go func(i int, c connector.Connector) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("disconnect %s: panic: %v", c.Name(), r)
				}
			}()
			if err := c.Disconnect(ctx); err != nil {
				errs[i] = fmt.Errorf("disconnect %s: %w", c.Name(), err)
			}
		}(i, c)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}
