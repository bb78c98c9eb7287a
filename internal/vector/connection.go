package vector

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DialFunc opens a new store handle.
type DialFunc func(ctx context.Context) (Store, error)

// ConnectionManager owns the process-wide store handle. The first Get dials; later calls share
// the same handle until Close or Invalidate drops it.
type ConnectionManager struct {
	dial   DialFunc
	logger *zap.Logger

	mu    sync.RWMutex
	store Store
}

// ConnectionOption configures a ConnectionManager.
type ConnectionOption func(*ConnectionManager)

// WithConnectionLogger sets the logger.
func WithConnectionLogger(l *zap.Logger) ConnectionOption {
	return func(m *ConnectionManager) { m.logger = l }
}

// NewConnectionManager creates a manager that dials lazily.
func NewConnectionManager(dial DialFunc, opts ...ConnectionOption) *ConnectionManager {
	m := &ConnectionManager{dial: dial, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the shared store, dialing on first use. Concurrent first callers wait for a
// single dial. A failed dial leaves nothing cached so the next call retries.
func (m *ConnectionManager) Get(ctx context.Context) (Store, error) {
	m.mu.RLock()
	s := m.store
	m.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store != nil {
		return m.store, nil
	}
	s, err := m.dial(ctx)
	if err != nil {
		m.logger.Error("vector store connection failed", zap.Error(err))
		return nil, err
	}
	m.logger.Info("vector store connected", zap.String("store", Name(s)))
	m.store = s
	return s, nil
}

// Invalidate drops s if it is still the shared handle, so the next Get reconnects.
func (m *ConnectionManager) Invalidate(s Store) {
	m.mu.Lock()
	if m.store == nil || m.store != s {
		m.mu.Unlock()
		return
	}
	m.store = nil
	m.mu.Unlock()
	m.logger.Warn("vector store connection invalidated", zap.String("store", Name(s)))
	if err := s.Close(); err != nil {
		m.logger.Debug("closing invalidated store", zap.Error(err))
	}
}

// Connected reports whether a handle is currently cached.
func (m *ConnectionManager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store != nil
}

// Close closes and clears the shared handle. Calling it again, or before any Get, is a no-op.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	s := m.store
	m.store = nil
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
