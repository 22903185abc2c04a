package models

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/botforge/forge3d/internal/apperr"
)

// Manager holds at most one loaded model pair. Leases hold the read side of
// mu for the duration of inference; load and release take the write side,
// so models are never unloaded under a running request.
type Manager struct {
	backend     Backend
	logger      *zap.Logger
	observer    Observer
	loadTimeout time.Duration

	mu     sync.RWMutex
	pipes  *Pipelines
	loaded atomic.Bool
	group  singleflight.Group
}

type Option func(*Manager)

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

func WithLoadTimeout(d time.Duration) Option {
	return func(m *Manager) { m.loadTimeout = d }
}

func NewManager(backend Backend, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		backend:     backend,
		logger:      logger.With(zap.String("component", "models")),
		observer:    nopObserver{},
		loadTimeout: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lease grants use of the loaded pipelines until Close
type Lease struct {
	*Pipelines
	release func()
	once    sync.Once
}

// Close ends the lease. It is safe to call more than once.
func (l *Lease) Close() {
	l.once.Do(l.release)
}

// Acquire returns a lease on the loaded pipelines, loading them first when
// needed. Concurrent first calls share one load, which is not cancelled when
// a waiting caller goes away. A failed load is reported as unavailable and
// retried by the next call.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	for {
		m.mu.RLock()
		if m.pipes != nil {
			return &Lease{Pipelines: m.pipes, release: m.mu.RUnlock}, nil
		}
		m.mu.RUnlock()

		loadCtx := context.WithoutCancel(ctx)
		ch := m.group.DoChan("load", func() (interface{}, error) {
			return nil, m.load(loadCtx)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}
	}
}

func (m *Manager) load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pipes != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.loadTimeout)
	defer cancel()

	m.logger.Info("loading generation models")
	start := time.Now()
	pipes, err := m.backend.Load(ctx)
	m.observer.ModelTransition("load", err)
	if err != nil {
		m.logger.Error("model load failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return apperr.Wrap(apperr.ErrUnavailable, err, "model unavailable")
	}

	m.pipes = pipes
	m.loaded.Store(true)
	m.observer.ModelsLoaded(true)
	m.logger.Info("generation models loaded", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Release unloads the models, waiting for active leases to close. It is a
// no-op when nothing is loaded. The models count as unloaded afterwards even
// when the backend reports an error.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pipes == nil {
		return nil
	}

	err := m.backend.Unload(ctx)
	m.observer.ModelTransition("unload", err)
	m.pipes = nil
	m.loaded.Store(false)
	m.observer.ModelsLoaded(false)

	if err != nil {
		m.logger.Warn("model unload reported an error", zap.Error(err))
		return err
	}
	m.logger.Info("generation models unloaded")
	return nil
}

// Loaded reports whether the models are resident without waiting on locks
func (m *Manager) Loaded() bool {
	return m.loaded.Load()
}
