// Package index owns the lifecycle of the named vector index and the
// record operations performed against it.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"vecsearch/internal/domain"
	"vecsearch/internal/vectorstore"
)

const (
	DefaultReadyTimeout = 60 * time.Second
	DefaultPollInterval = time.Second
)

// ManagerConfig controls how long EnsureReady waits for the store.
type ManagerConfig struct {
	ReadyTimeout time.Duration
	PollInterval time.Duration
	// Settle is an extra fixed wait applied once the store reports ready.
	Settle time.Duration
}

// Manager creates the index when it is missing, waits until the store can
// serve it, and tears it down on request.
type Manager struct {
	spec   domain.IndexSpec
	admin  vectorstore.Admin
	cfg    ManagerConfig
	logger *slog.Logger
	ready  atomic.Bool
}

func NewManager(spec domain.IndexSpec, admin vectorstore.Admin, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{spec: spec, admin: admin, cfg: cfg, logger: logger.With("index", spec.Name)}
}

func (m *Manager) Spec() domain.IndexSpec { return m.spec }

// Ready reports whether EnsureReady has succeeded since the last teardown.
func (m *Manager) Ready() bool { return m.ready.Load() }

// EnsureReady makes sure the index exists and is serving. It is safe to call
// repeatedly.
func (m *Manager) EnsureReady(ctx context.Context) error {
	exists, err := m.admin.Exists(ctx)
	if err != nil {
		return &domain.ProvisioningError{Index: m.spec.Name, Err: err}
	}
	if !exists {
		m.logger.Info("creating index", "model", m.spec.Model, "field", m.spec.Field)
		if err := m.admin.Create(ctx, m.spec); err != nil {
			return &domain.ProvisioningError{Index: m.spec.Name, Err: err}
		}
	}

	if err := m.waitReady(ctx); err != nil {
		return &domain.ProvisioningError{Index: m.spec.Name, Err: err}
	}
	if m.cfg.Settle > 0 {
		t := time.NewTimer(m.cfg.Settle)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return &domain.ProvisioningError{Index: m.spec.Name, Err: ctx.Err()}
		case <-t.C:
		}
	}

	m.ready.Store(true)
	m.logger.Info("index ready", "created", !exists)
	return nil
}

func (m *Manager) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ReadyTimeout)
	defer cancel()

	var last error
	err := retry.Do(ctx, retry.NewConstant(m.cfg.PollInterval), func(ctx context.Context) error {
		ok, err := m.admin.Ready(ctx)
		if err != nil {
			last = err
			return retry.RetryableError(err)
		}
		if !ok {
			return retry.RetryableError(domain.ErrIndexNotReady)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if last != nil {
			return fmt.Errorf("%w after %s: %w", domain.ErrIndexNotReady, m.cfg.ReadyTimeout, last)
		}
		return fmt.Errorf("%w after %s", domain.ErrIndexNotReady, m.cfg.ReadyTimeout)
	}
	return err
}

// Teardown irreversibly deletes the index and everything in it.
func (m *Manager) Teardown(ctx context.Context) error {
	err := m.admin.Drop(ctx)
	if errors.Is(err, domain.ErrIndexNotFound) {
		m.ready.Store(false)
		return &domain.NotFoundError{Index: m.spec.Name}
	}
	if err != nil {
		return &domain.StoreUnavailableError{Op: "teardown", Err: err}
	}
	m.ready.Store(false)
	m.logger.Info("index deleted")
	return nil
}
