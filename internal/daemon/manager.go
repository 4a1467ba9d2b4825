// Package daemon wires the SCP Receiver, Coordinator, and ops HTTP surface
// into one process lifecycle: start all three, block until cancelled, then
// shut down cleanly.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook performs cleanup during graceful shutdown. Hooks run in
// reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: starting components, handling
// shutdown.
type Manager interface {
	// Start starts the SCP Receiver, Coordinator, and ops server, and
	// blocks until ctx is cancelled or a component fails.
	Start(ctx context.Context) error

	// Shutdown gracefully stops all components.
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to run during shutdown.
	RegisterShutdownHook(name string, hook ShutdownHook)
}

const shutdownTimeout = 10 * time.Second

type manager struct {
	deps Deps

	opsServer *http.Server

	shutdownHooks []namedHook

	started bool
	mu      sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a daemon Manager from the given dependencies.
func NewManager(deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}

	return &manager{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "manager").Logger(),
	}, nil
}

// Start starts the SCP Receiver, the Coordinator, and (if configured) the
// ops server, and blocks until ctx is cancelled or one of them fails.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("scp_addr", m.deps.SCPAddr).
		Str("ae_title", m.deps.AETitle).
		Msg("starting daemon manager")

	errChan := make(chan error, 3)

	go func() {
		if err := m.deps.Receiver.ListenAndServe(ctx, m.deps.SCPAddr, m.deps.AETitle); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error().Err(err).Str("event", "scp.server.failed").Msg("scp receiver failed")
			errChan <- fmt.Errorf("scp receiver: %w", err)
		}
	}()

	go func() {
		if err := m.deps.Coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error().Err(err).Str("event", "coordinator.failed").Msg("coordinator stopped unexpectedly")
			errChan <- fmt.Errorf("coordinator: %w", err)
		}
	}()

	if err := m.startOpsServer(errChan); err != nil {
		return fmt.Errorf("failed to start ops server: %w", err)
	}

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("component error, initiating shutdown")
		if shutdownErr := m.Shutdown(context.Background()); shutdownErr != nil {
			return fmt.Errorf("%w (shutdown: %v)", err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		return m.Shutdown(context.Background())
	}
}

func (m *manager) startOpsServer(errChan chan<- error) error {
	if m.deps.MetricsAddr == "" || m.deps.MetricsHandler == nil {
		return nil
	}

	m.opsServer = &http.Server{
		Addr:              m.deps.MetricsAddr,
		Handler:           m.deps.MetricsHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info().Str("addr", m.deps.MetricsAddr).Msg("ops server listening")
		if err := m.opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("event", "ops.server.failed").Msg("ops server failed")
			errChan <- fmt.Errorf("ops server: %w", err)
		}
	}()

	return nil
}

// Shutdown stops the ops server and runs registered shutdown hooks in
// reverse order. The SCP Receiver and Coordinator are expected to stop on
// their own once the context Start was called with is cancelled.
func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrManagerNotStarted
	}

	m.logger.Info().Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error

	if m.opsServer != nil {
		m.logger.Debug().Msg("shutting down ops server")
		if err := m.opsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("ops server shutdown: %w", err))
		}
	}

	for i := len(m.shutdownHooks) - 1; i >= 0; i-- {
		hook := m.shutdownHooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Str("hook", hook.name).Dur("duration", time.Since(hookStart)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
		} else {
			m.logger.Debug().Str("hook", hook.name).Dur("duration", time.Since(hookStart)).Msg("shutdown hook completed")
		}
	}

	if len(errs) > 0 {
		m.logger.Error().Int("error_count", len(errs)).Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	m.logger.Info().Msg("daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to run during shutdown,
// in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}
