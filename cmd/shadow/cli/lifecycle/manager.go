// Package lifecycle keeps at most one live checkpoint engine per task.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/sourcegraph/conc/pool"
)

// Service is a checkpoint engine as seen by the Manager.
type Service interface {
	Subscribe(l shadow.Listener) func()
	Dispose() error
}

type entry struct {
	svc         Service
	unsubscribe func()
}

// Manager maps task IDs to their services. It is safe for concurrent use.
type Manager struct {
	mu           sync.Mutex
	services     map[string]entry
	shuttingDown bool
}

// Snapshot is a diagnostic view of a Manager.
type Snapshot struct {
	Count        int      `json:"count"`
	IDs          []string `json:"ids"`
	ShuttingDown bool     `json:"shutting_down"`
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{services: make(map[string]entry)}
}

// Register makes svc the service for id. A service already registered under
// id is disposed first. Errors published by svc are logged; they do not
// unregister it. Returns false, registering nothing, while DisposeAll runs.
func (m *Manager) Register(ctx context.Context, id string, svc Service) bool {
	ctx = logging.WithComponent(logging.WithTask(ctx, id), "lifecycle")

	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		logging.Warn(ctx, "ignoring registration during shutdown")
		return false
	}
	old, hadOld := m.services[id]
	delete(m.services, id)
	m.mu.Unlock()

	if hadOld {
		logging.Debug(ctx, "replacing registered service")
		_ = disposeEntry(ctx, old) //nolint:errcheck // logged by disposeEntry
	}

	unsubscribe := svc.Subscribe(func(e shadow.Event) {
		if ev, ok := e.(shadow.ErrorEvent); ok {
			logging.Error(ctx, "checkpoint service error", slog.String("error", errString(ev.Err)))
		}
	})

	m.mu.Lock()
	if m.shuttingDown {
		// DisposeAll started while the old service was being disposed
		m.mu.Unlock()
		unsubscribe()
		logging.Warn(ctx, "ignoring registration during shutdown")
		return false
	}
	// A concurrent Register for the same id may have landed in between
	prev, hadPrev := m.services[id]
	m.services[id] = entry{svc: svc, unsubscribe: unsubscribe}
	count := len(m.services)
	m.mu.Unlock()

	if hadPrev {
		_ = disposeEntry(ctx, prev) //nolint:errcheck // logged by disposeEntry
	}
	logging.Debug(ctx, "service registered", slog.Int("count", count))
	return true
}

// Unregister disposes the service for id, if any, and removes it whether or
// not disposal succeeded.
func (m *Manager) Unregister(ctx context.Context, id string) error {
	ctx = logging.WithComponent(logging.WithTask(ctx, id), "lifecycle")

	m.mu.Lock()
	e, ok := m.services[id]
	delete(m.services, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := disposeEntry(ctx, e); err != nil {
		return fmt.Errorf("failed to dispose service %s: %w", id, err)
	}
	logging.Debug(ctx, "service unregistered")
	return nil
}

// DisposeAll disposes every registered service concurrently and waits for
// all of them. One failure does not stop the others. The registry is empty
// afterwards and the joined failures are returned. Calls made while a
// DisposeAll is already running return nil immediately.
func (m *Manager) DisposeAll(ctx context.Context) error {
	ctx = logging.WithComponent(ctx, "lifecycle")

	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return nil
	}
	m.shuttingDown = true
	services := m.services
	m.services = make(map[string]entry)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.shuttingDown = false
		m.mu.Unlock()
	}()

	logging.Info(ctx, "disposing all services", slog.Int("count", len(services)))

	p := pool.New().WithErrors()
	for id, e := range services {
		p.Go(func() error {
			taskCtx := logging.WithTask(ctx, id)
			if err := disposeEntry(taskCtx, e); err != nil {
				return fmt.Errorf("failed to dispose service %s: %w", id, err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err //nolint:wrapcheck // joined per-service errors are already wrapped
	}
	return nil
}

// Get returns the service registered for id.
func (m *Manager) Get(id string) (Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.services[id]
	return e.svc, ok
}

// All returns a copy of the registry.
func (m *Manager) All() map[string]Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Service, len(m.services))
	for id, e := range m.services {
		out[id] = e.svc
	}
	return out
}

// Count returns the number of registered services.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.services)
}

// IsShuttingDown reports whether DisposeAll is running.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuttingDown
}

// Snapshot returns the registry state with IDs sorted.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.services))
	for id := range m.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Snapshot{Count: len(ids), IDs: ids, ShuttingDown: m.shuttingDown}
}

func disposeEntry(ctx context.Context, e entry) error {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	if err := e.svc.Dispose(); err != nil {
		logging.Warn(ctx, "service disposal failed", slog.String("error", err.Error()))
		return err //nolint:wrapcheck // callers add the task ID
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
