// Package modelsession owns the process-wide model session: which model is
// loaded, whether a load is in flight, and which models the backend offers.
package modelsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"localchat/pkg/ai"
	"localchat/pkg/domain"
)

var (
	// ErrLoadInProgress rejects a load requested while another is in flight.
	ErrLoadInProgress = errors.New("model load already in progress")
	// ErrModelLoad wraps a backend failure during warm-up.
	ErrModelLoad = errors.New("model load failed")
	// ErrDiscovery is returned when every discovery strategy fails.
	ErrDiscovery = errors.New("model discovery failed")
)

// Backend is the slice of the inference API the session manager needs.
type Backend interface {
	Warmup(ctx context.Context, model string) error
}

// Options configures the session manager.
type Options struct {
	DefaultModel string
	// KeepPreviousOnFailure keeps the previously ready model reported as
	// ready after a failed load. Off by default: the backend gives no
	// guarantee the old model is still resident, so the safe state is
	// NoModel and the caller retries.
	KeepPreviousOnFailure bool
}

// Manager is the exclusive owner of the model session state. All state
// transitions go through its mutex; at most one load is ever in flight.
type Manager struct {
	backend      Backend
	listers      []ai.ModelLister
	defaultModel string
	keepPrevious bool

	mu      sync.Mutex
	loaded  string // empty means NoModel
	loading bool
	target  string

	discovery singleflight.Group
}

// New constructs a manager in the NoModel state.
func New(backend Backend, listers []ai.ModelLister, opts Options) *Manager {
	return &Manager{
		backend:      backend,
		listers:      listers,
		defaultModel: opts.DefaultModel,
		keepPrevious: opts.KeepPreviousOnFailure,
	}
}

// Current reports the ready model. ok is false in NoModel and while a load
// is in flight; chat turns must not reach the backend in either case.
func (m *Manager) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loading || m.loaded == "" {
		return "", false
	}
	return m.loaded, true
}

// RequestLoad transitions to Loading(target), warms the model up against
// the backend outside the lock, and commits Ready(target) on success.
// Concurrent calls while Loading are rejected with ErrLoadInProgress, never
// queued. On failure the state reverts per Options.KeepPreviousOnFailure.
func (m *Manager) RequestLoad(ctx context.Context, target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty model name", ErrModelLoad)
	}

	m.mu.Lock()
	if m.loading {
		m.mu.Unlock()
		return ErrLoadInProgress
	}
	previous := m.loaded
	m.loading = true
	m.target = target
	m.mu.Unlock()

	err := m.backend.Warmup(ctx, target)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	m.target = ""
	if err != nil {
		if m.keepPrevious && previous != "" {
			m.loaded = previous
		} else {
			m.loaded = ""
		}
		slog.Warn("model load failed", "model", target, "err", err)
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	m.loaded = target
	slog.Info("model ready", "model", target)
	return nil
}

// ListModels evaluates the discovery strategies in priority order; the
// first strategy returning a non-empty list wins. When every strategy fails
// or comes back empty the result is an empty list plus ErrDiscovery, which
// callers treat as a valid "no models available" state, not a fatal one.
// Concurrent calls share a single in-flight discovery.
func (m *Manager) ListModels(ctx context.Context) (domain.ModelList, error) {
	v, err, _ := m.discovery.Do("discover", func() (any, error) {
		return m.discover(ctx), nil
	})
	names, _ := v.([]string)
	if err == nil && len(names) == 0 {
		err = ErrDiscovery
	}
	models := make([]domain.ModelInfo, 0, len(names))
	for _, name := range names {
		models = append(models, domain.ModelInfo{Name: name})
	}
	return domain.ModelList{Models: models, DefaultModel: m.defaultModel}, err
}

func (m *Manager) discover(ctx context.Context) []string {
	for _, lister := range m.listers {
		names, err := lister.ListModels(ctx)
		if err != nil {
			slog.Warn("model discovery strategy failed", "strategy", lister.Name(), "err", err)
			continue
		}
		if len(names) == 0 {
			slog.Warn("model discovery strategy returned no models", "strategy", lister.Name())
			continue
		}
		return names
	}
	return nil
}
