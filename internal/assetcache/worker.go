package assetcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
)

// State is the worker lifecycle.
type State int

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActive
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActive:
		return "active"
	}
	return "unknown"
}

// Worker owns one cache version. It is installed, then activated, and from
// then on answers Current for every Transport that uses it.
type Worker struct {
	storage Storage
	version string
	logger  *zap.Logger

	mu      sync.RWMutex
	state   State
	store   Store
	current Store
}

// NewWorker returns a worker for version over storage.
func NewWorker(storage Storage, version string, logger *zap.Logger) (*Worker, error) {
	if storage == nil {
		return nil, errors.New("asset cache storage is required")
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, errors.New("asset cache version is required")
	}
	return &Worker{
		storage: storage,
		version: version,
		logger:  logging.OrNop(logger).Named("assetcache"),
	}, nil
}

// Version returns the worker's version.
func (w *Worker) Version() string {
	return w.version
}

// Name returns the worker's generation store name.
func (w *Worker) Name() string {
	return GenerationName(w.version)
}

// State returns the lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Install opens the generation store. The worker does not wait for older
// versions to go idle and is immediately ready to activate.
func (w *Worker) Install(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state >= StateInstalled {
		return nil
	}
	w.state = StateInstalling
	store, err := w.storage.Open(ctx, w.Name())
	if err != nil {
		w.state = StateNew
		return fmt.Errorf("install %s: %w", w.Name(), err)
	}
	w.store = store
	w.state = StateInstalled
	w.logger.Info("installed", zap.String("generation", w.Name()))
	return nil
}

// Activate purges every owned generation other than this version's and
// starts serving from the current one. It installs first when needed.
// The returned names are the purged stores.
func (w *Worker) Activate(ctx context.Context) ([]string, error) {
	if err := w.Install(ctx); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	names, err := w.storage.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("activate %s: list generations: %w", w.Name(), err)
	}
	var purged []string
	for _, name := range names {
		if !Owned(name) || name == w.Name() {
			continue
		}
		if err := w.storage.Delete(ctx, name); err != nil {
			return purged, fmt.Errorf("activate %s: delete %s: %w", w.Name(), name, err)
		}
		purged = append(purged, name)
	}
	w.current = w.store
	w.state = StateActive
	w.logger.Info("activated",
		zap.String("generation", w.Name()),
		zap.Strings("purged", purged))
	return purged, nil
}

// Current returns the active generation store, or nil before Activate.
func (w *Worker) Current() Store {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
