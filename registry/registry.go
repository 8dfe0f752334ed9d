// Package registry holds the set of sellers that quote on reverse auctions.
//
// A Registry serves immutable snapshots: each auction run reads the snapshot
// current at its start, and Reload swaps in a new one atomically.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/core"
)

// Source loads the full seller list from a backing store.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]core.Seller, error)
}

// Snapshot is one immutable view of the registry.
type Snapshot struct {
	Sellers  []core.Seller
	Version  uint64
	LoadedAt time.Time
	Source   string
}

// Registry serves seller snapshots loaded from a Source.
type Registry struct {
	source  Source
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]

	reloadMu sync.Mutex // serialises Reload
	version  uint64
}

// New creates a registry without loading it. ListSellers fails with
// core.ErrRegistryUnavailable until the first successful Reload.
func New(source Source, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{source: source, logger: logger}
}

// Open creates a registry and performs the initial load.
func Open(ctx context.Context, source Source, logger *zap.Logger) (*Registry, error) {
	r := New(source, logger)
	if _, err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// ListSellers returns the sellers of the current snapshot. The returned slice
// is a copy and may be modified by the caller.
func (r *Registry) ListSellers(_ context.Context) ([]core.Seller, error) {
	snap := r.current.Load()
	if snap == nil {
		return nil, fmt.Errorf("%w: registry %s has not been loaded", core.ErrRegistryUnavailable, r.source.Name())
	}
	return slices.Clone(snap.Sellers), nil
}

// Snapshot returns the current snapshot, or nil before the first load.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Reload loads the source and swaps the snapshot. On failure the previous
// snapshot stays in place.
func (r *Registry) Reload(ctx context.Context) (*Snapshot, error) {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	start := time.Now()
	sellers, err := r.source.Load(ctx)
	if err != nil {
		r.logger.Error("Registry reload failed",
			zap.String("source", r.source.Name()),
			zap.Error(err))
		if errors.Is(err, core.ErrRegistryUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: loading %s: %w", core.ErrRegistryUnavailable, r.source.Name(), err)
	}
	if err := ValidateSellers(sellers); err != nil {
		r.logger.Error("Registry rejected seller set",
			zap.String("source", r.source.Name()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", core.ErrRegistryUnavailable, r.source.Name(), err)
	}

	r.version++
	snap := &Snapshot{
		Sellers:  slices.Clone(sellers),
		Version:  r.version,
		LoadedAt: time.Now(),
		Source:   r.source.Name(),
	}
	r.current.Store(snap)

	r.logger.Info("Registry reloaded",
		zap.String("source", snap.Source),
		zap.Int("sellers", len(snap.Sellers)),
		zap.Uint64("version", snap.Version),
		zap.Duration("duration", time.Since(start)))

	return snap, nil
}

// ValidateSellers checks a seller set before it becomes visible to auctions.
func ValidateSellers(sellers []core.Seller) error {
	return core.ValidateSellers(sellers)
}
