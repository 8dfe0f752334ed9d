package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// DefaultKey is the KV key the history is stored under.
const DefaultKey = "hotiron:history"

// Store applies actions to the history state and persists every transition.
type Store struct {
	mu      sync.Mutex
	state   State
	kv      KV
	key     string
	maxRuns int
	logger  *zap.Logger
}

// Options configures a Store.
type Options struct {
	Key     string
	MaxRuns int
	Logger  *zap.Logger
}

// Open loads the persisted state from kv. A missing key yields an empty
// history; a corrupt value is logged and discarded.
func Open(ctx context.Context, kv KV, opts Options) (*Store, error) {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.MaxRuns <= 0 {
		opts.MaxRuns = DefaultMaxRuns
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Store{
		state:   State{Runs: []Run{}},
		kv:      kv,
		key:     opts.Key,
		maxRuns: opts.MaxRuns,
		logger:  opts.Logger,
	}

	data, err := kv.Get(ctx, s.key)
	switch {
	case errors.Is(err, ErrNotFound):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("Discarding corrupt auction history", zap.String("key", s.key), zap.Error(err))
		return s, nil
	}
	if state.Runs == nil {
		state.Runs = []Run{}
	}
	if len(state.Runs) > s.maxRuns {
		state.Runs = state.Runs[:s.maxRuns]
	}
	s.state = state
	return s, nil
}

// Dispatch applies an action and persists the new state. ClearHistory deletes
// the key instead. If persistence fails the in-memory state is left unchanged.
func (s *Store) Dispatch(ctx context.Context, action Action) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Reduce(s.state, action, s.maxRuns)

	if _, ok := action.(ClearHistory); ok {
		if err := s.kv.Delete(ctx, s.key); err != nil {
			return s.snapshot(), fmt.Errorf("failed to clear history: %w", err)
		}
		s.state = next
		return s.snapshot(), nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return s.snapshot(), fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return s.snapshot(), fmt.Errorf("failed to persist history: %w", err)
	}

	s.state = next
	return s.snapshot(), nil
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) snapshot() State {
	out := State{Runs: slices.Clone(s.state.Runs)}
	if s.state.LatestRun != nil {
		latest := *s.state.LatestRun
		out.LatestRun = &latest
	}
	return out
}
