package accumulator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"specbatch/internal/calibration"
	"specbatch/internal/handling"
	"specbatch/internal/logging"
	"specbatch/internal/psd"
	"specbatch/internal/seed"
	"specbatch/internal/segment"
	"specbatch/internal/services"
)

// State tracks where an entry is in its lifecycle.
type State int

const (
	// StateLoaded means the accumulator exists in memory (fresh or loaded
	// from a prior file) and has absorbed nothing this run.
	StateLoaded State = iota
	// StateDirty means at least one admitted segment has been absorbed.
	StateDirty
	// StatePersisted means the accumulator has been written out; no further
	// mutation is allowed.
	StatePersisted
	// StateFailed means persistence failed; the entry is terminal.
	StateFailed
)

// Manager is the per-run accumulator registry. Entries are keyed by owning
// job as well as source, so two jobs covering the same source each build an
// independent accumulator with its own lifecycle.
type Manager struct {
	est        psd.Estimator
	logger     *slog.Logger
	addTimeout time.Duration

	mu      sync.Mutex
	entries map[entryKey]*Entry
}

type entryKey struct {
	owner string
	id    seed.ID
}

// Option configures a Manager.
type Option func(*Manager)

// WithAddTimeout bounds each estimator add call. Zero disables the bound.
func WithAddTimeout(d time.Duration) Option {
	return func(m *Manager) { m.addTimeout = d }
}

// NewManager constructs a registry around the given estimator.
func NewManager(est psd.Estimator, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		est:     est,
		logger:  logging.NewComponentLogger(logger, "accumulator"),
		entries: make(map[entryKey]*Entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Entry is the managed lifecycle around one source's accumulator.
type Entry struct {
	manager *Manager

	mu       sync.Mutex
	id       seed.ID
	state    State
	handle   psd.Handle
	admitted int
}

// Acquire returns owner's registry entry for id, creating it on first
// reference. When priorPath names an existing accumulator file it seeds the
// entry; otherwise the entry starts empty. Repeated Acquire calls with the
// same owner and id return the same entry; a different owner always gets a
// fresh entry, so one job persisting never blocks another job's data.
func (m *Manager) Acquire(owner string, id seed.ID, params psd.Params, priorPath string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryKey{owner: owner, id: id}
	if entry, ok := m.entries[key]; ok {
		return entry, nil
	}

	var handle psd.Handle
	if priorPath != "" {
		loaded, err := m.est.Load(priorPath)
		switch {
		case err == nil:
			if loaded.ID() != id {
				return nil, fmt.Errorf("prior accumulator %s belongs to %s, not %s", priorPath, loaded.ID(), id)
			}
			handle = loaded
			m.logger.Info("loaded prior accumulator",
				slog.String(logging.FieldEntity, id.String()),
				slog.String("path", priorPath),
				slog.Int("windows", loaded.WindowCount()),
			)
		case errors.Is(err, os.ErrNotExist):
			// Fall through to a fresh accumulator.
		default:
			return nil, services.Wrap(services.ErrPersistence, "", "load accumulator", priorPath, err)
		}
	}
	if handle == nil {
		fresh, err := m.est.New(id, params)
		if err != nil {
			return nil, err
		}
		handle = fresh
	}

	entry := &Entry{manager: m, id: id, state: StateLoaded, handle: handle}
	m.entries[key] = entry
	return entry, nil
}

// Entries returns the ids currently registered, for diagnostics. An id
// accumulated by several jobs appears once per job.
func (m *Manager) Entries() []seed.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]seed.ID, 0, len(m.entries))
	for key := range m.entries {
		ids = append(ids, key.id)
	}
	return ids
}

// ID returns the source this entry accumulates.
func (e *Entry) ID() seed.ID {
	return e.id
}

// State returns the entry's lifecycle state.
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Handle exposes the accumulator for rendering and inspection.
func (e *Entry) Handle() psd.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

// AdmittedSegments returns how many segments have been absorbed this run.
func (e *Entry) AdmittedSegments() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admitted
}

// Add absorbs one admitted segment and reports whether the estimator took
// any windows from it. A segment shorter than one estimator window absorbs
// nothing and leaves the entry's state unchanged, so an entry fed only such
// segments still refuses to persist instead of writing an empty artifact.
// Calls for the same entry are serialized; a timeout configured on the
// manager bounds the estimator call and surfaces as
// context.DeadlineExceeded with the accumulator unchanged.
func (e *Entry) Add(ctx context.Context, seg segment.Segment, cal calibration.Calibration, mode handling.Mode) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePersisted, StateFailed:
		return false, fmt.Errorf("accumulator %s: add after %s", e.id, e.state)
	}

	if timeout := e.manager.addTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	before := e.handle.WindowCount()
	if err := e.manager.est.Add(ctx, e.handle, seg, cal, mode); err != nil {
		return false, err
	}
	if e.handle.WindowCount() == before {
		return false, nil
	}
	e.admitted++
	e.state = StateDirty
	return true, nil
}

// Persist writes the accumulator exactly once. An entry that absorbed no
// segments reports ErrNoDataAdmitted and writes nothing; a path collision or
// I/O failure reports ErrPersistence and marks only this entry failed.
func (e *Entry) Persist(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StatePersisted:
		return fmt.Errorf("accumulator %s: already persisted", e.id)
	case StateFailed:
		return fmt.Errorf("accumulator %s: persist after failure", e.id)
	case StateLoaded:
		return services.Wrap(services.ErrNoDataAdmitted, "", "persist", e.id.String(), nil)
	}

	if err := e.manager.est.Save(e.handle, path); err != nil {
		e.state = StateFailed
		if errors.Is(err, fs.ErrExist) {
			return services.Wrap(services.ErrPersistence, "", "persist", fmt.Sprintf("%s: output file already exists", path), err)
		}
		return services.Wrap(services.ErrPersistence, "", "persist", path, err)
	}
	e.state = StatePersisted
	e.manager.logger.Info("persisted accumulator",
		slog.String(logging.FieldEntity, e.id.String()),
		slog.String("path", path),
		slog.Int("windows", e.handle.WindowCount()),
	)
	return nil
}

// String renders a lifecycle state for messages.
func (s State) String() string {
	switch s {
	case StateDirty:
		return "dirty"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	default:
		return "loaded"
	}
}
