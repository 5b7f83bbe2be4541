// Package replica holds the one history store a process works with and serialises every
// operation on it.
//
// A Manager is created explicitly by the application and passed to whatever needs it.
// Each call holds the Manager's lock for its whole duration, disk I/O included, so no
// operation ever observes another half-applied.
package replica

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/astromechza/screen-inu-history/pkg/history"
)

// OverrideFileName is the snapshot file used inside an override directory.
const OverrideFileName = "history.crdt"

var (
	// ErrNotInitialized is returned by every operation before a successful Init.
	ErrNotInitialized = errors.New("replica: history store not initialized")

	// ErrEmptyPath is returned by Init when no path is given and no override is set.
	ErrEmptyPath = errors.New("replica: empty history path")
)

// Manager owns at most one history.Store.
type Manager struct {
	mu          sync.Mutex
	store       *history.Store
	overrideDir string
	storeOpts   []history.Option
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithOverrideDir redirects every Init to OverrideFileName inside dir, whatever path the
// caller passes. An empty dir disables the override.
func WithOverrideDir(dir string) Option {
	return func(m *Manager) { m.overrideDir = dir }
}

// WithStoreOptions are passed to history.Open on every Init.
func WithStoreOptions(opts ...history.Option) Option {
	return func(m *Manager) { m.storeOpts = append(m.storeOpts, opts...) }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New returns a Manager with no store.
func New(opts ...Option) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init opens the store at path, replacing any store opened before, and returns the path
// actually used. Missing parent directories are created. If Init fails the previous store,
// if any, stays in place.
func (m *Manager) Init(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolved, err := m.resolve(path)
	if err != nil {
		return "", err
	}
	s, err := history.Open(resolved, append([]history.Option{history.WithLogger(m.logger)}, m.storeOpts...)...)
	if err != nil {
		return "", err
	}
	m.store = s
	m.logger.Info("initialized history store", "path", resolved)
	return resolved, nil
}

func (m *Manager) resolve(path string) (string, error) {
	if m.overrideDir != "" {
		m.logger.Warn("test mode: overriding history path", "requested", path, "dir", m.overrideDir)
		if err := os.MkdirAll(m.overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("%w: failed to create override dir: %w", history.ErrIO, err)
		}
		return filepath.Join(m.overrideDir, OverrideFileName), nil
	}
	if path == "" {
		return "", ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create parent dir: %w", history.ErrIO, err)
	}
	return path, nil
}

func (m *Manager) with(fn func(s *history.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return ErrNotInitialized
	}
	return fn(m.store)
}

// Path returns the backing file of the current store.
func (m *Manager) Path() (string, error) {
	var path string
	err := m.with(func(s *history.Store) error {
		path = s.Path()
		return nil
	})
	return path, err
}

func (m *Manager) Add(item history.Item) error {
	return m.with(func(s *history.Store) error { return s.Add(item) })
}

func (m *Manager) Delete(id string) error {
	return m.with(func(s *history.Store) error { return s.Delete(id) })
}

func (m *Manager) List() ([]history.Item, error) {
	var items []history.Item
	err := m.with(func(s *history.Store) (err error) {
		items, err = s.List()
		return err
	})
	return items, err
}

// Snapshot returns the current full snapshot.
func (m *Manager) Snapshot() ([]byte, error) {
	var raw []byte
	err := m.with(func(s *history.Store) (err error) {
		raw, err = s.Export()
		return err
	})
	return raw, err
}

// ImportSnapshot reads a snapshot exported by another replica from path and merges it.
func (m *Manager) ImportSnapshot(path string) error {
	return m.with(func(s *history.Store) error {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: failed to read snapshot: %w", history.ErrIO, err)
		}
		return s.Import(raw)
	})
}

// ExportSnapshot writes the current snapshot to path for another replica to import.
func (m *Manager) ExportSnapshot(path string) error {
	return m.with(func(s *history.Store) error {
		raw, err := s.Export()
		if err != nil {
			return err
		}
		return history.WriteSnapshotFile(path, raw)
	})
}
