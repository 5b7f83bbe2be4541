package history

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"unicode/utf8"
)

// Store is a history document bound to one backing file.
type Store struct {
	path   string
	doc    Document
	items  Container
	logger *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	engine Engine
	logger *slog.Logger
}

// WithEngine replaces the default automerge engine.
func WithEngine(e Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open returns a store backed by path. An existing file is hydrated into the document; an
// absent or empty file starts an empty document. A file that exists but cannot be loaded
// fails with ErrInitialization rather than being replaced by an empty document.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{engine: AutomergeEngine{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var doc Document
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		o.logger.Info("no snapshot on disk, starting empty history", "path", path)
		doc, err = o.engine.New()
	case err != nil:
		return nil, ioError("failed to read %s: %w", path, err)
	case len(raw) == 0:
		o.logger.Info("empty snapshot on disk, starting empty history", "path", path)
		doc, err = o.engine.New()
	default:
		doc, err = o.engine.Load(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load snapshot %s: %w", ErrInitialization, path, err)
		}
		o.logger.Info("loaded snapshot", "path", path, "bytes", len(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create document: %w", ErrInitialization, err)
	}

	items, err := doc.Container(HistoryContainer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	return &Store{path: path, doc: doc, items: items, logger: o.logger}, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Add inserts item, replacing every field of any existing item with the same id, and then
// persists the snapshot.
func (s *Store) Add(item Item) error {
	if item.ID == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalidItem)
	}
	for name, v := range map[string]string{fieldID: item.ID, fieldText: item.Text, fieldLang: item.Lang} {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: %s of %q is not valid UTF-8", ErrInvalidItem, name, item.ID)
		}
	}
	if err := s.items.Put(item.ID, item.fields()); err != nil {
		return fmt.Errorf("failed to add item %q: %w", item.ID, err)
	}
	return s.persist()
}

// Delete removes the item with id. Deleting an unknown id is not an error. The snapshot is
// persisted either way.
func (s *Store) Delete(id string) error {
	found, err := s.items.Delete(id)
	if err != nil {
		return fmt.Errorf("failed to delete item %q: %w", id, err)
	}
	if !found {
		s.logger.Debug("delete of unknown item", "id", id)
	}
	return s.persist()
}

// Get returns the item with id.
func (s *Store) Get(id string) (Item, bool, error) {
	fields, ok, err := s.items.Fields(id)
	if err != nil || !ok {
		return Item{}, false, err
	}
	return itemFromFields(id, fields), true, nil
}

// List returns every item, newest first.
func (s *Store) List() ([]Item, error) {
	keys, err := s.items.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		fields, ok, err := s.items.Fields(key)
		if err != nil {
			return nil, fmt.Errorf("failed to read item %q: %w", key, err)
		}
		if !ok {
			s.logger.Warn("skipping history entry that is not a map", "id", key)
			continue
		}
		items = append(items, itemFromFields(key, fields))
	}
	sortNewestFirst(items)
	return items, nil
}

// Len returns the number of stored items, counting the same entries List returns.
func (s *Store) Len() (int, error) {
	keys, err := s.items.Keys()
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}
	n := 0
	for _, key := range keys {
		_, ok, err := s.items.Fields(key)
		if err != nil {
			return 0, fmt.Errorf("failed to read item %q: %w", key, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Export returns a full snapshot that another replica can Import.
func (s *Store) Export() ([]byte, error) {
	raw, err := s.doc.Export()
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	return raw, nil
}

// Import merges a snapshot from another replica and persists the result. Importing the
// same snapshot again has no further effect. On ErrMerge the store is unchanged.
func (s *Store) Import(snapshot []byte) error {
	if err := s.doc.Import(snapshot); err != nil {
		return fmt.Errorf("%w: %w", ErrMerge, err)
	}
	s.logger.Info("merged snapshot", "path", s.path, "bytes", len(snapshot))
	return s.persist()
}

func (s *Store) persist() error {
	raw, err := s.doc.Export()
	if err != nil {
		return fmt.Errorf("%w: failed to export: %w", ErrPersistence, err)
	}
	if err := WriteSnapshotFile(s.path, raw); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
