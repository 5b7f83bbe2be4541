package history

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/google/uuid"
)

// genesisActor authors the shared first change of every document.
const genesisActor = "00000000000000000000000000000000"

// genesisContainers are created by the genesis change. Because every replica starts from
// the same change, they all refer to the same container objects and merge as a union.
var genesisContainers = []string{HistoryContainer}

var (
	genesisOnce     sync.Once
	genesisSnapshot []byte
	genesisHash     string
	genesisErr      error
)

func genesis() ([]byte, string, error) {
	genesisOnce.Do(func() {
		doc := automerge.New()
		if err := doc.SetActorID(genesisActor); err != nil {
			genesisErr = fmt.Errorf("failed to set genesis actor: %w", err)
			return
		}
		for _, name := range genesisContainers {
			if err := doc.Path(name).Set(map[string]any{}); err != nil {
				genesisErr = fmt.Errorf("failed to create container %q: %w", name, err)
				return
			}
		}
		// a fixed time keeps the change hash identical in every process
		epoch := time.Unix(0, 0).UTC()
		hash, err := doc.Commit("genesis", automerge.CommitOptions{Time: &epoch})
		if err != nil {
			genesisErr = fmt.Errorf("failed to commit genesis: %w", err)
			return
		}
		genesisSnapshot = doc.Save()
		genesisHash = hash.String()
	})
	return genesisSnapshot, genesisHash, genesisErr
}

func newActorID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// AutomergeEngine creates automerge-backed documents.
type AutomergeEngine struct{}

// New returns an empty document with a fresh actor id.
func (AutomergeEngine) New() (Document, error) {
	raw, _, err := genesis()
	if err != nil {
		return nil, err
	}
	return loadAutomerge(raw)
}

// Load hydrates a document from a snapshot. The snapshot must descend from the shared
// genesis change.
func (AutomergeEngine) Load(snapshot []byte) (Document, error) {
	return loadAutomerge(snapshot)
}

func loadAutomerge(snapshot []byte) (*AutomergeDocument, error) {
	doc, err := loadCompatible(snapshot)
	if err != nil {
		return nil, err
	}
	if err := doc.SetActorID(newActorID()); err != nil {
		return nil, fmt.Errorf("failed to set actor: %w", err)
	}
	return &AutomergeDocument{doc: doc}, nil
}

var errNoGenesis = errors.New("snapshot does not share the history genesis change")

func loadCompatible(snapshot []byte) (*automerge.Doc, error) {
	doc, err := automerge.Load(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	_, want, err := genesis()
	if err != nil {
		return nil, err
	}
	changes, err := doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}
	for _, change := range changes {
		if change.Hash().String() == want {
			return doc, nil
		}
	}
	return nil, errNoGenesis
}

// AutomergeDocument is a Document backed by an automerge.Doc.
type AutomergeDocument struct {
	doc *automerge.Doc
}

// Container returns one of the containers created by the genesis change.
func (d *AutomergeDocument) Container(name string) (Container, error) {
	for _, known := range genesisContainers {
		if known == name {
			return &automergeContainer{owner: d, name: name}, nil
		}
	}
	return nil, fmt.Errorf("unknown container %q", name)
}

func (d *AutomergeDocument) Export() ([]byte, error) {
	return d.doc.Save(), nil
}

// Import merges into a fork and only swaps it in once the merge has fully succeeded.
func (d *AutomergeDocument) Import(snapshot []byte) error {
	foreign, err := loadCompatible(snapshot)
	if err != nil {
		return err
	}
	fork, err := d.doc.Fork()
	if err != nil {
		return fmt.Errorf("failed to fork: %w", err)
	}
	if err := fork.SetActorID(d.doc.ActorID()); err != nil {
		return fmt.Errorf("failed to set actor: %w", err)
	}
	if _, err := fork.Merge(foreign); err != nil {
		return fmt.Errorf("failed to merge: %w", err)
	}
	d.doc = fork
	return nil
}

type automergeContainer struct {
	owner *AutomergeDocument
	name  string
}

func (c *automergeContainer) m() *automerge.Map {
	return c.owner.doc.Path(c.name).Map()
}

func (c *automergeContainer) Keys() ([]string, error) {
	return c.m().Keys()
}

func (c *automergeContainer) Fields(key string) (map[string]any, bool, error) {
	v, err := c.m().Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	if v.Kind() != automerge.KindMap {
		return nil, false, nil
	}
	values, err := v.Map().Values()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read fields of %q: %w", key, err)
	}
	fields := make(map[string]any, len(values))
	for name, value := range values {
		switch value.Kind() {
		case automerge.KindStr:
			fields[name] = value.Str()
		case automerge.KindInt64:
			fields[name] = value.Int64()
		case automerge.KindUint64:
			fields[name] = value.Uint64()
		case automerge.KindFloat64:
			fields[name] = value.Float64()
		default:
			fields[name] = value.Interface()
		}
	}
	return fields, true, nil
}

// Put writes into a fork and swaps it in only once the change is committed, so a failed
// Set leaves no half-built map behind.
func (c *automergeContainer) Put(key string, fields map[string]any) error {
	fork, err := c.owner.doc.Fork()
	if err != nil {
		return fmt.Errorf("failed to fork: %w", err)
	}
	if err := fork.SetActorID(c.owner.doc.ActorID()); err != nil {
		return fmt.Errorf("failed to set actor: %w", err)
	}
	if err := fork.Path(c.name, key).Set(fields); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	if _, err := fork.Commit("put " + key); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	c.owner.doc = fork
	return nil
}

func (c *automergeContainer) Delete(key string) (bool, error) {
	m := c.m()
	v, err := m.Get(key)
	if err != nil {
		return false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	if v.Kind() == automerge.KindVoid {
		return false, nil
	}
	if err := m.Delete(key); err != nil {
		return false, fmt.Errorf("failed to delete %q: %w", key, err)
	}
	if _, err := c.owner.doc.Commit("delete " + key); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}
