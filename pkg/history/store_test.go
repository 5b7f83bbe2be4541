package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/automerge/automerge-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, name string) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), name))
	require.NoError(t, err)
	return s
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s := openTemp(t, "history.crdt")

	items, err := s.List()
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	_, err = os.Stat(s.Path())
	assert.ErrorIs(t, err, os.ErrNotExist, "opening must not write anything")
}

func TestOpenEmptyFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.crdt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAddThenList(t *testing.T) {
	s := openTemp(t, "history.crdt")
	item := Item{ID: "item1", Text: "Hello", Timestamp: 100, Lang: "eng"}

	require.NoError(t, s.Add(item))

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item, items[0])

	got, ok, err := s.Get("item1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, item, got)
}

func TestAddRejectsEmptyID(t *testing.T) {
	s := openTemp(t, "history.crdt")
	err := s.Add(Item{Text: "no id"})
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestAddReplacesAllFields(t *testing.T) {
	s := openTemp(t, "history.crdt")
	require.NoError(t, s.Add(Item{ID: "a", Text: "first", Timestamp: 1, Lang: "eng"}))
	require.NoError(t, s.Add(Item{ID: "a", Text: "second", Timestamp: 2}))

	items, err := s.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, Item{ID: "a", Text: "second", Timestamp: 2}, items[0])
}

func TestDeleteThenList(t *testing.T) {
	s := openTemp(t, "history.crdt")
	require.NoError(t, s.Add(Item{ID: "a", Text: "A", Timestamp: 1}))
	require.NoError(t, s.Add(Item{ID: "b", Text: "B", Timestamp: 2}))

	require.NoError(t, s.Delete("a"))

	items, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(items))
	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	s := openTemp(t, "history.crdt")
	require.NoError(t, s.Add(Item{ID: "a", Text: "A", Timestamp: 1}))

	require.NoError(t, s.Delete("missing"))
	require.NoError(t, s.Delete("missing"))

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := openTemp(t, "history.crdt")
	for _, it := range []Item{
		{ID: "one", Timestamp: 100},
		{ID: "three", Timestamp: 300},
		{ID: "two", Timestamp: 200},
	} {
		require.NoError(t, s.Add(it))
	}

	items, err := s.List()
	require.NoError(t, err)
	var ts []int64
	for _, it := range items {
		ts = append(ts, it.Timestamp)
	}
	assert.Equal(t, []int64{300, 200, 100}, ts)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.crdt")
	item := Item{ID: "item1", Text: "Hello", Timestamp: 100, Lang: "eng"}

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(item))
	s = nil

	reopened, err := Open(path)
	require.NoError(t, err)
	items, err := reopened.List()
	require.NoError(t, err)
	assert.Equal(t, []Item{item}, items)
}

func TestDeleteIsPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.crdt")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(Item{ID: "a", Timestamp: 1}))
	require.NoError(t, s.Delete("a"))

	reopened, err := Open(path)
	require.NoError(t, err)
	n, err := reopened.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOpenCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.crdt")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a snapshot"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrInitialization)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "definitely not a snapshot", string(raw), "corrupt file must be left alone")
}

func TestOpenUnrelatedDocumentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.crdt")
	require.NoError(t, os.WriteFile(path, unrelatedSnapshot(t), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrInitialization)
}

func TestMergeScenario(t *testing.T) {
	a := openTemp(t, "history_a.crdt")
	b := openTemp(t, "history_b.crdt")

	require.NoError(t, a.Add(Item{ID: "dog", Text: "Dog", Lang: "eng", Timestamp: 100}))
	require.NoError(t, b.Add(Item{ID: "cat", Text: "Cat", Lang: "eng", Timestamp: 200}))

	snapshot, err := b.Export()
	require.NoError(t, err)
	require.NoError(t, a.Import(snapshot))

	items, err := a.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Cat", items[0].Text)
	assert.Equal(t, "Dog", items[1].Text)

	// the merged state must also be on disk
	reopened, err := Open(a.Path())
	require.NoError(t, err)
	persisted, err := reopened.List()
	require.NoError(t, err)
	assert.Equal(t, items, persisted)
}

func TestMergeIsCommutative(t *testing.T) {
	a := openTemp(t, "a.crdt")
	b := openTemp(t, "b.crdt")
	require.NoError(t, a.Add(Item{ID: "x", Text: "X", Timestamp: 1}))
	require.NoError(t, b.Add(Item{ID: "y", Text: "Y", Timestamp: 2}))

	fromA, err := a.Export()
	require.NoError(t, err)
	fromB, err := b.Export()
	require.NoError(t, err)

	require.NoError(t, a.Import(fromB))
	require.NoError(t, b.Import(fromA))

	itemsA, err := a.List()
	require.NoError(t, err)
	itemsB, err := b.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, ids(itemsA))
	assert.Equal(t, itemsA, itemsB)
}

func TestMergeIsIdempotent(t *testing.T) {
	a := openTemp(t, "a.crdt")
	b := openTemp(t, "b.crdt")
	require.NoError(t, a.Add(Item{ID: "x", Text: "X", Timestamp: 1}))
	require.NoError(t, b.Add(Item{ID: "y", Text: "Y", Timestamp: 2}))
	snapshot, err := b.Export()
	require.NoError(t, err)

	require.NoError(t, a.Import(snapshot))
	first, err := a.List()
	require.NoError(t, err)

	require.NoError(t, a.Import(snapshot))
	second, err := a.List()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
}

func TestMergeConvergesOnConflictingAdd(t *testing.T) {
	a := openTemp(t, "a.crdt")
	b := openTemp(t, "b.crdt")
	require.NoError(t, a.Add(Item{ID: "same", Text: "from a", Timestamp: 1}))
	require.NoError(t, b.Add(Item{ID: "same", Text: "from b", Timestamp: 2}))

	fromA, err := a.Export()
	require.NoError(t, err)
	fromB, err := b.Export()
	require.NoError(t, err)
	require.NoError(t, a.Import(fromB))
	require.NoError(t, b.Import(fromA))

	itemsA, err := a.List()
	require.NoError(t, err)
	itemsB, err := b.List()
	require.NoError(t, err)
	require.Len(t, itemsA, 1)
	assert.Equal(t, itemsA, itemsB)
}

func TestMergeKeepsRemoteDelete(t *testing.T) {
	a := openTemp(t, "a.crdt")
	require.NoError(t, a.Add(Item{ID: "x", Text: "X", Timestamp: 1}))
	shared, err := a.Export()
	require.NoError(t, err)

	b := openTemp(t, "b.crdt")
	require.NoError(t, b.Import(shared))
	require.NoError(t, b.Delete("x"))
	fromB, err := b.Export()
	require.NoError(t, err)

	require.NoError(t, a.Import(fromB))
	n, err := a.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestImportCorruptSnapshotLeavesStateUnchanged(t *testing.T) {
	s := openTemp(t, "history.crdt")
	require.NoError(t, s.Add(Item{ID: "a", Text: "A", Timestamp: 1}))
	before, err := s.List()
	require.NoError(t, err)
	onDisk, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	err = s.Import([]byte{0x85, 0x6f, 0x4a, 0x83, 0x00, 0x01})
	assert.ErrorIs(t, err, ErrMerge)
	err = s.Import(unrelatedSnapshot(t))
	assert.ErrorIs(t, err, ErrMerge)

	after, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	stillOnDisk, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, onDisk, stillOnDisk)
}

func TestPersistenceFailureKeepsMemoryChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.crdt")
	s, err := Open(path)
	require.NoError(t, err)
	// a non-empty directory where the file should be makes the final rename fail
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o755))

	err = s.Add(Item{ID: "a", Text: "A", Timestamp: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, ErrIO)

	_, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok, "in-memory mutation stays applied")
}

func unrelatedSnapshot(t *testing.T) []byte {
	t.Helper()
	doc := automerge.New()
	require.NoError(t, doc.Path(HistoryContainer).Set(map[string]any{
		"x": map[string]any{"text": "X"},
	}))
	_, err := doc.Commit("unrelated")
	require.NoError(t, err)
	return doc.Save()
}

func TestFailedAddLeavesNoTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.crdt")
	s, err := Open(path)
	require.NoError(t, err)

	for _, bad := range []Item{
		{ID: "bad", Text: "a\xffb", Timestamp: 1},
		{ID: "bad", Text: "ok", Lang: "\xfe", Timestamp: 1},
		{ID: "b\xffd", Text: "ok", Timestamp: 1},
	} {
		assert.ErrorIs(t, s.Add(bad), ErrInvalidItem)
	}
	_, ok, err := s.Get("bad")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(Item{ID: "good", Text: "ok", Timestamp: 2}))

	reopened, err := Open(path)
	require.NoError(t, err)
	items, err := reopened.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids(items))
}

func TestFailedPutIsDiscarded(t *testing.T) {
	doc, err := AutomergeEngine{}.New()
	require.NoError(t, err)
	items, err := doc.Container(HistoryContainer)
	require.NoError(t, err)
	before, err := doc.Export()
	require.NoError(t, err)

	err = items.Put("bad", map[string]any{"id": "bad", "text": "a\xffb"})
	require.Error(t, err)

	_, ok, err := items.Fields("bad")
	require.NoError(t, err)
	assert.False(t, ok)
	keys, err := items.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, items.Put("good", Item{ID: "good", Text: "ok"}.fields()))
	after, err := doc.Export()
	require.NoError(t, err)
	reloaded, err := AutomergeEngine{}.Load(after)
	require.NoError(t, err)
	reloadedItems, err := reloaded.Container(HistoryContainer)
	require.NoError(t, err)
	keys, err = reloadedItems.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, keys)
	assert.NotEqual(t, before, after)
}

func TestLenMatchesList(t *testing.T) {
	doc, err := AutomergeEngine{}.New()
	require.NoError(t, err)
	am := doc.(*AutomergeDocument)
	require.NoError(t, am.doc.Path(HistoryContainer, "scalar").Set("not a map"))
	_, err = am.doc.Commit("scalar")
	require.NoError(t, err)
	raw, err := doc.Export()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "history.crdt")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Add(Item{ID: "a", Text: "A", Timestamp: 1}))

	items, err := s.List()
	require.NoError(t, err)
	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(items))
	assert.Equal(t, len(items), n)
}
