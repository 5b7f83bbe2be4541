package history

// HistoryContainer is the top-level map container holding one nested map per item.
const HistoryContainer = "history"

// Document is the part of a replicated document engine the store relies on. Any engine
// whose Import is a causal, commutative and idempotent merge can sit behind it.
type Document interface {
	// Container returns the named top-level map container.
	Container(name string) (Container, error)
	// Export encodes the full current state as a self-contained snapshot.
	Export() ([]byte, error)
	// Import merges a snapshot produced by Export on any replica. On error the document
	// must be left exactly as it was.
	Import(snapshot []byte) error
}

// Container is a replicated map whose values are nested maps of scalar fields.
type Container interface {
	Keys() ([]string, error)
	// Fields returns the scalar fields of the nested map at key. ok is false when the key
	// is absent or does not hold a nested map.
	Fields(key string) (fields map[string]any, ok bool, err error)
	// Put replaces the nested map at key wholesale.
	Put(key string, fields map[string]any) error
	// Delete removes the nested map at key and reports whether it was present.
	Delete(key string) (bool, error)
}

// Engine creates documents, either empty or hydrated from a snapshot.
type Engine interface {
	New() (Document, error)
	Load(snapshot []byte) (Document, error)
}
