package history

import (
	"cmp"
	"slices"
)

const (
	fieldID        = "id"
	fieldText      = "text"
	fieldTimestamp = "timestamp"
	fieldLang      = "lang"
)

// Item is a single captured-text record. ID is assigned by the caller and must be stable
// across replicas; Timestamp is in epoch milliseconds.
type Item struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Lang      string `json:"lang"`
}

func (i Item) fields() map[string]any {
	return map[string]any{
		fieldID:        i.ID,
		fieldText:      i.Text,
		fieldTimestamp: i.Timestamp,
		fieldLang:      i.Lang,
	}
}

// itemFromFields decodes a nested item container. The key is authoritative for the id.
// Missing or mistyped fields decode as zero values.
func itemFromFields(key string, fields map[string]any) Item {
	return Item{
		ID:        key,
		Text:      stringField(fields, fieldText),
		Timestamp: int64Field(fields, fieldTimestamp),
		Lang:      stringField(fields, fieldLang),
	}
}

func stringField(fields map[string]any, name string) string {
	if s, ok := fields[name].(string); ok {
		return s
	}
	return ""
}

func int64Field(fields map[string]any, name string) int64 {
	switch v := fields[name].(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		// some engines only have a double type for numbers
		return int64(v)
	default:
		return 0
	}
}

// sortNewestFirst orders items by descending timestamp. Ties keep no particular order.
func sortNewestFirst(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
}
