package profile

import (
	"context"
	"encoding/json"
	"time"
)

// Collection names used by the client.
const (
	DefaultCollection            = "patients"
	DefaultDiagnosticsCollection = "diagnostics"
)

type timestampSentinel string

// ServerTimestamp marks a field whose value the store assigns at write time.
// It may appear at the top level of a document or one map level down.
const ServerTimestamp timestampSentinel = "server-timestamp"

// DocumentStore reads and writes JSON-like documents keyed by id within a
// collection. Documents are maps of strings, numbers, bools, string lists,
// times and nested maps.
type DocumentStore interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (map[string]interface{}, error)
	// Set creates or replaces the whole document.
	Set(ctx context.Context, collection, id string, doc map[string]interface{}) error
	// Update replaces the given top-level fields of an existing document and
	// returns ErrNotFound when there is none.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	// Merge replaces the given top-level fields, creating the document when
	// it does not exist.
	Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error
}

// resolveTimestamps returns a copy of doc with every ServerTimestamp
// replaced by now.
func resolveTimestamps(doc map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case timestampSentinel:
			out[k] = now
		case map[string]interface{}:
			out[k] = resolveTimestamps(val, now)
		default:
			out[k] = v
		}
	}
	return out
}

// decode converts a stored document into dst through its JSON form.
func decode(doc map[string]interface{}, dst interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
