package objects

import "context"

// Record is a raw backing-store record: a mapping from column/attribute name
// to an untyped raw value. Records are produced by the persistence bridge
// and consumed only by the coercion layer; entities never interpret raw
// values beyond field lookup.
type Record map[string]any

// Lookup returns the raw value for a column and whether it is present.
func (r Record) Lookup(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter describes a bulk list query against the persistence bridge.
type Filter struct {
	// Match restricts results to records whose raw values equal the given
	// entries.
	Match map[string]any
	// SortKey orders the results; SortDir is "asc" or "desc".
	SortKey string
	SortDir string
	// Limit caps the number of records returned; zero means no cap.
	Limit int
	// Marker skips records up to and including the record with this key.
	Marker string
	// Expected names the optional fields to join into each record.
	Expected []string
}

// Bridge is the persistence collaborator required by the entity layer. All
// calls are synchronous and blocking; idempotent retry, cancellation and
// timeout semantics belong to the implementation, not the entity.
type Bridge interface {
	// LoadByKey resolves one raw record, joining the named optional fields.
	// Returns a *NotFoundError when no record exists for the key.
	LoadByKey(ctx context.Context, key string, expected []string) (Record, error)
	// UpdateAndFetch applies the changed field/value pairs and returns the
	// pre-update and post-update raw records.
	UpdateAndFetch(ctx context.Context, key string, changed map[string]any) (Record, Record, error)
	// LoadField fetches a single optional field's raw value, used for lazy
	// loads scoped to just that field.
	LoadField(ctx context.Context, key, field string) (any, error)
	// ListByFilter returns raw records matching the filter in store order.
	ListByFilter(ctx context.Context, filter Filter) ([]Record, error)
}
