// Package memory provides an in-memory persistence bridge used for tests,
// ephemeral environments, and as the working state of the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"fleetcore/pkg/objects"
)

// Compile-time contract assertion ensuring the store satisfies the bridge.
var _ objects.Bridge = (*Store)(nil)

// Store keeps raw records keyed by entity key. Base columns and optional
// (lazy) columns live in separate buckets so a keyed load can join exactly
// the optional fields requested.
type Store struct {
	mu       sync.RWMutex
	records  map[string]objects.Record
	optional map[string]objects.Record
	// optionalFields routes updates for these column names into the
	// optional bucket.
	optionalFields map[string]struct{}
	// sideEffect, when set, runs inside UpdateAndFetch after the changed
	// fields are applied and before the post record is captured. It models
	// store-derived columns.
	sideEffect func(key string, rec objects.Record)
}

// NewStore constructs an empty store. optionalFields names the columns held
// in the optional bucket (e.g. "metadata", "system_metadata").
func NewStore(optionalFields ...string) *Store {
	opt := make(map[string]struct{}, len(optionalFields))
	for _, name := range optionalFields {
		opt[name] = struct{}{}
	}
	return &Store{
		records:        make(map[string]objects.Record),
		optional:       make(map[string]objects.Record),
		optionalFields: opt,
	}
}

// SetSideEffect installs a hook that mutates the stored record during
// UpdateAndFetch, modelling columns the backing store derives on write.
func (s *Store) SetSideEffect(fn func(key string, rec objects.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sideEffect = fn
}

// Put stores a raw record under the given key, splitting optional columns
// into the optional bucket. An empty key is assigned a fresh UUID. The key
// used is returned.
func (s *Store) Put(key string, rec objects.Record) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		key = uuid.NewString()
	}
	base := make(objects.Record, len(rec))
	opt := make(objects.Record)
	for name, v := range rec {
		if _, ok := s.optionalFields[name]; ok {
			opt[name] = v
			continue
		}
		base[name] = v
	}
	s.records[key] = base
	if len(opt) > 0 {
		s.optional[key] = opt
	} else {
		delete(s.optional, key)
	}
	return key
}

// Delete removes a record, reporting whether it existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	delete(s.records, key)
	delete(s.optional, key)
	return ok
}

// LoadByKey returns the base record joined with the requested optional
// fields.
func (s *Store) LoadByKey(_ context.Context, key string, expected []string) (objects.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	base, ok := s.records[key]
	if !ok {
		return nil, &objects.NotFoundError{Key: key}
	}
	out := base.Clone()
	for _, name := range expected {
		if v, ok := s.optional[key][name]; ok {
			out[name] = v
		}
	}
	return out, nil
}

// UpdateAndFetch applies the changed columns and returns the pre-update and
// post-update records, each joined with every optional column present.
func (s *Store) UpdateAndFetch(_ context.Context, key string, changed map[string]any) (objects.Record, objects.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base, ok := s.records[key]
	if !ok {
		return nil, nil, &objects.NotFoundError{Key: key}
	}
	pre := s.joined(key, base)
	for name, v := range changed {
		if _, ok := s.optionalFields[name]; ok {
			if s.optional[key] == nil {
				s.optional[key] = make(objects.Record)
			}
			s.optional[key][name] = v
			continue
		}
		base[name] = v
	}
	if s.sideEffect != nil {
		s.sideEffect(key, base)
	}
	return pre, s.joined(key, base), nil
}

// LoadField returns one column's raw value, preferring the optional bucket.
func (s *Store) LoadField(_ context.Context, key, field string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.records[key]; !ok {
		return nil, &objects.NotFoundError{Key: key}
	}
	if v, ok := s.optional[key][field]; ok {
		return v, nil
	}
	if v, ok := s.records[key][field]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("record %q has no column %q", key, field)
}

// ListByFilter returns matching records in a deterministic order: sorted by
// the filter's sort key when given, by record key otherwise.
func (s *Store) ListByFilter(_ context.Context, filter objects.Filter) ([]objects.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type row struct {
		key string
		rec objects.Record
	}
	var rows []row
	for key, base := range s.records {
		if !matches(base, filter.Match) {
			continue
		}
		rows = append(rows, row{key: key, rec: base})
	}
	sort.Slice(rows, func(i, j int) bool {
		if filter.SortKey != "" {
			a := fmt.Sprint(rows[i].rec[filter.SortKey])
			b := fmt.Sprint(rows[j].rec[filter.SortKey])
			if a != b {
				if filter.SortDir == "desc" {
					return a > b
				}
				return a < b
			}
		}
		return rows[i].key < rows[j].key
	})
	var out []objects.Record
	for _, r := range rows {
		if filter.Marker != "" && r.key <= filter.Marker {
			continue
		}
		joined := r.rec.Clone()
		for _, name := range filter.Expected {
			if v, ok := s.optional[r.key][name]; ok {
				joined[name] = v
			}
		}
		out = append(out, joined)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func matches(rec objects.Record, match map[string]any) bool {
	for name, want := range match {
		got, ok := rec[name]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// joined returns a clone of the base record with every optional column for
// the key merged in.
func (s *Store) joined(key string, base objects.Record) objects.Record {
	out := base.Clone()
	for name, v := range s.optional[key] {
		out[name] = v
	}
	return out
}

// Snapshot captures a point-in-time clone of the store state for the
// durable backends.
type Snapshot struct {
	Records  map[string]objects.Record `json:"records"`
	Optional map[string]objects.Record `json:"optional"`
}

// ExportState clones the full store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Records:  make(map[string]objects.Record, len(s.records)),
		Optional: make(map[string]objects.Record, len(s.optional)),
	}
	for k, v := range s.records {
		snap.Records[k] = v.Clone()
	}
	for k, v := range s.optional {
		snap.Optional[k] = v.Clone()
	}
	return snap
}

// ImportState replaces the store state with the snapshot's contents.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]objects.Record, len(snap.Records))
	s.optional = make(map[string]objects.Record, len(snap.Optional))
	for k, v := range snap.Records {
		s.records[k] = v.Clone()
	}
	for k, v := range snap.Optional {
		s.optional[k] = v.Clone()
	}
}
