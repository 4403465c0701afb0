// Package objects implements the versioned, remotely-invokable object model:
// typed field coercion, lazy attribute loading, write-based change tracking,
// a deterministic wire envelope, and version-negotiating registry lookup.
// Entities behave identically whether operated on in-process or round-tripped
// through serialization to a remote executor.
package objects

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// Entity is implemented by every concrete entity type. Concrete types embed
// Base and layer typed accessors over it.
type Entity interface {
	Base() *Base
}

// Base holds per-instance field storage, the change-set, and the hooks into
// the registry and persistence bridge. Entities are not internally
// thread-safe; callers must keep a single-writer discipline per instance.
type Base struct {
	desc    Descriptor
	reg     *Registry
	bridge  Bridge
	values  map[string]any
	changes map[string]struct{}
}

// NewBase initializes storage for an empty entity of the described type.
func NewBase(desc Descriptor, reg *Registry, bridge Bridge) Base {
	return Base{
		desc:    desc,
		reg:     reg,
		bridge:  bridge,
		values:  make(map[string]any),
		changes: make(map[string]struct{}),
	}
}

// Descriptor returns the entity's registered schema.
func (b *Base) Descriptor() Descriptor { return b.desc }

// TypeName returns the entity type identifier.
func (b *Base) TypeName() string { return b.desc.TypeName }

// Version returns the entity's wire version, fixed per type per build.
func (b *Base) Version() string { return b.desc.Version }

// Bridge returns the persistence collaborator the entity was bound to.
func (b *Base) Bridge() Bridge { return b.bridge }

// IsSet reports whether the field currently holds a value. Absence is
// distinct from an explicitly-set null.
func (b *Base) IsSet(name string) bool {
	_, ok := b.values[name]
	return ok
}

// Key returns the entity's persistence key.
func (b *Base) Key() (string, error) {
	v, ok := b.values[b.desc.KeyField]
	if !ok {
		return "", &UnsetFieldError{TypeName: b.desc.TypeName, Field: b.desc.KeyField}
	}
	key, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s.%s: key is not a string", b.desc.TypeName, b.desc.KeyField)
	}
	return key, nil
}

// SetField coerces and stores a new value and records the field as changed.
// Change tracking is write-based: the field is marked even when the new
// value equals the old one.
func (b *Base) SetField(name string, raw any) error {
	f, ok := b.desc.Fields[name]
	if !ok {
		return &UnknownFieldError{TypeName: b.desc.TypeName, Field: name}
	}
	v, err := coerceValue(b.reg, b.bridge, b.desc.TypeName, name, f, raw)
	if err != nil {
		return err
	}
	b.values[name] = v
	b.changes[name] = struct{}{}
	return nil
}

// applyField coerces and stores a value without touching the change-set,
// used when populating from authoritative store data.
func (b *Base) applyField(name string, raw any) error {
	f, ok := b.desc.Fields[name]
	if !ok {
		return &UnknownFieldError{TypeName: b.desc.TypeName, Field: name}
	}
	v, err := coerceValue(b.reg, b.bridge, b.desc.TypeName, name, f, raw)
	if err != nil {
		return err
	}
	b.values[name] = v
	return nil
}

// Field returns the coerced value of a set field. Reading an unset field is
// a caller bug and fails fast; lazy fields must go through FieldOrLoad.
func (b *Base) Field(name string) (any, error) {
	if _, ok := b.desc.Fields[name]; !ok {
		return nil, &UnknownFieldError{TypeName: b.desc.TypeName, Field: name}
	}
	v, ok := b.values[name]
	if !ok {
		return nil, &UnsetFieldError{TypeName: b.desc.TypeName, Field: name}
	}
	return v, nil
}

// FieldOrLoad returns the field value, lazily loading it through the bridge
// on first access when the field is lazy-capable and unset. The loaded value
// is cached for the lifetime of the instance; a failed load is not cached,
// so a subsequent access retries.
func (b *Base) FieldOrLoad(ctx context.Context, name string) (any, error) {
	f, ok := b.desc.Fields[name]
	if !ok {
		return nil, &UnknownFieldError{TypeName: b.desc.TypeName, Field: name}
	}
	if v, ok := b.values[name]; ok {
		return v, nil
	}
	if !f.Lazy {
		return nil, &UnsetFieldError{TypeName: b.desc.TypeName, Field: name}
	}
	key, err := b.Key()
	if err != nil {
		return nil, err
	}
	raw, err := b.bridge.LoadField(ctx, key, name)
	if err != nil {
		return nil, err
	}
	if err := b.applyField(name, raw); err != nil {
		return nil, err
	}
	return b.values[name], nil
}

// ConstructFromRecord populates the entity from an in-memory raw record: all
// base fields present in the record, plus any lazy field named in expected
// whose raw data is present. Fields not requested remain unset. No store
// call occurs. The change-set is cleared.
func (b *Base) ConstructFromRecord(rec Record, expected []string) error {
	requested := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		requested[name] = struct{}{}
	}
	for name, f := range b.desc.Fields {
		raw, present := rec.Lookup(name)
		if !present {
			continue
		}
		if f.Lazy {
			if _, ok := requested[name]; !ok {
				continue
			}
		}
		if err := b.applyField(name, raw); err != nil {
			return err
		}
	}
	b.changes = make(map[string]struct{})
	return nil
}

// LoadByKey resolves one record via the bridge and populates the entity from
// it. Returns the bridge's *NotFoundError unchanged when the key is absent.
func (b *Base) LoadByKey(ctx context.Context, key string, expected []string) error {
	rec, err := b.bridge.LoadByKey(ctx, key, expected)
	if err != nil {
		return err
	}
	return b.ConstructFromRecord(rec, expected)
}

// loadedOptional returns the lazy fields that currently hold values.
func (b *Base) loadedOptional() []string {
	var out []string
	for name, f := range b.desc.Fields {
		if f.Lazy && b.IsSet(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Save sends only the changed field/value pairs to the bridge and merges the
// returned authoritative post-update record, including any fields the store
// changed as a side effect. Nested entities save through their parent: a
// child with pending changes rides along even when the parent's own
// change-set is empty, and comes back clean. With nothing to send Save never
// contacts the store and never fails.
func (b *Base) Save(ctx context.Context) error {
	changed := make(map[string]any, len(b.changes))
	var savedChildren []*Base
	for name, f := range b.desc.Fields {
		_, dirty := b.changes[name]
		if f.Kind == KindObject {
			child, ok := b.values[name].(Entity)
			if !ok {
				if dirty {
					changed[name] = nil
				}
				continue
			}
			cb := child.Base()
			if !dirty && len(cb.changes) == 0 {
				continue
			}
			prim, err := cb.ToPrimitive()
			if err != nil {
				return err
			}
			// The store holds the child as a raw sub-record, not as a wire
			// envelope.
			changed[name] = prim.Data
			savedChildren = append(savedChildren, cb)
			continue
		}
		if !dirty {
			continue
		}
		v, err := serializeValue(f, b.values[name])
		if err != nil {
			return err
		}
		changed[name] = v
	}
	if len(changed) == 0 {
		return nil
	}
	key, err := b.Key()
	if err != nil {
		return err
	}
	_, post, err := b.bridge.UpdateAndFetch(ctx, key, changed)
	if err != nil {
		return err
	}
	for _, cb := range savedChildren {
		cb.changes = make(map[string]struct{})
	}
	return b.ConstructFromRecord(post, b.loadedOptional())
}

// Refresh reloads the full base record, overwriting currently-set fields and
// clearing the change-set. Lazy fields already loaded are re-fetched; fields
// never accessed stay unset.
func (b *Base) Refresh(ctx context.Context) error {
	key, err := b.Key()
	if err != nil {
		return err
	}
	return b.LoadByKey(ctx, key, b.loadedOptional())
}

// Changes returns the sorted names of fields mutated since the last clean
// state. It is always a subset of the currently-set fields.
func (b *Base) Changes() []string {
	out := make([]string, 0, len(b.changes))
	for name := range b.changes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// restoreChanges overwrites the change-set with the sender's list, used when
// rebuilding from a primitive so the wire contract forwards true mutations.
func (b *Base) restoreChanges(names []string) {
	b.changes = make(map[string]struct{}, len(names))
	for _, name := range names {
		b.changes[name] = struct{}{}
	}
}

// ToPrimitive emits the wire envelope: every currently-set field serialized
// through its field serializer, and the change-set verbatim.
func (b *Base) ToPrimitive() (Primitive, error) {
	data := make(map[string]any, len(b.values))
	for name, v := range b.values {
		s, err := serializeValue(b.desc.Fields[name], v)
		if err != nil {
			return Primitive{}, err
		}
		data[name] = s
	}
	return Primitive{
		TypeName:  b.desc.TypeName,
		Namespace: Namespace,
		Version:   b.desc.Version,
		Data:      data,
		Changes:   b.Changes(),
	}, nil
}

// Equals reports whether two entities carry the same type, version, set
// fields and values, compared through their wire envelopes.
func (b *Base) Equals(other *Base) bool {
	if other == nil {
		return false
	}
	p1, err1 := b.ToPrimitive()
	p2, err2 := other.ToPrimitive()
	if err1 != nil || err2 != nil {
		return false
	}
	return reflect.DeepEqual(p1, p2)
}
