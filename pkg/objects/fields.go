package objects

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"
	"time"
)

// Kind enumerates the declared semantic types a field may carry. Every kind
// pairs a coercion rule (applied on write) with a serialization rule (the
// inverse, applied when emitting wire primitives).
type Kind int

const (
	// KindString stores a plain string.
	KindString Kind = iota
	// KindInt stores a canonical int64 regardless of raw width.
	KindInt
	// KindBoolFromInt normalizes backing-store integer booleans (0/nonzero)
	// to a strict bool.
	KindBoolFromInt
	// KindDateTime stores a UTC, whole-second time.Time and serializes it as
	// an RFC 3339 string with a Z suffix.
	KindDateTime
	// KindIPAddress stores a netip.Addr covering both address families.
	KindIPAddress
	// KindStringMap stores a flat string-to-string map, accepting the
	// backing store's list-of-pairs representation.
	KindStringMap
	// KindObject stores a fully-formed nested entity of a declared type.
	KindObject
)

// Field describes one declared field of an entity type.
type Field struct {
	Kind Kind
	// Nullable permits an explicitly stored nil value.
	Nullable bool
	// Lazy marks the field as an optional attribute: absent from the base
	// record unless requested, loaded on first access otherwise.
	Lazy bool
	// ObjectType names the nested entity type for KindObject fields.
	ObjectType string
}

// Descriptor is the immutable per-type schema registered at process
// initialization: type name, wire version, key field, and field table.
type Descriptor struct {
	TypeName string
	Version  string
	// KeyField names the field used as the persistence key (e.g. "uuid").
	KeyField string
	Fields   map[string]Field
}

// OptionalFields returns the names of lazy fields in sorted order.
func (d Descriptor) OptionalFields() []string {
	var out []string
	for name, f := range d.Fields {
		if f.Lazy {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func coerceErr(typeName, field string, raw any, reason string) error {
	return &CoercionError{TypeName: typeName, Field: field, Value: raw, Reason: reason}
}

// coerceValue canonicalizes a raw value under the field's kind. Coercion is
// idempotent: an already-canonical value passes through unchanged.
func coerceValue(reg *Registry, bridge Bridge, typeName, name string, f Field, raw any) (any, error) {
	if raw == nil {
		if f.Nullable {
			return nil, nil
		}
		return nil, coerceErr(typeName, name, raw, "null value for non-nullable field")
	}
	switch f.Kind {
	case KindString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		}
		return nil, coerceErr(typeName, name, raw, "not a string")
	case KindInt:
		return coerceInt(typeName, name, raw)
	case KindBoolFromInt:
		return coerceBool(typeName, name, raw)
	case KindDateTime:
		return coerceDateTime(typeName, name, raw)
	case KindIPAddress:
		return coerceIP(typeName, name, raw)
	case KindStringMap:
		return coerceStringMap(typeName, name, raw)
	case KindObject:
		return coerceObject(reg, bridge, typeName, name, f, raw)
	}
	return nil, coerceErr(typeName, name, raw, "unknown field kind")
}

func coerceInt(typeName, name string, raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		// JSON decodes all numbers as float64.
		if v == float64(int64(v)) {
			return int64(v), nil
		}
		return nil, coerceErr(typeName, name, raw, "non-integral number")
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, coerceErr(typeName, name, raw, "not an integer")
		}
		return n, nil
	}
	return nil, coerceErr(typeName, name, raw, "not an integer")
}

func coerceBool(typeName, name string, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, coerceErr(typeName, name, raw, "not a boolean")
		}
		return b, nil
	}
	if n, err := coerceInt(typeName, name, raw); err == nil {
		return n.(int64) != 0, nil
	}
	return nil, coerceErr(typeName, name, raw, "not a boolean")
}

func coerceDateTime(typeName, name string, raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC().Truncate(time.Second), nil
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
		if t, err := time.Parse("2006-01-02T15:04:05", v); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
		return nil, coerceErr(typeName, name, raw, "not an ISO-8601 timestamp")
	}
	return nil, coerceErr(typeName, name, raw, "not a timestamp")
}

func coerceIP(typeName, name string, raw any) (any, error) {
	switch v := raw.(type) {
	case netip.Addr:
		return v, nil
	case string:
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, coerceErr(typeName, name, raw, "not an IP address")
		}
		return addr, nil
	}
	return nil, coerceErr(typeName, name, raw, "not an IP address")
}

func coerceStringMap(typeName, name string, raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, coerceErr(typeName, name, raw, fmt.Sprintf("value for %q is not a string", k))
			}
			out[k] = s
		}
		return out, nil
	case []any:
		out := make(map[string]string, len(v))
		for _, item := range v {
			if err := appendPair(out, item); err != nil {
				return nil, coerceErr(typeName, name, raw, err.Error())
			}
		}
		return out, nil
	case []map[string]any:
		out := make(map[string]string, len(v))
		for _, item := range v {
			if err := appendPair(out, item); err != nil {
				return nil, coerceErr(typeName, name, raw, err.Error())
			}
		}
		return out, nil
	}
	return nil, coerceErr(typeName, name, raw, "not a string mapping")
}

// appendPair folds one backing-store {key,value} row into the flat map.
func appendPair(dst map[string]string, item any) error {
	row, ok := item.(map[string]any)
	if !ok {
		return fmt.Errorf("row is not a key/value pair")
	}
	key, ok := row["key"].(string)
	if !ok {
		return fmt.Errorf("row key is not a string")
	}
	value, ok := row["value"].(string)
	if !ok {
		return fmt.Errorf("row value for %q is not a string", key)
	}
	dst[key] = value
	return nil
}

func coerceObject(reg *Registry, bridge Bridge, typeName, name string, f Field, raw any) (any, error) {
	switch v := raw.(type) {
	case Entity:
		if v.Base().TypeName() != f.ObjectType {
			return nil, coerceErr(typeName, name, raw, fmt.Sprintf("entity is %s, want %s", v.Base().TypeName(), f.ObjectType))
		}
		return v, nil
	case map[string]any:
		if reg == nil {
			return nil, coerceErr(typeName, name, raw, "no registry for nested entity")
		}
		if _, ok := v["type_name"]; ok {
			prim, err := primitiveFromMap(v)
			if err != nil {
				return nil, coerceErr(typeName, name, raw, err.Error())
			}
			child, err := reg.FromPrimitive(bridge, prim)
			if err != nil {
				return nil, coerceErr(typeName, name, raw, err.Error())
			}
			return child, nil
		}
		// Raw backing-store sub-record: build the nested entity at the
		// newest registered version.
		child, err := reg.NewLatest(f.ObjectType, bridge)
		if err != nil {
			return nil, coerceErr(typeName, name, raw, err.Error())
		}
		if err := child.Base().ConstructFromRecord(Record(v), child.Base().Descriptor().OptionalFields()); err != nil {
			return nil, err
		}
		return child, nil
	case Record:
		return coerceObject(reg, bridge, typeName, name, f, map[string]any(v))
	}
	return nil, coerceErr(typeName, name, raw, "not a nested record")
}

// serializeValue emits the wire form of a canonical value, the inverse of
// coercion. The entity layer guarantees v has already been coerced.
func serializeValue(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindDateTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("serialize datetime: unexpected %T", v)
		}
		return t.UTC().Format("2006-01-02T15:04:05Z07:00"), nil
	case KindIPAddress:
		addr, ok := v.(netip.Addr)
		if !ok {
			return nil, fmt.Errorf("serialize ip: unexpected %T", v)
		}
		return addr.String(), nil
	case KindObject:
		ent, ok := v.(Entity)
		if !ok {
			return nil, fmt.Errorf("serialize object: unexpected %T", v)
		}
		prim, err := ent.Base().ToPrimitive()
		if err != nil {
			return nil, err
		}
		return prim.asMap(), nil
	}
	return v, nil
}
