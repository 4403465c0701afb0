package objects

import "fmt"

// NotFoundError reports that a keyed load found no backing record. It is
// surfaced unchanged to callers and never retried by the entity layer.
type NotFoundError struct {
	TypeName string
	Key      string
}

func (e NotFoundError) Error() string {
	typeName := e.TypeName
	if typeName == "" {
		typeName = "record"
	}
	return fmt.Sprintf("%s %q not found", typeName, e.Key)
}

// CoercionError reports that a raw value could not be interpreted under a
// field's declared kind. Construction fails entirely; no partial entity is
// returned.
type CoercionError struct {
	TypeName string
	Field    string
	Value    any
	Reason   string
}

func (e CoercionError) Error() string {
	return fmt.Sprintf("%s.%s: cannot coerce %v: %s", e.TypeName, e.Field, e.Value, e.Reason)
}

// UnsetFieldError reports a read of a field that is neither set nor
// lazy-loadable. Reading such a field is a caller bug and fails fast.
type UnsetFieldError struct {
	TypeName string
	Field    string
}

func (e UnsetFieldError) Error() string {
	return fmt.Sprintf("%s.%s is not set", e.TypeName, e.Field)
}

// UnknownFieldError reports an access to a field name absent from the
// entity's descriptor.
type UnknownFieldError struct {
	TypeName string
	Field    string
}

func (e UnknownFieldError) Error() string {
	return fmt.Sprintf("%s has no field %q", e.TypeName, e.Field)
}

// ConflictError reports an attempt to register a different constructor for
// an already registered (type, version) pair.
type ConflictError struct {
	TypeName string
	Version  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflicting registration for %s@%s", e.TypeName, e.Version)
}

// UnsupportedVersionError reports a resolution for which no constructor is
// registered and the backport policy declined to supply one.
type UnsupportedVersionError struct {
	TypeName string
	Version  string
}

func (e UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported version %s@%s", e.TypeName, e.Version)
}
