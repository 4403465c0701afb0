// Package dispatch provides two interchangeable executors for entity
// operations: an in-process one and one that round-trips every request
// through serialization, standing in for a remote stub. Any operation must
// produce identical field values and change-sets through either path; that
// equivalence is part of the object contract, not test scaffolding.
package dispatch

import (
	"context"
	"fmt"

	"fleetcore/pkg/objects"
)

// Operation names understood by executors.
const (
	MethodGet       = "get"
	MethodSave      = "save"
	MethodRefresh   = "refresh"
	MethodLoadField = "load_field"
)

// Request names one logical entity operation: the target's wire envelope,
// the method, and method arguments.
type Request struct {
	Target objects.Primitive `json:"target"`
	Method string            `json:"method"`
	Args   map[string]any    `json:"args,omitempty"`
}

// Response carries the resulting entity envelope back to the caller.
type Response struct {
	Result objects.Primitive `json:"result"`
}

// Executor performs one entity operation. Implementations must be
// observably identical: same result envelope, field for field and change
// for change.
type Executor interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// StringArg extracts a required string argument from a request.
func (r Request) StringArg(name string) (string, error) {
	v, ok := r.Args[name]
	if !ok {
		return "", fmt.Errorf("%s: missing argument %q", r.Method, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %q is not a string", r.Method, name)
	}
	return s, nil
}

// StringsArg extracts an optional string-list argument from a request,
// tolerating the []any shape a JSON decoder produces.
func (r Request) StringsArg(name string) ([]string, error) {
	v, ok := r.Args[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: argument %q contains a non-string", r.Method, name)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: argument %q is not a string list", r.Method, name)
}
