package objects

import (
	"fmt"
	"sort"
)

// ListDescriptor is the per-type envelope for a homogeneous entity list.
type ListDescriptor struct {
	TypeName string
	Version  string
	// ElemType names the entity type every element must carry.
	ElemType string
}

// List is an ordered, homogeneous collection of entities sharing one wire
// envelope. Elements track their own changes independently; the list itself
// tracks only membership changes.
type List struct {
	desc    ListDescriptor
	reg     *Registry
	bridge  Bridge
	objects []Entity
	// membershipChanged is set when elements are appended, distinct from
	// the per-element change-sets.
	membershipChanged bool
}

// NewList constructs an empty list bound to a registry and bridge.
func NewList(desc ListDescriptor, reg *Registry, bridge Bridge) *List {
	return &List{desc: desc, reg: reg, bridge: bridge}
}

// Descriptor returns the list's envelope descriptor.
func (l *List) Descriptor() ListDescriptor { return l.desc }

// Len returns the number of elements.
func (l *List) Len() int { return len(l.objects) }

// At returns the element at index i.
func (l *List) At(i int) Entity { return l.objects[i] }

// Objects exposes the underlying sequence for iteration.
func (l *List) Objects() []Entity { return l.objects }

// Append adds an element, enforcing the declared element type, and marks the
// list's own membership as changed.
func (l *List) Append(ent Entity) error {
	if got := ent.Base().TypeName(); got != l.desc.ElemType {
		return fmt.Errorf("%s: element is %s, want %s", l.desc.TypeName, got, l.desc.ElemType)
	}
	l.objects = append(l.objects, ent)
	l.membershipChanged = true
	return nil
}

// MembershipChanged reports whether the list's own membership was modified,
// independent of element-level changes.
func (l *List) MembershipChanged() bool { return l.membershipChanged }

// WhatChanged returns the union of every element's change-set, sorted. It is
// a diagnostic aggregate, not a partial-persistence driver.
func (l *List) WhatChanged() []string {
	seen := make(map[string]struct{})
	for _, ent := range l.objects {
		for _, name := range ent.Base().Changes() {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FromRecords replaces the list contents with one entity per raw record,
// preserving the store-returned order. Elements are built at the newest
// registered version of the element type. Membership tracking is reset: a
// freshly loaded list is clean.
func (l *List) FromRecords(records []Record, expected []string) error {
	objects := make([]Entity, 0, len(records))
	for _, rec := range records {
		ent, err := l.reg.NewLatest(l.desc.ElemType, l.bridge)
		if err != nil {
			return err
		}
		if err := ent.Base().ConstructFromRecord(rec, expected); err != nil {
			return err
		}
		objects = append(objects, ent)
	}
	l.objects = objects
	l.membershipChanged = false
	return nil
}

// ToPrimitive emits the list envelope: element envelopes in order under
// "objects", with the list's changes naming "objects" only when membership
// changed.
func (l *List) ToPrimitive() (Primitive, error) {
	elems := make([]any, 0, len(l.objects))
	for _, ent := range l.objects {
		prim, err := ent.Base().ToPrimitive()
		if err != nil {
			return Primitive{}, err
		}
		elems = append(elems, prim.asMap())
	}
	changes := []string{}
	if l.membershipChanged {
		changes = append(changes, "objects")
	}
	return Primitive{
		TypeName:  l.desc.TypeName,
		Namespace: Namespace,
		Version:   l.desc.Version,
		Data:      map[string]any{"objects": elems},
		Changes:   changes,
	}, nil
}

// ListFromPrimitive rebuilds a list from its wire envelope, resolving every
// element through the registry and enforcing the declared element type.
func ListFromPrimitive(reg *Registry, bridge Bridge, desc ListDescriptor, prim Primitive) (*List, error) {
	if prim.TypeName != desc.TypeName {
		return nil, fmt.Errorf("list primitive is %s, want %s", prim.TypeName, desc.TypeName)
	}
	l := NewList(desc, reg, bridge)
	raw, ok := prim.Data["objects"]
	if !ok {
		return l, nil
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: objects is not a list", desc.TypeName)
	}
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: element is not an envelope", desc.TypeName)
		}
		elemPrim, err := primitiveFromMap(m)
		if err != nil {
			return nil, err
		}
		ent, err := reg.FromPrimitive(bridge, elemPrim)
		if err != nil {
			return nil, err
		}
		if got := ent.Base().TypeName(); got != desc.ElemType {
			return nil, fmt.Errorf("%s: element is %s, want %s", desc.TypeName, got, desc.ElemType)
		}
		l.objects = append(l.objects, ent)
	}
	for _, name := range prim.Changes {
		if name == "objects" {
			l.membershipChanged = true
		}
	}
	return l, nil
}
