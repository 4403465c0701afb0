package compute

import (
	"context"

	"fleetcore/pkg/objects"
)

// InstanceListVersion is the list envelope's own wire version.
const InstanceListVersion = "1.0"

var instanceListDescriptor = objects.ListDescriptor{
	TypeName: "InstanceList",
	Version:  InstanceListVersion,
	ElemType: "Instance",
}

// InstanceList is an ordered collection of instances sharing one wire
// envelope.
type InstanceList struct {
	list *objects.List
}

// NewInstanceList constructs an empty list bound to a registry and bridge.
func NewInstanceList(reg *objects.Registry, bridge objects.Bridge) *InstanceList {
	return &InstanceList{list: objects.NewList(instanceListDescriptor, reg, bridge)}
}

// GetInstancesByFilter loads every instance matching the filter, in the
// order the store returns them, joining the named optional fields.
func GetInstancesByFilter(ctx context.Context, reg *objects.Registry, bridge objects.Bridge, match map[string]any, sortKey, sortDir string, expected ...string) (*InstanceList, error) {
	records, err := bridge.ListByFilter(ctx, objects.Filter{
		Match:    match,
		SortKey:  sortKey,
		SortDir:  sortDir,
		Expected: expected,
	})
	if err != nil {
		return nil, err
	}
	l := NewInstanceList(reg, bridge)
	if err := l.list.FromRecords(records, expected); err != nil {
		return nil, err
	}
	return l, nil
}

// GetInstancesByHost loads every instance on the given compute host.
func GetInstancesByHost(ctx context.Context, reg *objects.Registry, bridge objects.Bridge, host string, expected ...string) (*InstanceList, error) {
	return GetInstancesByFilter(ctx, reg, bridge, map[string]any{"host": host}, "", "", expected...)
}

// Len returns the number of instances.
func (l *InstanceList) Len() int { return l.list.Len() }

// At returns the instance at index i.
func (l *InstanceList) At(i int) *Instance { return l.list.At(i).(*Instance) }

// Append adds an instance and marks the list membership as changed.
func (l *InstanceList) Append(inst *Instance) error { return l.list.Append(inst) }

// WhatChanged returns the union of every element's change-set.
func (l *InstanceList) WhatChanged() []string { return l.list.WhatChanged() }

// MembershipChanged reports whether the list itself was modified.
func (l *InstanceList) MembershipChanged() bool { return l.list.MembershipChanged() }

// ToPrimitive emits the list wire envelope.
func (l *InstanceList) ToPrimitive() (objects.Primitive, error) { return l.list.ToPrimitive() }

// InstanceListFromPrimitive rebuilds an instance list from its envelope.
func InstanceListFromPrimitive(reg *objects.Registry, bridge objects.Bridge, prim objects.Primitive) (*InstanceList, error) {
	list, err := objects.ListFromPrimitive(reg, bridge, instanceListDescriptor, prim)
	if err != nil {
		return nil, err
	}
	return &InstanceList{list: list}, nil
}
