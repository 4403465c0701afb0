// Package compute defines the concrete entity types of the compute service:
// the Instance record, its nested network info cache, and the instance list.
// They exercise every field kind the object layer supports and are the types
// exchanged between service processes during rolling upgrades.
package compute

import (
	"context"
	"net/netip"
	"time"

	"fleetcore/pkg/objects"
)

// Wire versions, fixed per type per build.
const (
	InstanceVersion  = "1.0"
	InfoCacheVersion = "1.0"
)

var instanceDescriptor = objects.Descriptor{
	TypeName: "Instance",
	Version:  InstanceVersion,
	KeyField: "uuid",
	Fields: map[string]objects.Field{
		"uuid":            {Kind: objects.KindString},
		"host":            {Kind: objects.KindString},
		"hostname":        {Kind: objects.KindString},
		"user_data":       {Kind: objects.KindString, Nullable: true},
		"task_state":      {Kind: objects.KindString, Nullable: true},
		"launched_at":     {Kind: objects.KindDateTime, Nullable: true},
		"access_ip_v4":    {Kind: objects.KindIPAddress, Nullable: true},
		"access_ip_v6":    {Kind: objects.KindIPAddress, Nullable: true},
		"deleted":         {Kind: objects.KindBoolFromInt},
		"info_cache":      {Kind: objects.KindObject, ObjectType: "InfoCache", Nullable: true},
		"metadata":        {Kind: objects.KindStringMap, Lazy: true},
		"system_metadata": {Kind: objects.KindStringMap, Lazy: true},
	},
}

// InstanceOptionalFields names the lazy attributes an instance load may join
// on request; unrequested fields stay unset until first access.
var InstanceOptionalFields = instanceDescriptor.OptionalFields()

// Instance mirrors one compute instance record.
type Instance struct {
	base objects.Base
}

// NewInstance constructs an empty instance bound to a registry and bridge,
// suitable for building a new record client-side.
func NewInstance(reg *objects.Registry, bridge objects.Bridge) *Instance {
	return &Instance{base: objects.NewBase(instanceDescriptor, reg, bridge)}
}

func newInstanceEntity(reg *objects.Registry, bridge objects.Bridge) objects.Entity {
	return NewInstance(reg, bridge)
}

// Base exposes the underlying object storage.
func (i *Instance) Base() *objects.Base { return &i.base }

// GetInstance resolves one instance by key through the bridge, joining the
// named optional fields. Fields not requested remain unset.
func GetInstance(ctx context.Context, reg *objects.Registry, bridge objects.Bridge, key string, expected ...string) (*Instance, error) {
	inst := NewInstance(reg, bridge)
	if err := inst.base.LoadByKey(ctx, key, expected); err != nil {
		return nil, err
	}
	return inst, nil
}

// Save persists only the changed fields and merges the store's authoritative
// post-update record.
func (i *Instance) Save(ctx context.Context) error { return i.base.Save(ctx) }

// Refresh reloads the record, overwriting set fields and clearing changes.
func (i *Instance) Refresh(ctx context.Context) error { return i.base.Refresh(ctx) }

// UUID returns the instance key.
func (i *Instance) UUID() (string, error) { return fieldAs[string](&i.base, "uuid") }

// SetUUID sets the instance key.
func (i *Instance) SetUUID(v string) error { return i.base.SetField("uuid", v) }

// Host returns the compute host the instance runs on.
func (i *Instance) Host() (string, error) { return fieldAs[string](&i.base, "host") }

// SetHost sets the compute host.
func (i *Instance) SetHost(v string) error { return i.base.SetField("host", v) }

// Hostname returns the guest hostname.
func (i *Instance) Hostname() (string, error) { return fieldAs[string](&i.base, "hostname") }

// SetHostname sets the guest hostname.
func (i *Instance) SetHostname(v string) error { return i.base.SetField("hostname", v) }

// UserData returns the opaque user data blob.
func (i *Instance) UserData() (string, error) { return fieldAs[string](&i.base, "user_data") }

// SetUserData sets the user data blob.
func (i *Instance) SetUserData(v string) error { return i.base.SetField("user_data", v) }

// TaskState returns the transient task state, which may be null.
func (i *Instance) TaskState() (string, error) { return fieldAs[string](&i.base, "task_state") }

// SetTaskState sets the transient task state.
func (i *Instance) SetTaskState(v string) error { return i.base.SetField("task_state", v) }

// LaunchedAt returns the UTC, second-precision launch timestamp.
func (i *Instance) LaunchedAt() (time.Time, error) { return fieldAs[time.Time](&i.base, "launched_at") }

// SetLaunchedAt sets the launch timestamp from a time.Time or an ISO-8601
// string; the value is normalized to UTC and truncated to whole seconds.
func (i *Instance) SetLaunchedAt(v any) error { return i.base.SetField("launched_at", v) }

// AccessIPv4 returns the v4 access address.
func (i *Instance) AccessIPv4() (netip.Addr, error) {
	return fieldAs[netip.Addr](&i.base, "access_ip_v4")
}

// SetAccessIPv4 sets the v4 access address from a netip.Addr or string form.
func (i *Instance) SetAccessIPv4(v any) error { return i.base.SetField("access_ip_v4", v) }

// AccessIPv6 returns the v6 access address.
func (i *Instance) AccessIPv6() (netip.Addr, error) {
	return fieldAs[netip.Addr](&i.base, "access_ip_v6")
}

// SetAccessIPv6 sets the v6 access address from a netip.Addr or string form.
func (i *Instance) SetAccessIPv6(v any) error { return i.base.SetField("access_ip_v6", v) }

// Deleted reports the soft-delete marker as a strict bool regardless of the
// backing store's integer representation.
func (i *Instance) Deleted() (bool, error) { return fieldAs[bool](&i.base, "deleted") }

// SetDeleted sets the soft-delete marker from a bool or integer form.
func (i *Instance) SetDeleted(v any) error { return i.base.SetField("deleted", v) }

// InfoCache returns the nested network info cache joined at load time.
func (i *Instance) InfoCache() (*InfoCache, error) {
	v, err := i.base.Field("info_cache")
	if err != nil {
		return nil, err
	}
	return v.(*InfoCache), nil
}

// Metadata returns the instance metadata map, loading it through the bridge
// on first access when it was not requested at construction time.
func (i *Instance) Metadata(ctx context.Context) (map[string]string, error) {
	return lazyMapField(ctx, &i.base, "metadata")
}

// SetMetadata replaces the instance metadata map.
func (i *Instance) SetMetadata(v map[string]string) error { return i.base.SetField("metadata", v) }

// SystemMetadata returns the system metadata map, loading it through the
// bridge on first access when it was not requested at construction time.
func (i *Instance) SystemMetadata(ctx context.Context) (map[string]string, error) {
	return lazyMapField(ctx, &i.base, "system_metadata")
}

// SetSystemMetadata replaces the system metadata map.
func (i *Instance) SetSystemMetadata(v map[string]string) error {
	return i.base.SetField("system_metadata", v)
}

func fieldAs[T any](base *objects.Base, name string) (T, error) {
	var zero T
	v, err := base.Field(name)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return v.(T), nil
}

func lazyMapField(ctx context.Context, base *objects.Base, name string) (map[string]string, error) {
	v, err := base.FieldOrLoad(ctx, name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(map[string]string), nil
}
