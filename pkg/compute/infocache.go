package compute

import "fleetcore/pkg/objects"

var infoCacheDescriptor = objects.Descriptor{
	TypeName: "InfoCache",
	Version:  InfoCacheVersion,
	KeyField: "instance_uuid",
	Fields: map[string]objects.Field{
		"instance_uuid": {Kind: objects.KindString},
		"network_info":  {Kind: objects.KindString, Nullable: true},
	},
}

// InfoCache is the nested network information sub-record attached to an
// instance. Absence of the raw sub-record leaves the parent field unset; an
// empty cache is never fabricated.
type InfoCache struct {
	base objects.Base
}

// NewInfoCache constructs an empty info cache bound to a registry and bridge.
func NewInfoCache(reg *objects.Registry, bridge objects.Bridge) *InfoCache {
	return &InfoCache{base: objects.NewBase(infoCacheDescriptor, reg, bridge)}
}

func newInfoCacheEntity(reg *objects.Registry, bridge objects.Bridge) objects.Entity {
	return NewInfoCache(reg, bridge)
}

// Base exposes the underlying object storage.
func (c *InfoCache) Base() *objects.Base { return &c.base }

// InstanceUUID returns the owning instance key.
func (c *InfoCache) InstanceUUID() (string, error) {
	return fieldAs[string](&c.base, "instance_uuid")
}

// NetworkInfo returns the cached serialized network state.
func (c *InfoCache) NetworkInfo() (string, error) { return fieldAs[string](&c.base, "network_info") }

// SetNetworkInfo replaces the cached network state.
func (c *InfoCache) SetNetworkInfo(v string) error { return c.base.SetField("network_info", v) }
