package compute

import "fleetcore/pkg/objects"

// RegisterTypes records every compute entity type in the registry. It runs
// once at process initialization and is idempotent.
func RegisterTypes(reg *objects.Registry) error {
	if err := reg.Register("Instance", InstanceVersion, newInstanceEntity); err != nil {
		return err
	}
	return reg.Register("InfoCache", InfoCacheVersion, newInfoCacheEntity)
}

// NewRegistry returns a registry pre-loaded with the compute types.
func NewRegistry() *objects.Registry {
	reg := objects.NewRegistry()
	if err := RegisterTypes(reg); err != nil {
		// Registration of the build's own types cannot conflict.
		panic(err)
	}
	return reg
}
