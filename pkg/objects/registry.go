package objects

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Constructor builds an empty entity bound to a registry and bridge.
type Constructor func(reg *Registry, bridge Bridge) Entity

// BackportPolicy supplies a compatible constructor when no exact
// (type, version) registration exists. It is what lets a newer sender
// interoperate with an older receiver during a rolling upgrade. The default
// policy fails closed.
type BackportPolicy func(reg *Registry, typeName, version string) (Constructor, error)

// FailClosedPolicy is the default backport policy: it rejects every version
// mismatch with an *UnsupportedVersionError.
func FailClosedPolicy(_ *Registry, typeName, version string) (Constructor, error) {
	return nil, &UnsupportedVersionError{TypeName: typeName, Version: version}
}

// Registry maps (type name, version) to entity constructors and mediates
// version compatibility. Registration happens once at process
// initialization; the table is read-only thereafter.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]map[string]Constructor
	backport BackportPolicy
}

// NewRegistry constructs an empty registry with the fail-closed backport
// policy.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]map[string]Constructor),
		backport: FailClosedPolicy,
	}
}

// SetBackportPolicy injects the strategy used when Resolve finds no exact
// version match.
func (r *Registry) SetBackportPolicy(policy BackportPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if policy == nil {
		policy = FailClosedPolicy
	}
	r.backport = policy
}

// Register records a constructor for a (type, version) pair. Re-registering
// the identical constructor is a no-op; a conflicting constructor fails with
// a *ConflictError.
func (r *Registry) Register(typeName, version string, ctor Constructor) error {
	if typeName == "" || version == "" || ctor == nil {
		return fmt.Errorf("register %s@%s: incomplete registration", typeName, version)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.types[typeName]
	if !ok {
		versions = make(map[string]Constructor)
		r.types[typeName] = versions
	}
	if existing, ok := versions[version]; ok {
		if reflect.ValueOf(existing).Pointer() == reflect.ValueOf(ctor).Pointer() {
			return nil
		}
		return &ConflictError{TypeName: typeName, Version: version}
	}
	versions[version] = ctor
	return nil
}

// Resolve returns the constructor for an exact (type, version) match, or
// consults the backport policy when none exists.
func (r *Registry) Resolve(typeName, version string) (Constructor, error) {
	r.mu.RLock()
	ctor, ok := r.types[typeName][version]
	policy := r.backport
	r.mu.RUnlock()
	if ok {
		return ctor, nil
	}
	return policy(r, typeName, version)
}

// Versions returns the registered versions for a type in ascending order.
func (r *Registry) Versions(typeName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types[typeName]))
	for v := range r.types[typeName] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return versionLess(out[i], out[j]) })
	return out
}

// TypeNames returns every registered type name in sorted order.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewLatest constructs an empty entity of the newest registered version of a
// type.
func (r *Registry) NewLatest(typeName string, bridge Bridge) (Entity, error) {
	versions := r.Versions(typeName)
	if len(versions) == 0 {
		return nil, &UnsupportedVersionError{TypeName: typeName, Version: ""}
	}
	ctor, err := r.Resolve(typeName, versions[len(versions)-1])
	if err != nil {
		return nil, err
	}
	return ctor(r, bridge), nil
}

// FromPrimitive resolves the envelope's (type, version), constructs the
// target entity, deserializes every data entry through the matching field's
// coercion, and restores the sender's change list verbatim. The change-set
// is intentionally not recomputed: forwarding it is part of the wire
// contract, so a remote recipient applies only the sender's true mutations.
func (r *Registry) FromPrimitive(bridge Bridge, prim Primitive) (Entity, error) {
	ctor, err := r.Resolve(prim.TypeName, prim.Version)
	if err != nil {
		return nil, err
	}
	ent := ctor(r, bridge)
	base := ent.Base()
	names := make([]string, 0, len(prim.Data))
	for name := range prim.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := base.applyField(name, prim.Data[name]); err != nil {
			return nil, err
		}
	}
	base.restoreChanges(prim.Changes)
	return ent, nil
}

// Fingerprint returns a stable hash of a type's schema at the given version:
// field names, kinds, nullability, laziness, nested types, and the key
// field. Compatibility tooling pins these hashes to catch accidental wire
// contract drift.
func (r *Registry) Fingerprint(typeName, version string) (string, error) {
	r.mu.RLock()
	ctor, ok := r.types[typeName][version]
	r.mu.RUnlock()
	if !ok {
		return "", &UnsupportedVersionError{TypeName: typeName, Version: version}
	}
	desc := ctor(r, nil).Base().Descriptor()
	names := make([]string, 0, len(desc.Fields))
	for name := range desc.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%s key=%s\n", desc.TypeName, desc.Version, desc.KeyField)
	for _, name := range names {
		f := desc.Fields[name]
		fmt.Fprintf(&b, "%s kind=%d nullable=%t lazy=%t object=%s\n",
			name, f.Kind, f.Nullable, f.Lazy, f.ObjectType)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// versionLess orders dotted numeric versions ("1.0" < "1.2" < "2.0"),
// falling back to string order for non-numeric segments.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
			continue
		}
		if an != bn {
			return an < bn
		}
	}
	return len(as) < len(bs)
}
