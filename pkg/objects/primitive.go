package objects

import "fmt"

// Namespace identifies the owning system in every wire envelope. It is
// constant per deployment.
const Namespace = "fleet"

// Primitive is the deterministic wire representation of an entity: the
// envelope exchanged between processes that may be running different code
// versions. Data holds only set fields, each serialized through its field's
// serializer. Changes lists exactly the fields mutated since the entity's
// last clean state, not necessarily every field in Data.
type Primitive struct {
	TypeName  string         `json:"type_name"`
	Namespace string         `json:"namespace"`
	Version   string         `json:"version"`
	Data      map[string]any `json:"data"`
	Changes   []string       `json:"changes"`
}

// asMap renders the envelope as a plain map, the form nested objects take
// inside a parent's Data.
func (p Primitive) asMap() map[string]any {
	return map[string]any{
		"type_name": p.TypeName,
		"namespace": p.Namespace,
		"version":   p.Version,
		"data":      p.Data,
		"changes":   p.Changes,
	}
}

// primitiveFromMap rebuilds an envelope from its map form, tolerating the
// loosely-typed shapes a JSON decoder produces.
func primitiveFromMap(m map[string]any) (Primitive, error) {
	p := Primitive{Data: map[string]any{}}
	var ok bool
	if p.TypeName, ok = m["type_name"].(string); !ok {
		return Primitive{}, fmt.Errorf("primitive missing type_name")
	}
	if p.Namespace, ok = m["namespace"].(string); !ok {
		return Primitive{}, fmt.Errorf("primitive missing namespace")
	}
	if p.Version, ok = m["version"].(string); !ok {
		return Primitive{}, fmt.Errorf("primitive missing version")
	}
	switch data := m["data"].(type) {
	case nil:
	case map[string]any:
		for k, v := range data {
			p.Data[k] = v
		}
	default:
		return Primitive{}, fmt.Errorf("primitive data is not a mapping")
	}
	switch changes := m["changes"].(type) {
	case nil:
	case []string:
		p.Changes = append(make([]string, 0, len(changes)), changes...)
	case []any:
		p.Changes = make([]string, 0, len(changes))
		for _, c := range changes {
			name, ok := c.(string)
			if !ok {
				return Primitive{}, fmt.Errorf("primitive change entry is not a string")
			}
			p.Changes = append(p.Changes, name)
		}
	default:
		return Primitive{}, fmt.Errorf("primitive changes is not a list")
	}
	return p, nil
}
