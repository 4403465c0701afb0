package objects

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func buildTestWidget(t *testing.T, reg *Registry) Entity {
	t.Helper()
	w := newWidget(reg, nil)
	b := w.Base()
	for name, v := range map[string]any{
		"uuid":        "fake-uuid",
		"host":        "orig-host",
		"launched_at": time.Date(1955, 11, 5, 0, 0, 0, 0, time.UTC),
		"deleted":     123,
		"metadata":    map[string]string{"foo": "bar"},
	} {
		if err := b.SetField(name, v); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
	return w
}

func TestToPrimitiveEmitsOnlySetFields(t *testing.T) {
	reg := newWidgetRegistry(t)
	w := buildTestWidget(t, reg)
	prim, err := w.Base().ToPrimitive()
	if err != nil {
		t.Fatalf("to primitive: %v", err)
	}
	if prim.TypeName != "Widget" || prim.Version != "1.0" || prim.Namespace != Namespace {
		t.Fatalf("envelope header %s/%s/%s", prim.TypeName, prim.Namespace, prim.Version)
	}
	if _, ok := prim.Data["note"]; ok {
		t.Fatalf("unset field leaked into data")
	}
	if prim.Data["launched_at"] != "1955-11-05T00:00:00Z" {
		t.Fatalf("launched_at serialized as %v", prim.Data["launched_at"])
	}
	if prim.Data["deleted"] != true {
		t.Fatalf("deleted serialized as %v", prim.Data["deleted"])
	}
	want := []string{"deleted", "host", "launched_at", "metadata", "uuid"}
	if !reflect.DeepEqual(prim.Changes, want) {
		t.Fatalf("changes = %v, want %v", prim.Changes, want)
	}
}

func TestPrimitiveRoundTripReproducesEntity(t *testing.T) {
	reg := newWidgetRegistry(t)
	w := buildTestWidget(t, reg)
	prim, err := w.Base().ToPrimitive()
	if err != nil {
		t.Fatalf("to primitive: %v", err)
	}
	back, err := reg.FromPrimitive(nil, prim)
	if err != nil {
		t.Fatalf("from primitive: %v", err)
	}
	if !w.Base().Equals(back.Base()) {
		t.Fatalf("round trip lost information")
	}
	if !reflect.DeepEqual(w.Base().Changes(), back.Base().Changes()) {
		t.Fatalf("round trip changed the change-set: %v vs %v",
			w.Base().Changes(), back.Base().Changes())
	}
}

func TestPrimitiveSurvivesJSONEncoding(t *testing.T) {
	reg := newWidgetRegistry(t)
	w := buildTestWidget(t, reg)
	prim, err := w.Base().ToPrimitive()
	if err != nil {
		t.Fatalf("to primitive: %v", err)
	}
	raw, err := json.Marshal(prim)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Primitive
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back, err := reg.FromPrimitive(nil, decoded)
	if err != nil {
		t.Fatalf("from decoded primitive: %v", err)
	}
	if !w.Base().Equals(back.Base()) {
		t.Fatalf("JSON round trip lost information")
	}
	launched, err := back.Base().Field("launched_at")
	if err != nil {
		t.Fatalf("launched_at: %v", err)
	}
	if !launched.(time.Time).Equal(time.Date(1955, 11, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("launched_at decoded as %v", launched)
	}
}

func TestPrimitiveFromMapToleratesDecoderShapes(t *testing.T) {
	m := map[string]any{
		"type_name": "Widget",
		"namespace": Namespace,
		"version":   "1.0",
		"data":      map[string]any{"uuid": "u"},
		"changes":   []any{"uuid"},
	}
	p, err := primitiveFromMap(m)
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if p.Changes[0] != "uuid" || p.Data["uuid"] != "u" {
		t.Fatalf("rebuilt %+v", p)
	}
	m["changes"] = []string{}
	p, err = primitiveFromMap(m)
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if p.Changes == nil || len(p.Changes) != 0 {
		t.Fatalf("empty changes rebuilt as %#v", p.Changes)
	}
}

func TestPrimitiveFromMapRejectsMalformedEnvelopes(t *testing.T) {
	cases := []map[string]any{
		{"namespace": Namespace, "version": "1.0"},
		{"type_name": "Widget", "version": "1.0"},
		{"type_name": "Widget", "namespace": Namespace},
		{"type_name": "Widget", "namespace": Namespace, "version": "1.0", "data": "nope"},
		{"type_name": "Widget", "namespace": Namespace, "version": "1.0", "changes": "nope"},
		{"type_name": "Widget", "namespace": Namespace, "version": "1.0", "changes": []any{7}},
	}
	for i, m := range cases {
		if _, err := primitiveFromMap(m); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
