package objects

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"
)

var widgetDescriptor = Descriptor{
	TypeName: "Widget",
	Version:  "1.0",
	KeyField: "uuid",
	Fields: map[string]Field{
		"uuid":        {Kind: KindString},
		"host":        {Kind: KindString},
		"note":        {Kind: KindString, Nullable: true},
		"launched_at": {Kind: KindDateTime, Nullable: true},
		"deleted":     {Kind: KindBoolFromInt},
		"metadata":    {Kind: KindStringMap, Lazy: true},
		"extras":      {Kind: KindStringMap, Lazy: true},
	},
}

type widget struct {
	base Base
}

func (w *widget) Base() *Base { return &w.base }

func newWidget(reg *Registry, bridge Bridge) Entity {
	w := &widget{}
	w.base = NewBase(widgetDescriptor, reg, bridge)
	return w
}

func newWidgetRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register("Widget", "1.0", newWidget); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

// stubBridge is an in-memory Bridge that counts every store interaction.
type stubBridge struct {
	records    map[string]Record
	optional   map[string]Record
	loadCalls  int
	fieldCalls map[string]int
	saveCalls  int
	lastSaved  map[string]any
	sideEffect func(key string, rec Record)
	failField  error
}

func newStubBridge() *stubBridge {
	return &stubBridge{
		records:    make(map[string]Record),
		optional:   make(map[string]Record),
		fieldCalls: make(map[string]int),
	}
}

func (s *stubBridge) LoadByKey(_ context.Context, key string, expected []string) (Record, error) {
	s.loadCalls++
	rec, ok := s.records[key]
	if !ok {
		return nil, &NotFoundError{TypeName: "Widget", Key: key}
	}
	out := rec.Clone()
	for _, name := range expected {
		if v, ok := s.optional[key].Lookup(name); ok {
			out[name] = v
		}
	}
	return out, nil
}

func (s *stubBridge) UpdateAndFetch(_ context.Context, key string, changed map[string]any) (Record, Record, error) {
	s.saveCalls++
	s.lastSaved = changed
	rec, ok := s.records[key]
	if !ok {
		return nil, nil, &NotFoundError{TypeName: "Widget", Key: key}
	}
	pre := rec.Clone()
	for name, v := range changed {
		rec[name] = v
	}
	if s.sideEffect != nil {
		s.sideEffect(key, rec)
	}
	return pre, rec.Clone(), nil
}

func (s *stubBridge) LoadField(_ context.Context, key, field string) (any, error) {
	s.fieldCalls[field]++
	if s.failField != nil {
		return nil, s.failField
	}
	if v, ok := s.optional[key].Lookup(field); ok {
		return v, nil
	}
	if v, ok := s.records[key].Lookup(field); ok {
		return v, nil
	}
	return nil, &NotFoundError{TypeName: "Widget", Key: key}
}

func (s *stubBridge) ListByFilter(_ context.Context, filter Filter) ([]Record, error) {
	var keys []string
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var out []Record
	for _, key := range keys {
		rec := s.records[key]
		match := true
		for name, want := range filter.Match {
			got, ok := rec.Lookup(name)
			if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func seedWidget(bridge *stubBridge) {
	bridge.records["fake-uuid"] = Record{
		"uuid":        "fake-uuid",
		"host":        "orig-host",
		"note":        nil,
		"launched_at": "1955-11-05T00:00:00Z",
		"deleted":     0,
	}
	bridge.optional["fake-uuid"] = Record{
		"metadata": map[string]any{"foo": "bar"},
		"extras":   map[string]any{"baz": "qux"},
	}
}

func TestReadingUnsetFieldFailsFast(t *testing.T) {
	w := newWidget(newWidgetRegistry(t), nil)
	_, err := w.Base().Field("host")
	var unset *UnsetFieldError
	if !errors.As(err, &unset) {
		t.Fatalf("expected *UnsetFieldError, got %v", err)
	}
	if unset.Field != "host" {
		t.Fatalf("error names %q", unset.Field)
	}
}

func TestSetFieldTracksWritesNotValueChanges(t *testing.T) {
	w := newWidget(newWidgetRegistry(t), nil)
	b := w.Base()
	if err := b.SetField("host", "h1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := b.Changes(); len(got) != 1 || got[0] != "host" {
		t.Fatalf("changes = %v", got)
	}
	// Rewriting the identical value still counts as a mutation after the
	// change-set is cleared.
	if err := b.ConstructFromRecord(Record{"host": "h1"}, nil); err != nil {
		t.Fatalf("construct: %v", err)
	}
	if got := b.Changes(); len(got) != 0 {
		t.Fatalf("changes after construct = %v", got)
	}
	if err := b.SetField("host", "h1"); err != nil {
		t.Fatalf("set identical: %v", err)
	}
	if got := b.Changes(); len(got) != 1 || got[0] != "host" {
		t.Fatalf("changes after identical write = %v", got)
	}
}

func TestSetUnknownFieldFails(t *testing.T) {
	w := newWidget(newWidgetRegistry(t), nil)
	err := w.Base().SetField("bogus", "x")
	var unknown *UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownFieldError, got %v", err)
	}
}

func TestConstructFromRecordSkipsUnrequestedLazyFields(t *testing.T) {
	bridge := newStubBridge()
	seedWidget(bridge)
	w := newWidget(newWidgetRegistry(t), bridge)
	rec := bridge.records["fake-uuid"].Clone()
	rec["metadata"] = map[string]any{"foo": "bar"}
	if err := w.Base().ConstructFromRecord(rec, nil); err != nil {
		t.Fatalf("construct: %v", err)
	}
	if w.Base().IsSet("metadata") {
		t.Fatalf("unrequested lazy field was populated")
	}
	if !w.Base().IsSet("host") {
		t.Fatalf("base field missing")
	}
	if err := w.Base().ConstructFromRecord(rec, []string{"metadata"}); err != nil {
		t.Fatalf("construct with expected: %v", err)
	}
	if !w.Base().IsSet("metadata") {
		t.Fatalf("requested lazy field not populated")
	}
}

func TestLoadByKeyNotFound(t *testing.T) {
	bridge := newStubBridge()
	w := newWidget(newWidgetRegistry(t), bridge)
	err := w.Base().LoadByKey(context.Background(), "missing", nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
	if nf.Key != "missing" {
		t.Fatalf("error carries key %q", nf.Key)
	}
}

func TestLazyFieldLoadsExactlyOnce(t *testing.T) {
	bridge := newStubBridge()
	seedWidget(bridge)
	w := newWidget(newWidgetRegistry(t), bridge)
	if err := w.Base().LoadByKey(context.Background(), "fake-uuid", nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	if w.Base().IsSet("metadata") {
		t.Fatalf("lazy field set before first access")
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := w.Base().FieldOrLoad(ctx, "metadata")
		if err != nil {
			t.Fatalf("access %d: %v", i, err)
		}
		if v.(map[string]string)["foo"] != "bar" {
			t.Fatalf("access %d: value %v", i, v)
		}
	}
	if bridge.fieldCalls["metadata"] != 1 {
		t.Fatalf("bridge consulted %d times, want 1", bridge.fieldCalls["metadata"])
	}
	if bridge.fieldCalls["extras"] != 0 {
		t.Fatalf("untouched lazy field was loaded")
	}
}

func TestFailedLazyLoadIsNotCached(t *testing.T) {
	bridge := newStubBridge()
	seedWidget(bridge)
	w := newWidget(newWidgetRegistry(t), bridge)
	if err := w.Base().LoadByKey(context.Background(), "fake-uuid", nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	bridge.failField = errors.New("store hiccup")
	if _, err := w.Base().FieldOrLoad(context.Background(), "metadata"); err == nil {
		t.Fatalf("expected load failure")
	}
	bridge.failField = nil
	v, err := w.Base().FieldOrLoad(context.Background(), "metadata")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if v.(map[string]string)["foo"] != "bar" {
		t.Fatalf("retry value %v", v)
	}
	if bridge.fieldCalls["metadata"] != 2 {
		t.Fatalf("bridge consulted %d times, want 2", bridge.fieldCalls["metadata"])
	}
}

func TestSaveWithNoChangesNeverContactsStore(t *testing.T) {
	w := newWidget(newWidgetRegistry(t), nil)
	if err := w.Base().Save(context.Background()); err != nil {
		t.Fatalf("empty save: %v", err)
	}
}

func TestSaveSendsOnlyChangedFieldsAndMergesSideEffects(t *testing.T) {
	bridge := newStubBridge()
	seedWidget(bridge)
	bridge.sideEffect = func(_ string, rec Record) { rec["host"] = "newhost" }
	w := newWidget(newWidgetRegistry(t), bridge)
	if err := w.Base().LoadByKey(context.Background(), "fake-uuid", nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := w.Base().SetField("note", "foo"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.Base().Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(bridge.lastSaved) != 1 {
		t.Fatalf("saved payload %v, want only the changed field", bridge.lastSaved)
	}
	if bridge.lastSaved["note"] != "foo" {
		t.Fatalf("saved payload %v", bridge.lastSaved)
	}
	if got := w.Base().Changes(); len(got) != 0 {
		t.Fatalf("change-set not cleared: %v", got)
	}
	host, err := w.Base().Field("host")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if host != "newhost" {
		t.Fatalf("side-effect not merged, host = %v", host)
	}
}

func TestSaveKeepsLoadedLazyFields(t *testing.T) {
	bridge := newStubBridge()
	seedWidget(bridge)
	w := newWidget(newWidgetRegistry(t), bridge)
	if err := w.Base().LoadByKey(context.Background(), "fake-uuid", []string{"metadata"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := w.Base().SetField("note", "n"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := w.Base().Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !w.Base().IsSet("metadata") {
		t.Fatalf("previously loaded lazy field dropped by save")
	}
	if w.Base().IsSet("extras") {
		t.Fatalf("never-loaded lazy field appeared after save")
	}
}

func TestRefreshOverwritesStaleFields(t *testing.T) {
	bridge := newStubBridge()
	seedWidget(bridge)
	w := newWidget(newWidgetRegistry(t), bridge)
	if err := w.Base().LoadByKey(context.Background(), "fake-uuid", nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	bridge.records["fake-uuid"]["host"] = "new-host"
	if err := w.Base().Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	host, err := w.Base().Field("host")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if host != "new-host" {
		t.Fatalf("host = %v after refresh", host)
	}
	if got := w.Base().Changes(); len(got) != 0 {
		t.Fatalf("refresh left change-set %v", got)
	}
	if w.Base().IsSet("metadata") {
		t.Fatalf("refresh loaded a lazy field never accessed")
	}
}

func TestRefreshRefetchesLoadedLazyFields(t *testing.T) {
	bridge := newStubBridge()
	seedWidget(bridge)
	w := newWidget(newWidgetRegistry(t), bridge)
	if err := w.Base().LoadByKey(context.Background(), "fake-uuid", nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	md, err := w.Base().FieldOrLoad(context.Background(), "metadata")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md.(map[string]string)["foo"] != "bar" {
		t.Fatalf("metadata = %v", md)
	}
	bridge.optional["fake-uuid"]["metadata"] = map[string]any{"foo": "changed"}
	if err := w.Base().Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	md, err = w.Base().Field("metadata")
	if err != nil {
		t.Fatalf("metadata after refresh: %v", err)
	}
	if md.(map[string]string)["foo"] != "changed" {
		t.Fatalf("refresh kept stale lazy value %v", md)
	}
	// The re-fetch rides the keyed load, not another per-field load.
	if bridge.fieldCalls["metadata"] != 1 {
		t.Fatalf("metadata loaded %d times through LoadField", bridge.fieldCalls["metadata"])
	}
	if w.Base().IsSet("extras") {
		t.Fatalf("refresh loaded a lazy field never accessed")
	}
}

func TestKeyRequiresKeyField(t *testing.T) {
	w := newWidget(newWidgetRegistry(t), nil)
	if _, err := w.Base().Key(); err == nil {
		t.Fatalf("expected error for unset key")
	}
	if err := w.Base().SetField("uuid", "fake-uuid"); err != nil {
		t.Fatalf("set: %v", err)
	}
	key, err := w.Base().Key()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if key != "fake-uuid" {
		t.Fatalf("key = %q", key)
	}
}

func TestEqualsComparesEnvelopes(t *testing.T) {
	reg := newWidgetRegistry(t)
	a := newWidget(reg, nil)
	b := newWidget(reg, nil)
	for _, w := range []Entity{a, b} {
		if err := w.Base().SetField("uuid", "fake-uuid"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := w.Base().SetField("launched_at", time.Date(1955, 11, 5, 0, 0, 0, 0, time.UTC)); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if !a.Base().Equals(b.Base()) {
		t.Fatalf("identical entities compare unequal")
	}
	if err := b.Base().SetField("host", "h"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if a.Base().Equals(b.Base()) {
		t.Fatalf("entities with different set fields compare equal")
	}
	if a.Base().Equals(nil) {
		t.Fatalf("nil comparison must be false")
	}
}
