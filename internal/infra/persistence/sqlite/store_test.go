package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"fleetcore/pkg/objects"
)

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "fleet.db")
	s, err := NewStore(path, "metadata")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Put("uuid-a", objects.Record{
		"uuid": "uuid-a", "host": "h1",
		"metadata": map[string]any{"foo": "bar"},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.DB().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, "metadata")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.DB().Close() }()
	rec, err := reopened.LoadByKey(context.Background(), "uuid-a", []string{"metadata"})
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if rec["host"] != "h1" {
		t.Fatalf("record %v", rec)
	}
	md, ok := rec["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata shape %T", rec["metadata"])
	}
	if md["foo"] != "bar" {
		t.Fatalf("metadata %v", md)
	}
}

func TestUpdateAndFetchPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Put("uuid-a", objects.Record{"uuid": "uuid-a", "host": "h1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	pre, post, err := s.UpdateAndFetch(context.Background(), "uuid-a", map[string]any{"host": "h2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if pre["host"] != "h1" || post["host"] != "h2" {
		t.Fatalf("pre %v post %v", pre["host"], post["host"])
	}
	if err := s.DB().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.DB().Close() }()
	rec, err := reopened.LoadByKey(context.Background(), "uuid-a", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec["host"] != "h2" {
		t.Fatalf("update lost across reopen: %v", rec)
	}
}

func TestDefaultPathApplied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.DB().Close() }()
	if s.Path() != path {
		t.Fatalf("path = %q", s.Path())
	}
}

func TestServesEntityLoadsThroughBridge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.db")
	s, err := NewStore(path, "metadata")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.DB().Close() }()
	if _, err := s.Put("uuid-a", objects.Record{"uuid": "uuid-a", "host": "h1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	out, err := s.ListByFilter(context.Background(), objects.Filter{Match: map[string]any{"host": "h1"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0]["uuid"] != "uuid-a" {
		t.Fatalf("list = %v", out)
	}
}
