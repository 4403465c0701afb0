// Package sqlite provides a durable persistence bridge that snapshots the
// in-memory record state to an embedded SQLite file after every write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"fleetcore/internal/infra/persistence/memory"
	"fleetcore/pkg/objects"
)

// Compile-time contract assertion ensuring the store satisfies the bridge.
var _ objects.Bridge = (*Store)(nil)

var sqliteBuckets = []string{"records", "optional"}

// Store persists raw records to a single SQLite table as JSON blobs while
// serving reads from the embedded in-memory bridge.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates the
// in-memory state from any existing snapshot.
func NewStore(path string, optionalFields ...string) (*Store, error) {
	if path == "" {
		path = "fleetcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(optionalFields...), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{}
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		switch bucket {
		case "records":
			if err := json.Unmarshal(payload, &snapshot.Records); err != nil {
				return fmt.Errorf("decode records: %w", err)
			}
			loaded = true
		case "optional":
			if err := json.Unmarshal(payload, &snapshot.Optional); err != nil {
				return fmt.Errorf("decode optional: %w", err)
			}
			loaded = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if loaded {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case "records":
			data, err = json.Marshal(snapshot.Records)
		case "optional":
			data, err = json.Marshal(snapshot.Optional)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// Put stores a record and snapshots the state to SQLite.
func (s *Store) Put(key string, rec objects.Record) (string, error) {
	key = s.Store.Put(key, rec)
	if err := s.persist(); err != nil {
		return key, err
	}
	return key, nil
}

// UpdateAndFetch applies the changed columns, snapshots the state, and
// returns the pre/post records.
func (s *Store) UpdateAndFetch(ctx context.Context, key string, changed map[string]any) (objects.Record, objects.Record, error) {
	pre, post, err := s.Store.UpdateAndFetch(ctx, key, changed)
	if err != nil {
		return pre, post, err
	}
	if pErr := s.persist(); pErr != nil {
		return pre, post, pErr
	}
	return pre, post, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
