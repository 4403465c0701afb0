// Package archive stores wire envelopes durably: every primitive a service
// emits can be retained for audit and for replaying rolling-upgrade
// negotiations. Backends cover in-memory, local filesystem, and
// S3-compatible object storage.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetcore/pkg/objects"
)

// ErrExists reports a create-only Put against an existing key.
var ErrExists = errors.New("archive: key already exists")

// ErrNotFound reports a Get against a missing key.
var ErrNotFound = errors.New("archive: key not found")

// Info describes one archived envelope.
type Info struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is the archive backend contract. Put is create-only: archived
// envelopes are immutable.
type Store interface {
	Put(ctx context.Context, key string, payload []byte, contentType string) (Info, error)
	Get(ctx context.Context, key string) ([]byte, Info, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Delete(ctx context.Context, key string) (bool, error)
}

const envelopeContentType = "application/json"

// PutPrimitive archives one wire envelope under
// <type>/<version>/<entity key or fresh uuid>-<uuid>.json and returns the
// stored key.
func PutPrimitive(ctx context.Context, store Store, prim objects.Primitive) (string, error) {
	payload, err := json.Marshal(prim)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	entity := uuid.NewString()
	if v, ok := prim.Data["uuid"].(string); ok && v != "" {
		entity = v
	}
	key := path.Join(prim.TypeName, prim.Version, entity+"-"+uuid.NewString()+".json")
	if _, err := store.Put(ctx, key, payload, envelopeContentType); err != nil {
		return "", err
	}
	return key, nil
}

// GetPrimitive fetches and decodes one archived envelope.
func GetPrimitive(ctx context.Context, store Store, key string) (objects.Primitive, error) {
	payload, _, err := store.Get(ctx, key)
	if err != nil {
		return objects.Primitive{}, err
	}
	var prim objects.Primitive
	if err := json.Unmarshal(payload, &prim); err != nil {
		return objects.Primitive{}, fmt.Errorf("decode envelope: %w", err)
	}
	return prim, nil
}

// OpenFromEnv selects an archive backend using environment variables.
// Defaults to memory when unset.
//
//	FLEETCORE_ARCHIVE_DRIVER: memory|fs|s3 (default memory)
//	FLEETCORE_ARCHIVE_FS_ROOT: directory for the fs driver
//	FLEETCORE_ARCHIVE_S3_BUCKET: bucket for the s3 driver (required)
//	FLEETCORE_ARCHIVE_S3_REGION / _ENDPOINT / _PATH_STYLE: s3 options
func OpenFromEnv(ctx context.Context) (Store, error) {
	driver := os.Getenv("FLEETCORE_ARCHIVE_DRIVER")
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "fs":
		root := os.Getenv("FLEETCORE_ARCHIVE_FS_ROOT")
		if root == "" {
			root = "fleetcore-archive"
		}
		return NewFSStore(root)
	case "s3":
		bucket := os.Getenv("FLEETCORE_ARCHIVE_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("FLEETCORE_ARCHIVE_S3_BUCKET required for s3 driver")
		}
		return NewS3Store(ctx, S3Config{
			Bucket:    bucket,
			Region:    os.Getenv("FLEETCORE_ARCHIVE_S3_REGION"),
			Endpoint:  os.Getenv("FLEETCORE_ARCHIVE_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("FLEETCORE_ARCHIVE_S3_PATH_STYLE"), "true"),
		})
	}
	return nil, fmt.Errorf("unknown archive driver %q", driver)
}
