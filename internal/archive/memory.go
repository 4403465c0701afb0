package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory archive backend for tests and ephemeral
// deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	payload     []byte
	contentType string
	stored      time.Time
}

// NewMemoryStore constructs an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Put stores a payload under key, refusing overwrites.
func (s *MemoryStore) Put(_ context.Context, key string, payload []byte, contentType string) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return Info{}, ErrExists
	}
	obj := memoryObject{
		payload:     append([]byte(nil), payload...),
		contentType: contentType,
		stored:      time.Now().UTC(),
	}
	s.objects[key] = obj
	return s.info(key, obj), nil
}

// Get returns the payload and metadata for key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, Info{}, ErrNotFound
	}
	return append([]byte(nil), obj.payload...), s.info(key, obj), nil
}

// List returns metadata for every key under prefix, sorted by key.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []Info
	for key, obj := range s.objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			infos = append(infos, s.info(key, obj))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Delete removes a key, reporting whether it existed.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	delete(s.objects, key)
	return ok, nil
}

func (s *MemoryStore) info(key string, obj memoryObject) Info {
	return Info{
		Key:          key,
		Size:         int64(len(obj.payload)),
		ContentType:  obj.contentType,
		LastModified: obj.stored,
	}
}
