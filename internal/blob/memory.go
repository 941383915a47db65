package blob

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sync"
)

type memoryObject struct {
	data     []byte
	metadata map[string]string
}

// MemoryStore keeps objects in process memory. Intended for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	writes  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Put(_ context.Context, path, name string, metadata map[string]string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey(path, name)] = memoryObject{data: data, metadata: maps.Clone(metadata)}
	m.writes++
	return nil
}

func (m *MemoryStore) Get(_ context.Context, path, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectKey(path, name)]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStore) Delete(_ context.Context, path, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectKey(path, name))
	return nil
}

// Metadata returns the metadata stored with an object.
func (m *MemoryStore) Metadata(path, name string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectKey(path, name)]
	return maps.Clone(obj.metadata), ok
}

// Writes reports how many Put calls succeeded.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Len reports the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func objectKey(path, name string) string {
	return path + "/" + name
}
