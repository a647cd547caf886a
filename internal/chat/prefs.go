package chat

import "sync"

// Prefs is the durable key-value contract the store persists the session
// identifier and model preference through.
type Prefs interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Preference keys the store reads and writes.
const (
	PrefSessionID     = "session.active"
	PrefModelProvider = "model.provider"
	PrefModelName     = "model.name"
)

// MemoryPrefs is an in-memory Prefs, for tests and ephemeral runs.
type MemoryPrefs struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryPrefs creates an empty in-memory preference store.
func NewMemoryPrefs() *MemoryPrefs {
	return &MemoryPrefs{values: make(map[string]string)}
}

func (m *MemoryPrefs) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryPrefs) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryPrefs) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
