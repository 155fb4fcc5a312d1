package session

import (
	"sync"

	"github.com/PMGEECODE/ArdhiAssets-sub001/internal/util"
)

// Store abstracts the key-value blob storage that session state lives
// in, so state can be kept in process memory (default) or in durable
// backing storage that survives restarts.
type Store interface {
	// Get retrieves a stored blob. Returns false if the key is absent.
	Get(key string) ([]byte, bool)
	// Put creates or replaces the blob under key.
	Put(key string, value []byte)
	// Delete removes the blob under key.
	Delete(key string)
}

// MemoryStore is a thread-safe in-memory Store. Contents are lost when
// the process exits, which is exactly the lifetime wanted for
// non-remember-me sessions.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	return util.CopyBytes(v), true
}

func (s *MemoryStore) Put(key string, value []byte) {
	s.mu.Lock()
	s.data[key] = util.CopyBytes(value)
	s.mu.Unlock()
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}
