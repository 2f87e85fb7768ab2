package settings

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Key identifies a settings entry.
type Key uint16

// Settings keys.
const (
	KeyActiveDataset  Key = 0x0001
	KeyPendingDataset Key = 0x0002
	KeyNetworkInfo    Key = 0x0003
)

// String returns the key name.
func (k Key) String() string {
	switch k {
	case KeyActiveDataset:
		return "ActiveDataset"
	case KeyPendingDataset:
		return "PendingDataset"
	case KeyNetworkInfo:
		return "NetworkInfo"
	default:
		return fmt.Sprintf("Key(0x%04x)", uint16(k))
	}
}

// DeleteAll passed as index to Delete removes every value of a key.
const DeleteAll = -1

// ErrNotFound is returned when the key or index does not exist.
var ErrNotFound = errors.New("settings: not found")

// Store is a non-volatile key/value store.
type Store interface {
	// Get returns the value at index for key.
	Get(key Key, index int) ([]byte, error)

	// Set replaces all values of key with value.
	Set(key Key, value []byte) error

	// Add appends value to key.
	Add(key Key, value []byte) error

	// Delete removes the value at index, or every value if index is DeleteAll.
	Delete(key Key, index int) error
}

// MemoryStore is a Store held in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	values map[Key][][]byte
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key][][]byte)}
}

// Get returns the value at index for key.
func (s *MemoryStore) Get(key Key, index int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals := s.values[key]
	if index < 0 || index >= len(vals) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrNotFound, key, index)
	}
	return bytes.Clone(vals[index]), nil
}

// Set replaces all values of key.
func (s *MemoryStore) Set(key Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = [][]byte{bytes.Clone(value)}
	return nil
}

// Add appends a value to key.
func (s *MemoryStore) Add(key Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = append(s.values[key], bytes.Clone(value))
	return nil
}

// Delete removes the value at index, or all values for DeleteAll.
func (s *MemoryStore) Delete(key Key, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals, ok := s.values[key]
	if !ok || len(vals) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if index == DeleteAll {
		delete(s.values, key)
		return nil
	}
	if index < 0 || index >= len(vals) {
		return fmt.Errorf("%w: %s[%d]", ErrNotFound, key, index)
	}

	vals = slices.Delete(vals, index, index+1)
	if len(vals) == 0 {
		delete(s.values, key)
	} else {
		s.values[key] = vals
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
