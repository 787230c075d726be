// Package storage содержит долговременное key-value хранилище для истории
// звонков: в памяти, в файлах и в SQLite.
package storage

import (
	"errors"
	"sync"
)

// ErrClosed операция над закрытым хранилищем
var ErrClosed = errors.New("storage: closed")

// KV синхронное строковое хранилище
type KV interface {
	// Get возвращает значение и признак наличия ключа
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryStore хранилище в памяти процесса
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Keys список ключей (порядок не определен)
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

var defaultStore = NewMemoryStore()

// Default общее для процесса хранилище в памяти
func Default() *MemoryStore {
	return defaultStore
}
