// Package history хранит ограниченную историю звонков, новые записи первыми.
package history

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/storage"
)

const (
	DefaultKey      = "call-history"
	DefaultMaxItems = 50
)

// Status итог звонка
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusMissed    Status = "missed"
)

// Entry запись истории. Формат JSON совместим с сохраненной историей веб-клиента.
type Entry struct {
	ID        string `json:"id"`
	Number    string `json:"number"`
	Timestamp int64  `json:"timestamp"` // epoch ms
	Duration  int    `json:"duration"`  // секунды
	Status    Status `json:"status"`
}

// Config настройки хранилища истории
type Config struct {
	Key      string
	MaxItems int
	Persist  bool
	Logger   logger.StructuredLogger
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{Key: DefaultKey, MaxItems: DefaultMaxItems, Persist: true}
}

// Store история звонков
type Store struct {
	mu      sync.Mutex
	kv      storage.KV
	key     string
	max     int
	persist bool
	entries []Entry
	log     logger.StructuredLogger
}

// NewStore создает историю поверх kv. Нулевые Key и MaxItems заменяются значениями по умолчанию.
func NewStore(kv storage.KV, cfg Config) *Store {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if kv == nil {
		kv = storage.Default()
	}
	return &Store{
		kv:      kv,
		key:     cfg.Key,
		max:     cfg.MaxItems,
		persist: cfg.Persist,
		log:     logger.OrDefault(cfg.Logger).WithComponent("history"),
	}
}

// Load читает сохраненную историю. Отсутствующий ключ и поврежденные
// данные дают пустую историю.
func (s *Store) Load() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	if !s.persist {
		return []Entry{}
	}

	ctx := context.Background()
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		s.log.LogError(ctx, err, "failed to read call history", logger.String("key", s.key))
		return []Entry{}
	}
	if !ok || raw == "" {
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.log.LogError(ctx, err, "failed to parse call history", logger.String("key", s.key))
		return []Entry{}
	}
	if len(entries) > s.max {
		entries = entries[:s.max]
	}
	s.entries = entries
	s.log.Debug(ctx, "call history loaded", logger.Int("entries", len(entries)))
	return s.copyLocked()
}

// Append добавляет запись в начало и обрезает историю до MaxItems
func (s *Store) Append(e Entry) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Entry, 0, len(s.entries)+1)
	next = append(next, e)
	next = append(next, s.entries...)
	if len(next) > s.max {
		next = next[:s.max]
	}
	s.entries = next

	if s.persist && len(s.entries) > 0 {
		s.saveLocked()
	}
	return s.copyLocked()
}

// Clear очищает историю и удаляет сохраненную запись
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	if !s.persist {
		return
	}
	if err := s.kv.Delete(s.key); err != nil {
		s.log.LogError(context.Background(), err, "failed to delete call history", logger.String("key", s.key))
	}
}

// Entries копия истории, новые записи первыми
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) saveLocked() {
	data, err := json.Marshal(s.entries)
	if err != nil {
		s.log.LogError(context.Background(), err, "failed to encode call history")
		return
	}
	if err := s.kv.Set(s.key, string(data)); err != nil {
		s.log.LogError(context.Background(), err, "failed to save call history", logger.String("key", s.key))
	}
}

func (s *Store) copyLocked() []Entry {
	if len(s.entries) == 0 {
		return []Entry{}
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
