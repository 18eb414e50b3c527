package repository

import (
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time
}

// MemoryKeyValueRepository хранилище в памяти, используется в тестах и при DATABASE_URL=":memory:"
type MemoryKeyValueRepository struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryKeyValueRepository() *MemoryKeyValueRepository {
	return &MemoryKeyValueRepository{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (r *MemoryKeyValueRepository) Get(key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[key]
	if !ok {
		return "", false, nil
	}
	if !item.expiresAt.IsZero() && r.now().After(item.expiresAt) {
		delete(r.items, key)
		return "", false, nil
	}
	return item.value, true, nil
}

func (r *MemoryKeyValueRepository) Set(key, value string, ttl time.Duration) error {
	return r.SetMany(map[string]string{key: value}, ttl)
}

func (r *MemoryKeyValueRepository) SetMany(values map[string]string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = r.now().Add(ttl)
	}
	for key, value := range values {
		r.items[key] = memoryItem{value: value, expiresAt: expiresAt}
	}
	return nil
}

func (r *MemoryKeyValueRepository) Remove(key string) error {
	return r.RemoveMany(key)
}

func (r *MemoryKeyValueRepository) RemoveMany(keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range keys {
		delete(r.items, key)
	}
	return nil
}

func (r *MemoryKeyValueRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = make(map[string]memoryItem)
	return nil
}

// Len количество записей, включая просроченные
func (r *MemoryKeyValueRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
