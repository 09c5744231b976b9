package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/cloudblog-api/pkg/config"
)

// LocalStorage is a string key/value store with browser localStorage semantics.
// GetItem reports ok=false for a missing key.
type LocalStorage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// StorageDeps carries the shared clients a storage backend may need.
type StorageDeps struct {
	Redis *redis.Client
	DB    *sqlx.DB
}

// OpenLocalStorage selects a backend by driver name.
func OpenLocalStorage(ctx context.Context, cfg config.StorageConfig, deps StorageDeps) (LocalStorage, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return NewMemoryStorage(), nil
	case config.StorageRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("storage driver %q requires a redis connection", cfg.Driver)
		}
		return NewRedisStorage(deps.Redis, ""), nil
	case config.StoragePostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("storage driver %q requires a database connection", cfg.Driver)
		}
		store := NewPostgresStorage(deps.DB)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageFile, "":
		return NewFileStorage(cfg.File)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// MemoryStorage keeps items in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string]string)}
}

func (m *MemoryStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryStorage) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryStorage) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
