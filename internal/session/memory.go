package session

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps consent data in process. Concurrent writers to the same
// key are resolved last writer wins.
type MemoryStore struct {
	c *gocache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{c: gocache.New(ttl, time.Minute)}
}

func (m *MemoryStore) Put(_ context.Context, key string, data *ConsentData) error {
	stored := *data
	m.c.SetDefault(key, &stored)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*ConsentData, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	data := *(v.(*ConsentData))
	return &data, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}
