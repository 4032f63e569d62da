// Package cachestore implements domain.CacheStore on process memory, Redis and
// SQLite.
package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

// MemStore keeps entries in a bounded LRU with a fixed TTL.
type MemStore struct {
	data *expirable.LRU[string, string]
}

var _ domain.CacheStore = (*MemStore)(nil)

// NewMemStore returns a store holding at most capacity entries for ttl each.
func NewMemStore(capacity int, ttl time.Duration) *MemStore {
	return &MemStore{data: expirable.NewLRU[string, string](capacity, nil, ttl)}
}

func (s *MemStore) Get(ctx context.Context, name, key string) (string, error) {
	v, _ := s.data.Get(name + "/" + key)
	return v, nil
}

func (s *MemStore) Set(ctx context.Context, name, key string, val string) error {
	s.data.Add(name+"/"+key, val)
	return nil
}

func (s *MemStore) Purge(ctx context.Context, name, key string) error {
	s.data.Remove(name + "/" + key)
	return nil
}

// Len returns the number of live entries.
func (s *MemStore) Len() int {
	return s.data.Len()
}
