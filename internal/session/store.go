// Package session keeps uploaded documents between upload and dispatch.
package session

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/foxzi/pagesend/internal/metrics"
)

const (
	DefaultMaxSessions = 64
	DefaultTTL         = time.Hour
)

// Store is a bounded, expiring map from upload id to document bytes.
// Once full, the least recently used session is dropped.
type Store struct {
	cache *expirable.LRU[string, []byte]
}

// NewStore creates a store holding at most size sessions for ttl each
func NewStore(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	onEvict := func(_ string, _ []byte) {
		metrics.IncUploadSessionEvicted()
	}
	return &Store{cache: expirable.NewLRU[string, []byte](size, onEvict, ttl)}
}

// Put stores a private copy of data under a new upload id
func (s *Store) Put(data []byte) string {
	id := uuid.NewString()
	s.cache.Add(id, bytes.Clone(data))
	metrics.SetUploadSessions(s.cache.Len())
	return id
}

// Get returns the document of a live session
func (s *Store) Get(id string) ([]byte, bool) {
	return s.cache.Get(id)
}

// Delete drops a session
func (s *Store) Delete(id string) {
	s.cache.Remove(id)
	metrics.SetUploadSessions(s.cache.Len())
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	return s.cache.Len()
}
