package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultJanitorInterval is how often RunJanitor frees expired entries.
const DefaultJanitorInterval = 30 * time.Second

// MemoryStore is a process-local Store used when Redis is not configured and
// in tests. Plain keys live in a ttlcache. Expired entries are hidden on read
// and freed by RunJanitor.
//
// Hash fields never expire unless WithHashTTL is set. A replica's hashes are
// invisible to other replicas, so an invalidation on one replica reaches the
// others only through that TTL.
type MemoryStore struct {
	values  *ttlcache.Cache[string, []byte]
	hashTTL time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	hashes map[string]map[string]hashField
}

type hashField struct {
	value     []byte
	expiresAt time.Time
}

func (f hashField) expired(now time.Time) bool {
	return !f.expiresAt.IsZero() && !now.Before(f.expiresAt)
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithHashTTL expires each hash field ttl after its last write.
func WithHashTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.hashTTL = ttl
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		values: ttlcache.New[string, []byte](
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
		now:    time.Now,
		hashes: make(map[string]map[string]hashField),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunJanitor frees expired keys and hash fields every interval until ctx is
// done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.DeleteExpired()
		}
	}
}

// DeleteExpired frees every expired key and hash field.
func (s *MemoryStore) DeleteExpired() {
	s.values.DeleteExpired()

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, h := range s.hashes {
		for field, f := range h {
			if f.expired(now) {
				delete(h, field)
			}
		}
		if len(h) == 0 {
			delete(s.hashes, key)
		}
	}
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := s.values.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	return clone(item.Value()), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	s.values.Set(key, clone(value), ttl)
	return nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.hashes[key][field]
	if !ok || f.expired(s.now()) {
		return nil, false, nil
	}
	return clone(f.value), true, nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hsetLocked(key, field, value)
	return nil
}

func (s *MemoryStore) hsetLocked(key, field string, value []byte) {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]hashField)
		s.hashes[key] = h
	}
	f := hashField{value: clone(value)}
	if s.hashTTL > 0 {
		f.expiresAt = s.now().Add(s.hashTTL)
	}
	h[field] = f
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make(map[string][]byte, len(s.hashes[key]))
	for name, f := range s.hashes[key] {
		if !f.expired(now) {
			out[name] = clone(f.value)
		}
	}
	return out, nil
}

func (s *MemoryStore) HDel(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(s.hashes, key)
	}
	return nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.values.Delete(k)
		delete(s.hashes, k)
	}
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	var out []string
	for k, item := range s.values.Items() {
		if !item.IsExpired() && globMatch(pattern, k) {
			out = append(out, k)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	for k, h := range s.hashes {
		if !globMatch(pattern, k) {
			continue
		}
		for _, f := range h {
			if !f.expired(now) {
				out = append(out, k)
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) SetBatch(ctx context.Context, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if w.Field != "" {
			s.hsetLocked(w.Key, w.Field, w.Value)
			continue
		}
		ttl := w.TTL
		if ttl <= 0 {
			ttl = ttlcache.NoTTL
		}
		s.values.Set(w.Key, clone(w.Value), ttl)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
