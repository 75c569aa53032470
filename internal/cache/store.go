// Package cache keeps flag snapshots and decision results close to the
// decision path.
//
// The cache is never authoritative. Every read failure is reported to callers
// as a miss so they fall back to the relational store.
package cache

import (
	"context"
	"strings"
	"time"
)

// Write is one entry of a batched write. A non-empty Field targets a hash
// field of Key; TTL applies to plain keys only.
type Write struct {
	Key   string
	Field string
	Value []byte
	TTL   time.Duration
}

// Store is the key/value surface the flag cache needs. RedisStore and
// MemoryStore implement it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	HGet(ctx context.Context, key, field string) ([]byte, bool, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HDel(ctx context.Context, key string, fields ...string) error
	Del(ctx context.Context, keys ...string) error
	// Keys lists keys matching a Redis glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// SetBatch applies all writes in one round trip where the backend allows.
	SetBatch(ctx context.Context, writes []Write) error
	Ping(ctx context.Context) error
}

// EscapeGlob quotes the glob metacharacters in s so it matches literally.
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// globMatch implements the subset of Redis glob syntax that EscapeGlob and the
// flag cache produce: '*', '?', and backslash escapes.
func globMatch(pattern, s string) bool {
	px, sx := 0, 0
	nextPx, nextSx := -1, -1
	for px < len(pattern) || sx < len(s) {
		if px < len(pattern) {
			c := pattern[px]
			switch c {
			case '*':
				nextPx, nextSx = px, sx+1
				px++
				continue
			case '?':
				if sx < len(s) {
					px++
					sx++
					continue
				}
			case '\\':
				if px+1 < len(pattern) && sx < len(s) && pattern[px+1] == s[sx] {
					px += 2
					sx++
					continue
				}
			default:
				if sx < len(s) && s[sx] == c {
					px++
					sx++
					continue
				}
			}
		}
		if nextSx > 0 && nextSx <= len(s) {
			px, sx = nextPx, nextSx
			continue
		}
		return false
	}
	return true
}
