// Package keypool implements a thread-safe, rotating pool of provider
// credentials with classified, permanent eviction.
package keypool

import (
	"math/rand"
	"sync"
)

// ConfigError is returned by New when the input credential list is empty.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return "keypool: " + e.Reason }

// PoolExhausted is returned by Next when the pool has no credentials left.
type PoolExhausted struct{}

func (e *PoolExhausted) Error() string { return "keypool: exhausted" }

// Pool is a round-robin rotating set of credentials. The zero value is not
// usable; construct with New. All methods are safe for concurrent use — the
// fan-out executors call Next concurrently from several worker goroutines.
type Pool struct {
	mu        sync.Mutex
	available []string
	cursor    int
	onEvict   func(key string)
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithEvictionObserver registers a callback invoked every time Evict
// actually removes a key (never for the idempotent no-op case). Used to
// feed internal/metrics without making this package depend on it.
func WithEvictionObserver(f func(key string)) Option {
	return func(p *Pool) { p.onEvict = f }
}

// New copies and randomly permutes keys (unbiased Fisher-Yates shuffle), so
// that request-to-request bias in which key goes first is distributed.
// Fails with ConfigError if keys is empty.
func New(keys []string, opts ...Option) (*Pool, error) {
	if len(keys) == 0 {
		return nil, &ConfigError{Reason: "no credentials supplied"}
	}

	shuffled := make([]string, len(keys))
	copy(shuffled, keys)
	rand.Shuffle(len(shuffled), func(i, j int) { // #nosec G404 -- shuffle bias tolerance, not a security boundary
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	p := &Pool{available: shuffled}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Next returns the credential at the cursor and advances the cursor modulo
// the current length. Fails with PoolExhausted once the pool is empty.
func (p *Pool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.available) == 0 {
		return "", &PoolExhausted{}
	}

	key := p.available[p.cursor%len(p.available)]
	p.cursor = (p.cursor + 1) % len(p.available)
	return key, nil
}

// Evict removes the first occurrence of key, if present, and clamps the
// cursor back into range. Idempotent for keys that are already absent.
// Eviction is permanent for the lifetime of the Pool: a request-scoped Pool
// is discarded with the request, so this never needs to be reversed.
func (p *Pool) Evict(key string) {
	p.mu.Lock()
	removed := false
	for i, k := range p.available {
		if k == key {
			p.available = append(p.available[:i], p.available[i+1:]...)
			removed = true
			break
		}
	}

	if len(p.available) == 0 {
		p.cursor = 0
	} else {
		p.cursor %= len(p.available)
	}
	onEvict := p.onEvict
	p.mu.Unlock()

	if removed && onEvict != nil {
		onEvict(key)
	}
}

// Count returns the number of credentials currently available.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}
