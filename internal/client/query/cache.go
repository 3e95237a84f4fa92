// Package query is a keyed cache for fetched values with staleness,
// explicit invalidation and coalesced fetches.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultStaleTime is how long a fetched value counts as fresh.
const DefaultStaleTime = 5 * time.Minute

const defaultSize = 128

// Fetcher loads the current value for a key.
type Fetcher[V any] func(ctx context.Context) (V, error)

// State describes a cached entry.
type State int

const (
	// StateMissing means nothing was ever stored for the key.
	StateMissing State = iota
	// StateFresh values are served without refetching.
	StateFresh
	// StateStale values are served and refreshed in the background.
	StateStale
	// StateInvalidated values are refetched before the next read returns.
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateInvalidated:
		return "invalidated"
	default:
		return "missing"
	}
}

type entry[V any] struct {
	value       V
	fetchedAt   time.Time
	invalidated bool
	// generation increases on every invalidation; a fetch that started
	// under an older generation cannot make the entry fresh again.
	generation uint64
}

// Options configures a Cache.
type Options struct {
	StaleTime time.Duration
	Size      int
	// OnBackgroundError receives errors from background refreshes.
	OnBackgroundError func(key string, err error)
	// Now overrides the clock.
	Now func() time.Time
}

// Cache maps query keys to fetched values.
type Cache[V any] struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *entry[V]]
	group   singleflight.Group
	wg      sync.WaitGroup
	opts    Options
}

// New creates a Cache.
func New[V any](opts Options) (*Cache[V], error) {
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.Size <= 0 {
		opts.Size = defaultSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	entries, err := lru.New[string, *entry[V]](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("create query store: %w", err)
	}
	return &Cache[V]{entries: entries, opts: opts}, nil
}

// Get returns the cached value and its state without fetching.
func (c *Cache[V]) Get(key string) (V, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok {
		var zero V
		return zero, StateMissing
	}
	return e.value, c.stateOf(e)
}

// Set stores a freshly fetched value.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := uint64(0)
	if e, ok := c.entries.Peek(key); ok {
		gen = e.generation
	}
	c.entries.Add(key, &entry[V]{value: value, fetchedAt: c.opts.Now(), generation: gen})
}

// Invalidate marks the key so the next read refetches. The last value is
// kept and still visible through Get.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries.Peek(key); ok {
		e.invalidated = true
		e.generation++
		return
	}
	c.entries.Add(key, &entry[V]{invalidated: true, generation: 1})
}

// Reset drops the cached value and invalidates the key. Fetches started
// before the reset do not store their result.
func (c *Cache[V]) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := uint64(1)
	if e, ok := c.entries.Peek(key); ok {
		gen = e.generation + 1
	}
	c.entries.Add(key, &entry[V]{invalidated: true, generation: gen})
}

// GetOrFetch returns the value for key. Fresh values are returned as is.
// Stale values are returned immediately and refreshed in the background.
// Missing or invalidated values are fetched before returning; concurrent
// callers share one fetch.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, fetch Fetcher[V]) (V, error) {
	c.mu.Lock()
	e, ok := c.entries.Get(key)
	state := StateMissing
	var gen uint64
	if ok {
		state = c.stateOf(e)
		gen = e.generation
	}
	c.mu.Unlock()

	switch state {
	case StateFresh:
		return e.value, nil
	case StateStale:
		c.refreshInBackground(ctx, key, gen, fetch)
		return e.value, nil
	default:
		return c.fetch(ctx, key, gen, fetch)
	}
}

// Wait blocks until background refreshes started so far have finished.
func (c *Cache[V]) Wait() {
	c.wg.Wait()
}

func (c *Cache[V]) stateOf(e *entry[V]) State {
	switch {
	case e.invalidated:
		return StateInvalidated
	case c.opts.Now().Sub(e.fetchedAt) >= c.opts.StaleTime:
		return StateStale
	default:
		return StateFresh
	}
}

func (c *Cache[V]) fetch(ctx context.Context, key string, gen uint64, fetch Fetcher[V]) (V, error) {
	v, err, _ := c.group.Do(fmt.Sprintf("%s#%d", key, gen), func() (any, error) {
		value, err := fetch(ctx)
		if err != nil {
			return value, err
		}
		c.store(key, gen, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *Cache[V]) refreshInBackground(ctx context.Context, key string, gen uint64, fetch Fetcher[V]) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.fetch(context.WithoutCancel(ctx), key, gen, fetch); err != nil && c.opts.OnBackgroundError != nil {
			c.opts.OnBackgroundError(key, err)
		}
	}()
}

// store saves a fetch result unless the key was invalidated after the
// fetch started.
func (c *Cache[V]) store(key string, gen uint64, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries.Peek(key); ok && e.generation != gen {
		return
	}
	c.entries.Add(key, &entry[V]{value: value, fetchedAt: c.opts.Now(), generation: gen})
}
