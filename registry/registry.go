// Package registry provides a keyed in-memory cache combined with a
// singleflight-based in-flight registry. When multiple callers ask for the
// same uncached key, only one resolution runs and every caller observes its
// result.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfeidau/cursor-cache/telemetry"
	"golang.org/x/sync/singleflight"
)

// ErrRecentFailure is returned while a remembered failure is still within its
// TTL. It wraps the original error.
var ErrRecentFailure = errors.New("registry: recent failure")

// Outcome describes how a Do call was served.
type Outcome string

const (
	// OutcomeHit means the value was already cached.
	OutcomeHit Outcome = "hit"
	// OutcomeMiss means this caller started the resolution.
	OutcomeMiss Outcome = "miss"
	// OutcomeShared means this caller joined a resolution already in flight.
	OutcomeShared Outcome = "shared"
)

func (o Outcome) cacheResult() telemetry.CacheResult {
	switch o {
	case OutcomeHit:
		return telemetry.CacheHit
	case OutcomeShared:
		return telemetry.CacheShared
	default:
		return telemetry.CacheMiss
	}
}

// Func produces the value for a key. The context passed to Func is detached
// from any single caller so that one caller going away does not cancel the
// resolution for other waiters.
type Func[V any] func(ctx context.Context) (V, error)

// Policy decides which cached keys to drop when a capacity bound is exceeded.
// store/s3fifo.Manager satisfies it.
type Policy interface {
	Admit(ctx context.Context, key string, size int64) []string
	Access(key string)
	Remove(key string)
}

type options struct {
	name       string
	logger     *slog.Logger
	policy     Policy
	failureTTL time.Duration
	now        func() time.Time
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger for the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName sets the name used in log lines and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithPolicy bounds the cache with an eviction policy. nil (the default)
// keeps every value for the life of the registry.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithFailureTTL remembers failed resolutions for ttl, during which Do
// returns ErrRecentFailure without running the work again. 0 disables it.
func WithFailureTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.failureTTL = ttl
	}
}

// WithClock overrides the time source used for failure expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

type failure struct {
	err   error
	until time.Time
}

// Registry caches values by key and deduplicates concurrent resolutions of
// the same key using singleflight. It uses DoChan so each caller can respect
// its own context deadline without cancelling the in-flight work for others.
//
// Lock order: r.mu is always taken before the singleflight group's lock and
// before the policy's lock.
type Registry[V any] struct {
	name       string
	logger     *slog.Logger
	policy     Policy
	failureTTL time.Duration
	now        func() time.Time
	sizer      func(V) int64

	group singleflight.Group

	mu       sync.Mutex
	values   map[string]V
	pending  map[string]struct{}
	failures map[string]failure

	hits      atomic.Uint64
	misses    atomic.Uint64
	shared    atomic.Uint64
	evictions atomic.Uint64
}

// New creates an empty Registry. sizer reports the cost of a value for the
// eviction policy; it may be nil when no policy is configured, in which case
// every value costs 1.
func New[V any](sizer func(V) int64, opts ...Option) *Registry[V] {
	o := options{
		name:   "default",
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if sizer == nil {
		sizer = func(V) int64 { return 1 }
	}
	return &Registry[V]{
		name:       o.name,
		logger:     o.logger.With("component", "registry", "cache", o.name),
		policy:     o.policy,
		failureTTL: o.failureTTL,
		now:        o.now,
		sizer:      sizer,
		values:     make(map[string]V),
		pending:    make(map[string]struct{}),
		failures:   make(map[string]failure),
	}
}

// Name returns the registry name.
func (r *Registry[V]) Name() string {
	return r.name
}

// Get returns the cached value for key without waiting on any in-flight work.
func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.Lock()
	v, ok := r.values[key]
	r.mu.Unlock()

	if ok && r.policy != nil {
		r.policy.Access(key)
	}
	return v, ok
}

// Set stores v under key, replacing any previous value.
func (r *Registry[V]) Set(ctx context.Context, key string, v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeLocked(ctx, key, v)
}

// Pending reports whether a resolution for key is currently in flight.
func (r *Registry[V]) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key]
	return ok
}

// Delete drops the cached value and any remembered failure for key.
func (r *Registry[V]) Delete(key string) {
	r.mu.Lock()
	delete(r.values, key)
	delete(r.failures, key)
	r.mu.Unlock()

	if r.policy != nil {
		r.policy.Remove(key)
	}
}

// Len returns the number of cached values.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Keys returns the cached keys in sorted order.
func (r *Registry[V]) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	slices.Sort(keys)
	return keys
}

// Stats is a point-in-time view of a registry.
type Stats struct {
	Name      string `json:"name"`
	Entries   int    `json:"entries"`
	Pending   int    `json:"pending"`
	Failures  int    `json:"failures"`
	Bytes     int64  `json:"bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Shared    uint64 `json:"shared"`
	Evictions uint64 `json:"evictions"`
}

// Stats returns counters and sizes for the registry.
func (r *Registry[V]) Stats() Stats {
	r.mu.Lock()
	s := Stats{
		Name:     r.name,
		Entries:  len(r.values),
		Pending:  len(r.pending),
		Failures: len(r.failures),
	}
	for _, v := range r.values {
		s.Bytes += r.sizer(v)
	}
	r.mu.Unlock()

	s.Hits = r.hits.Load()
	s.Misses = r.misses.Load()
	s.Shared = r.shared.Load()
	s.Evictions = r.evictions.Load()
	return s
}

// Do returns the cached value for key, or joins or starts the resolution of
// key using fn. The cache check, the pending registration and the flight
// start happen atomically, so at most one fn runs per key at a time.
//
// On success the value is cached before any waiter observes it. On failure
// nothing is cached (unless a failure TTL is configured) and the next call
// retries from scratch.
//
// If the caller's context expires before the resolution completes, Do returns
// the context error but the in-flight work continues for other waiters.
func (r *Registry[V]) Do(ctx context.Context, key string, fn Func[V]) (V, Outcome, error) {
	var zero V

	r.mu.Lock()
	if v, ok := r.values[key]; ok {
		r.mu.Unlock()
		if r.policy != nil {
			r.policy.Access(key)
		}
		r.hits.Add(1)
		telemetry.RecordLookup(ctx, r.name, telemetry.CacheHit)
		return v, OutcomeHit, nil
	}

	if f, ok := r.failures[key]; ok {
		if r.now().Before(f.until) {
			r.mu.Unlock()
			telemetry.RecordLookup(ctx, r.name, telemetry.CacheHit)
			return zero, OutcomeHit, fmt.Errorf("%w: %w", ErrRecentFailure, f.err)
		}
		delete(r.failures, key)
	}

	outcome := OutcomeMiss
	if _, ok := r.pending[key]; ok {
		outcome = OutcomeShared
	} else {
		r.pending[key] = struct{}{}
		r.logger.Debug("resolution started", "key", key)
	}

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.run(detached, key, fn)
	})
	pending := len(r.pending)
	entries := len(r.values)
	r.mu.Unlock()

	if outcome == OutcomeShared {
		r.shared.Add(1)
	} else {
		r.misses.Add(1)
	}
	telemetry.RecordLookup(ctx, r.name, outcome.cacheResult())
	telemetry.UpdateCacheState(ctx, r.name, entries, pending)

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, outcome, res.Err
		}
		return res.Val.(V), outcome, nil
	case <-ctx.Done():
		return zero, outcome, ctx.Err()
	}
}

// run executes fn for the flight and settles the registry before the
// singleflight group releases the result to waiters.
func (r *Registry[V]) run(ctx context.Context, key string, fn Func[V]) (v V, err error) {
	start := time.Now()
	completed := false

	defer func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.pending, key)
		r.group.Forget(key)

		duration := time.Since(start)
		switch {
		case !completed:
			r.logger.Error("resolution panicked", "key", key)
			telemetry.RecordResolve(ctx, r.name, "panic", duration)
		case err != nil:
			if r.failureTTL > 0 {
				r.failures[key] = failure{err: err, until: r.now().Add(r.failureTTL)}
			}
			r.logger.Debug("resolution failed", "key", key, "error", err, "duration", duration)
			telemetry.RecordResolve(ctx, r.name, "error", duration)
		default:
			r.storeLocked(ctx, key, v)
			r.logger.Debug("resolution completed", "key", key, "duration", duration)
			telemetry.RecordResolve(ctx, r.name, "success", duration)
		}
		telemetry.UpdateCacheState(ctx, r.name, len(r.values), len(r.pending))
	}()

	v, err = fn(ctx)
	completed = true
	return v, err
}

// storeLocked writes the value and applies the eviction policy. Must hold r.mu.
func (r *Registry[V]) storeLocked(ctx context.Context, key string, v V) {
	r.values[key] = v
	delete(r.failures, key)

	if r.policy == nil {
		return
	}
	for _, victim := range r.policy.Admit(ctx, key, r.sizer(v)) {
		if _, ok := r.values[victim]; ok {
			delete(r.values, victim)
			r.evictions.Add(1)
			r.logger.Debug("evicted", "key", victim)
		}
	}
}
