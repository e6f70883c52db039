package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/cursor-cache/store/s3fifo"
)

func newStringRegistry(opts ...Option) *Registry[string] {
	return New(func(v string) int64 { return int64(len(v)) }, opts...)
}

func TestDo_SingleCall(t *testing.T) {
	r := newStringRegistry()

	v, outcome, err := r.Do(context.Background(), "key1", func(ctx context.Context) (string, error) {
		return "hello", nil
	})

	require.NoError(t, err)
	require.Equal(t, OutcomeMiss, outcome)
	require.Equal(t, "hello", v)

	cached, ok := r.Get("key1")
	require.True(t, ok)
	require.Equal(t, "hello", cached)
	require.False(t, r.Pending("key1"))
}

func TestDo_CacheHitSkipsWork(t *testing.T) {
	r := newStringRegistry()
	r.Set(context.Background(), "key1", "cached")

	v, outcome, err := r.Do(context.Background(), "key1", func(ctx context.Context) (string, error) {
		t.Fatal("should not be called - value already cached")
		return "", nil
	})

	require.NoError(t, err)
	require.Equal(t, OutcomeHit, outcome)
	require.Equal(t, "cached", v)
}

func TestDo_ConcurrentDeduplication(t *testing.T) {
	r := newStringRegistry()

	var callCount atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]string, 10)
	outcomes := make([]Outcome, 10)
	errs := make([]error, 10)

	for i := range 10 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], outcomes[idx], errs[idx] = r.Do(context.Background(), "shared-key", func(ctx context.Context) (string, error) {
				callCount.Add(1)
				<-release
				return "data", nil
			})
		}(i)
	}

	require.Eventually(t, func() bool { return r.Pending("shared-key") }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), callCount.Load(), "resolution should run exactly once")

	var misses int
	for i := range 10 {
		require.NoError(t, errs[i])
		require.Equal(t, "data", results[i])
		if outcomes[i] == OutcomeMiss {
			misses++
		}
	}
	require.Equal(t, 1, misses, "exactly one caller starts the flight")
	require.Equal(t, 1, r.Len())
	require.False(t, r.Pending("shared-key"))
}

func TestDo_CallerTimeout(t *testing.T) {
	r := newStringRegistry()

	var completed atomic.Bool
	started := make(chan struct{})

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer shortCancel()

	var slowWg sync.WaitGroup
	var slowErr error
	slowWg.Add(1)
	go func() {
		defer slowWg.Done()
		_, _, slowErr = r.Do(shortCtx, "timeout-key", func(ctx context.Context) (string, error) {
			close(started)
			time.Sleep(200 * time.Millisecond)
			// The work context is detached from the caller that started it.
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			completed.Store(true)
			return "slow", nil
		})
	}()

	<-started

	longCtx, longCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer longCancel()

	v, outcome, err := r.Do(longCtx, "timeout-key", func(ctx context.Context) (string, error) {
		t.Fatal("should not be called - resolution already in flight")
		return "", nil
	})

	require.NoError(t, err)
	require.Equal(t, OutcomeShared, outcome)
	require.Equal(t, "slow", v)
	require.True(t, completed.Load())

	slowWg.Wait()
	require.ErrorIs(t, slowErr, context.DeadlineExceeded)

	cached, ok := r.Get("timeout-key")
	require.True(t, ok, "abandoned resolution still fills the cache")
	require.Equal(t, "slow", cached)
}

func TestDo_ErrorIsNotCached(t *testing.T) {
	r := newStringRegistry()

	expectedErr := errors.New("decode failed")
	var callCount atomic.Int32

	_, _, err := r.Do(context.Background(), "retry-key", func(ctx context.Context) (string, error) {
		callCount.Add(1)
		return "", expectedErr
	})
	require.ErrorIs(t, err, expectedErr)
	require.False(t, r.Pending("retry-key"))

	_, ok := r.Get("retry-key")
	require.False(t, ok)

	v, outcome, err := r.Do(context.Background(), "retry-key", func(ctx context.Context) (string, error) {
		callCount.Add(1)
		return "second", nil
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeMiss, outcome, "a failed flight does not leave a joinable entry")
	require.Equal(t, "second", v)
	require.Equal(t, int32(2), callCount.Load())
}

func TestDo_ErrorSharedByWaiters(t *testing.T) {
	r := newStringRegistry()

	expectedErr := errors.New("decode failed")
	release := make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range 5 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, errs[idx] = r.Do(context.Background(), "error-key", func(ctx context.Context) (string, error) {
				<-release
				return "", expectedErr
			})
		}(i)
	}

	require.Eventually(t, func() bool { return r.Pending("error-key") }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range 5 {
		require.ErrorIs(t, errs[i], expectedErr)
	}
}

func TestDo_DifferentKeys(t *testing.T) {
	r := newStringRegistry()

	var callCount atomic.Int32
	errs := make([]error, 5)
	var wg sync.WaitGroup

	for i := range 5 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			key := "key-" + string(rune('a'+idx))
			_, _, errs[idx] = r.Do(context.Background(), key, func(ctx context.Context) (string, error) {
				callCount.Add(1)
				return key, nil
			})
		}(i)
	}

	wg.Wait()

	for i := range 5 {
		require.NoError(t, errs[i])
	}
	require.Equal(t, int32(5), callCount.Load(), "each key should trigger its own resolution")
	require.Equal(t, []string{"key-a", "key-b", "key-c", "key-d", "key-e"}, r.Keys())
}

func TestSet_LastWriteWins(t *testing.T) {
	r := newStringRegistry()
	ctx := context.Background()

	r.Set(ctx, "k", "one")
	r.Set(ctx, "k", "two")
	r.Set(ctx, "k", "two")

	v, ok := r.Get("k")
	require.True(t, ok)
	require.Equal(t, "two", v)
	require.Equal(t, 1, r.Len())

	r.Delete("k")
	_, ok = r.Get("k")
	require.False(t, ok)
}

func TestFailureTTL(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	r := newStringRegistry(WithFailureTTL(time.Minute), WithClock(clock))

	expectedErr := errors.New("no such cursor")
	var callCount atomic.Int32
	fail := func(ctx context.Context) (string, error) {
		callCount.Add(1)
		return "", expectedErr
	}

	_, _, err := r.Do(context.Background(), "k", fail)
	require.ErrorIs(t, err, expectedErr)

	_, outcome, err := r.Do(context.Background(), "k", fail)
	require.ErrorIs(t, err, ErrRecentFailure)
	require.ErrorIs(t, err, expectedErr)
	require.Equal(t, OutcomeHit, outcome)
	require.Equal(t, int32(1), callCount.Load())

	now = now.Add(2 * time.Minute)

	_, outcome, err = r.Do(context.Background(), "k", fail)
	require.ErrorIs(t, err, expectedErr)
	require.NotErrorIs(t, err, ErrRecentFailure)
	require.Equal(t, OutcomeMiss, outcome)
	require.Equal(t, int32(2), callCount.Load())
}

func TestWithPolicy_Evicts(t *testing.T) {
	policy := s3fifo.NewManager(s3fifo.Config{Name: "test", MaxEntries: 2})
	r := newStringRegistry(WithPolicy(policy), WithName("test"))
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d"} {
		_, _, err := r.Do(ctx, k, func(ctx context.Context) (string, error) { return k, nil })
		require.NoError(t, err)
	}

	require.LessOrEqual(t, r.Len(), 2)
	stats := r.Stats()
	require.Equal(t, "test", stats.Name)
	require.GreaterOrEqual(t, stats.Evictions, uint64(2))
	require.Equal(t, uint64(4), stats.Misses)
}

func TestStats(t *testing.T) {
	r := newStringRegistry(WithName("static"))
	ctx := context.Background()

	_, _, err := r.Do(ctx, "a", func(ctx context.Context) (string, error) { return "abcd", nil })
	require.NoError(t, err)
	_, _, err = r.Do(ctx, "a", func(ctx context.Context) (string, error) { return "", nil })
	require.NoError(t, err)

	stats := r.Stats()
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, 0, stats.Pending)
	require.Equal(t, int64(4), stats.Bytes)
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}
