// Package preview resolves cursor descriptors into cached static previews
// and animation frame sets, and drives mounted preview cards.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	cursorcache "github.com/wolfeidau/cursor-cache"
	"github.com/wolfeidau/cursor-cache/backend"
	"github.com/wolfeidau/cursor-cache/registry"
	"github.com/wolfeidau/cursor-cache/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	staticCacheName   = "static"
	animatedCacheName = "animated"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for the resolver and its registries.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithPreloadLimit caps concurrent resolutions during Preload. 0 means no limit.
func WithPreloadLimit(n int) Option {
	return func(r *Resolver) {
		r.preloadLimit = n
	}
}

// WithStaticRegistryOptions configures the static preview registry.
func WithStaticRegistryOptions(opts ...registry.Option) Option {
	return func(r *Resolver) {
		r.staticOpts = append(r.staticOpts, opts...)
	}
}

// WithAnimatedRegistryOptions configures the animated frame registry.
func WithAnimatedRegistryOptions(opts ...registry.Option) Option {
	return func(r *Resolver) {
		r.animatedOpts = append(r.animatedOpts, opts...)
	}
}

// Resolver turns descriptors into previews. Static previews and animated
// frame sets are cached in separate registries; concurrent requests for the
// same key share one backend call.
type Resolver struct {
	backend      backend.Backend
	logger       *slog.Logger
	preloadLimit int
	staticOpts   []registry.Option
	animatedOpts []registry.Option

	static   *registry.Registry[cursorcache.DataURL]
	animated *registry.Registry[*cursorcache.FrameSet]
}

// NewResolver creates a Resolver backed by b.
func NewResolver(b backend.Backend, opts ...Option) *Resolver {
	r := &Resolver{
		backend: b,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	staticOpts := append([]registry.Option{
		registry.WithName(staticCacheName),
		registry.WithLogger(r.logger),
	}, r.staticOpts...)
	animatedOpts := append([]registry.Option{
		registry.WithName(animatedCacheName),
		registry.WithLogger(r.logger),
	}, r.animatedOpts...)

	r.static = registry.New(cursorcache.DataURL.Size, staticOpts...)
	r.animated = registry.New((*cursorcache.FrameSet).Size, animatedOpts...)
	r.logger = r.logger.With("component", "resolver")
	return r
}

// Static returns the static preview registry.
func (r *Resolver) Static() *registry.Registry[cursorcache.DataURL] {
	return r.static
}

// Animated returns the animated frame set registry.
func (r *Resolver) Animated() *registry.Registry[*cursorcache.FrameSet] {
	return r.animated
}

// IsAnimated reports whether d is routed to the animated pipeline.
func (r *Resolver) IsAnimated(d cursorcache.Descriptor) bool {
	return d.IsAnimated()
}

// ResolveStatic returns the static preview for d. File cursors try a direct
// decode first and fall back to a preview render; system cursors use a
// single render call. Animated descriptors are rejected with
// ErrAnimatedCursor so that each key lives in exactly one registry.
func (r *Resolver) ResolveStatic(ctx context.Context, d cursorcache.Descriptor) (cursorcache.DataURL, error) {
	if d.IsZero() {
		return "", cursorcache.ErrInvalidDescriptor
	}
	if d.IsAnimated() {
		return "", fmt.Errorf("%s: %w", d.FilePath, cursorcache.ErrAnimatedCursor)
	}
	key := cursorcache.KeyFor(d)

	url, outcome, err := r.static.Do(ctx, key.String(), func(ctx context.Context) (cursorcache.DataURL, error) {
		if d.IsSystem() {
			return r.backend.RenderSystemCursorPreview(ctx, d.SystemName)
		}
		return r.decodeWithFallback(ctx, d.FilePath)
	})
	if err != nil {
		r.logFailure(key, outcome, err)
		return "", err
	}
	return url, nil
}

// ResolveAnimated returns the decoded frames of the animated cursor at path.
func (r *Resolver) ResolveAnimated(ctx context.Context, path string) (*cursorcache.FrameSet, error) {
	if path == "" {
		return nil, cursorcache.ErrInvalidDescriptor
	}
	key := cursorcache.KeyFor(cursorcache.FileCursor(path))

	fs, outcome, err := r.animated.Do(ctx, key.String(), func(ctx context.Context) (*cursorcache.FrameSet, error) {
		ani, err := r.backend.DecodeAnimatedCursor(ctx, path)
		if err != nil {
			return nil, err
		}
		fs := ani.FrameSet()
		if fs.Len() == 0 {
			return nil, fmt.Errorf("%s: %w", path, cursorcache.ErrEmptyAnimation)
		}
		return fs, nil
	})
	if err != nil {
		r.logFailure(key, outcome, err)
		return nil, err
	}
	return fs, nil
}

// ResolvePreview returns a single image for d from the registry d is routed
// to: the static preview, or the first frame of an animated cursor.
func (r *Resolver) ResolvePreview(ctx context.Context, d cursorcache.Descriptor) (cursorcache.DataURL, error) {
	if !d.IsAnimated() {
		return r.ResolveStatic(ctx, d)
	}
	fs, err := r.ResolveAnimated(ctx, d.FilePath)
	if err != nil {
		return "", err
	}
	return fs.Frames[0].Image, nil
}

// decodeWithFallback runs the primary decode and, when it fails, the
// preview render. Both causes are kept when both fail.
func (r *Resolver) decodeWithFallback(ctx context.Context, path string) (cursorcache.DataURL, error) {
	url, err := r.backend.DecodeFileAsImage(ctx, path)
	if err == nil {
		return url, nil
	}
	r.logger.Debug("decode failed, rendering preview instead", "path", path, "error", err)

	url, fallbackErr := r.backend.RenderCursorPreview(ctx, path)
	if fallbackErr == nil {
		return url, nil
	}
	return "", fmt.Errorf("%w for %s: %w", cursorcache.ErrNoPreview, path, errors.Join(err, fallbackErr))
}

// logFailure logs a failed resolution once, from the caller that started it.
func (r *Resolver) logFailure(key cursorcache.Key, outcome registry.Outcome, err error) {
	if outcome != registry.OutcomeMiss || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	r.logger.Warn("preview resolution failed", "key", key, "error", err)
}

// Cached reports whether d already has a cached preview in the registry it
// is routed to.
func (r *Resolver) Cached(d cursorcache.Descriptor) bool {
	key := cursorcache.KeyFor(d).String()
	if r.IsAnimated(d) {
		_, ok := r.animated.Get(key)
		return ok
	}
	_, ok := r.static.Get(key)
	return ok
}

// Pending reports whether a resolution for d is in flight.
func (r *Resolver) Pending(d cursorcache.Descriptor) bool {
	key := cursorcache.KeyFor(d).String()
	if r.IsAnimated(d) {
		return r.animated.Pending(key)
	}
	return r.static.Pending(key)
}

// PreloadStats summarises one preload batch.
type PreloadStats struct {
	Loaded  int `json:"loaded"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Preload warms the caches for descs. Descriptors that are cached, pending
// or repeated in the batch are skipped; the rest resolve concurrently. It
// waits for every resolution to settle. Individual failures are counted and
// never abort the batch.
func (r *Resolver) Preload(ctx context.Context, descs []cursorcache.Descriptor) PreloadStats {
	start := time.Now()

	var g errgroup.Group
	if r.preloadLimit > 0 {
		g.SetLimit(r.preloadLimit)
	}

	var loaded, failed atomic.Int64
	skipped := 0
	seen := make(map[cursorcache.Key]struct{}, len(descs))

	for _, d := range descs {
		if d.IsZero() {
			skipped++
			continue
		}
		key := cursorcache.KeyFor(d)
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}
		seen[key] = struct{}{}

		if r.Cached(d) || r.Pending(d) {
			skipped++
			continue
		}

		g.Go(func() error {
			var err error
			if r.IsAnimated(d) {
				_, err = r.ResolveAnimated(ctx, d.FilePath)
			} else {
				_, err = r.ResolveStatic(ctx, d)
			}
			if err != nil {
				failed.Add(1)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	stats := PreloadStats{
		Loaded:  int(loaded.Load()),
		Failed:  int(failed.Load()),
		Skipped: skipped,
	}
	duration := time.Since(start)
	telemetry.RecordPreloadRun(ctx, stats.Loaded, stats.Failed, stats.Skipped, duration)
	r.logger.Info("preload complete",
		"loaded", stats.Loaded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"duration", duration,
	)
	return stats
}

// PreloadAsync runs Preload in the background on a context detached from
// ctx. The returned channel receives the batch summary and is then closed;
// callers are free to ignore it.
func (r *Resolver) PreloadAsync(ctx context.Context, descs []cursorcache.Descriptor) <-chan PreloadStats {
	done := make(chan PreloadStats, 1)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		done <- r.Preload(detached, descs)
	}()
	return done
}

// Stats is a snapshot of both registries.
type Stats struct {
	Static   registry.Stats `json:"static"`
	Animated registry.Stats `json:"animated"`
}

// Stats returns counts for the static and animated registries.
func (r *Resolver) Stats() Stats {
	return Stats{
		Static:   r.static.Stats(),
		Animated: r.animated.Stats(),
	}
}
