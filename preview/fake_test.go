package preview

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	cursorcache "github.com/wolfeidau/cursor-cache"
	"github.com/wolfeidau/cursor-cache/backend"
)

// fakeBackend records calls and returns canned results. When gate is set,
// every call blocks until it is closed.
type fakeBackend struct {
	gate chan struct{}

	decodeCalls   atomic.Int32
	renderCalls   atomic.Int32
	animatedCalls atomic.Int32
	systemCalls   atomic.Int32

	decodeErr   error
	renderErr   error
	animatedErr error
	systemErr   error

	animated *backend.AnimatedCursor

	mu    sync.Mutex
	calls []string
}

func (f *fakeBackend) wait(ctx context.Context, call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func urlFor(kind, key string) cursorcache.DataURL {
	return cursorcache.NewDataURL(cursorcache.MIMEPNG, []byte(kind+":"+key))
}

func (f *fakeBackend) DecodeFileAsImage(ctx context.Context, path string) (cursorcache.DataURL, error) {
	f.decodeCalls.Add(1)
	if err := f.wait(ctx, "decode:"+path); err != nil {
		return "", err
	}
	if f.decodeErr != nil {
		return "", f.decodeErr
	}
	return urlFor("decode", path), nil
}

func (f *fakeBackend) RenderCursorPreview(ctx context.Context, path string) (cursorcache.DataURL, error) {
	f.renderCalls.Add(1)
	if err := f.wait(ctx, "render:"+path); err != nil {
		return "", err
	}
	if f.renderErr != nil {
		return "", f.renderErr
	}
	return urlFor("render", path), nil
}

func (f *fakeBackend) DecodeAnimatedCursor(ctx context.Context, path string) (*backend.AnimatedCursor, error) {
	f.animatedCalls.Add(1)
	if err := f.wait(ctx, "animated:"+path); err != nil {
		return nil, err
	}
	if f.animatedErr != nil {
		return nil, f.animatedErr
	}
	if f.animated != nil {
		return f.animated, nil
	}
	return &backend.AnimatedCursor{
		Images: []cursorcache.DataURL{urlFor("frame0", path), urlFor("frame1", path), urlFor("frame2", path)},
		Delays: []time.Duration{100 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond},
	}, nil
}

func (f *fakeBackend) RenderSystemCursorPreview(ctx context.Context, name string) (cursorcache.DataURL, error) {
	f.systemCalls.Add(1)
	if err := f.wait(ctx, "system:"+name); err != nil {
		return "", err
	}
	if f.systemErr != nil {
		return "", f.systemErr
	}
	return urlFor("system", name), nil
}

var _ backend.Backend = (*fakeBackend)(nil)
