package backend

import (
	"context"
	"errors"
	"time"

	cursorcache "github.com/wolfeidau/cursor-cache"
	"github.com/wolfeidau/cursor-cache/telemetry"
)

// InstrumentedBackend wraps a Backend with metrics recording.
type InstrumentedBackend struct {
	backend Backend
	name    string
}

// NewInstrumentedBackend creates a new instrumented backend wrapper.
func NewInstrumentedBackend(b Backend, name string) *InstrumentedBackend {
	return &InstrumentedBackend{backend: b, name: name}
}

func (ib *InstrumentedBackend) DecodeFileAsImage(ctx context.Context, path string) (cursorcache.DataURL, error) {
	start := time.Now()
	url, err := ib.backend.DecodeFileAsImage(ctx, path)
	telemetry.RecordBackendOp(ctx, ib.name, "decode_file", outcomeFromError(err), time.Since(start), url.Size())
	return url, err
}

func (ib *InstrumentedBackend) RenderCursorPreview(ctx context.Context, path string) (cursorcache.DataURL, error) {
	start := time.Now()
	url, err := ib.backend.RenderCursorPreview(ctx, path)
	telemetry.RecordBackendOp(ctx, ib.name, "render_preview", outcomeFromError(err), time.Since(start), url.Size())
	return url, err
}

func (ib *InstrumentedBackend) DecodeAnimatedCursor(ctx context.Context, path string) (*AnimatedCursor, error) {
	start := time.Now()
	ani, err := ib.backend.DecodeAnimatedCursor(ctx, path)
	var n int64
	if ani != nil {
		for _, img := range ani.Images {
			n += img.Size()
		}
	}
	telemetry.RecordBackendOp(ctx, ib.name, "decode_animated", outcomeFromError(err), time.Since(start), n)
	return ani, err
}

func (ib *InstrumentedBackend) RenderSystemCursorPreview(ctx context.Context, name string) (cursorcache.DataURL, error) {
	start := time.Now()
	url, err := ib.backend.RenderSystemCursorPreview(ctx, name)
	telemetry.RecordBackendOp(ctx, ib.name, "render_system", outcomeFromError(err), time.Since(start), url.Size())
	return url, err
}

// Unwrap returns the underlying backend.
func (ib *InstrumentedBackend) Unwrap() Backend {
	return ib.backend
}

func outcomeFromError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, cursorcache.ErrNotAnimated):
		return "unsupported"
	case errors.Is(err, ErrUnknownSystemCursor):
		return "unknown_system"
	case errors.Is(err, ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// Compile-time interface checks
var _ Backend = (*InstrumentedBackend)(nil)
