// Package backend provides the decode and render boundary for cursor
// previews. A Backend turns a cursor file or a system cursor name into
// inline images; callers cache and deduplicate the results.
package backend

import (
	"context"
	"errors"
	"time"

	cursorcache "github.com/wolfeidau/cursor-cache"
)

var (
	// ErrNotFound is returned when a cursor file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat is returned when a file is not a decodable cursor or image.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrUnknownSystemCursor is returned for system cursor names with no mapping
	// or no file in any configured directory.
	ErrUnknownSystemCursor = errors.New("unknown system cursor")

	// ErrFileTooLarge is returned when a file exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// AnimatedCursor is the decoded form of an animated cursor. Images and
// Delays are parallel slices in playback order.
type AnimatedCursor struct {
	Images []cursorcache.DataURL
	Delays []time.Duration
}

// FrameSet converts the decoded cursor into a frame sequence.
func (a *AnimatedCursor) FrameSet() *cursorcache.FrameSet {
	return cursorcache.NewFrameSet(a.Images, a.Delays)
}

// Backend defines the decode operations a preview resolver depends on.
// Implementations must be safe for concurrent use.
type Backend interface {
	// DecodeFileAsImage decodes a static cursor or icon file into a PNG data URL.
	DecodeFileAsImage(ctx context.Context, path string) (cursorcache.DataURL, error)

	// RenderCursorPreview renders a preview of any cursor file using a more
	// permissive path. It is the fallback when DecodeFileAsImage fails.
	RenderCursorPreview(ctx context.Context, path string) (cursorcache.DataURL, error)

	// DecodeAnimatedCursor decodes every frame of an animated cursor.
	DecodeAnimatedCursor(ctx context.Context, path string) (*AnimatedCursor, error)

	// RenderSystemCursorPreview renders a built-in system cursor by name.
	RenderSystemCursorPreview(ctx context.Context, name string) (cursorcache.DataURL, error)
}
