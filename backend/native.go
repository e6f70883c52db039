package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder for the fallback render path
	_ "image/jpeg" // register decoder for the fallback render path
	"image/png"
	"io"
	"log/slog"
	"os"
	"time"

	cursorcache "github.com/wolfeidau/cursor-cache"
	_ "golang.org/x/image/bmp" // register decoder for the fallback render path
	"golang.org/x/image/draw"
)

const (
	// DefaultPreviewSize is the bounding box, in pixels, previews are scaled into.
	DefaultPreviewSize = 64

	// DefaultMaxFileSize caps how much of a cursor file is read into memory.
	DefaultMaxFileSize = 4 << 20
)

// Config configures a Native backend.
type Config struct {
	// PreviewSize is the edge of the square previews are scaled down to fit.
	// Images already within it are left at their native size.
	PreviewSize int

	// MaxFileSize rejects larger files with ErrFileTooLarge.
	MaxFileSize int64

	// SystemCursorDirs are searched in order for system cursor files.
	SystemCursorDirs []string

	Logger *slog.Logger
}

// Native implements Backend in pure Go. It decodes ICO and CUR containers
// (PNG and DIB images) and RIFF ACON animated cursors.
type Native struct {
	previewSize int
	maxFileSize int64
	systemDirs  []string
	logger      *slog.Logger
}

// NewNative creates a Native backend, applying defaults to zero fields.
func NewNative(cfg Config) *Native {
	if cfg.PreviewSize <= 0 {
		cfg.PreviewSize = DefaultPreviewSize
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if len(cfg.SystemCursorDirs) == 0 {
		cfg.SystemCursorDirs = DefaultSystemCursorDirs
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Native{
		previewSize: cfg.PreviewSize,
		maxFileSize: cfg.MaxFileSize,
		systemDirs:  cfg.SystemCursorDirs,
		logger:      cfg.Logger.With("component", "backend"),
	}
}

// DecodeFileAsImage decodes the best image of an ICO or CUR file.
func (n *Native) DecodeFileAsImage(ctx context.Context, path string) (cursorcache.DataURL, error) {
	data, err := n.readFile(ctx, path)
	if err != nil {
		return "", err
	}
	img, err := decodeIconFile(data)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return n.encode(img)
}

// RenderCursorPreview renders any supported file: the first frame of an
// animated cursor, an ICO or CUR container, or a plain image.
func (n *Native) RenderCursorPreview(ctx context.Context, path string) (cursorcache.DataURL, error) {
	data, err := n.readFile(ctx, path)
	if err != nil {
		return "", err
	}
	img, err := n.renderAny(data)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", path, err)
	}
	return n.encode(img)
}

// DecodeAnimatedCursor decodes every step of an animated cursor. Frames
// shared by several steps are decoded once.
func (n *Native) DecodeAnimatedCursor(ctx context.Context, path string) (*AnimatedCursor, error) {
	data, err := n.readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if !isAniContainer(data) {
		return nil, fmt.Errorf("decoding %s: %w", path, cursorcache.ErrNotAnimated)
	}

	ani, err := parseAni(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if len(ani.steps) == 0 {
		return nil, fmt.Errorf("decoding %s: %w", path, cursorcache.ErrEmptyAnimation)
	}

	decoded := make(map[int]cursorcache.DataURL, len(ani.frames))
	out := &AnimatedCursor{
		Images: make([]cursorcache.DataURL, 0, len(ani.steps)),
		Delays: make([]time.Duration, 0, len(ani.steps)),
	}
	for i, step := range ani.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url, ok := decoded[step.frame]
		if !ok {
			img, err := decodeIconFile(ani.frames[step.frame])
			if err != nil {
				return nil, fmt.Errorf("decoding %s frame %d (step %d): %w", path, step.frame, i, err)
			}
			url, err = n.encode(img)
			if err != nil {
				return nil, err
			}
			decoded[step.frame] = url
		}
		out.Images = append(out.Images, url)
		out.Delays = append(out.Delays, step.delay)
	}

	n.logger.Debug("decoded animated cursor",
		"path", path,
		"frames", len(ani.frames),
		"steps", len(ani.steps),
	)
	return out, nil
}

// RenderSystemCursorPreview renders the file backing a system cursor name.
// Animated system cursors render their first frame.
func (n *Native) RenderSystemCursorPreview(ctx context.Context, name string) (cursorcache.DataURL, error) {
	path, known, found := findSystemCursor(n.systemDirs, name)
	if !known {
		return "", fmt.Errorf("%w: %q", ErrUnknownSystemCursor, name)
	}
	if !found {
		return "", fmt.Errorf("%w: no file for %q in %v", ErrUnknownSystemCursor, name, n.systemDirs)
	}
	return n.RenderCursorPreview(ctx, path)
}

func (n *Native) renderAny(data []byte) (image.Image, error) {
	switch {
	case isAniContainer(data):
		ani, err := parseAni(data)
		if err != nil {
			return nil, err
		}
		if len(ani.steps) == 0 {
			return nil, cursorcache.ErrEmptyAnimation
		}
		return decodeIconFile(ani.frames[ani.steps[0].frame])
	case isIconContainer(data):
		return decodeIconFile(data)
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return img, nil
	}
}

// readFile reads a whole file, enforcing the size limit.
func (n *Native) readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("opening %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedFormat, path)
	}
	if info.Size() > n.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, info.Size(), n.maxFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, n.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if int64(len(data)) > n.maxFileSize {
		return nil, fmt.Errorf("%w: %s grew past limit %d", ErrFileTooLarge, path, n.maxFileSize)
	}
	return data, nil
}

// encode scales img into the preview box and encodes it as a PNG data URL.
func (n *Native) encode(img image.Image) (cursorcache.DataURL, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, n.scale(img)); err != nil {
		return "", fmt.Errorf("encoding png: %w", err)
	}
	return cursorcache.NewDataURL(cursorcache.MIMEPNG, buf.Bytes()), nil
}

// scale shrinks img to fit the preview box, keeping its aspect ratio.
func (n *Native) scale(src image.Image) image.Image {
	b := src.Bounds()
	size := n.previewSize
	if b.Dx() <= size && b.Dy() <= size {
		return src
	}

	w, h := size, size
	switch {
	case b.Dx() > b.Dy():
		h = max(1, b.Dy()*size/b.Dx())
	case b.Dy() > b.Dx():
		w = max(1, b.Dx()*size/b.Dy())
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Compile-time interface check
var _ Backend = (*Native)(nil)
