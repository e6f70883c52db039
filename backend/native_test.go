package backend

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	cursorcache "github.com/wolfeidau/cursor-cache"
)

func newTestNative(t *testing.T, cfg Config) *Native {
	t.Helper()
	return NewNative(cfg)
}

func TestDecodeFileAsImage_PNGEntryPicksLargest(t *testing.T) {
	dir := t.TempDir()
	data := buildIcon(t, iconTypeCursor, pngBytes(t, 16, 16, red), pngBytes(t, 32, 32, green))
	path := writeFile(t, dir, "arrow.cur", data)

	n := newTestNative(t, Config{})
	url, err := n.DecodeFileAsImage(context.Background(), path)
	require.NoError(t, err)

	img := decodePreview(t, url)
	require.Equal(t, 32, img.Bounds().Dx())
	require.Equal(t, 32, img.Bounds().Dy())
	requireColor(t, img, 5, 5, green)
}

func TestDecodeFileAsImage_DeepestAtEqualSize(t *testing.T) {
	dir := t.TempDir()
	data := buildIcon(t, iconTypeIcon, dib1(16, 16), dib32(16, 16, blue))
	path := writeFile(t, dir, "app.ico", data)

	n := newTestNative(t, Config{})
	url, err := n.DecodeFileAsImage(context.Background(), path)
	require.NoError(t, err)

	requireColor(t, decodePreview(t, url), 0, 0, blue)
}

func TestDecodeFileAsImage_DIB1Mask(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mono.cur", buildIcon(t, iconTypeCursor, dib1(8, 8)))

	n := newTestNative(t, Config{})
	url, err := n.DecodeFileAsImage(context.Background(), path)
	require.NoError(t, err)

	img := decodePreview(t, url)
	require.Equal(t, 8, img.Bounds().Dx())
	require.Equal(t, 8, img.Bounds().Dy())
	requireColor(t, img, 0, 0, color.NRGBA{})
	requireColor(t, img, 1, 0, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	requireColor(t, img, 7, 7, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
}

func TestDecodeFileAsImage_ScalesToPreviewSize(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big.ico", buildIcon(t, iconTypeIcon, pngBytes(t, 128, 64, red)))

	n := newTestNative(t, Config{PreviewSize: 32})
	url, err := n.DecodeFileAsImage(context.Background(), path)
	require.NoError(t, err)

	img := decodePreview(t, url)
	require.Equal(t, 32, img.Bounds().Dx())
	require.Equal(t, 16, img.Bounds().Dy())
}

func TestDecodeFileAsImage_Errors(t *testing.T) {
	dir := t.TempDir()
	n := newTestNative(t, Config{MaxFileSize: 64})
	ctx := context.Background()

	tests := []struct {
		name string
		path string
		want error
	}{
		{
			name: "missing file",
			path: dir + "/missing.cur",
			want: ErrNotFound,
		},
		{
			name: "not an icon",
			path: writeFile(t, dir, "text.cur", []byte("definitely not a cursor")),
			want: ErrUnsupportedFormat,
		},
		{
			name: "too large",
			path: writeFile(t, dir, "huge.cur", make([]byte, 65)),
			want: ErrFileTooLarge,
		},
		{
			name: "truncated directory",
			path: writeFile(t, dir, "trunc.cur", []byte{0, 0, 2, 0, 3, 0}),
			want: ErrUnsupportedFormat,
		},
		{
			name: "directory",
			path: dir,
			want: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.DecodeFileAsImage(ctx, tt.path)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeFileAsImage_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "arrow.cur", buildIcon(t, iconTypeCursor, pngBytes(t, 16, 16, red)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestNative(t, Config{}).DecodeFileAsImage(ctx, path)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRenderCursorPreview_PlainImageFallback(t *testing.T) {
	dir := t.TempDir()
	// A PNG saved with a cursor extension is not an icon container, so only
	// the permissive render path can read it.
	path := writeFile(t, dir, "odd.cur", pngBytes(t, 10, 10, blue))
	n := newTestNative(t, Config{})
	ctx := context.Background()

	_, err := n.DecodeFileAsImage(ctx, path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	url, err := n.RenderCursorPreview(ctx, path)
	require.NoError(t, err)
	requireColor(t, decodePreview(t, url), 3, 3, blue)
}

func TestRenderCursorPreview_AnimatedFirstFrame(t *testing.T) {
	dir := t.TempDir()
	frames := [][]byte{
		buildIcon(t, iconTypeCursor, pngBytes(t, 16, 16, green)),
		buildIcon(t, iconTypeCursor, pngBytes(t, 16, 16, red)),
	}
	path := writeFile(t, dir, "busy.ani", buildAni(t, aniFixture{frames: frames, seq: []uint32{1, 0}, dispRate: 6}))

	url, err := newTestNative(t, Config{}).RenderCursorPreview(context.Background(), path)
	require.NoError(t, err)
	requireColor(t, decodePreview(t, url), 0, 0, red)
}

func TestDecodeAnimatedCursor_SequenceAndRates(t *testing.T) {
	dir := t.TempDir()
	frames := [][]byte{
		buildIcon(t, iconTypeCursor, pngBytes(t, 16, 16, red)),
		buildIcon(t, iconTypeCursor, pngBytes(t, 16, 16, green)),
	}
	path := writeFile(t, dir, "busy.ani", buildAni(t, aniFixture{
		frames:   frames,
		seq:      []uint32{0, 1, 0},
		rates:    []uint32{6, 3, 12},
		dispRate: 10,
	}))

	ani, err := newTestNative(t, Config{}).DecodeAnimatedCursor(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, ani.Images, 3)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond}, ani.Delays)
	require.Equal(t, ani.Images[0], ani.Images[2], "repeated frames decode identically")
	require.NotEqual(t, ani.Images[0], ani.Images[1])

	fs := ani.FrameSet()
	require.Equal(t, 3, fs.Len())
	require.Equal(t, 50*time.Millisecond, fs.DelayAt(1))
}

func TestDecodeAnimatedCursor_DefaultRate(t *testing.T) {
	dir := t.TempDir()
	frames := [][]byte{
		buildIcon(t, iconTypeCursor, dib32(8, 8, red)),
		buildIcon(t, iconTypeCursor, dib32(8, 8, blue)),
	}
	path := writeFile(t, dir, "spin.ani", buildAni(t, aniFixture{frames: frames, dispRate: 6}))

	ani, err := newTestNative(t, Config{}).DecodeAnimatedCursor(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, ani.Delays)
	requireColor(t, decodePreview(t, ani.Images[1]), 4, 4, blue)
}

func TestDecodeAnimatedCursor_Errors(t *testing.T) {
	dir := t.TempDir()
	n := newTestNative(t, Config{})
	ctx := context.Background()
	frame := buildIcon(t, iconTypeCursor, pngBytes(t, 8, 8, red))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{
			name: "static cursor",
			data: frame,
			want: cursorcache.ErrNotAnimated,
		},
		{
			name: "no frames",
			data: buildAni(t, aniFixture{dispRate: 6}),
			want: cursorcache.ErrEmptyAnimation,
		},
		{
			name: "raw bitmap frames",
			data: buildAni(t, aniFixture{frames: [][]byte{frame}, flags: 0x2}),
			want: ErrUnsupportedFormat,
		},
		{
			name: "sequence out of range",
			data: buildAni(t, aniFixture{frames: [][]byte{frame}, seq: []uint32{0, 4}}),
			want: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "case.ani", tt.data)
			_, err := n.DecodeAnimatedCursor(ctx, path)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRenderSystemCursorPreview(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeFile(t, dirB, "aero_arrow.cur", buildIcon(t, iconTypeCursor, pngBytes(t, 16, 16, green)))
	writeFile(t, dirA, "aero_busy.ani", buildAni(t, aniFixture{
		frames:   [][]byte{buildIcon(t, iconTypeCursor, pngBytes(t, 16, 16, blue))},
		dispRate: 6,
	}))

	n := newTestNative(t, Config{SystemCursorDirs: []string{dirA, dirB}})
	ctx := context.Background()

	url, err := n.RenderSystemCursorPreview(ctx, "Arrow")
	require.NoError(t, err)
	requireColor(t, decodePreview(t, url), 0, 0, green)

	url, err = n.RenderSystemCursorPreview(ctx, "wait")
	require.NoError(t, err)
	requireColor(t, decodePreview(t, url), 0, 0, blue)

	_, err = n.RenderSystemCursorPreview(ctx, "nonexistent")
	require.ErrorIs(t, err, ErrUnknownSystemCursor)

	_, err = n.RenderSystemCursorPreview(ctx, "pen")
	require.ErrorIs(t, err, ErrUnknownSystemCursor, "known name without a file")
}

func TestSystemCursorNames(t *testing.T) {
	names := SystemCursorNames()
	require.Len(t, names, 15)
	require.Contains(t, names, "arrow")
	require.Contains(t, names, "appstarting")
	require.IsIncreasing(t, names)
}
