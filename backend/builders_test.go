package backend

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	cursorcache "github.com/wolfeidau/cursor-cache"
)

var (
	red   = color.NRGBA{R: 0xff, A: 0xff}
	green = color.NRGBA{G: 0xff, A: 0xff}
	blue  = color.NRGBA{B: 0xff, A: 0xff}
)

// pngBytes encodes a solid w x h image.
func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// buildIcon assembles an ICO (typ 1) or CUR (typ 2) container around payloads.
func buildIcon(t *testing.T, typ uint16, payloads ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint16{0, typ, uint16(len(payloads))}))

	offset := iconDirSize + len(payloads)*iconDirEntrySize
	for _, p := range payloads {
		e := iconDirEntry{
			Width:       32,
			Height:      32,
			Planes:      1,
			BitCount:    32,
			BytesInRes:  uint32(len(p)),
			ImageOffset: uint32(offset),
		}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, e))
		offset += len(p)
	}
	for _, p := range payloads {
		buf.Write(p)
	}
	return buf.Bytes()
}

func dibHeaderBytes(w, h int, bitCount uint16, colors int) []byte {
	hdr := make([]byte, dibHeaderMinSize)
	binary.LittleEndian.PutUint32(hdr[0:], dibHeaderMinSize)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(w))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(h*2))
	binary.LittleEndian.PutUint16(hdr[12:], 1)
	binary.LittleEndian.PutUint16(hdr[14:], bitCount)
	binary.LittleEndian.PutUint32(hdr[32:], uint32(colors))
	return hdr
}

// dib32 builds a 32bpp bottom-up icon bitmap of a single color with an
// all-opaque AND mask.
func dib32(w, h int, c color.NRGBA) []byte {
	var buf bytes.Buffer
	buf.Write(dibHeaderBytes(w, h, 32, 0))
	for range h {
		for range w {
			buf.Write([]byte{c.B, c.G, c.R, c.A})
		}
	}
	buf.Write(make([]byte, rowStride(w, 1)*h))
	return buf.Bytes()
}

// dib1 builds a 1bpp black/white icon bitmap where every pixel uses palette
// index 1 (white) and the AND mask makes the top-left pixel transparent.
func dib1(w, h int) []byte {
	var buf bytes.Buffer
	buf.Write(dibHeaderBytes(w, h, 1, 2))
	buf.Write([]byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0})

	stride := rowStride(w, 1)
	for range h {
		row := make([]byte, stride)
		for x := range w {
			row[x/8] |= 0x80 >> (x % 8)
		}
		buf.Write(row)
	}
	// Rows are stored bottom-up, so the top row of the image is last.
	for y := range h {
		row := make([]byte, stride)
		if y == h-1 {
			row[0] = 0x80
		}
		buf.Write(row)
	}
	return buf.Bytes()
}

type aniFixture struct {
	frames   [][]byte
	rates    []uint32
	seq      []uint32
	dispRate uint32
	flags    uint32
}

func riffChunkBytes(id string, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func uint32Bytes(vals []uint32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// buildAni assembles a RIFF ACON animated cursor.
func buildAni(t *testing.T, fx aniFixture) []byte {
	t.Helper()
	if fx.flags == 0 {
		fx.flags = aniFlagIcon
	}
	steps := len(fx.frames)
	if len(fx.seq) > 0 {
		steps = len(fx.seq)
	}

	var hdr bytes.Buffer
	require.NoError(t, binary.Write(&hdr, binary.LittleEndian, aniHeader{
		Size:     aniHeaderSize,
		Frames:   uint32(len(fx.frames)),
		Steps:    uint32(steps),
		DispRate: fx.dispRate,
		Flags:    fx.flags,
	}))

	var body bytes.Buffer
	body.WriteString("ACON")
	body.Write(riffChunkBytes("anih", hdr.Bytes()))
	if len(fx.rates) > 0 {
		body.Write(riffChunkBytes("rate", uint32Bytes(fx.rates)))
	}
	if len(fx.seq) > 0 {
		body.Write(riffChunkBytes("seq ", uint32Bytes(fx.seq)))
	}

	var fram bytes.Buffer
	fram.WriteString("fram")
	for _, f := range fx.frames {
		fram.Write(riffChunkBytes("icon", f))
	}
	body.Write(riffChunkBytes("LIST", fram.Bytes()))

	return riffChunkBytes("RIFF", body.Bytes())
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// decodePreview decodes a PNG data URL back into an image.
func decodePreview(t *testing.T, url cursorcache.DataURL) image.Image {
	t.Helper()
	mime, data, err := url.Decode()
	require.NoError(t, err)
	require.Equal(t, cursorcache.MIMEPNG, mime)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func requireColor(t *testing.T, img image.Image, x, y int, want color.NRGBA) {
	t.Helper()
	got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	require.Equal(t, want, got, "pixel (%d,%d)", x, y)
}
