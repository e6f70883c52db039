package backend

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

const (
	dibHeaderMinSize = 40
	maxDIBDimension  = 1024

	biRGB       = 0
	biBitfields = 3
)

type dibHeader struct {
	size        int
	width       int
	height      int // image height, excluding the AND mask
	topDown     bool
	bitCount    uint16
	compression uint32
	colorsUsed  int
}

// parseDIBHeader reads a BITMAPINFOHEADER as embedded in icon resources,
// where the stored height covers both the color and the mask bitmaps.
func parseDIBHeader(data []byte) (dibHeader, error) {
	if len(data) < dibHeaderMinSize {
		return dibHeader{}, fmt.Errorf("%w: truncated bitmap header", ErrUnsupportedFormat)
	}

	hdr := dibHeader{
		size:        int(binary.LittleEndian.Uint32(data[0:4])),
		width:       int(int32(binary.LittleEndian.Uint32(data[4:8]))),
		bitCount:    binary.LittleEndian.Uint16(data[14:16]),
		compression: binary.LittleEndian.Uint32(data[16:20]),
		colorsUsed:  int(binary.LittleEndian.Uint32(data[32:36])),
	}
	height := int(int32(binary.LittleEndian.Uint32(data[8:12])))
	if height < 0 {
		hdr.topDown = true
		height = -height
	}
	hdr.height = height / 2
	if hdr.height == 0 {
		hdr.height = height
	}

	switch {
	case hdr.size < dibHeaderMinSize || hdr.size > len(data):
		return dibHeader{}, fmt.Errorf("%w: bitmap header size %d", ErrUnsupportedFormat, hdr.size)
	case hdr.width <= 0 || hdr.width > maxDIBDimension || hdr.height <= 0 || hdr.height > maxDIBDimension:
		return dibHeader{}, fmt.Errorf("%w: bitmap dimensions %dx%d", ErrUnsupportedFormat, hdr.width, hdr.height)
	}

	switch hdr.bitCount {
	case 1, 4, 8, 24, 32:
	default:
		return dibHeader{}, fmt.Errorf("%w: %d bits per pixel", ErrUnsupportedFormat, hdr.bitCount)
	}
	if hdr.compression != biRGB && !(hdr.compression == biBitfields && hdr.bitCount == 32) {
		return dibHeader{}, fmt.Errorf("%w: bitmap compression %d", ErrUnsupportedFormat, hdr.compression)
	}
	return hdr, nil
}

// rowStride is the byte length of one bitmap row, padded to 32 bits.
func rowStride(width, bitCount int) int {
	return ((width*bitCount + 31) / 32) * 4
}

// decodeDIB decodes an icon bitmap: header, optional palette, color rows,
// then a 1bpp AND mask where set bits are transparent.
func decodeDIB(data []byte) (image.Image, error) {
	hdr, err := parseDIBHeader(data)
	if err != nil {
		return nil, err
	}

	offset := hdr.size
	if hdr.compression == biBitfields && hdr.size == dibHeaderMinSize {
		// Masks follow a plain info header; 32bpp icons always use BGRA order.
		offset += 12
	}

	var palette []color.NRGBA
	if hdr.bitCount <= 8 {
		n := hdr.colorsUsed
		if n == 0 || n > 1<<hdr.bitCount {
			n = 1 << hdr.bitCount
		}
		if offset+n*4 > len(data) {
			return nil, fmt.Errorf("%w: truncated palette", ErrUnsupportedFormat)
		}
		palette = make([]color.NRGBA, n)
		for i := range n {
			p := data[offset+i*4:]
			palette[i] = color.NRGBA{R: p[2], G: p[1], B: p[0], A: 0xff}
		}
		offset += n * 4
	}

	w, h, bpp := hdr.width, hdr.height, int(hdr.bitCount)
	xorStride := rowStride(w, bpp)
	if offset+xorStride*h > len(data) {
		return nil, fmt.Errorf("%w: truncated bitmap data", ErrUnsupportedFormat)
	}
	xor := data[offset : offset+xorStride*h]
	offset += xorStride * h

	andStride := rowStride(w, 1)
	var mask []byte
	if offset+andStride*h <= len(data) {
		mask = data[offset : offset+andStride*h]
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	hasAlpha := false

	for y := range h {
		srcY := h - 1 - y
		if hdr.topDown {
			srcY = y
		}
		row := xor[srcY*xorStride : (srcY+1)*xorStride]

		for x := range w {
			var c color.NRGBA
			switch bpp {
			case 1, 4, 8:
				idx := paletteIndex(row, x, bpp)
				if idx < len(palette) {
					c = palette[idx]
				}
			case 24:
				p := row[x*3:]
				c = color.NRGBA{R: p[2], G: p[1], B: p[0], A: 0xff}
			case 32:
				p := row[x*4:]
				c = color.NRGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
				if p[3] != 0 {
					hasAlpha = true
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	// 32bpp bitmaps with a real alpha channel ignore the mask. Everything
	// else is opaque except where the mask marks a pixel transparent.
	if bpp == 32 && hasAlpha {
		return img, nil
	}
	for y := range h {
		for x := range w {
			c := img.NRGBAAt(x, y)
			c.A = 0xff
			if mask != nil {
				srcY := h - 1 - y
				if hdr.topDown {
					srcY = y
				}
				if mask[srcY*andStride+x/8]&(0x80>>(x%8)) != 0 {
					c = color.NRGBA{}
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img, nil
}

func paletteIndex(row []byte, x, bpp int) int {
	switch bpp {
	case 1:
		return int(row[x/8]>>(7-x%8)) & 0x01
	case 4:
		if x%2 == 0 {
			return int(row[x/2] >> 4)
		}
		return int(row[x/2] & 0x0f)
	default:
		return int(row[x])
	}
}
