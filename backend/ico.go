package backend

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
)

const (
	iconDirSize      = 6
	iconDirEntrySize = 16

	iconTypeIcon   = 1
	iconTypeCursor = 2

	maxIconEntries = 256
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// iconDirEntry is one image directory entry of an ICO or CUR container.
// For cursors the planes and bit count fields hold the hotspot instead.
type iconDirEntry struct {
	Width       uint8
	Height      uint8
	ColorCount  uint8
	Reserved    uint8
	Planes      uint16
	BitCount    uint16
	BytesInRes  uint32
	ImageOffset uint32
}

type iconImage struct {
	width  int
	height int
	depth  int
	data   []byte
}

// isIconContainer reports whether data starts with an ICONDIR header.
func isIconContainer(data []byte) bool {
	if len(data) < iconDirSize {
		return false
	}
	reserved := binary.LittleEndian.Uint16(data[0:2])
	typ := binary.LittleEndian.Uint16(data[2:4])
	return reserved == 0 && (typ == iconTypeIcon || typ == iconTypeCursor)
}

// parseIconContainer reads every image of an ICO or CUR file.
// Format: ICONDIR (6 bytes) | ICONDIRENTRY (16 bytes) * count | image data
func parseIconContainer(data []byte) ([]iconImage, error) {
	if !isIconContainer(data) {
		return nil, fmt.Errorf("%w: missing icon directory header", ErrUnsupportedFormat)
	}

	count := int(binary.LittleEndian.Uint16(data[4:6]))
	if count == 0 || count > maxIconEntries {
		return nil, fmt.Errorf("%w: icon directory has %d entries", ErrUnsupportedFormat, count)
	}
	if len(data) < iconDirSize+count*iconDirEntrySize {
		return nil, fmt.Errorf("%w: truncated icon directory", ErrUnsupportedFormat)
	}

	images := make([]iconImage, 0, count)
	r := bytes.NewReader(data[iconDirSize : iconDirSize+count*iconDirEntrySize])
	for i := range count {
		var e iconDirEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return nil, fmt.Errorf("reading icon entry %d: %w", i, err)
		}

		start := int64(e.ImageOffset)
		end := start + int64(e.BytesInRes)
		if e.BytesInRes == 0 || end > int64(len(data)) {
			return nil, fmt.Errorf("%w: icon entry %d out of bounds", ErrUnsupportedFormat, i)
		}
		payload := data[start:end]

		img := iconImage{
			width:  dimension(e.Width),
			height: dimension(e.Height),
			data:   payload,
		}
		// The payload header is authoritative; the directory fields are
		// frequently wrong and hold the hotspot for cursors.
		if w, h, depth, ok := payloadInfo(payload); ok {
			img.width, img.height, img.depth = w, h, depth
		}
		images = append(images, img)
	}

	return images, nil
}

// dimension decodes a directory width or height byte, where 0 means 256.
func dimension(b uint8) int {
	if b == 0 {
		return 256
	}
	return int(b)
}

// payloadInfo reads the dimensions and bit depth from a PNG or DIB payload.
func payloadInfo(payload []byte) (width, height, depth int, ok bool) {
	if bytes.HasPrefix(payload, pngMagic) {
		// IHDR is always the first chunk: length(4) type(4) width(4) height(4) depth(1) colorType(1)
		if len(payload) < 26 {
			return 0, 0, 0, false
		}
		width = int(binary.BigEndian.Uint32(payload[16:20]))
		height = int(binary.BigEndian.Uint32(payload[20:24]))
		depth = int(payload[24])
		switch payload[25] {
		case 2: // truecolor
			depth *= 3
		case 4: // gray + alpha
			depth *= 2
		case 6: // truecolor + alpha
			depth *= 4
		}
		return width, height, depth, true
	}

	hdr, err := parseDIBHeader(payload)
	if err != nil {
		return 0, 0, 0, false
	}
	return hdr.width, hdr.height, int(hdr.bitCount), true
}

// bestIconImage picks the largest image, preferring the deepest bit count
// among images of equal size.
func bestIconImage(images []iconImage) iconImage {
	best := images[0]
	for _, img := range images[1:] {
		area, bestArea := img.width*img.height, best.width*best.height
		if area > bestArea || (area == bestArea && img.depth > best.depth) {
			best = img
		}
	}
	return best
}

// decodeIconImage decodes a PNG-compressed or DIB icon payload.
func decodeIconImage(payload []byte) (image.Image, error) {
	if bytes.HasPrefix(payload, pngMagic) {
		img, err := png.Decode(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding png icon: %w", ErrUnsupportedFormat, err)
		}
		return img, nil
	}
	return decodeDIB(payload)
}

// decodeIconFile decodes the best image of an ICO or CUR file.
func decodeIconFile(data []byte) (image.Image, error) {
	images, err := parseIconContainer(data)
	if err != nil {
		return nil, err
	}
	return decodeIconImage(bestIconImage(images).data)
}
