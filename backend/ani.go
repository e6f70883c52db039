package backend

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	aniHeaderSize = 36
	aniFlagIcon   = 0x1
	maxAniSteps   = 4096

	// Animated cursor rates are expressed in jiffies, 1/60 of a second.
	jiffiesPerSecond = 60
)

// aniHeader is the "anih" chunk of a RIFF ACON file.
type aniHeader struct {
	Size     uint32
	Frames   uint32
	Steps    uint32
	Width    uint32
	Height   uint32
	BitCount uint32
	Planes   uint32
	DispRate uint32
	Flags    uint32
}

// aniStep is one entry of the playback sequence.
type aniStep struct {
	frame int
	delay time.Duration
}

type aniCursor struct {
	header aniHeader
	frames [][]byte // raw icon payloads in file order
	steps  []aniStep
}

type riffChunk struct {
	id   string
	data []byte
}

// readChunks splits a RIFF chunk body into its sub-chunks. Chunk bodies are
// padded to an even length.
func readChunks(data []byte) ([]riffChunk, error) {
	var chunks []riffChunk
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("%w: truncated riff chunk", ErrUnsupportedFormat)
		}
		id := string(data[0:4])
		size := int64(binary.LittleEndian.Uint32(data[4:8]))
		if size > int64(len(data)-8) {
			return nil, fmt.Errorf("%w: riff chunk %q overruns file", ErrUnsupportedFormat, id)
		}
		chunks = append(chunks, riffChunk{id: id, data: data[8 : 8+size]})

		next := 8 + size + size%2
		if next > int64(len(data)) {
			next = int64(len(data))
		}
		data = data[next:]
	}
	return chunks, nil
}

// isAniContainer reports whether data is a RIFF ACON file.
func isAniContainer(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "ACON"
}

// parseAni reads a RIFF ACON animated cursor.
// Format: "RIFF" size "ACON" { "anih" | "rate" | "seq " | "LIST" "fram" { "icon" }* }
func parseAni(data []byte) (*aniCursor, error) {
	if !isAniContainer(data) {
		return nil, fmt.Errorf("%w: not a riff acon file", ErrUnsupportedFormat)
	}
	riffSize := int(binary.LittleEndian.Uint32(data[4:8]))
	body := data[12:]
	if riffSize >= 4 && riffSize-4 < len(body) {
		body = body[:riffSize-4]
	}

	chunks, err := readChunks(body)
	if err != nil {
		return nil, err
	}

	var (
		ani       aniCursor
		hasHeader bool
		rates     []uint32
		seq       []uint32
	)
	for _, c := range chunks {
		switch c.id {
		case "anih":
			if len(c.data) < aniHeaderSize {
				return nil, fmt.Errorf("%w: truncated anih chunk", ErrUnsupportedFormat)
			}
			if err := binary.Read(bytes.NewReader(c.data), binary.LittleEndian, &ani.header); err != nil {
				return nil, fmt.Errorf("reading anih chunk: %w", err)
			}
			hasHeader = true
		case "rate":
			rates = readUint32s(c.data)
		case "seq ":
			seq = readUint32s(c.data)
		case "LIST":
			if len(c.data) < 4 || string(c.data[0:4]) != "fram" {
				continue
			}
			sub, err := readChunks(c.data[4:])
			if err != nil {
				return nil, err
			}
			for _, s := range sub {
				if s.id == "icon" {
					ani.frames = append(ani.frames, s.data)
				}
			}
		}
	}

	if !hasHeader {
		return nil, fmt.Errorf("%w: missing anih chunk", ErrUnsupportedFormat)
	}
	if ani.header.Flags&aniFlagIcon == 0 {
		return nil, fmt.Errorf("%w: raw bitmap animation frames", ErrUnsupportedFormat)
	}
	if len(ani.frames) == 0 {
		return &ani, nil
	}

	steps := int(ani.header.Steps)
	if len(seq) > 0 {
		steps = len(seq)
	}
	if steps == 0 {
		steps = len(ani.frames)
	}
	if steps > maxAniSteps {
		return nil, fmt.Errorf("%w: %d animation steps", ErrUnsupportedFormat, steps)
	}

	ani.steps = make([]aniStep, steps)
	for i := range steps {
		frame := i % len(ani.frames)
		if i < len(seq) {
			frame = int(seq[i])
		}
		if frame >= len(ani.frames) {
			return nil, fmt.Errorf("%w: sequence step %d references frame %d of %d", ErrUnsupportedFormat, i, frame, len(ani.frames))
		}

		rate := ani.header.DispRate
		if i < len(rates) {
			rate = rates[i]
		}
		ani.steps[i] = aniStep{frame: frame, delay: time.Duration(rate) * time.Second / jiffiesPerSecond}
	}

	return &ani, nil
}

func readUint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}
