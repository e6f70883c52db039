package cursorcache

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// MIMEPNG is the media type of every preview produced by the native backend.
const MIMEPNG = "image/png"

// DataURL is an inline-encoded raster image of the form
// "data:<mime>;base64,<payload>".
type DataURL string

// NewDataURL encodes data as a base64 data URL with the given media type.
func NewDataURL(mime string, data []byte) DataURL {
	return DataURL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// ParseDataURL splits a data URL into its media type and decoded payload.
// Only base64 payloads are accepted; previews are always binary images.
func ParseDataURL(s string) (string, []byte, error) {
	if s == "" {
		return "", nil, fmt.Errorf("empty data url")
	}

	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("data url %.32q: missing data: scheme", s)
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data url %.32q: missing payload separator", s)
	}

	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data url %.32q: payload is not base64", s)
	}
	if mime == "" {
		mime = "text/plain"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("data url %.32q: decoding payload: %w", s, err)
	}
	return strings.ToLower(mime), data, nil
}

// Decode returns the media type and raw bytes of the data URL.
func (d DataURL) Decode() (string, []byte, error) {
	return ParseDataURL(string(d))
}

// Size returns the length of the encoded URL in bytes. Caches use it as the
// cost of an entry.
func (d DataURL) Size() int64 {
	return int64(len(d))
}

// String returns the URL as a plain string.
func (d DataURL) String() string {
	return string(d)
}
