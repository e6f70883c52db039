package cursorcache

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// etagBytes is how much of the digest an entity tag carries.
const etagBytes = 8

// PreviewDigest is the BLAKE3 digest of encoded preview bytes.
type PreviewDigest [32]byte

// DigestPreview hashes the encoded bytes of a preview image.
func DigestPreview(data []byte) PreviewDigest {
	return PreviewDigest(blake3.Sum256(data))
}

// ETag returns the strong HTTP entity tag for the digested preview.
func (d PreviewDigest) ETag() string {
	return `"` + hex.EncodeToString(d[:etagBytes]) + `"`
}
