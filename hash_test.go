package cursorcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestPreview(t *testing.T) {
	// BLAKE3 of the empty input.
	require.Equal(t, `"af1349b9f5f9a1a6"`, DigestPreview(nil).ETag())

	data := []byte("preview")
	require.Equal(t, DigestPreview(data), DigestPreview(data))
	require.NotEqual(t, DigestPreview(data).ETag(), DigestPreview([]byte("other")).ETag())
}
