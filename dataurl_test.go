package cursorcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDataURL(t *testing.T) {
	u := NewDataURL(MIMEPNG, []byte("abc"))
	assert.Equal(t, DataURL("data:image/png;base64,YWJj"), u)
	assert.Equal(t, int64(len(u)), u.Size())
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantMIME string
		wantData string
		wantErr  bool
	}{
		{
			name:     "png",
			input:    "data:image/png;base64,YWJj",
			wantMIME: "image/png",
			wantData: "abc",
		},
		{
			name:     "uppercase mime normalised",
			input:    "data:IMAGE/PNG;base64,YWJj",
			wantMIME: "image/png",
			wantData: "abc",
		},
		{
			name:     "default mime",
			input:    "data:;base64,YWJj",
			wantMIME: "text/plain",
			wantData: "abc",
		},
		{name: "empty", input: "", wantErr: true},
		{name: "wrong scheme", input: "http://example.com/a.png", wantErr: true},
		{name: "no separator", input: "data:image/png;base64", wantErr: true},
		{name: "not base64", input: "data:image/png,abc", wantErr: true},
		{name: "bad payload", input: "data:image/png;base64,!!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, data, err := ParseDataURL(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, mime)
			assert.Equal(t, tt.wantData, string(data))
		})
	}
}

func TestDataURLDecodeRoundTrip(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2}
	mime, data, err := NewDataURL(MIMEPNG, payload).Decode()
	require.NoError(t, err)
	require.Equal(t, MIMEPNG, mime)
	require.Equal(t, payload, data)
}
