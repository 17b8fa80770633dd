package sniffer

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	cases := map[string]struct {
		head []byte
		want ImageType
	}{
		"jpeg": {[]byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, TypeJPEG},
		"png":  {[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}, TypePNG},
		"gif":  {[]byte("GIF89a....."), TypeGIF},
		"webp": {[]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			result, head, err := Detect(bytes.NewReader(tc.head))
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Type)
			assert.Equal(t, tc.head, head)
		})
	}
}

func TestDetectRejectsSVG(t *testing.T) {
	_, err := DetectHead([]byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestDeclaredType(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "image/png; charset=binary")
	assert.Equal(t, "image/png", DeclaredType(h))
	assert.Equal(t, "", DeclaredType(http.Header{}))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "jpg", Result{Type: TypeJPEG}.Extension())
	assert.Equal(t, "webp", Result{Type: TypeWEBP}.Extension())
}
