// Package sniffer identifies avatar images from their leading bytes.
package sniffer

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
)

type ImageType string

const (
	TypeJPEG ImageType = "jpeg"
	TypePNG  ImageType = "png"
	TypeGIF  ImageType = "gif"
	TypeWEBP ImageType = "webp"
)

// HeadSize is how many bytes Detect reads before deciding.
const HeadSize = 512

var ErrUnsupportedImage = errors.New("unsupported image type")

type Result struct {
	Type ImageType
	MIME string
}

// Extension is the file suffix used for stored objects.
func (r Result) Extension() string {
	if r.Type == TypeJPEG {
		return "jpg"
	}
	return string(r.Type)
}

type signature struct {
	result Result
	match  func(head []byte) bool
}

var signatures = []signature{
	{Result{TypeJPEG, "image/jpeg"}, func(h []byte) bool {
		return len(h) > 3 && h[0] == 0xff && h[1] == 0xd8 && h[2] == 0xff
	}},
	{Result{TypePNG, "image/png"}, func(h []byte) bool {
		return bytes.HasPrefix(h, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	}},
	{Result{TypeGIF, "image/gif"}, func(h []byte) bool {
		return bytes.HasPrefix(h, []byte("GIF87a")) || bytes.HasPrefix(h, []byte("GIF89a"))
	}},
	{Result{TypeWEBP, "image/webp"}, func(h []byte) bool {
		return len(h) >= 12 && bytes.Equal(h[:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WEBP"))
	}},
}

// Detect reads up to HeadSize bytes from r and returns them alongside the
// detected type so callers can stitch the stream back together.
func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, HeadSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	for _, sig := range signatures {
		if sig.match(head) {
			return sig.result, nil
		}
	}
	return Result{}, ErrUnsupportedImage
}

// DeclaredType returns the media type of a multipart part header, or "".
func DeclaredType(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}
