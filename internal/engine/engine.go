// Package engine holds the bindings to the three external conversion
// engines. The engines own all codec logic; this package only exposes their
// native call surfaces so the adapters can drive them.
package engine

import (
	"context"
	"image"
	"io"
)

// ImageEngine is the codec surface of the image-processing engine: decode
// raw encoded bytes into a pixel buffer and re-encode a pixel buffer into a
// native target format, with an optional quality parameter for lossy targets.
type ImageEngine interface {
	// Init performs any one-time setup. Safe to call more than once.
	Init(ctx context.Context) error
	Decode(r io.Reader) (image.Image, error)
	// Encode writes img in the engine's native format (e.g. "jpeg",
	// "png"). quality is honored only by lossy formats; 0 means default.
	Encode(w io.Writer, img image.Image, nativeFormat string, quality int) error
}

// AudioEngine is the media-transcoding engine. It is format-unaware: callers
// stage input through a virtual filesystem, select codecs entirely via the
// argument list passed to Exec, and read the output back.
type AudioEngine interface {
	Init(ctx context.Context) error
	WriteFile(name string, data []byte) error
	Exec(ctx context.Context, args ...string) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
}

// DocumentEngine is the document-conversion engine. It transforms text
// between named formats. Binary container targets (docx, odt, epub) come
// back base64-encoded; everything else is UTF-8 text. The engine cannot
// render arbitrary binary targets such as PDF in this environment.
type DocumentEngine interface {
	Init(ctx context.Context) error
	Convert(ctx context.Context, input []byte, fromFormat, toFormat string) (string, error)
}
