package engine

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	// Decode-only formats: registered with image.Decode so that sources in
	// these formats can be read even though they are never encode targets.
	_ "golang.org/x/image/webp"
)

// Imaging is the image engine backed by the imaging library plus the
// extended decoder set from x/image.
type Imaging struct{}

func NewImaging() *Imaging { return &Imaging{} }

// Init is a no-op: the codec tables are linked in.
func (e *Imaging) Init(ctx context.Context) error { return nil }

func (e *Imaging) Decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r)
}

func (e *Imaging) Encode(w io.Writer, img image.Image, nativeFormat string, quality int) error {
	f, err := imaging.FormatFromExtension(nativeFormat)
	if err != nil {
		return fmt.Errorf("unknown native format %q: %w", nativeFormat, err)
	}
	var opts []imaging.EncodeOption
	if f == imaging.JPEG && quality > 0 {
		opts = append(opts, imaging.JPEGQuality(quality))
	}
	return imaging.Encode(w, img, f, opts...)
}
