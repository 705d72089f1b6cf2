package adapter

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/castlemill/convertd/internal/engine"
	"github.com/castlemill/convertd/internal/format"
)

// imageOutputs maps registry extensions to the image engine's native format
// identifiers. Only these may be encode targets.
var imageOutputs = map[string]string{
	"jpg":  "jpg",
	"jpeg": "jpg",
	"png":  "png",
	"gif":  "gif",
	"bmp":  "bmp",
	"tif":  "tif",
	"tiff": "tif",
}

// imageInputOnly are formats the engine can decode but never encode.
var imageInputOnly = map[string]bool{
	"webp": true,
}

// lossyImage marks targets whose encoder honors a quality parameter.
var lossyImage = map[string]bool{
	"jpg":  true,
	"jpeg": true,
}

// Image adapts the image-processing engine.
type Image struct {
	engine engine.ImageEngine
	state  readiness
}

func NewImage(e engine.ImageEngine) *Image {
	return &Image{engine: e}
}

func (a *Image) Category() format.Category { return format.CategoryImage }

func (a *Image) EnsureReady(ctx context.Context) error {
	if err := a.state.ensure(ctx, a.engine.Init); err != nil {
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	return nil
}

func (a *Image) ConvertOne(ctx context.Context, src []byte, srcExt, dstExt string, opts Options) (Result, error) {
	dstExt = format.NormalizeExt(dstExt)
	native, ok := imageOutputs[dstExt]
	if !ok {
		return Result{}, fmt.Errorf("%w: image engine cannot encode %q", ErrUnsupportedOutput, dstExt)
	}

	img, err := a.engine.Decode(bytes.NewReader(src))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode %s: %w", ErrConversionFailed, srcExt, err)
	}

	// JPEG sources may carry an EXIF orientation; bake it into the pixels
	// before re-encoding since the target container may not carry it.
	if srcExt == "jpg" || srcExt == "jpeg" {
		img = normalizeOrientation(img, src)
	}

	quality := 0
	if lossyImage[dstExt] {
		quality = opts.QualityLevel
	}

	var buf bytes.Buffer
	if err := a.engine.Encode(&buf, img, native, quality); err != nil {
		return Result{}, fmt.Errorf("%w: encode %s: %w", ErrConversionFailed, dstExt, err)
	}

	mime := "application/octet-stream"
	if d := format.LookupByExtension(dstExt); d != nil {
		mime = d.MIME()
	}
	return Result{Bytes: buf.Bytes(), MIMEType: mime}, nil
}

// normalizeOrientation applies the EXIF orientation transform, if any.
// Missing or unreadable EXIF leaves the image untouched.
func normalizeOrientation(img image.Image, src []byte) image.Image {
	x, err := exif.Decode(bytes.NewReader(src))
	if err != nil {
		return img
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orient, err := tag.Int(0)
	if err != nil {
		return img
	}
	switch orient {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
