package adapter

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/castlemill/convertd/internal/engine"
	"github.com/castlemill/convertd/internal/format"
)

// resultEncoding declares how the document engine returns a given target
// format across its boundary.
type resultEncoding int

const (
	encodingText resultEncoding = iota
	encodingBase64
)

// docFormat binds a registry extension to the engine's format name and the
// encoding its results arrive in.
type docFormat struct {
	native   string
	encoding resultEncoding
}

// docOutputs are the formats the document engine can produce. pdf is
// deliberately absent: the engine cannot render it in this environment.
var docOutputs = map[string]docFormat{
	"md":       {native: "markdown", encoding: encodingText},
	"markdown": {native: "markdown", encoding: encodingText},
	"html":     {native: "html", encoding: encodingText},
	"htm":      {native: "html", encoding: encodingText},
	"txt":      {native: "plain", encoding: encodingText},
	"rtf":      {native: "rtf", encoding: encodingText},
	"tex":      {native: "latex", encoding: encodingText},
	"docx":     {native: "docx", encoding: encodingBase64},
	"odt":      {native: "odt", encoding: encodingBase64},
	"epub":     {native: "epub", encoding: encodingBase64},
}

// docInputs map source extensions to the engine's reader names. Plain text
// goes through the markdown reader, which accepts it verbatim.
var docInputs = map[string]string{
	"md":       "markdown",
	"markdown": "markdown",
	"html":     "html",
	"htm":      "html",
	"txt":      "markdown",
	"rtf":      "rtf",
	"tex":      "latex",
	"docx":     "docx",
	"odt":      "odt",
	"epub":     "epub",
}

// Document adapts the document-conversion engine.
type Document struct {
	engine engine.DocumentEngine
	state  readiness
}

func NewDocument(e engine.DocumentEngine) *Document {
	return &Document{engine: e}
}

func (a *Document) Category() format.Category { return format.CategoryDocument }

func (a *Document) EnsureReady(ctx context.Context) error {
	if err := a.state.ensure(ctx, a.engine.Init); err != nil {
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	return nil
}

func (a *Document) ConvertOne(ctx context.Context, src []byte, srcExt, dstExt string, opts Options) (Result, error) {
	srcExt = format.NormalizeExt(srcExt)
	dstExt = format.NormalizeExt(dstExt)

	from, ok := docInputs[srcExt]
	if !ok {
		return Result{}, fmt.Errorf("%w: document engine cannot read %q", ErrConversionFailed, srcExt)
	}
	to, ok := docOutputs[dstExt]
	if !ok {
		return Result{}, fmt.Errorf("%w: document engine cannot produce %q", ErrUnsupportedOutput, dstExt)
	}

	payload, err := a.engine.Convert(ctx, src, from, to.native)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s to %s: %w", ErrConversionFailed, srcExt, dstExt, err)
	}

	var out []byte
	switch to.encoding {
	case encodingBase64:
		out, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return Result{}, fmt.Errorf("%w: decode %s payload: %w", ErrConversionFailed, dstExt, err)
		}
	default:
		out = []byte(payload)
	}

	mime := "application/octet-stream"
	if d := format.LookupByExtension(dstExt); d != nil {
		mime = d.MIME()
	}
	return Result{Bytes: out, MIMEType: mime}, nil
}
