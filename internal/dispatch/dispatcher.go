// Package dispatch routes a conversion request to the engine adapter that
// owns its category and normalizes the outcome. It knows categories, not
// codecs.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/castlemill/convertd/internal/adapter"
	"github.com/castlemill/convertd/internal/format"
)

var (
	// ErrTargetMissing means a conversion was attempted with no target
	// format chosen; no engine is touched.
	ErrTargetMissing = errors.New("no target format selected")
	// ErrCategoryUndetected means neither the registry nor MIME-prefix
	// sniffing could place the source in a category.
	ErrCategoryUndetected = errors.New("could not detect file category")
)

// Request carries everything the dispatcher needs for one conversion.
type Request struct {
	SourceName  string
	SourceBytes []byte
	SourceExt   string
	SourceMIME  string
	TargetExt   string
}

// ProgressFunc receives advisory 0-100 progress checkpoints.
type ProgressFunc func(percent int)

// Dispatcher owns one adapter per category.
type Dispatcher struct {
	adapters map[format.Category]adapter.Adapter
}

// New builds a dispatcher over the given adapters. Adapters are injected at
// construction; there is no late binding.
func New(adapters ...adapter.Adapter) *Dispatcher {
	m := make(map[format.Category]adapter.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Category()] = a
	}
	return &Dispatcher{adapters: m}
}

// Convert resolves the request's category, makes sure the owning engine is
// ready, and runs the conversion. Progress is reported at coarse
// checkpoints (0 at start, an intermediate value once the engine begins,
// 100 on success) and is monotonic.
func (d *Dispatcher) Convert(ctx context.Context, req Request, opts adapter.Options, onProgress ProgressFunc) (adapter.Result, error) {
	progress := monotonic(onProgress)
	progress(0)

	if req.TargetExt == "" {
		return adapter.Result{}, ErrTargetMissing
	}

	cat, err := d.resolveCategory(req)
	if err != nil {
		return adapter.Result{}, err
	}
	a, ok := d.adapters[cat]
	if !ok {
		return adapter.Result{}, fmt.Errorf("%w: no adapter for category %s", ErrCategoryUndetected, cat)
	}

	if err := a.EnsureReady(ctx); err != nil {
		return adapter.Result{}, err
	}
	progress(25)

	res, err := a.ConvertOne(ctx, req.SourceBytes, format.NormalizeExt(req.SourceExt), format.NormalizeExt(req.TargetExt), opts)
	if err != nil {
		// Adapter errors already carry the engine's message; add the
		// conversion pair for diagnosability, never swallow.
		return adapter.Result{}, fmt.Errorf("%s to %s: %w", req.SourceExt, req.TargetExt, err)
	}

	progress(100)
	return res, nil
}

// resolveCategory places the request in a category via the registry first,
// then coarse MIME-prefix sniffing.
func (d *Dispatcher) resolveCategory(req Request) (format.Category, error) {
	if desc := format.LookupByExtension(req.SourceExt); desc != nil {
		return desc.Category, nil
	}
	mime := strings.ToLower(req.SourceMIME)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return format.CategoryImage, nil
	case strings.HasPrefix(mime, "audio/"):
		return format.CategoryAudio, nil
	case strings.HasPrefix(mime, "text/"),
		strings.HasPrefix(mime, "application/vnd.oasis.opendocument"),
		strings.HasPrefix(mime, "application/vnd.openxmlformats"),
		mime == "application/rtf",
		mime == "application/epub+zip":
		return format.CategoryDocument, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrCategoryUndetected, req.SourceName, req.SourceMIME)
}

// monotonic wraps a progress callback so reported values never decrease and
// a nil callback is safe to call.
func monotonic(f ProgressFunc) ProgressFunc {
	last := -1
	return func(p int) {
		if f == nil || p <= last {
			return
		}
		last = p
		f(p)
	}
}
