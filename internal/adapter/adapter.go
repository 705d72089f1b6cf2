// Package adapter contains the integration shims between the conversion
// core and the external engines. Adapters translate registry formats into
// each engine's native identifiers and own the lazy engine initialization;
// they never implement codec logic themselves.
package adapter

import (
	"context"
	"errors"
	"sync"

	"github.com/castlemill/convertd/internal/format"
)

var (
	// ErrInitFailed wraps a failed lazy engine initialization. The failure
	// is not memoized: a later call retries.
	ErrInitFailed = errors.New("engine initialization failed")
	// ErrConversionFailed wraps an error raised by the engine itself
	// during a transform.
	ErrConversionFailed = errors.New("engine conversion failed")
	// ErrUnsupportedOutput marks a target format the registry knows but
	// this engine cannot produce in this environment.
	ErrUnsupportedOutput = errors.New("output format not supported in this environment")
)

// Mode selects between the simple and advanced settings surfaces.
type Mode string

const (
	ModeSimple   Mode = "simple"
	ModeAdvanced Mode = "advanced"
)

// Options is the immutable settings snapshot a conversion runs with.
// BitrateKbps and SampleRateHz apply to audio only; zero means unset.
type Options struct {
	Mode         Mode `json:"mode"`
	QualityLevel int  `json:"quality_level"` // 1-100
	BitrateKbps  int  `json:"bitrate_kbps,omitempty"`
	SampleRateHz int  `json:"sample_rate_hz,omitempty"`
}

// DefaultOptions returns the settings used when the caller never touched
// them.
func DefaultOptions() Options {
	return Options{Mode: ModeSimple, QualityLevel: 80}
}

// Result is the normalized outcome of one conversion: the encoded output
// plus the MIME type the registry declares for the target format.
type Result struct {
	Bytes    []byte
	MIMEType string
}

// Adapter is one engine integration point. EnsureReady performs the lazy,
// idempotent, concurrency-safe initialization; ConvertOne assumes the
// engine is ready.
type Adapter interface {
	Category() format.Category
	EnsureReady(ctx context.Context) error
	ConvertOne(ctx context.Context, src []byte, srcExt, dstExt string, opts Options) (Result, error)
}

// readiness is the per-adapter initialization state machine:
// idle -> initializing -> ready, with a failed attempt resetting to idle so
// a later call may retry. Concurrent callers before the first success share
// one in-flight attempt; success is memoized for the process lifetime.
type readiness struct {
	mu    sync.Mutex
	ready bool
	doing chan struct{} // non-nil while an attempt is in flight
	err   error         // outcome of the last finished attempt
}

func (r *readiness) ensure(ctx context.Context, init func(context.Context) error) error {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		return nil
	}
	if r.doing != nil {
		ch := r.doing
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.ready {
			return nil
		}
		return r.err
	}
	ch := make(chan struct{})
	r.doing = ch
	r.mu.Unlock()

	err := init(ctx)

	r.mu.Lock()
	r.err = err
	r.ready = err == nil
	r.doing = nil
	close(ch)
	r.mu.Unlock()
	return err
}
