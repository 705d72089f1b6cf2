// Package runner is the execution boundary: it runs a dispatch off the
// caller's goroutine and normalizes the outcome into a plain result value.
// Only descriptive strings cross the boundary on failure; no engine error
// types leak through.
package runner

import (
	"context"

	"github.com/castlemill/convertd/internal/adapter"
	"github.com/castlemill/convertd/internal/dispatch"
)

// Converter is the dispatch surface the boundary drives.
type Converter interface {
	Convert(ctx context.Context, req dispatch.Request, opts adapter.Options, onProgress dispatch.ProgressFunc) (adapter.Result, error)
}

// Result is the boundary's terminal event: exactly one per Run, success or
// failure.
type Result struct {
	OK           bool
	Bytes        []byte
	MIMEType     string
	ErrorMessage string
}

// Runner executes one conversion to completion. Run blocks until the
// terminal event; progress callbacks arrive before it. Once dispatched, a
// conversion runs to completion or failure; there is no mid-flight abort
// beyond ctx reaching the engine subprocesses.
type Runner interface {
	Run(ctx context.Context, req dispatch.Request, opts adapter.Options, onProgress dispatch.ProgressFunc) Result
}

// Goroutine runs each conversion in a fresh goroutine, one per call, torn
// down after the terminal event. Progress and the terminal result travel
// over channels, mirroring a start / progress* / (complete|error) message
// contract.
type Goroutine struct {
	conv Converter
}

func NewGoroutine(conv Converter) *Goroutine {
	return &Goroutine{conv: conv}
}

func (r *Goroutine) Run(ctx context.Context, req dispatch.Request, opts adapter.Options, onProgress dispatch.ProgressFunc) Result {
	progressCh := make(chan int, 8)
	terminal := make(chan Result, 1)

	go func() {
		defer close(progressCh)
		res, err := r.conv.Convert(ctx, req, opts, func(p int) {
			select {
			case progressCh <- p:
			default:
				// Progress is advisory; drop rather than block the engine.
			}
		})
		if err != nil {
			terminal <- Result{ErrorMessage: err.Error()}
			return
		}
		terminal <- Result{OK: true, Bytes: res.Bytes, MIMEType: res.MIMEType}
	}()

	for p := range progressCh {
		if onProgress != nil {
			onProgress(p)
		}
	}
	return <-terminal
}

// Inline is the fallback boundary: same contract, same goroutine. Used when
// off-goroutine execution is disabled.
type Inline struct {
	conv Converter
}

func NewInline(conv Converter) *Inline {
	return &Inline{conv: conv}
}

func (r *Inline) Run(ctx context.Context, req dispatch.Request, opts adapter.Options, onProgress dispatch.ProgressFunc) Result {
	res, err := r.conv.Convert(ctx, req, opts, onProgress)
	if err != nil {
		return Result{ErrorMessage: err.Error()}
	}
	return Result{OK: true, Bytes: res.Bytes, MIMEType: res.MIMEType}
}
