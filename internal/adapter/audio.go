package adapter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/castlemill/convertd/internal/engine"
	"github.com/castlemill/convertd/internal/format"
)

// audioCodecs maps registry extensions to the audio engine's codec names.
// The engine has no format-aware API; codec selection happens entirely
// through the argument list built here.
var audioCodecs = map[string]string{
	"mp3":  "libmp3lame",
	"wav":  "pcm_s16le",
	"flac": "flac",
	"ogg":  "libvorbis",
	"m4a":  "aac",
	"aac":  "aac",
}

// bitrateTargets are the lossy targets that take an explicit bitrate flag.
var bitrateTargets = map[string]bool{
	"mp3": true,
	"ogg": true,
	"m4a": true,
	"aac": true,
}

const (
	minBitrateKbps = 64
	maxBitrateKbps = 320
)

// DeriveBitrateKbps maps a 1-100 quality level onto the 64-320 kbps range,
// linearly with rounding and a floor at 64.
func DeriveBitrateKbps(qualityLevel int) int {
	kbps := (maxBitrateKbps*qualityLevel + 50) / 100
	if kbps < minBitrateKbps {
		return minBitrateKbps
	}
	if kbps > maxBitrateKbps {
		return maxBitrateKbps
	}
	return kbps
}

// Audio adapts the media-transcoding engine.
type Audio struct {
	engine engine.AudioEngine
	state  readiness
}

func NewAudio(e engine.AudioEngine) *Audio {
	return &Audio{engine: e}
}

func (a *Audio) Category() format.Category { return format.CategoryAudio }

func (a *Audio) EnsureReady(ctx context.Context) error {
	if err := a.state.ensure(ctx, a.engine.Init); err != nil {
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	return nil
}

func (a *Audio) ConvertOne(ctx context.Context, src []byte, srcExt, dstExt string, opts Options) (Result, error) {
	srcExt = format.NormalizeExt(srcExt)
	dstExt = format.NormalizeExt(dstExt)
	codec, ok := audioCodecs[dstExt]
	if !ok {
		return Result{}, fmt.Errorf("%w: audio engine cannot encode %q", ErrUnsupportedOutput, dstExt)
	}

	id := uuid.NewString()
	inName := "in-" + id + "." + srcExt
	outName := "out-" + id + "." + dstExt

	if err := a.engine.WriteFile(inName, src); err != nil {
		return Result{}, fmt.Errorf("%w: stage input: %w", ErrConversionFailed, err)
	}
	// Both staged files go away whether or not the exec succeeds.
	defer func() {
		_ = a.engine.Remove(inName)
		_ = a.engine.Remove(outName)
	}()

	args := []string{"-i", inName, "-c:a", codec}
	if bitrateTargets[dstExt] {
		kbps := opts.BitrateKbps
		if kbps <= 0 {
			kbps = DeriveBitrateKbps(opts.QualityLevel)
		}
		args = append(args, "-b:a", strconv.Itoa(kbps)+"k")
	}
	if opts.SampleRateHz > 0 {
		args = append(args, "-ar", strconv.Itoa(opts.SampleRateHz))
	}
	args = append(args, outName)

	if err := a.engine.Exec(ctx, args...); err != nil {
		return Result{}, fmt.Errorf("%w: %s to %s: %w", ErrConversionFailed, srcExt, dstExt, err)
	}

	out, err := a.engine.ReadFile(outName)
	if err != nil {
		return Result{}, fmt.Errorf("%w: read output: %w", ErrConversionFailed, err)
	}

	mime := "application/octet-stream"
	if d := format.LookupByExtension(dstExt); d != nil {
		mime = d.MIME()
	}
	return Result{Bytes: out, MIMEType: mime}, nil
}
