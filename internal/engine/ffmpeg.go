package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpeg is the audio engine backed by an ffmpeg binary. It mirrors the
// engine's virtual-filesystem call surface: callers stage named files in a
// scratch directory, run the binary with a constructed argument list, and
// read the output back. The engine itself knows nothing about formats.
type FFmpeg struct {
	binary string
	dir    string
}

// NewFFmpeg binds the engine to the given binary path ("ffmpeg" resolves via
// PATH). Staged files live under a per-engine scratch directory.
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

// Init verifies the binary is reachable and creates the scratch directory.
func (e *FFmpeg) Init(ctx context.Context) error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", e.binary, err)
	}
	if e.dir == "" {
		dir, err := os.MkdirTemp("", "convertd-audio-")
		if err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		e.dir = dir
	}
	return nil
}

func (e *FFmpeg) path(name string) string {
	return filepath.Join(e.dir, filepath.Base(name))
}

func (e *FFmpeg) WriteFile(name string, data []byte) error {
	return os.WriteFile(e.path(name), data, 0644)
}

func (e *FFmpeg) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(e.path(name))
}

func (e *FFmpeg) Remove(name string) error {
	err := os.Remove(e.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exec runs the binary with the given arguments. File-name arguments refer
// to names previously staged with WriteFile. Stderr is folded into the
// returned error because ffmpeg reports everything there.
func (e *FFmpeg) Exec(ctx context.Context, args ...string) error {
	full := make([]string, 0, len(args)+2)
	full = append(full, "-hide_banner", "-y")
	full = append(full, args...)
	cmd := exec.CommandContext(ctx, e.binary, full...)
	cmd.Dir = e.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

// lastLine trims ffmpeg's stderr to its final non-empty line, which carries
// the actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return s
}
