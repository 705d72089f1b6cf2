package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// binaryOutputs are the container targets the document engine returns as
// base64 text rather than UTF-8, matching its native binding contract.
var binaryOutputs = map[string]bool{
	"docx": true,
	"odt":  true,
	"epub": true,
}

// Pandoc is the document engine backed by a pandoc binary. Conversions go
// through a temporary output file because the binary refuses to stream
// binary containers; the result crosses the engine boundary as text, base64
// encoded for binary targets.
type Pandoc struct {
	binary string
}

func NewPandoc(binary string) *Pandoc {
	if binary == "" {
		binary = "pandoc"
	}
	return &Pandoc{binary: binary}
}

func (e *Pandoc) Init(ctx context.Context) error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("pandoc binary %q not found: %w", e.binary, err)
	}
	return nil
}

func (e *Pandoc) Convert(ctx context.Context, input []byte, fromFormat, toFormat string) (string, error) {
	dir, err := os.MkdirTemp("", "convertd-doc-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "output."+toFormat)
	cmd := exec.CommandContext(ctx, e.binary,
		"-f", fromFormat,
		"-t", toFormat,
		"-o", out,
	)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pandoc failed: %w: %s", err, lastLine(stderr.String()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("read pandoc output: %w", err)
	}
	if binaryOutputs[toFormat] {
		return base64.StdEncoding.EncodeToString(data), nil
	}
	return string(data), nil
}
