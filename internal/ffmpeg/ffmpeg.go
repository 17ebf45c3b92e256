// Package ffmpeg wraps the ffmpeg and ffprobe binaries for the stitching,
// probing, and frame-extraction steps of the pipeline.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
)

// Executor runs ffmpeg and ffprobe commands.
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	log         zerolog.Logger
}

// NewExecutor locates ffmpeg and ffprobe on PATH.
func NewExecutor() (*Executor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Executor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         logging.WithComponent("ffmpeg"),
	}, nil
}

// Run executes ffmpeg with args, returning stderr in the error on failure.
func (e *Executor) Run(ctx context.Context, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	e.log.Debug().Strs("args", full).Msg("running ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, stderr.String())
	}
	return nil
}

// probe executes ffprobe with args and returns stdout.
func (e *Executor) probe(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
