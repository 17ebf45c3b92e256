package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// VideoInfo is the subset of ffprobe output the pipeline cares about.
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns duration and dimensions for a video file.
func (e *Executor) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	out, err := e.probe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-print_format", "json",
		path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse probe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return nil, fmt.Errorf("no video stream in %s", path)
	}

	info := &VideoInfo{
		Width:  parsed.Streams[0].Width,
		Height: parsed.Streams[0].Height,
	}
	if parsed.Format.Duration != "" {
		info.Duration, err = strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration %q: %w", parsed.Format.Duration, err)
		}
	}
	return info, nil
}

// Duration returns the duration of a video file in seconds.
func (e *Executor) Duration(ctx context.Context, path string) (float64, error) {
	info, err := e.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}
