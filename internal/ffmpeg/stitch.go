package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Concat joins clips with hard cuts using the concat demuxer (stream copy,
// no re-encode). All clips must share codec and dimensions.
func (e *Executor) Concat(ctx context.Context, clips []string, output string) error {
	if len(clips) == 0 {
		return fmt.Errorf("no clips to concat")
	}

	listFile, err := writeConcatList(clips)
	if err != nil {
		return err
	}
	defer os.Remove(listFile)

	return e.Run(ctx,
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output)
}

func writeConcatList(clips []string) (string, error) {
	f, err := os.CreateTemp("", "concat_*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create concat list: %w", err)
	}
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("failed to resolve %s: %w", clip, err)
		}
		fmt.Fprintf(f, "file '%s'\n", abs)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	return f.Name(), nil
}

// XfadeFilter builds the xfade filter chain for crossfading clips with the
// given durations. Each transition starts crossfade seconds before the end of
// the accumulated timeline.
func XfadeFilter(durations []float64, crossfade float64) string {
	var parts []string
	current := "[0:v]"
	accumulated := 0.0

	for i := 1; i < len(durations); i++ {
		if i == 1 {
			accumulated += durations[0]
		} else {
			accumulated += durations[i-1] - crossfade
		}
		offset := accumulated - crossfade

		out := fmt.Sprintf("[v%d]", i)
		if i == len(durations)-1 {
			out = "[vout]"
		}
		parts = append(parts, fmt.Sprintf("%s[%d:v]xfade=transition=fade:duration=%g:offset=%.3f%s",
			current, i, crossfade, offset, out))
		current = out
	}

	return strings.Join(parts, ";")
}

// Crossfade joins clips with fade transitions. Clip durations are probed to
// compute transition offsets. Falls back to a hard cut when the filter chain
// fails, which happens when clips disagree on resolution or timebase.
func (e *Executor) Crossfade(ctx context.Context, clips []string, output string, crossfade float64, fps int) error {
	if len(clips) < 2 {
		return e.Concat(ctx, clips, output)
	}

	durations := make([]float64, len(clips))
	for i, clip := range clips {
		d, err := e.Duration(ctx, clip)
		if err != nil {
			return err
		}
		durations[i] = d
	}

	args := make([]string, 0, len(clips)*2+10)
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}
	args = append(args,
		"-filter_complex", XfadeFilter(durations, crossfade),
		"-map", "[vout]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", fps),
		output)

	if err := e.Run(ctx, args...); err != nil {
		e.log.Warn().Err(err).Msg("crossfade failed, falling back to hard cut")
		return e.Concat(ctx, clips, output)
	}
	return nil
}

// AssembleFilter builds the scale/pad/concat graph that normalizes n inputs
// to width x height before joining them.
func AssembleFilter(n, width, height int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[v%d];",
			i, width, height, width, height, i)
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[out]", n)
	return b.String()
}

// Assemble re-encodes and joins videos of mixed resolutions, scaling and
// padding each to width x height.
func (e *Executor) Assemble(ctx context.Context, videos []string, output string, width, height int) error {
	if len(videos) == 0 {
		return fmt.Errorf("no videos to assemble")
	}

	args := make([]string, 0, len(videos)*2+10)
	for _, v := range videos {
		args = append(args, "-i", v)
	}
	args = append(args,
		"-filter_complex", AssembleFilter(len(videos), width, height),
		"-map", "[out]",
		"-c:v", "libx264",
		"-crf", "18",
		"-preset", "fast",
		output)

	return e.Run(ctx, args...)
}

// EnsureMinHeight re-encodes a video to at least minHeight pixels tall,
// preserving aspect ratio with padding. Returns the input path unchanged when
// it already qualifies, otherwise the path of the rescaled copy.
func (e *Executor) EnsureMinHeight(ctx context.Context, video string, minHeight int) (string, error) {
	info, err := e.Probe(ctx, video)
	if err != nil {
		return "", err
	}
	if info.Height >= minHeight {
		return video, nil
	}

	width := minHeight * 16 / 9
	output := strings.TrimSuffix(video, filepath.Ext(video)) + fmt.Sprintf("_%dp.mp4", minHeight)
	err = e.Run(ctx,
		"-i", video,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			width, minHeight, width, minHeight),
		"-c:a", "copy",
		output)
	if err != nil {
		return "", err
	}
	return output, nil
}
