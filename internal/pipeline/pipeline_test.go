package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/j03m/directors-chair/internal/keyframe"
	"github.com/j03m/directors-chair/internal/prompt"
	"github.com/j03m/directors-chair/internal/storyboard"
)

type fakeLayouts struct {
	calls []string
}

func (f *fakeLayouts) Generate(ctx context.Context, layoutPrompt string, characters map[string]storyboard.Character, outputPath string) error {
	f.calls = append(f.calls, outputPath)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte("png"), 0644)
}

type fakeKeyframes struct {
	calls []keyframe.Request
}

func (f *fakeKeyframes) Name() string { return "fake" }

func (f *fakeKeyframes) Generate(ctx context.Context, req keyframe.Request) error {
	f.calls = append(f.calls, req)
	return os.WriteFile(req.OutputPath, []byte("png"), 0644)
}

type fakeClips struct {
	calls []string
}

func (f *fakeClips) Generate(ctx context.Context, startImage string, beats []storyboard.Beat, characters map[string]storyboard.Character, outputPath string) error {
	f.calls = append(f.calls, outputPath)
	return os.WriteFile(outputPath, []byte("mp4"), 0644)
}

type fakeStitcher struct {
	concats    [][]string
	crossfades [][]string
}

func (f *fakeStitcher) Concat(ctx context.Context, clips []string, output string) error {
	f.concats = append(f.concats, clips)
	return os.WriteFile(output, []byte("mp4"), 0644)
}

func (f *fakeStitcher) Crossfade(ctx context.Context, clips []string, output string, crossfade float64, fps int) error {
	f.crossfades = append(f.crossfades, clips)
	return os.WriteFile(output, []byte("mp4"), 0644)
}

func testStoryboard() *storyboard.Storyboard {
	return &storyboard.Storyboard{
		Name: "campfire",
		Shots: []storyboard.Shot{
			{LayoutPrompt: "two figures by a fire", KeyframePrompt: "night, warm light", Beats: []storyboard.Beat{{Prompt: "flames flicker", Duration: 5}}},
			{LayoutPrompt: "wide shot of the camp", KeyframePrompt: "dawn breaks", Beats: []storyboard.Beat{{Prompt: "sun rises", Duration: 5}}},
		},
		Characters: map[string]storyboard.Character{
			"gorilla": {ReferenceImage: "gorilla.png"},
		},
	}
}

func newTestPipeline(t *testing.T, base string, opts Options, answers string) (*Pipeline, *fakeLayouts, *fakeKeyframes, *fakeClips, *fakeStitcher) {
	t.Helper()
	layouts := &fakeLayouts{}
	keyframes := &fakeKeyframes{}
	clips := &fakeClips{}
	stitcher := &fakeStitcher{}
	prompter := prompt.NewWith(strings.NewReader(answers), io.Discard)
	return New(layouts, keyframes, clips, stitcher, prompter, base, opts), layouts, keyframes, clips, stitcher
}

func TestRunAutoProducesAllOutputs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "campfire")
	p, layouts, keyframes, clips, stitcher := newTestPipeline(t, base, Options{Auto: true}, "")

	require.NoError(t, p.Run(context.Background(), testStoryboard()))

	require.Len(t, layouts.calls, 2)
	require.Len(t, keyframes.calls, 2)
	require.Len(t, clips.calls, 2)
	require.Len(t, stitcher.concats, 1)
	require.Equal(t, []string{ClipPath(base, 0), ClipPath(base, 1)}, stitcher.concats[0])

	for _, path := range []string{
		LayoutPath(base, 0),
		KeyframePath(base, 1),
		ClipPath(base, 0),
		FinalPath(base, "campfire"),
	} {
		_, err := os.Stat(path)
		require.NoError(t, err, path)
	}

	manifest, err := LoadManifest(filepath.Join(base, "manifest.json"))
	require.NoError(t, err)
	require.NotNil(t, manifest)
	require.NotEmpty(t, manifest.RunID)
	require.True(t, manifest.IsCompleted(StageStitch))
	require.Equal(t, StatusSkipped, manifest.State(StageReview).Status)
	require.Equal(t, FinalPath(base, "campfire"), manifest.FinalOutput)
}

func TestRunSkipsExistingKeyframes(t *testing.T) {
	base := filepath.Join(t.TempDir(), "campfire")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "keyframes"), 0755))
	require.NoError(t, os.WriteFile(KeyframePath(base, 0), []byte("png"), 0644))

	p, _, keyframes, _, _ := newTestPipeline(t, base, Options{Auto: true}, "")
	require.NoError(t, p.Run(context.Background(), testStoryboard()))

	require.Len(t, keyframes.calls, 1)
	require.Equal(t, KeyframePath(base, 1), keyframes.calls[0].OutputPath)
}

func TestRunResumeSkipsCompletedStages(t *testing.T) {
	base := filepath.Join(t.TempDir(), "campfire")
	p, _, _, _, _ := newTestPipeline(t, base, Options{Auto: true}, "")
	require.NoError(t, p.Run(context.Background(), testStoryboard()))

	p2, layouts, keyframes, clips, stitcher := newTestPipeline(t, base, Options{Auto: true}, "")
	require.NoError(t, p2.Run(context.Background(), testStoryboard()))

	require.Empty(t, layouts.calls)
	require.Empty(t, keyframes.calls)
	require.Empty(t, clips.calls)
	require.Empty(t, stitcher.concats)
}

func TestRunKeyframesOnlyStopsBeforeClips(t *testing.T) {
	base := filepath.Join(t.TempDir(), "campfire")
	p, _, keyframes, clips, stitcher := newTestPipeline(t, base, Options{Auto: true, KeyframesOnly: true}, "")

	require.NoError(t, p.Run(context.Background(), testStoryboard()))

	require.Len(t, keyframes.calls, 2)
	require.Empty(t, clips.calls)
	require.Empty(t, stitcher.concats)
}

func TestRunKeyframesOnlyStopsOnResume(t *testing.T) {
	base := filepath.Join(t.TempDir(), "campfire")
	// First run reviews interactively and accepts all keyframes.
	p, _, _, _, _ := newTestPipeline(t, base, Options{KeyframesOnly: true}, "1\n")
	require.NoError(t, p.Run(context.Background(), testStoryboard()))

	// Resuming with the review already completed must still stop there.
	p2, _, keyframes, clips, stitcher := newTestPipeline(t, base, Options{KeyframesOnly: true}, "")
	require.NoError(t, p2.Run(context.Background(), testStoryboard()))

	require.Empty(t, keyframes.calls)
	require.Empty(t, clips.calls)
	require.Empty(t, stitcher.concats)
}

func TestReviewRegenerateThenAccept(t *testing.T) {
	base := filepath.Join(t.TempDir(), "campfire")
	// Regenerate shot 1, then accept all.
	p, _, keyframes, _, _ := newTestPipeline(t, base, Options{}, "2\n1\n1\n")

	require.NoError(t, p.Run(context.Background(), testStoryboard()))

	require.Len(t, keyframes.calls, 3)
	require.Equal(t, KeyframePath(base, 0), keyframes.calls[2].OutputPath)
}

func TestReviewAbort(t *testing.T) {
	base := filepath.Join(t.TempDir(), "campfire")
	p, _, _, clips, _ := newTestPipeline(t, base, Options{}, "3\n")

	err := p.Run(context.Background(), testStoryboard())
	require.ErrorIs(t, err, ErrAborted)
	require.Empty(t, clips.calls)

	manifest, err := LoadManifest(filepath.Join(base, "manifest.json"))
	require.NoError(t, err)
	require.Equal(t, StatusFailed, manifest.State(StageReview).Status)
}

func TestRunCrossfadeStitch(t *testing.T) {
	base := filepath.Join(t.TempDir(), "campfire")
	p, _, _, _, stitcher := newTestPipeline(t, base, Options{Auto: true, Crossfade: 0.5}, "")

	require.NoError(t, p.Run(context.Background(), testStoryboard()))

	require.Empty(t, stitcher.concats)
	require.Len(t, stitcher.crossfades, 1)
}

func TestManifestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")

	m := NewManifest("campfire")
	m.Start(StageLayouts)
	m.Complete(StageLayouts)
	m.Start(StageKeyframes)
	m.Fail(StageKeyframes, os.ErrDeadlineExceeded)
	require.NoError(t, m.Save(path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, m.RunID, loaded.RunID)
	require.True(t, loaded.IsCompleted(StageLayouts))
	require.Equal(t, 1, loaded.State(StageKeyframes).RetryCount)
	require.True(t, loaded.CanRetry(StageKeyframes, 3))
	require.False(t, loaded.CanRetry(StageKeyframes, 1))
}

func TestLoadManifestMissingFile(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "manifest.json"))
	require.NoError(t, err)
	require.Nil(t, m)
}
