package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/ffmpeg"
	"github.com/j03m/directors-chair/internal/logging"
	"github.com/j03m/directors-chair/internal/storyboard"
)

const klingEditApp = "fal-ai/kling-video/o3/standard/video-to-video/edit"

// maxEditElements is the v2v edit API's element limit.
const maxEditElements = 4

// minEditHeight is the v2v edit API's minimum clip height. Kling i2v output
// sometimes lands a few pixels short, so undersized clips are rescaled
// before upload.
const minEditHeight = 720

// Editor applies prompt-driven edits to existing clips via Kling
// video-to-video, preserving the original motion and camera.
type Editor struct {
	client queueClient
	ffmpeg *ffmpeg.Executor
	log    zerolog.Logger
}

// NewEditor returns an Editor. The ffmpeg executor handles the pre-upload
// rescale of undersized clips.
func NewEditor(client queueClient, exec *ffmpeg.Executor) *Editor {
	return &Editor{
		client: client,
		ffmpeg: exec,
		log:    logging.WithComponent("video.edit"),
	}
}

type klingEditPayload struct {
	Prompt    string         `json:"prompt"`
	VideoURL  string         `json:"video_url"`
	KeepAudio bool           `json:"keep_audio"`
	Elements  []klingElement `json:"elements,omitempty"`
}

// Edit applies prompt to the clip at videoPath and saves the result to
// outputPath. Characters become edit elements addressable as @ElementN.
func (e *Editor) Edit(ctx context.Context, prompt, videoPath, outputPath string, characters map[string]storyboard.Character, keepAudio bool) error {
	uploadPath, err := e.ffmpeg.EnsureMinHeight(ctx, videoPath, minEditHeight)
	if err != nil {
		return fmt.Errorf("failed to check clip resolution: %w", err)
	}
	if uploadPath != videoPath {
		e.log.Info().Msg("scaled clip to 720p for API compatibility")
		defer os.Remove(uploadPath)
	}

	videoURL, err := e.client.UploadFile(ctx, uploadPath)
	if err != nil {
		return fmt.Errorf("failed to upload clip: %w", err)
	}

	if len(characters) > maxEditElements {
		return fmt.Errorf("too many character elements (%d), API max is %d", len(characters), maxEditElements)
	}

	names := make([]string, 0, len(characters))
	for name := range characters {
		names = append(names, name)
	}
	sort.Strings(names)

	elements := make([]klingElement, 0, len(names))
	for _, name := range names {
		url, err := e.client.UploadFile(ctx, characters[name].ReferenceImage)
		if err != nil {
			return fmt.Errorf("failed to upload %s reference: %w", name, err)
		}
		elements = append(elements, klingElement{
			FrontalImageURL:    url,
			ReferenceImageURLs: []string{url},
		})
	}

	payload := klingEditPayload{
		Prompt:    prompt,
		VideoURL:  videoURL,
		KeepAudio: keepAudio,
		Elements:  elements,
	}

	raw, err := e.client.Subscribe(ctx, klingEditApp, payload, func(msg string) {
		e.log.Debug().Str("kling", msg).Msg("progress")
	})
	if err != nil {
		return err
	}

	var result videoResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}
	if result.videoURL() == "" {
		return fmt.Errorf("no video URL in response")
	}

	if err := e.client.DownloadFile(ctx, result.videoURL(), outputPath); err != nil {
		return fmt.Errorf("failed to download edited clip: %w", err)
	}
	return nil
}
