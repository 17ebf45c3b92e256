package video

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
	"github.com/j03m/directors-chair/internal/storyboard"
)

const wanI2VApp = "fal-ai/wan-i2v"

// WanOptions tune the WAN image-to-video request.
type WanOptions struct {
	Resolution        string
	NumFrames         int
	FPS               int
	NumInferenceSteps int
	GuideScale        float64
	Seed              *int
	NegativePrompt    string
}

// DefaultWanOptions returns the standard WAN settings.
func DefaultWanOptions() WanOptions {
	return WanOptions{
		Resolution:        "480p",
		NumFrames:         81,
		FPS:               16,
		NumInferenceSteps: 30,
		GuideScale:        5.0,
	}
}

// WanEngine generates clips via WAN image-to-video, a cheaper alternative to
// Kling without elements or audio.
type WanEngine struct {
	client queueClient
	log    zerolog.Logger
}

// NewWanEngine returns a WanEngine backed by the fal client.
func NewWanEngine(client queueClient) *WanEngine {
	return &WanEngine{
		client: client,
		log:    logging.WithComponent("video.wan"),
	}
}

type wanPayload struct {
	Prompt              string  `json:"prompt"`
	ImageURL            string  `json:"image_url"`
	Resolution          string  `json:"resolution"`
	NumFrames           int     `json:"num_frames"`
	FramesPerSecond     int     `json:"frames_per_second"`
	NumInferenceSteps   int     `json:"num_inference_steps"`
	GuideScale          float64 `json:"guide_scale"`
	EnableSafetyChecker bool    `json:"enable_safety_checker"`
	Seed                *int    `json:"seed,omitempty"`
	NegativePrompt      string  `json:"negative_prompt,omitempty"`
}

// WanClipEngine adapts WanEngine to the storyboard clip interface. WAN has
// no multi-prompt or elements support, so beat prompts are joined and
// character references are unused.
type WanClipEngine struct {
	engine *WanEngine
	opts   WanOptions
}

// NewWanClipEngine returns a beats-driven wrapper around the WAN engine.
func NewWanClipEngine(client queueClient, opts WanOptions) *WanClipEngine {
	return &WanClipEngine{engine: NewWanEngine(client), opts: opts}
}

// Generate produces a storyboard clip from the start keyframe and beats.
func (e *WanClipEngine) Generate(ctx context.Context, startImage string, beats []storyboard.Beat, characters map[string]storyboard.Character, outputPath string) error {
	prompts := make([]string, len(beats))
	for i, beat := range beats {
		prompts[i] = elementPattern.ReplaceAllString(beat.Prompt, "")
	}
	return e.engine.Generate(ctx, strings.Join(prompts, " "), startImage, outputPath, e.opts)
}

// Generate produces the clip at outputPath from the start image and prompt.
func (e *WanEngine) Generate(ctx context.Context, prompt, startImage, outputPath string, opts WanOptions) error {
	imageURL, err := e.client.UploadFile(ctx, startImage)
	if err != nil {
		return fmt.Errorf("failed to upload start image: %w", err)
	}

	payload := wanPayload{
		Prompt:              prompt,
		ImageURL:            imageURL,
		Resolution:          opts.Resolution,
		NumFrames:           opts.NumFrames,
		FramesPerSecond:     opts.FPS,
		NumInferenceSteps:   opts.NumInferenceSteps,
		GuideScale:          opts.GuideScale,
		EnableSafetyChecker: false,
		Seed:                opts.Seed,
		NegativePrompt:      opts.NegativePrompt,
	}

	raw, err := e.client.Subscribe(ctx, wanI2VApp, payload, func(msg string) {
		e.log.Debug().Str("wan", msg).Msg("progress")
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
		return fmt.Errorf("failed to download clip: %w", err)
	}
	return nil
}
