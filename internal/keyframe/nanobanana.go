package keyframe

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
)

const nanoBananaApp = "fal-ai/nano-banana-pro/edit"

// NanoBananaEngine generates keyframes via Nano Banana Pro (Gemini) image
// editing: the composition and character references are passed as a list of
// images the prompt addresses by position.
type NanoBananaEngine struct {
	client queueClient
	log    zerolog.Logger
}

// NewNanoBananaEngine returns a NanoBananaEngine backed by the fal client.
func NewNanoBananaEngine(client queueClient) *NanoBananaEngine {
	return &NanoBananaEngine{
		client: client,
		log:    logging.WithComponent("keyframe.nano-banana"),
	}
}

// Name returns the engine name.
func (e *NanoBananaEngine) Name() string { return "nano-banana" }

type nanoBananaPayload struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls"`
	AspectRatio  string   `json:"aspect_ratio"`
	Resolution   string   `json:"resolution"`
	OutputFormat string   `json:"output_format"`
	NumImages    int      `json:"num_images"`
}

// Generate produces the keyframe at req.OutputPath. With req.NumImages > 1,
// variants are saved alongside it with _v1, _v2 suffixes for review.
func (e *NanoBananaEngine) Generate(ctx context.Context, req Request) error {
	compURL, err := e.client.UploadFile(ctx, req.CompImage)
	if err != nil {
		return fmt.Errorf("failed to upload composition: %w", err)
	}

	imageURLs := []string{compURL}
	for _, ref := range req.Characters {
		url, err := e.client.UploadFile(ctx, ref.Character.ReferenceImage)
		if err != nil {
			return fmt.Errorf("failed to upload %s reference: %w", ref.Name, err)
		}
		imageURLs = append(imageURLs, url)
	}

	numImages := req.NumImages
	if numImages < 1 {
		numImages = 1
	}

	payload := nanoBananaPayload{
		Prompt:       buildNanoBananaPrompt(req.Prompt, req.Characters),
		ImageURLs:    imageURLs,
		AspectRatio:  req.Params.AspectRatioOrDefault(),
		Resolution:   req.Params.ResolutionOrDefault(),
		OutputFormat: "png",
		NumImages:    numImages,
	}

	e.log.Info().Int("images", len(imageURLs)).Int("variants", numImages).Msg("generating keyframe")
	raw, err := e.client.Subscribe(ctx, nanoBananaApp, payload, func(msg string) {
		e.log.Debug().Str("gemini", msg).Msg("progress")
	})
	if err != nil {
		return err
	}

	var result imageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return fmt.Errorf("no image in response")
	}

	if numImages == 1 {
		if err := e.client.DownloadFile(ctx, result.Images[0].URL, req.OutputPath); err != nil {
			return fmt.Errorf("failed to download keyframe: %w", err)
		}
		return nil
	}

	ext := filepath.Ext(req.OutputPath)
	base := strings.TrimSuffix(req.OutputPath, ext)
	for i, img := range result.Images {
		if img.URL == "" {
			continue
		}
		vpath := fmt.Sprintf("%s_v%d%s", base, i+1, ext)
		if err := e.client.DownloadFile(ctx, img.URL, vpath); err != nil {
			return fmt.Errorf("failed to download variant %d: %w", i+1, err)
		}
		e.log.Info().Str("variant", filepath.Base(vpath)).Msg("saved")
	}
	e.log.Info().Str("target", filepath.Base(req.OutputPath)).Msg("review variants and rename your pick")
	return nil
}

// buildNanoBananaPrompt prepends the image-role preamble and translates
// @Image1/@ElementN references into positional ones: image 1 is the
// composition, characters start at image 2 in order.
func buildNanoBananaPrompt(prompt string, characters []CharacterRef) string {
	parts := []string{
		"You are given multiple reference images.",
		"Image 1 is a composition layout showing character positions and camera angle.",
	}
	for i, ref := range characters {
		desc := ref.Character.Description
		if desc == "" {
			desc = ref.Name
		}
		parts = append(parts, fmt.Sprintf("Image %d is a reference photo of %s: %s.", i+2, ref.Name, desc))
	}
	parts = append(parts,
		"Generate a single photorealistic cinematic image that matches the composition "+
			"layout from image 1, featuring the characters from the reference images in their "+
			"correct positions. Each character must closely match their reference photo.")

	return strings.Join(parts, " ") + "\n\n" + translatePrompt(prompt, characters)
}

func translatePrompt(prompt string, characters []CharacterRef) string {
	prompt = strings.ReplaceAll(prompt, "@Image1", "image 1 (the composition layout)")
	for i := range characters {
		prompt = strings.ReplaceAll(prompt,
			fmt.Sprintf("@Element%d", i+1),
			fmt.Sprintf("the character from image %d", i+2))
	}
	return prompt
}
