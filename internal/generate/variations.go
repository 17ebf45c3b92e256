package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fluxI2IApp = "fal-ai/flux/dev/image-to-image"

const (
	// DefaultVariationCount is how many variations one run produces.
	DefaultVariationCount = 12
	// DefaultVariationStrength keeps the character recognizable while
	// changing pose and framing.
	DefaultVariationStrength = 0.6
)

// VariationsJob describes an img2img run that multiplies one reference image
// into a consistent LoRA training set.
type VariationsJob struct {
	ReferenceImage string
	Prompt         string
	Count          int
	// Strength is the img2img denoise amount, 0.3 subtle to 0.9 dramatic.
	Strength  float64
	OutputDir string
}

type fluxI2IPayload struct {
	ImageURL            string  `json:"image_url"`
	Prompt              string  `json:"prompt"`
	Strength            float64 `json:"strength"`
	NumInferenceSteps   int     `json:"num_inference_steps"`
	GuidanceScale       float64 `json:"guidance_scale"`
	Seed                int64   `json:"seed"`
	EnableSafetyChecker bool    `json:"enable_safety_checker"`
	OutputFormat        string  `json:"output_format"`
}

// Variations generates job.Count img2img variations of the reference image,
// numbered after the images already in the output directory so repeated runs
// extend the dataset instead of overwriting it.
func (g *Generator) Variations(ctx context.Context, job VariationsJob) error {
	if job.Count <= 0 {
		job.Count = DefaultVariationCount
	}
	if job.Strength <= 0 {
		job.Strength = DefaultVariationStrength
	}
	if job.OutputDir == "" {
		job.OutputDir = filepath.Dir(job.ReferenceImage)
	}
	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	start, err := countImages(job.OutputDir)
	if err != nil {
		return err
	}
	prefix := variationPrefix(job.ReferenceImage)

	imageURL, err := g.client.UploadFile(ctx, job.ReferenceImage)
	if err != nil {
		return fmt.Errorf("failed to upload reference image: %w", err)
	}
	g.log.Info().Str("reference", filepath.Base(job.ReferenceImage)).
		Int("count", job.Count).Float64("strength", job.Strength).Msg("generating variations")

	for i := 0; i < job.Count; i++ {
		seed := g.seedFn()
		payload := fluxI2IPayload{
			ImageURL:            imageURL,
			Prompt:              job.Prompt,
			Strength:            job.Strength,
			NumInferenceSteps:   fallbackSteps,
			GuidanceScale:       defaultGuidance,
			Seed:                seed,
			EnableSafetyChecker: false,
			OutputFormat:        "png",
		}

		raw, err := g.client.Subscribe(ctx, fluxI2IApp, payload, func(msg string) {
			g.log.Debug().Str("flux", msg).Msg("progress")
		})
		if err != nil {
			return fmt.Errorf("variation %d: %w", i+1, err)
		}

		var result fluxResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("variation %d: failed to parse result: %w", i+1, err)
		}
		if len(result.Images) == 0 || result.Images[0].URL == "" {
			return fmt.Errorf("variation %d: no image in response", i+1)
		}

		base := filepath.Join(job.OutputDir, fmt.Sprintf("%s-%d", prefix, start+i))
		if err := g.client.DownloadFile(ctx, result.Images[0].URL, base+".png"); err != nil {
			return fmt.Errorf("variation %d: failed to download: %w", i+1, err)
		}
		if err := os.WriteFile(base+".txt", []byte(job.Prompt), 0644); err != nil {
			return fmt.Errorf("variation %d: failed to save caption: %w", i+1, err)
		}

		meta, err := json.MarshalIndent(map[string]any{
			"prompt":          job.Prompt,
			"seed":            seed,
			"strength":        job.Strength,
			"reference_image": job.ReferenceImage,
			"generator":       fluxI2IApp,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("variation %d: failed to marshal metadata: %w", i+1, err)
		}
		if err := os.WriteFile(base+".json", meta, 0644); err != nil {
			return fmt.Errorf("variation %d: failed to save metadata: %w", i+1, err)
		}

		g.log.Info().Int("variation", i+1).Int("total", job.Count).Int64("seed", seed).Msg("saved")
	}

	return nil
}

// SidecarPrompt returns the prompt recorded next to an image, checking the
// .txt caption first and then the .json metadata.
func SidecarPrompt(imagePath string) string {
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))

	if data, err := os.ReadFile(base + ".txt"); err == nil {
		return strings.TrimSpace(string(data))
	}
	if data, err := os.ReadFile(base + ".json"); err == nil {
		var meta struct {
			Prompt string `json:"prompt"`
		}
		if json.Unmarshal(data, &meta) == nil {
			return meta.Prompt
		}
	}
	return ""
}

func countImages(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".png", ".jpg", ".jpeg":
			n++
		}
	}
	return n, nil
}

// variationPrefix derives the dataset's file name prefix from the reference
// image, so gorilla-0.png yields gorilla-12.png rather than gorilla-0-0.png.
func variationPrefix(imagePath string) string {
	name := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	if i := strings.Index(name, "-"); i > 0 {
		return name[:i]
	}
	return name
}
