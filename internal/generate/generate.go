// Package generate produces character training images from config themes via
// fal Flux, with the caption and metadata sidecars LoRA trainers expect.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
)

const (
	fluxApp     = "fal-ai/flux/dev"
	fluxLoraApp = "fal-ai/flux-lora"

	defaultSteps    = 25
	defaultGuidance = 3.5

	// The flux endpoints cap inference steps at 50; higher configured
	// values fall back to the model default.
	maxSteps      = 50
	fallbackSteps = 28
)

// queueClient is the subset of the fal client the generator uses.
type queueClient interface {
	Subscribe(ctx context.Context, app string, payload any, onLog func(string)) (json.RawMessage, error)
	UploadFile(ctx context.Context, path string) (string, error)
	DownloadFile(ctx context.Context, url, destPath string) error
}

// LoraRef points a request at a trained LoRA.
type LoraRef struct {
	Path  string  `json:"path"`
	Scale float64 `json:"scale"`
}

// Job describes one theme generation run.
type Job struct {
	// Name is the subject name, combined with the trigger into the prompt.
	Name      string
	Trigger   string
	Prompt    string
	Count     int
	Steps     int
	Guidance  float64
	Loras     []LoraRef
	OutputDir string
}

// Generator produces theme images.
type Generator struct {
	client queueClient
	log    zerolog.Logger
	// seedFn is swappable for tests.
	seedFn func() int64
}

// NewGenerator returns a Generator backed by the fal client.
func NewGenerator(client queueClient) *Generator {
	return &Generator{
		client: client,
		log:    logging.WithComponent("generate"),
		seedFn: func() int64 { return rand.Int63n(1 << 32) },
	}
}

type fluxPayload struct {
	Prompt              string    `json:"prompt"`
	NumInferenceSteps   int       `json:"num_inference_steps"`
	GuidanceScale       float64   `json:"guidance_scale"`
	Seed                int64     `json:"seed"`
	EnableSafetyChecker bool      `json:"enable_safety_checker"`
	OutputFormat        string    `json:"output_format"`
	ImageSize           string    `json:"image_size"`
	Loras               []LoraRef `json:"loras,omitempty"`
}

type fluxResult struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Seed int64 `json:"seed"`
}

// Run generates job.Count images as <name>-<i>.png with <name>-<i>.txt
// caption and <name>-<i>.json metadata sidecars.
func (g *Generator) Run(ctx context.Context, job Job) error {
	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	steps := job.Steps
	if steps <= 0 {
		steps = defaultSteps
	}
	if steps > maxSteps {
		steps = fallbackSteps
	}
	guidance := job.Guidance
	if guidance <= 0 {
		guidance = defaultGuidance
	}

	app := fluxApp
	if len(job.Loras) > 0 {
		app = fluxLoraApp
	}

	fullPrompt := fmt.Sprintf("%s %s, %s", job.Trigger, job.Name, job.Prompt)
	g.log.Info().Str("app", app).Int("count", job.Count).Str("prompt", fullPrompt).Msg("generating theme images")

	for i := 0; i < job.Count; i++ {
		seed := g.seedFn()
		payload := fluxPayload{
			Prompt:              fullPrompt,
			NumInferenceSteps:   steps,
			GuidanceScale:       guidance,
			Seed:                seed,
			EnableSafetyChecker: false,
			OutputFormat:        "png",
			ImageSize:           "square_hd",
			Loras:               job.Loras,
		}

		raw, err := g.client.Subscribe(ctx, app, payload, func(msg string) {
			g.log.Debug().Str("flux", msg).Msg("progress")
		})
		if err != nil {
			return fmt.Errorf("image %d: %w", i+1, err)
		}

		var result fluxResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("image %d: failed to parse result: %w", i+1, err)
		}
		if len(result.Images) == 0 || result.Images[0].URL == "" {
			return fmt.Errorf("image %d: no image in response", i+1)
		}

		base := filepath.Join(job.OutputDir, fmt.Sprintf("%s-%d", job.Name, i))
		if err := g.client.DownloadFile(ctx, result.Images[0].URL, base+".png"); err != nil {
			return fmt.Errorf("image %d: failed to download: %w", i+1, err)
		}

		// Caption file used by LoRA trainers.
		if err := os.WriteFile(base+".txt", []byte(fullPrompt), 0644); err != nil {
			return fmt.Errorf("image %d: failed to save caption: %w", i+1, err)
		}

		meta, err := json.MarshalIndent(map[string]any{
			"prompt":   fullPrompt,
			"seed":     seed,
			"steps":    steps,
			"guidance": guidance,
			"app":      app,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("image %d: failed to marshal metadata: %w", i+1, err)
		}
		if err := os.WriteFile(base+".json", meta, 0644); err != nil {
			return fmt.Errorf("image %d: failed to save metadata: %w", i+1, err)
		}

		g.log.Info().Int("image", i+1).Int("total", job.Count).Int64("seed", seed).Msg("saved")
	}

	return nil
}
