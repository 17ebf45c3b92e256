package keyframe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
	"github.com/j03m/directors-chair/internal/storyboard"
)

const klingImageApp = "fal-ai/kling-image/o3/image-to-image"

// KlingEngine generates keyframes via Kling O3 image-to-image, using
// character references as elements.
type KlingEngine struct {
	client queueClient
	log    zerolog.Logger
}

// NewKlingEngine returns a KlingEngine backed by the fal client.
func NewKlingEngine(client queueClient) *KlingEngine {
	return &KlingEngine{
		client: client,
		log:    logging.WithComponent("keyframe.kling"),
	}
}

// Name returns the engine name.
func (e *KlingEngine) Name() string { return "kling" }

type klingElement struct {
	FrontalImageURL    string   `json:"frontal_image_url"`
	ReferenceImageURLs []string `json:"reference_image_urls"`
}

type klingImagePayload struct {
	Prompt      string         `json:"prompt"`
	ImageURLs   []string       `json:"image_urls"`
	Elements    []klingElement `json:"elements"`
	AspectRatio string         `json:"aspect_ratio"`
	Resolution  string         `json:"resolution"`
}

// Generate produces the keyframe at req.OutputPath. Single-pass mode uses
// req.Prompt with all characters as elements; multi-pass mode chains each
// pass's result into the next, starting from the composition render.
func (e *KlingEngine) Generate(ctx context.Context, req Request) error {
	compURL, err := e.client.UploadFile(ctx, req.CompImage)
	if err != nil {
		return fmt.Errorf("failed to upload composition: %w", err)
	}

	var resultURL string
	if len(req.Passes) > 0 {
		resultURL, err = e.runPasses(ctx, compURL, req)
	} else {
		resultURL, err = e.runSinglePass(ctx, compURL, req)
	}
	if err != nil {
		return err
	}

	if err := e.client.DownloadFile(ctx, resultURL, req.OutputPath); err != nil {
		return fmt.Errorf("failed to download keyframe: %w", err)
	}
	return nil
}

func (e *KlingEngine) runSinglePass(ctx context.Context, compURL string, req Request) (string, error) {
	if len(req.Characters) > storyboard.MaxElementsPerPass {
		return "", fmt.Errorf("%d characters but Kling supports max %d elements per pass, use keyframe_passes",
			len(req.Characters), storyboard.MaxElementsPerPass)
	}

	elements, err := e.uploadElements(ctx, req.Characters)
	if err != nil {
		return "", err
	}
	return e.runI2I(ctx, req.Prompt, compURL, elements, req.Params)
}

func (e *KlingEngine) runPasses(ctx context.Context, compURL string, req Request) (string, error) {
	byName := make(map[string]storyboard.Character, len(req.Characters))
	for _, ref := range req.Characters {
		byName[ref.Name] = ref.Character
	}

	resultURL := compURL
	for i, pass := range req.Passes {
		if len(pass.Characters) > storyboard.MaxElementsPerPass {
			return "", fmt.Errorf("pass %d: max %d characters per pass, got %d",
				i+1, storyboard.MaxElementsPerPass, len(pass.Characters))
		}

		refs := make([]CharacterRef, 0, len(pass.Characters))
		for _, name := range pass.Characters {
			c, ok := byName[name]
			if !ok {
				return "", fmt.Errorf("pass %d: unknown character %q", i+1, name)
			}
			refs = append(refs, CharacterRef{Name: name, Character: c})
		}

		elements, err := e.uploadElements(ctx, refs)
		if err != nil {
			return "", fmt.Errorf("pass %d: %w", i+1, err)
		}

		e.log.Info().Int("pass", i+1).Int("total", len(req.Passes)).Strs("characters", pass.Characters).Msg("running keyframe pass")
		resultURL, err = e.runI2I(ctx, pass.Prompt, resultURL, elements, req.Params)
		if err != nil {
			return "", fmt.Errorf("pass %d: %w", i+1, err)
		}
	}
	return resultURL, nil
}

func (e *KlingEngine) uploadElements(ctx context.Context, refs []CharacterRef) ([]klingElement, error) {
	elements := make([]klingElement, 0, len(refs))
	for _, ref := range refs {
		url, err := e.client.UploadFile(ctx, ref.Character.ReferenceImage)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s reference: %w", ref.Name, err)
		}
		elements = append(elements, klingElement{
			FrontalImageURL:    url,
			ReferenceImageURLs: []string{url},
		})
	}
	return elements, nil
}

func (e *KlingEngine) runI2I(ctx context.Context, prompt, imageURL string, elements []klingElement, params storyboard.KlingParams) (string, error) {
	payload := klingImagePayload{
		Prompt:      prompt,
		ImageURLs:   []string{imageURL},
		Elements:    elements,
		AspectRatio: params.AspectRatioOrDefault(),
		Resolution:  params.ResolutionOrDefault(),
	}

	raw, err := e.client.Subscribe(ctx, klingImageApp, payload, func(msg string) {
		e.log.Debug().Str("kling", msg).Msg("progress")
	})
	if err != nil {
		return "", err
	}

	var result imageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to parse result: %w", err)
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return "", fmt.Errorf("no image in response")
	}
	return result.Images[0].URL, nil
}
