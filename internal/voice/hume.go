package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
)

const humeBaseURL = "https://api.hume.ai"

// HumeClient talks to the Hume Octave TTS API. Unlike ElevenLabs, Hume takes
// per-utterance acting descriptions, which makes it the engine of choice for
// directed dialogue.
type HumeClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHumeClient returns a client authenticated with apiKey.
func NewHumeClient(apiKey string) *HumeClient {
	return &HumeClient{
		apiKey:     apiKey,
		baseURL:    humeBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        logging.WithComponent("voice.hume"),
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (c *HumeClient) WithBaseURL(url string) *HumeClient {
	c.baseURL = url
	return c
}

type humeUtterance struct {
	Text        string     `json:"text"`
	Description string     `json:"description,omitempty"`
	Voice       *humeVoice `json:"voice,omitempty"`
	Speed       float64    `json:"speed,omitempty"`
}

type humeVoice struct {
	Name string `json:"name"`
}

type humeContext struct {
	GenerationID string `json:"generation_id"`
}

type humeTTSRequest struct {
	Utterances     []humeUtterance `json:"utterances"`
	Context        *humeContext    `json:"context,omitempty"`
	NumGenerations int             `json:"num_generations,omitempty"`
	Version        string          `json:"version"`
}

type humeTTSResponse struct {
	Generations []struct {
		GenerationID string  `json:"generation_id"`
		Audio        string  `json:"audio"`
		Duration     float64 `json:"duration"`
	} `json:"generations"`
}

// HumePreview is one candidate generation from voice design.
type HumePreview struct {
	GenerationID string
	Path         string
	Duration     float64
}

// Design generates candidate voices from a description speaking the given
// text, saving preview MP3s and a previews.json sidecar under outputDir.
func (c *HumeClient) Design(ctx context.Context, description, text, outputDir string, numGenerations int) ([]HumePreview, error) {
	if numGenerations < 1 {
		numGenerations = 3
	}

	resp, err := c.synthesize(ctx, humeTTSRequest{
		Utterances:     []humeUtterance{{Text: text, Description: description}},
		NumGenerations: numGenerations,
		Version:        "1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to design voice: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}

	type previewMeta struct {
		File         string  `json:"file"`
		GenerationID string  `json:"generation_id"`
		DurationSecs float64 `json:"duration_secs"`
	}
	metadata := struct {
		Description string        `json:"description"`
		SampleText  string        `json:"sample_text"`
		Previews    []previewMeta `json:"previews"`
	}{Description: description, SampleText: text}

	previews := make([]HumePreview, 0, len(resp.Generations))
	for i, gen := range resp.Generations {
		audio, err := base64.StdEncoding.DecodeString(gen.Audio)
		if err != nil {
			return nil, fmt.Errorf("failed to decode preview %d audio: %w", i+1, err)
		}
		file := fmt.Sprintf("preview_%d.mp3", i+1)
		path := filepath.Join(outputDir, file)
		if err := os.WriteFile(path, audio, 0644); err != nil {
			return nil, fmt.Errorf("failed to save preview: %w", err)
		}

		metadata.Previews = append(metadata.Previews, previewMeta{
			File:         file,
			GenerationID: gen.GenerationID,
			DurationSecs: gen.Duration,
		})
		previews = append(previews, HumePreview{
			GenerationID: gen.GenerationID,
			Path:         path,
			Duration:     gen.Duration,
		})
		c.log.Info().Str("preview", file).Float64("secs", gen.Duration).Msg("saved")
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preview metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "previews.json"), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save preview metadata: %w", err)
	}

	return previews, nil
}

// Save promotes a design generation to a named permanent voice.
func (c *HumeClient) Save(ctx context.Context, generationID, name string) error {
	payload, err := json.Marshal(map[string]string{
		"generation_id": generationID,
		"name":          name,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v0/tts/voices", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Hume-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req); err != nil {
		return fmt.Errorf("failed to save voice: %w", err)
	}
	return nil
}

// List returns the custom voices in the account.
func (c *HumeClient) List(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v0/tts/voices?provider=CUSTOM_VOICE", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Hume-Api-Key", c.apiKey)

	data, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	var resp struct {
		VoicesPage []struct {
			Name string `json:"name"`
		} `json:"voices_page"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	names := make([]string, 0, len(resp.VoicesPage))
	for _, v := range resp.VoicesPage {
		names = append(names, v.Name)
	}
	return names, nil
}

// SpeakOptions direct a single synthesized line.
type SpeakOptions struct {
	VoiceName string
	// Direction is the acting instruction: tone, emotion, pacing.
	Direction string
	Speed     float64
	// ContextGenerationID links this line to a previous generation for
	// voice consistency.
	ContextGenerationID string
}

// Speak synthesizes one line to outputPath, with a _meta.json sidecar
// recording the generation id for later context chaining. Returns the
// generation id.
func (c *HumeClient) Speak(ctx context.Context, text, outputPath string, opts SpeakOptions) (string, error) {
	utterance := humeUtterance{Text: text, Description: opts.Direction}
	if opts.VoiceName != "" {
		utterance.Voice = &humeVoice{Name: opts.VoiceName}
	}
	if opts.Speed != 0 && opts.Speed != 1.0 {
		utterance.Speed = opts.Speed
	}

	request := humeTTSRequest{
		Utterances: []humeUtterance{utterance},
		Version:    "1",
	}
	if opts.ContextGenerationID != "" {
		request.Context = &humeContext{GenerationID: opts.ContextGenerationID}
	}

	resp, err := c.synthesize(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to generate speech: %w", err)
	}
	if len(resp.Generations) == 0 {
		return "", fmt.Errorf("no generations in response")
	}

	gen := resp.Generations[0]
	audio, err := base64.StdEncoding.DecodeString(gen.Audio)
	if err != nil {
		return "", fmt.Errorf("failed to decode audio: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, audio, 0644); err != nil {
		return "", fmt.Errorf("failed to save speech: %w", err)
	}

	meta, err := json.MarshalIndent(map[string]any{
		"text":          text,
		"voice_name":    opts.VoiceName,
		"description":   opts.Direction,
		"speed":         opts.Speed,
		"generation_id": gen.GenerationID,
		"duration":      gen.Duration,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metaPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_meta.json"
	if err := os.WriteFile(metaPath, meta, 0644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}

	c.log.Info().Str("file", filepath.Base(outputPath)).Float64("secs", gen.Duration).Msg("speech saved")
	return gen.GenerationID, nil
}

// DialogueLine is one line of directed dialogue.
type DialogueLine struct {
	Text      string
	Character string
	Direction string
	VoiceName string
	Speed     float64
}

// Dialogue synthesizes a batch of lines into outputDir as
// line_NNN_character.mp3 files and returns their paths.
func (c *HumeClient) Dialogue(ctx context.Context, lines []DialogueLine, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(lines))
	for i, line := range lines {
		character := line.Character
		if character == "" {
			character = fmt.Sprintf("character_%d", i)
		}
		outputPath := filepath.Join(outputDir, fmt.Sprintf("line_%03d_%s.mp3", i, character))

		c.log.Info().Int("line", i+1).Str("character", character).Msg("generating dialogue line")
		if _, err := c.Speak(ctx, line.Text, outputPath, SpeakOptions{
			VoiceName: line.VoiceName,
			Direction: line.Direction,
			Speed:     line.Speed,
		}); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		paths = append(paths, outputPath)
	}
	return paths, nil
}

func (c *HumeClient) synthesize(ctx context.Context, request humeTTSRequest) (*humeTTSResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v0/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Hume-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp humeTTSResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

func (c *HumeClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Hume API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
