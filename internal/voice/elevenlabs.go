// Package voice manages character voices: designing, cloning, and remixing
// through the ElevenLabs API, and expressive acting-direction synthesis
// through Hume Octave.
package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io"

// Preview is one candidate voice returned by design or remix.
type Preview struct {
	GeneratedVoiceID string
	Path             string
	DurationSecs     float64
}

// VoiceInfo is one account voice entry.
type VoiceInfo struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ElevenLabsClient talks to the ElevenLabs REST API.
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewElevenLabsClient returns a client authenticated with apiKey.
func NewElevenLabsClient(apiKey string) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:     apiKey,
		baseURL:    elevenLabsBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        logging.WithComponent("voice.elevenlabs"),
	}
}

// WithBaseURL overrides the API endpoint, for tests.
func (c *ElevenLabsClient) WithBaseURL(url string) *ElevenLabsClient {
	c.baseURL = url
	return c
}

type previewsResponse struct {
	Previews []struct {
		AudioBase64      string  `json:"audio_base_64"`
		GeneratedVoiceID string  `json:"generated_voice_id"`
		DurationSecs     float64 `json:"duration_secs"`
		MediaType        string  `json:"media_type"`
	} `json:"previews"`
	Text string `json:"text"`
}

// Design generates voice previews from a description and saves the preview
// MP3s plus a previews.json sidecar under outputDir. When text is empty the
// API generates sample text itself.
func (c *ElevenLabsClient) Design(ctx context.Context, description, text, outputDir string) ([]Preview, error) {
	payload := map[string]any{"voice_description": description}
	if text != "" {
		payload["text"] = text
	} else {
		payload["auto_generate_text"] = true
	}

	var resp previewsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/text-to-voice/create-previews", payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to create previews: %w", err)
	}

	return c.savePreviews(resp, description, "", outputDir, "preview")
}

// Remix generates variations of an existing voice. promptStrength of 0 means
// the API default.
func (c *ElevenLabsClient) Remix(ctx context.Context, voiceID, description, text string, promptStrength float64, outputDir string) ([]Preview, error) {
	payload := map[string]any{"voice_description": description}
	if text != "" {
		payload["text"] = text
	} else {
		payload["auto_generate_text"] = true
	}
	if promptStrength > 0 {
		payload["prompt_strength"] = promptStrength
	}

	var resp previewsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/text-to-voice/"+voiceID+"/remix", payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to remix voice: %w", err)
	}

	return c.savePreviews(resp, description, voiceID, outputDir, "remix_preview")
}

func (c *ElevenLabsClient) savePreviews(resp previewsResponse, description, baseVoiceID, outputDir, prefix string) ([]Preview, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}

	type previewMeta struct {
		File             string  `json:"file"`
		GeneratedVoiceID string  `json:"generated_voice_id"`
		DurationSecs     float64 `json:"duration_secs"`
		MediaType        string  `json:"media_type"`
	}
	metadata := struct {
		BaseVoiceID string        `json:"base_voice_id,omitempty"`
		Description string        `json:"description"`
		SampleText  string        `json:"sample_text"`
		Previews    []previewMeta `json:"previews"`
	}{
		BaseVoiceID: baseVoiceID,
		Description: description,
		SampleText:  resp.Text,
	}

	previews := make([]Preview, 0, len(resp.Previews))
	for i, p := range resp.Previews {
		audio, err := base64.StdEncoding.DecodeString(p.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode preview %d audio: %w", i+1, err)
		}
		file := fmt.Sprintf("%s_%d.mp3", prefix, i+1)
		path := filepath.Join(outputDir, file)
		if err := os.WriteFile(path, audio, 0644); err != nil {
			return nil, fmt.Errorf("failed to save preview: %w", err)
		}

		metadata.Previews = append(metadata.Previews, previewMeta{
			File:             file,
			GeneratedVoiceID: p.GeneratedVoiceID,
			DurationSecs:     p.DurationSecs,
			MediaType:        p.MediaType,
		})
		previews = append(previews, Preview{
			GeneratedVoiceID: p.GeneratedVoiceID,
			Path:             path,
			DurationSecs:     p.DurationSecs,
		})
		c.log.Info().Str("preview", file).Float64("secs", p.DurationSecs).Msg("saved")
	}

	metaName := "previews.json"
	if prefix != "preview" {
		metaName = prefix + "s.json"
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preview metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, metaName), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save preview metadata: %w", err)
	}

	return previews, nil
}

// Save promotes a designed or remixed preview to a permanent voice and
// returns its voice_id.
func (c *ElevenLabsClient) Save(ctx context.Context, generatedVoiceID, name, description string) (string, error) {
	payload := map[string]string{
		"voice_name":         name,
		"voice_description":  description,
		"generated_voice_id": generatedVoiceID,
	}

	var resp struct {
		VoiceID string `json:"voice_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/text-to-voice/create-voice-from-preview", payload, &resp); err != nil {
		return "", fmt.Errorf("failed to save voice: %w", err)
	}
	return resp.VoiceID, nil
}

// Clone creates a voice from audio recordings (instant voice clone) and
// returns its voice_id.
func (c *ElevenLabsClient) Clone(ctx context.Context, name, description string, audioFiles []string, removeBackgroundNoise bool) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("name", name); err != nil {
		return "", fmt.Errorf("failed to build clone request: %w", err)
	}
	if description != "" {
		if err := w.WriteField("description", description); err != nil {
			return "", fmt.Errorf("failed to build clone request: %w", err)
		}
	}
	if removeBackgroundNoise {
		if err := w.WriteField("remove_background_noise", "true"); err != nil {
			return "", fmt.Errorf("failed to build clone request: %w", err)
		}
	}
	for _, path := range audioFiles {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", path, err)
		}
		part, err := w.CreateFormFile("files", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to attach %s: %w", path, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize clone request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/voices/add", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build clone request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	data, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("failed to clone voice: %w", err)
	}

	var resp struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to parse clone response: %w", err)
	}
	return resp.VoiceID, nil
}

// List returns all voices in the account.
func (c *ElevenLabsClient) List(ctx context.Context) ([]VoiceInfo, error) {
	var resp struct {
		Voices []VoiceInfo `json:"voices"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/voices", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}
	return resp.Voices, nil
}

// Speak synthesizes text with the given voice and saves the MP3 to
// outputPath.
func (c *ElevenLabsClient) Speak(ctx context.Context, voiceID, text, outputPath string) error {
	payload, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": "eleven_multilingual_v2",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/v1/text-to-speech/" + voiceID + "?output_format=mp3_44100_128"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	audio, err := c.do(req)
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, audio, 0644); err != nil {
		return fmt.Errorf("failed to save speech: %w", err)
	}
	c.log.Info().Str("file", filepath.Base(outputPath)).Int("kb", len(audio)/1024).Msg("speech saved")
	return nil
}

func (c *ElevenLabsClient) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	data, err := c.do(req)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func (c *ElevenLabsClient) do(req *http.Request) ([]byte, error) {
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
		return nil, fmt.Errorf("ElevenLabs API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
