package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.5-pro"

// Provider generates text via Google Gemini
type Provider struct {
	client *genai.Client
	model  string
}

// NewProvider creates a new Gemini provider
func NewProvider(ctx context.Context, apiKey, model string) (*Provider, error) {
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{
		client: client,
		model:  model,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "gemini"
}

// Generate sends a single system + user prompt and returns the text response
func (p *Provider) Generate(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		},
	}

	chat, err := p.client.Chats.Create(ctx, p.model, config, []*genai.Content{})
	if err != nil {
		return "", fmt.Errorf("failed to create chat: %w", err)
	}

	response, err := chat.SendMessage(ctx, *genai.NewPartFromText(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	text := response.Text()
	if text == "" {
		return "", fmt.Errorf("no text content in Gemini response")
	}
	return text, nil
}
