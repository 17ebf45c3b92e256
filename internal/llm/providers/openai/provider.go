package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const defaultModel = openai.GPT4o

// Provider generates text via OpenAI
type Provider struct {
	client *openai.Client
	model  string
}

// NewProvider creates a new OpenAI provider
func NewProvider(apiKey, model string) *Provider {
	if model == "" {
		model = defaultModel
	}

	clientConfig := openai.DefaultConfig(apiKey)
	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openai"
}

// Generate sends a single system + user prompt and returns the text response
func (p *Provider) Generate(ctx context.Context, system, prompt string) (string, error) {
	response, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	return response.Choices[0].Message.Content, nil
}
