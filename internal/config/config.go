// Package config loads and saves the project configuration file
// (config/config.json): directory layout, theme definitions, and the
// LoRA/voice registries shared by every command.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is where commands look for the configuration file.
const DefaultPath = "config/config.json"

// Config holds all application configuration
type Config struct {
	Directories Directories      `json:"directories"`
	Themes      map[string]Theme `json:"themes,omitempty"`
	Loras       map[string]Lora  `json:"loras,omitempty"`
	Voices      map[string]Voice `json:"voices,omitempty"`
	System      System           `json:"system"`
	LLM         LLMConfig        `json:"llm"`
}

// Directories defines the on-disk layout for generated assets.
type Directories struct {
	Storyboards  string `json:"storyboards"`
	Videos       string `json:"videos"`
	Movies       string `json:"movies"`
	TrainingData string `json:"training_data"`
	Loras        string `json:"loras"`
	Voices       string `json:"voices"`
}

// Theme describes a character image generation preset.
type Theme struct {
	Trigger    string  `json:"trigger"`
	PromptFile string  `json:"prompt_file"`
	Count      int     `json:"count"`
	Steps      int     `json:"steps,omitempty"`
	Guidance   float64 `json:"guidance,omitempty"`
}

// Lora is a registry entry for a trained LoRA.
type Lora struct {
	Path    string  `json:"path"`
	FalURL  string  `json:"fal_url,omitempty"`
	Trigger string  `json:"trigger"`
	Type    string  `json:"type,omitempty"` // "flux" or "wan"
	Scale   float64 `json:"scale,omitempty"`
}

// Voice is a registry entry for a designed, cloned, or remixed voice.
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"` // "designed", "cloned", "remixed"
	RemixedFrom string `json:"remixed_from,omitempty"`
	Engine      string `json:"engine,omitempty"` // "elevenlabs" (default) or "hume"
}

// System holds host-specific settings.
type System struct {
	BlenderPath string `json:"blender_path,omitempty"`
}

// LLMConfig selects the provider used for layout script generation.
type LLMConfig struct {
	Provider string       `json:"provider"` // "anthropic", "google", "openai"
	Models   ModelsConfig `json:"models,omitempty"`
}

// ModelsConfig carries per-provider model overrides.
type ModelsConfig struct {
	Anthropic string `json:"anthropic,omitempty"`
	Google    string `json:"google,omitempty"`
	OpenAI    string `json:"openai,omitempty"`
}

// Load reads configuration from path, or returns defaults when the file is
// missing. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to path atomically.
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// ResolvePrompt returns the contents of prompt when it names an existing .txt
// file, otherwise the value itself.
func ResolvePrompt(prompt string) (string, error) {
	if !strings.HasSuffix(prompt, ".txt") {
		return prompt, nil
	}
	data, err := os.ReadFile(prompt)
	if err != nil {
		if os.IsNotExist(err) {
			return prompt, nil
		}
		return "", fmt.Errorf("failed to read prompt file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func defaultConfig() *Config {
	return &Config{
		Directories: Directories{
			Storyboards:  "storyboards",
			Videos:       "assets/generated/videos",
			Movies:       "assets/generated/movies",
			TrainingData: "assets/training_data",
			Loras:        "assets/loras",
			Voices:       "assets/voices",
		},
		Themes: make(map[string]Theme),
		Loras:  make(map[string]Lora),
		Voices: make(map[string]Voice),
		System: System{
			BlenderPath: "/Applications/Blender.app/Contents/MacOS/Blender",
		},
		LLM: LLMConfig{
			Provider: "anthropic",
		},
	}
}
