package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/j03m/directors-chair/internal/config"
	"github.com/j03m/directors-chair/internal/generate"
	"github.com/j03m/directors-chair/internal/prompt"
)

func newGenerateCmd() *cobra.Command {
	var (
		theme    string
		count    int
		loraName string
		auto     bool
	)

	cmd := &cobra.Command{
		Use:   "generate [theme]",
		Short: "Generate character training images from a config theme",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := theme
			if key == "" && len(args) > 0 {
				key = args[0]
			}
			return runGenerate(cmd.Context(), key, count, loraName, auto)
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "", "theme key from config (picked interactively when omitted)")
	cmd.Flags().IntVar(&count, "count", 0, "override the theme's image count")
	cmd.Flags().StringVar(&loraName, "lora", "", "apply a registered LoRA by name")
	cmd.Flags().BoolVar(&auto, "auto", false, "never prompt, fail when --theme is missing")
	return cmd
}

func runGenerate(ctx context.Context, themeKey string, count int, loraName string, auto bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if themeKey == "" {
		if auto {
			return fmt.Errorf("--theme is required with --auto")
		}
		keys := make([]string, 0, len(cfg.Themes))
		for k := range cfg.Themes {
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			return fmt.Errorf("no themes defined in config")
		}
		sort.Strings(keys)
		idx, err := prompt.New().Select("Select theme", keys)
		if err != nil {
			return err
		}
		themeKey = keys[idx]
	}

	theme, ok := cfg.Themes[themeKey]
	if !ok {
		return fmt.Errorf("theme %q not found in config", themeKey)
	}

	promptText, err := config.ResolvePrompt(theme.PromptFile)
	if err != nil {
		return err
	}

	// Theme keys follow <trigger>_<name>; the subject name is the tail.
	parts := strings.Split(themeKey, "_")
	name := parts[len(parts)-1]

	job := generate.Job{
		Name:      name,
		Trigger:   theme.Trigger,
		Prompt:    promptText,
		Count:     theme.Count,
		Steps:     theme.Steps,
		Guidance:  theme.Guidance,
		OutputDir: filepath.Join(cfg.Directories.TrainingData, themeKey),
	}
	if count > 0 {
		job.Count = count
	}
	if job.Count <= 0 {
		job.Count = 20
	}

	if loraName != "" {
		lora, ok := cfg.Loras[loraName]
		if !ok {
			return fmt.Errorf("LoRA %q not found in config", loraName)
		}
		path := lora.FalURL
		if path == "" {
			path = lora.Path
		}
		scale := lora.Scale
		if scale <= 0 {
			scale = 1.0
		}
		job.Loras = []generate.LoraRef{{Path: path, Scale: scale}}
		job.Trigger = lora.Trigger
	}

	falClient, err := newFalClient()
	if err != nil {
		return err
	}
	if err := generate.NewGenerator(falClient).Run(ctx, job); err != nil {
		return err
	}

	fmt.Printf("Images saved to %s\n", job.OutputDir)
	return nil
}
