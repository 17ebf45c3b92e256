package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/j03m/directors-chair/internal/config"
	"github.com/j03m/directors-chair/internal/generate"
	"github.com/j03m/directors-chair/internal/prompt"
)

func newVariationsCmd() *cobra.Command {
	var (
		image      string
		promptText string
		count      int
		strength   float64
	)

	cmd := &cobra.Command{
		Use:   "variations",
		Short: "Generate img2img variations of a training image",
		Long: "Multiplies one reference image into a consistent character dataset " +
			"for LoRA training via fal Flux img2img. The prompt defaults to the " +
			"reference's caption sidecar; outputs extend the same dataset directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVariations(cmd.Context(), image, promptText, count, strength)
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "reference image (picked interactively when omitted)")
	cmd.Flags().StringVar(&promptText, "prompt", "", "character description (default: the reference's sidecar)")
	cmd.Flags().IntVar(&count, "count", generate.DefaultVariationCount, "number of variations")
	cmd.Flags().Float64Var(&strength, "strength", generate.DefaultVariationStrength, "variation strength, 0.3 subtle to 0.9 dramatic")
	return cmd
}

func runVariations(ctx context.Context, image, promptText string, count int, strength float64) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompter := prompt.New()

	if image == "" {
		image, err = pickTrainingImage(cfg, prompter)
		if err != nil {
			return err
		}
	}
	if _, err := os.Stat(image); err != nil {
		return fmt.Errorf("reference image not found: %s", image)
	}

	if promptText == "" {
		promptText = generate.SidecarPrompt(image)
	}
	if promptText == "" {
		promptText, err = prompter.Input("Character description")
		if err != nil || promptText == "" {
			return err
		}
	}

	falClient, err := newFalClient()
	if err != nil {
		return err
	}
	err = generate.NewGenerator(falClient).Variations(ctx, generate.VariationsJob{
		ReferenceImage: image,
		Prompt:         promptText,
		Count:          count,
		Strength:       strength,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Variations saved to %s\n", filepath.Dir(image))
	fmt.Println("Review and delete bad ones before training.")
	return nil
}

// pickTrainingImage lists the images under the training data datasets.
func pickTrainingImage(cfg *config.Config, prompter *prompt.Prompter) (string, error) {
	root := cfg.Directories.TrainingData

	var images []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".png", ".jpg", ".jpeg":
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if len(images) == 0 {
		return "", fmt.Errorf("no images found under %s, generate a hero image first", root)
	}
	sort.Strings(images)

	options := make([]string, len(images))
	for i, img := range images {
		rel, err := filepath.Rel(root, img)
		if err != nil {
			rel = img
		}
		options[i] = rel
	}
	idx, err := prompter.Select("Select reference image", options)
	if err != nil {
		return "", err
	}
	return images[idx], nil
}
