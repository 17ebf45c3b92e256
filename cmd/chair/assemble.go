package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/j03m/directors-chair/internal/config"
	"github.com/j03m/directors-chair/internal/ffmpeg"
	"github.com/j03m/directors-chair/internal/pipeline"
	"github.com/j03m/directors-chair/internal/prompt"
)

const (
	movieWidth  = 1280
	movieHeight = 720
)

func newAssembleCmd() *cobra.Command {
	var (
		clips     []string
		movieName string
	)

	cmd := &cobra.Command{
		Use:   "assemble [storyboard...]",
		Short: "Assemble finished storyboard videos into a movie",
		Long: "Joins the final videos of completed storyboards, in the order given, " +
			"re-encoding everything to a common resolution. With no arguments the " +
			"storyboards are picked interactively.",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := clips
			if len(names) == 0 {
				names = args
			}
			return runAssemble(cmd.Context(), names, movieName)
		},
	}

	cmd.Flags().StringSliceVar(&clips, "clips", nil, "storyboard names to join, in order")
	cmd.Flags().StringVar(&movieName, "name", "movie", "output movie name")
	return cmd
}

// finalVideos lists storyboards with a stitched final video.
func finalVideos(cfg *config.Config) (map[string]string, error) {
	entries, err := os.ReadDir(cfg.Directories.Videos)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.Directories.Videos, err)
	}

	available := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		final := pipeline.FinalPath(filepath.Join(cfg.Directories.Videos, entry.Name()), entry.Name())
		if _, err := os.Stat(final); err == nil {
			available[entry.Name()] = final
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("no completed storyboard videos found under %s", cfg.Directories.Videos)
	}
	return available, nil
}

func runAssemble(ctx context.Context, names []string, movieName string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	available, err := finalVideos(cfg)
	if err != nil {
		return err
	}

	var clips []string
	if len(names) > 0 {
		for _, name := range names {
			path, ok := available[name]
			if !ok {
				return fmt.Errorf("no final video for storyboard %q", name)
			}
			clips = append(clips, path)
		}
	} else {
		clips, err = pickClips(available)
		if err != nil {
			return err
		}
	}
	if len(clips) < 2 {
		return fmt.Errorf("need at least 2 videos to assemble, got %d", len(clips))
	}

	if err := os.MkdirAll(cfg.Directories.Movies, 0755); err != nil {
		return fmt.Errorf("failed to create movies directory: %w", err)
	}
	output := filepath.Join(cfg.Directories.Movies, movieName+".mp4")

	exec, err := ffmpeg.NewExecutor()
	if err != nil {
		return err
	}
	if err := exec.Assemble(ctx, clips, output, movieWidth, movieHeight); err != nil {
		return err
	}

	fmt.Printf("Movie assembled: %s\n", output)
	return nil
}

// pickClips asks for storyboards one at a time; the same video may appear
// more than once.
func pickClips(available map[string]string) ([]string, error) {
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)
	options := append(names, "Done")

	prompter := prompt.New()
	var clips []string
	for {
		idx, err := prompter.Select(fmt.Sprintf("Clip %d", len(clips)+1), options)
		if err != nil {
			return nil, err
		}
		if idx == len(names) {
			return clips, nil
		}
		clips = append(clips, available[names[idx]])
	}
}
