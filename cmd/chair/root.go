package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/j03m/directors-chair/internal/config"
	"github.com/j03m/directors-chair/internal/fal"
	"github.com/j03m/directors-chair/internal/logging"
	"github.com/j03m/directors-chair/internal/prompt"
	"github.com/j03m/directors-chair/internal/storyboard"
)

var (
	flagConfig  string
	flagVerbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chair",
		Short:        "Director's Chair — storyboard-driven AI video production",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(flagVerbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultPath, "path to config file")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStoryboardCmd(),
		newGenerateCmd(),
		newVariationsCmd(),
		newAssembleCmd(),
		newEditClipCmd(),
		newEditKeyframeCmd(),
		newRegenClipCmd(),
		newVoiceCmd(),
		newTrainCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}

// newFalClient builds the fal.ai client from the FAL_KEY environment
// variable.
func newFalClient() (*fal.Client, error) {
	key := os.Getenv("FAL_KEY")
	if key == "" {
		return nil, fmt.Errorf("FAL_KEY not set")
	}
	return fal.NewClient(key), nil
}

// loadStoryboard loads and validates a storyboard. When path is empty the
// user picks one from the storyboards directory.
func loadStoryboard(cfg *config.Config, prompter *prompt.Prompter, path string) (*storyboard.Storyboard, error) {
	if path == "" {
		var err error
		path, err = pickStoryboardFile(cfg, prompter)
		if err != nil {
			return nil, err
		}
	}

	sb, err := storyboard.Load(path)
	if err != nil {
		return nil, err
	}

	if errs := sb.Validate(); len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "Storyboard validation failed:")
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		return nil, fmt.Errorf("storyboard has %d problem(s)", len(errs))
	}
	return sb, nil
}

func pickStoryboardFile(cfg *config.Config, prompter *prompt.Prompter) (string, error) {
	dir := cfg.Directories.Storyboards

	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no storyboard JSON files found in %s", dir)
	}
	sort.Strings(files)

	idx, err := prompter.Select("Select storyboard", files)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, files[idx]), nil
}

// outputBase returns the per-storyboard output directory.
func outputBase(cfg *config.Config, name string) string {
	return filepath.Join(cfg.Directories.Videos, name)
}
