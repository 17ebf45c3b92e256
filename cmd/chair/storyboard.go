package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/j03m/directors-chair/internal/ffmpeg"
	"github.com/j03m/directors-chair/internal/keyframe"
	"github.com/j03m/directors-chair/internal/layout"
	"github.com/j03m/directors-chair/internal/llm"
	"github.com/j03m/directors-chair/internal/pipeline"
	"github.com/j03m/directors-chair/internal/prompt"
	"github.com/j03m/directors-chair/internal/video"
)

func newStoryboardCmd() *cobra.Command {
	var (
		file          string
		auto          bool
		keyframesOnly bool
		crossfade     float64
		fps           int
		videoEngine   string
	)

	cmd := &cobra.Command{
		Use:   "storyboard [file]",
		Short: "Run a storyboard through layouts, keyframes, clips, and stitch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			return runStoryboard(cmd.Context(), path, videoEngine, pipeline.Options{
				Auto:          auto,
				KeyframesOnly: keyframesOnly,
				Crossfade:     crossfade,
				FPS:           fps,
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "storyboard JSON file (picked interactively when omitted)")
	cmd.Flags().BoolVar(&auto, "auto", false, "skip the interactive keyframe review")
	cmd.Flags().BoolVar(&keyframesOnly, "keyframes-only", false, "stop after keyframe review")
	cmd.Flags().Float64Var(&crossfade, "crossfade", 0, "crossfade seconds between clips (0 = hard cut)")
	cmd.Flags().IntVar(&fps, "fps", 24, "output frame rate for crossfade stitching")
	cmd.Flags().StringVar(&videoEngine, "video-engine", "kling", "clip engine: kling or wan")
	return cmd
}

func runStoryboard(ctx context.Context, path, videoEngine string, opts pipeline.Options) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	prompter := prompt.New()
	sb, err := loadStoryboard(cfg, prompter, path)
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}
	falClient, err := newFalClient()
	if err != nil {
		return err
	}
	exec, err := ffmpeg.NewExecutor()
	if err != nil {
		return err
	}

	var kfEngine keyframe.Engine
	if sb.KeyframeEngine == "nano-banana" {
		kfEngine = keyframe.NewNanoBananaEngine(falClient)
	} else {
		kfEngine = keyframe.NewKlingEngine(falClient)
	}

	var clipEngine pipeline.ClipEngine
	switch videoEngine {
	case "", "kling":
		clipEngine = video.NewKlingEngine(falClient, sb.KlingParams)
	case "wan":
		clipEngine = video.NewWanClipEngine(falClient, video.DefaultWanOptions())
	default:
		return fmt.Errorf("unknown video engine %q (kling or wan)", videoEngine)
	}

	p := pipeline.New(
		layout.NewGenerator(provider, cfg.System.BlenderPath),
		kfEngine,
		clipEngine,
		exec,
		prompter,
		outputBase(cfg, sb.Name),
		opts,
	)
	return p.Run(ctx, sb)
}
