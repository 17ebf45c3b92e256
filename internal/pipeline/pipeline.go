// Package pipeline drives a storyboard through layout render, keyframe
// generation, interactive review, clip generation, and stitching. Every stage
// skips work whose output already exists, so an interrupted run picks up
// where it left off.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/keyframe"
	"github.com/j03m/directors-chair/internal/logging"
	"github.com/j03m/directors-chair/internal/prompt"
	"github.com/j03m/directors-chair/internal/storyboard"
)

// ErrAborted is returned when the user aborts at the keyframe review.
var ErrAborted = errors.New("aborted at keyframe review")

const defaultMaxRetries = 3

// LayoutGenerator renders a layout frame for a shot.
type LayoutGenerator interface {
	Generate(ctx context.Context, layoutPrompt string, characters map[string]storyboard.Character, outputPath string) error
}

// ClipEngine turns a keyframe and beats into a video clip.
type ClipEngine interface {
	Generate(ctx context.Context, startImage string, beats []storyboard.Beat, characters map[string]storyboard.Character, outputPath string) error
}

// Stitcher joins clips into the final video.
type Stitcher interface {
	Concat(ctx context.Context, clips []string, output string) error
	Crossfade(ctx context.Context, clips []string, output string, crossfade float64, fps int) error
}

// Options control a run.
type Options struct {
	// Auto skips the interactive keyframe review.
	Auto bool
	// KeyframesOnly stops the run after the review stage.
	KeyframesOnly bool
	// Crossfade is the transition length in seconds; 0 means hard cuts.
	Crossfade float64
	// FPS is the output frame rate for crossfade re-encoding.
	FPS int
	// MaxRetries caps how often a failing stage may be re-run across
	// resumes. Zero means the default.
	MaxRetries int
}

// Pipeline runs one storyboard end to end.
type Pipeline struct {
	layouts   LayoutGenerator
	keyframes keyframe.Engine
	clips     ClipEngine
	stitcher  Stitcher
	prompter  *prompt.Prompter

	outputBase string
	opts       Options
	log        zerolog.Logger
}

// New returns a Pipeline writing under outputBase
// (typically assets/generated/videos/<name>).
func New(layouts LayoutGenerator, keyframes keyframe.Engine, clips ClipEngine, stitcher Stitcher, prompter *prompt.Prompter, outputBase string, opts Options) *Pipeline {
	if opts.FPS <= 0 {
		opts.FPS = 24
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Pipeline{
		layouts:    layouts,
		keyframes:  keyframes,
		clips:      clips,
		stitcher:   stitcher,
		prompter:   prompter,
		outputBase: outputBase,
		opts:       opts,
		log:        logging.WithComponent("pipeline"),
	}
}

// LayoutPath returns the layout render path for shot i under base.
func LayoutPath(base string, i int) string {
	return filepath.Join(base, "layouts", fmt.Sprintf("layout_%03d.png", i))
}

// KeyframePath returns the keyframe path for shot i under base.
func KeyframePath(base string, i int) string {
	return filepath.Join(base, "keyframes", fmt.Sprintf("keyframe_%03d.png", i))
}

// ClipPath returns the clip path for shot i under base.
func ClipPath(base string, i int) string {
	return filepath.Join(base, "clips", fmt.Sprintf("clip_%03d.mp4", i))
}

// FinalPath returns the stitched video path for a storyboard under base.
func FinalPath(base, name string) string {
	return filepath.Join(base, name+".mp4")
}

// Run executes the pipeline for the storyboard, resuming from the manifest
// when one exists.
func (p *Pipeline) Run(ctx context.Context, sb *storyboard.Storyboard) error {
	if err := os.MkdirAll(p.outputBase, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	manifestPath := filepath.Join(p.outputBase, "manifest.json")
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	if manifest == nil {
		manifest = NewManifest(sb.Name)
		p.log.Info().Str("run_id", manifest.RunID).Msg("starting new run")
	} else {
		p.log.Info().Str("run_id", manifest.RunID).Str("stage", string(manifest.CurrentStage)).Msg("resuming run")
	}

	stages := []struct {
		stage Stage
		run   func(context.Context, *storyboard.Storyboard) error
	}{
		{StageLayouts, p.runLayouts},
		{StageKeyframes, p.runKeyframes},
		{StageReview, p.runReview},
		{StageClips, p.runClips},
		{StageStitch, p.runStitch},
	}

	for _, s := range stages {
		switch {
		case manifest.IsCompleted(s.stage):
			p.log.Info().Str("stage", string(s.stage)).Msg("stage already completed, skipping")
		case s.stage == StageReview && p.opts.Auto:
			manifest.Skip(s.stage)
		default:
			if !manifest.CanRetry(s.stage, p.opts.MaxRetries) {
				return fmt.Errorf("stage %s exceeded max retries (%d)", s.stage, p.opts.MaxRetries)
			}

			manifest.Start(s.stage)
			if err := s.run(ctx, sb); err != nil {
				manifest.Fail(s.stage, err)
				if saveErr := manifest.Save(manifestPath); saveErr != nil {
					p.log.Warn().Err(saveErr).Msg("failed to save manifest after stage failure")
				}
				if errors.Is(err, ErrAborted) {
					return err
				}
				return fmt.Errorf("stage %s: %w", s.stage, err)
			}
			manifest.Complete(s.stage)

			if s.stage == StageStitch {
				manifest.FinalOutput = FinalPath(p.outputBase, sb.Name)
			}
			if err := manifest.Save(manifestPath); err != nil {
				return err
			}
			p.log.Info().Str("stage", string(s.stage)).Msg("stage completed")
		}

		// The stop applies however the review stage resolved, including
		// auto-skip and completed-on-resume.
		if s.stage == StageReview && p.opts.KeyframesOnly {
			p.log.Info().Msg("stopping after keyframes")
			return nil
		}
	}

	return nil
}

func (p *Pipeline) runLayouts(ctx context.Context, sb *storyboard.Storyboard) error {
	for i, shot := range sb.Shots {
		path := LayoutPath(p.outputBase, i)
		if fileExists(path) {
			p.log.Info().Int("shot", i+1).Msg("layout exists, skipping")
			continue
		}
		p.log.Info().Int("shot", i+1).Int("total", len(sb.Shots)).Msg("rendering layout")
		if err := p.layouts.Generate(ctx, shot.LayoutPrompt, sb.ShotCharacters(shot), path); err != nil {
			return fmt.Errorf("shot %d layout: %w", i+1, err)
		}
	}
	return nil
}

func (p *Pipeline) runKeyframes(ctx context.Context, sb *storyboard.Storyboard) error {
	for i := range sb.Shots {
		path := KeyframePath(p.outputBase, i)
		if fileExists(path) {
			p.log.Info().Int("shot", i+1).Msg("keyframe exists, skipping")
			continue
		}
		if err := p.generateKeyframe(ctx, sb, i); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) generateKeyframe(ctx context.Context, sb *storyboard.Storyboard, i int) error {
	shot := sb.Shots[i]
	path := KeyframePath(p.outputBase, i)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create keyframes directory: %w", err)
	}

	p.log.Info().Int("shot", i+1).Str("engine", p.keyframes.Name()).Msg("generating keyframe")
	err := p.keyframes.Generate(ctx, keyframe.Request{
		Prompt:     shot.KeyframePrompt,
		Passes:     shot.KeyframePasses,
		CompImage:  LayoutPath(p.outputBase, i),
		Characters: keyframe.OrderedCharacters(sb.ShotCharacters(shot)),
		Params:     sb.KlingParams,
		OutputPath: path,
		NumImages:  1,
	})
	if err != nil {
		return fmt.Errorf("shot %d keyframe: %w", i+1, err)
	}
	return nil
}

// runReview loops until the user accepts all keyframes, regenerating
// individual ones on request.
func (p *Pipeline) runReview(ctx context.Context, sb *storyboard.Storyboard) error {
	fmt.Println("\nReview keyframes before video generation:")
	fmt.Printf("  %s\n", filepath.Join(p.outputBase, "keyframes"))

	for {
		choice, err := p.prompter.Select("Keyframe review", []string{
			"Accept all keyframes",
			"Regenerate a keyframe",
			"Abort",
		})
		if err != nil {
			return err
		}

		switch choice {
		case 0:
			return nil
		case 1:
			n, err := p.prompter.Int(fmt.Sprintf("Shot number (1-%d)", len(sb.Shots)))
			if err != nil {
				return err
			}
			if n < 1 || n > len(sb.Shots) {
				fmt.Printf("shot %d out of range\n", n)
				continue
			}
			idx := n - 1
			if err := os.Remove(KeyframePath(p.outputBase, idx)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove keyframe: %w", err)
			}
			if err := p.generateKeyframe(ctx, sb, idx); err != nil {
				p.log.Error().Err(err).Int("shot", n).Msg("regeneration failed")
				fmt.Printf("regeneration failed: %v\n", err)
			}
		case 2:
			return ErrAborted
		}
	}
}

func (p *Pipeline) runClips(ctx context.Context, sb *storyboard.Storyboard) error {
	for i, shot := range sb.Shots {
		path := ClipPath(p.outputBase, i)
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			p.log.Info().Int("shot", i+1).Msg("clip exists, skipping")
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create clips directory: %w", err)
		}

		p.log.Info().Int("shot", i+1).Int("total", len(sb.Shots)).Msg("generating clip")
		err := p.clips.Generate(ctx, KeyframePath(p.outputBase, i), shot.Beats, sb.ShotCharacters(shot), path)
		if err != nil {
			return fmt.Errorf("shot %d clip: %w", i+1, err)
		}
	}
	return nil
}

func (p *Pipeline) runStitch(ctx context.Context, sb *storyboard.Storyboard) error {
	clips := make([]string, len(sb.Shots))
	for i := range sb.Shots {
		clips[i] = ClipPath(p.outputBase, i)
	}

	output := FinalPath(p.outputBase, sb.Name)
	p.log.Info().Int("clips", len(clips)).Str("output", output).Msg("stitching")

	if p.opts.Crossfade > 0 {
		return p.stitcher.Crossfade(ctx, clips, output, p.opts.Crossfade, p.opts.FPS)
	}
	return p.stitcher.Concat(ctx, clips, output)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
