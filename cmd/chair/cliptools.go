package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/j03m/directors-chair/internal/ffmpeg"
	"github.com/j03m/directors-chair/internal/keyframe"
	"github.com/j03m/directors-chair/internal/pipeline"
	"github.com/j03m/directors-chair/internal/prompt"
	"github.com/j03m/directors-chair/internal/storyboard"
	"github.com/j03m/directors-chair/internal/video"
)

func newEditClipCmd() *cobra.Command {
	var (
		file       string
		clipIndex  int
		editPrompt string
		auto       bool
		saveAsNew  bool
		keepAudio  bool
	)

	cmd := &cobra.Command{
		Use:   "edit-clip [storyboard]",
		Short: "Edit an existing clip via Kling video-to-video",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			return runEditClip(cmd.Context(), path, clipIndex, editPrompt, auto, saveAsNew, keepAudio)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "storyboard JSON file (picked interactively when omitted)")
	cmd.Flags().IntVar(&clipIndex, "clip", -1, "clip index (prompted when omitted)")
	cmd.Flags().StringVar(&editPrompt, "prompt", "", "edit prompt")
	cmd.Flags().BoolVar(&auto, "auto", false, "apply without confirmation")
	cmd.Flags().BoolVar(&saveAsNew, "save-as-new", false, "keep the original, save the edit alongside it")
	cmd.Flags().BoolVar(&keepAudio, "keep-audio", true, "preserve the clip's audio track")
	return cmd
}

func runEditClip(ctx context.Context, path string, clipIndex int, editPrompt string, auto, saveAsNew, keepAudio bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompter := prompt.New()
	sb, err := loadStoryboard(cfg, prompter, path)
	if err != nil {
		return err
	}
	base := outputBase(cfg, sb.Name)

	if clipIndex < 0 {
		clipIndex, err = pickShot(prompter, sb, "Select clip")
		if err != nil {
			return err
		}
	}
	if clipIndex >= len(sb.Shots) {
		return fmt.Errorf("clip index %d out of range (0-%d)", clipIndex, len(sb.Shots)-1)
	}
	clipPath := pipeline.ClipPath(base, clipIndex)
	if _, err := os.Stat(clipPath); err != nil {
		return fmt.Errorf("clip not found: %s (run the storyboard pipeline first)", clipPath)
	}

	falClient, err := newFalClient()
	if err != nil {
		return err
	}
	exec, err := ffmpeg.NewExecutor()
	if err != nil {
		return err
	}
	editor := video.NewEditor(falClient, exec)
	characters := sb.ShotCharacters(sb.Shots[clipIndex])

	for {
		p := editPrompt
		if p == "" {
			p, err = prompter.Input("Edit prompt")
			if err != nil {
				return err
			}
			if p == "" {
				return nil
			}
		}

		editedPath := strings.TrimSuffix(clipPath, ".mp4") + "_edited.mp4"
		if err := editor.Edit(ctx, p, clipPath, editedPath, characters, keepAudio); err != nil {
			if auto {
				return err
			}
			fmt.Printf("edit failed: %v\n", err)
			retry, perr := prompter.Confirm("Try again with a different prompt?")
			if perr != nil {
				return perr
			}
			if !retry {
				return nil
			}
			editPrompt = ""
			continue
		}

		if auto {
			if saveAsNew {
				fmt.Printf("Saved: %s\n", editedPath)
				return nil
			}
			return applyEdit(clipPath, editedPath, clipIndex)
		}

		choice, err := prompter.Select("Result", []string{
			"Accept (overwrite original)",
			"Accept (save as new)",
			"Retry with different prompt",
			"Discard",
		})
		if err != nil {
			return err
		}
		switch choice {
		case 0:
			return applyEdit(clipPath, editedPath, clipIndex)
		case 1:
			fmt.Printf("Saved: %s\n", editedPath)
			return nil
		case 2:
			os.Remove(editedPath)
			editPrompt = ""
		case 3:
			os.Remove(editedPath)
			return nil
		}
	}
}

// applyEdit replaces the clip with the edited version, backing up the
// original once.
func applyEdit(clipPath, editedPath string, clipIndex int) error {
	backup := strings.TrimSuffix(clipPath, ".mp4") + "_original.mp4"
	if _, err := os.Stat(backup); os.IsNotExist(err) {
		if err := copyFile(clipPath, backup); err != nil {
			return fmt.Errorf("failed to back up original: %w", err)
		}
	}
	if err := os.Rename(editedPath, clipPath); err != nil {
		return fmt.Errorf("failed to replace clip: %w", err)
	}
	fmt.Printf("Edit applied to clip_%03d.mp4\n", clipIndex)
	return nil
}

func newEditKeyframeCmd() *cobra.Command {
	var (
		file          string
		keyframeIndex int
		editPrompt    string
		auto          bool
	)

	cmd := &cobra.Command{
		Use:   "edit-keyframe [storyboard]",
		Short: "Edit an existing keyframe via Nano Banana Pro",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			return runEditKeyframe(cmd.Context(), path, keyframeIndex, editPrompt, auto)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "storyboard JSON file (picked interactively when omitted)")
	cmd.Flags().IntVar(&keyframeIndex, "keyframe", -1, "keyframe index (prompted when omitted)")
	cmd.Flags().StringVar(&editPrompt, "prompt", "", "edit prompt")
	cmd.Flags().BoolVar(&auto, "auto", false, "apply without confirmation")
	return cmd
}

func runEditKeyframe(ctx context.Context, path string, keyframeIndex int, editPrompt string, auto bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompter := prompt.New()
	sb, err := loadStoryboard(cfg, prompter, path)
	if err != nil {
		return err
	}
	base := outputBase(cfg, sb.Name)

	if keyframeIndex < 0 {
		keyframeIndex, err = pickShot(prompter, sb, "Select keyframe")
		if err != nil {
			return err
		}
	}
	if keyframeIndex >= len(sb.Shots) {
		return fmt.Errorf("keyframe index %d out of range (0-%d)", keyframeIndex, len(sb.Shots)-1)
	}
	kfPath := pipeline.KeyframePath(base, keyframeIndex)
	if _, err := os.Stat(kfPath); err != nil {
		return fmt.Errorf("keyframe not found: %s (run the storyboard pipeline first)", kfPath)
	}

	falClient, err := newFalClient()
	if err != nil {
		return err
	}
	engine := keyframe.NewNanoBananaEngine(falClient)
	shot := sb.Shots[keyframeIndex]

	for {
		p := editPrompt
		if p == "" {
			p, err = prompter.Input("Edit prompt")
			if err != nil {
				return err
			}
			if p == "" {
				return nil
			}
		}

		err := engine.Generate(ctx, keyframe.Request{
			Prompt:     p,
			CompImage:  kfPath,
			Characters: keyframe.OrderedCharacters(sb.ShotCharacters(shot)),
			Params:     sb.KlingParams,
			OutputPath: kfPath,
			NumImages:  1,
		})
		if err != nil {
			if auto {
				return err
			}
			fmt.Printf("edit failed: %v\n", err)
			retry, perr := prompter.Confirm("Try again?")
			if perr != nil {
				return perr
			}
			if !retry {
				return nil
			}
			editPrompt = ""
			continue
		}

		fmt.Printf("Keyframe %03d updated.\n", keyframeIndex)
		if auto {
			return nil
		}

		again, err := prompter.Confirm("Edit again?")
		if err != nil {
			return err
		}
		if !again {
			return nil
		}
		editPrompt = ""
	}
}

func newRegenClipCmd() *cobra.Command {
	var (
		file      string
		clipIndex int
		auto      bool
	)

	cmd := &cobra.Command{
		Use:   "regen-clip [storyboard]",
		Short: "Regenerate a single clip from its keyframe and beats",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			return runRegenClip(cmd.Context(), path, clipIndex, auto)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "storyboard JSON file (picked interactively when omitted)")
	cmd.Flags().IntVar(&clipIndex, "clip", -1, "clip index (prompted when omitted)")
	cmd.Flags().BoolVar(&auto, "auto", false, "never prompt, fail when --file or --clip is missing")
	return cmd
}

func runRegenClip(ctx context.Context, path string, clipIndex int, auto bool) error {
	if auto && (path == "" || clipIndex < 0) {
		return fmt.Errorf("--file and --clip are required with --auto")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompter := prompt.New()
	sb, err := loadStoryboard(cfg, prompter, path)
	if err != nil {
		return err
	}
	base := outputBase(cfg, sb.Name)

	if clipIndex < 0 {
		clipIndex, err = pickShot(prompter, sb, "Select clip to regenerate")
		if err != nil {
			return err
		}
	}
	if clipIndex >= len(sb.Shots) {
		return fmt.Errorf("clip index %d out of range (0-%d)", clipIndex, len(sb.Shots)-1)
	}

	kfPath := pipeline.KeyframePath(base, clipIndex)
	if _, err := os.Stat(kfPath); err != nil {
		return fmt.Errorf("keyframe not found: %s (generate keyframes first)", kfPath)
	}
	clipPath := pipeline.ClipPath(base, clipIndex)
	if err := os.Remove(clipPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing clip: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(clipPath), 0755); err != nil {
		return err
	}

	falClient, err := newFalClient()
	if err != nil {
		return err
	}
	shot := sb.Shots[clipIndex]
	engine := video.NewKlingEngine(falClient, sb.KlingParams)
	if err := engine.Generate(ctx, kfPath, shot.Beats, sb.ShotCharacters(shot), clipPath); err != nil {
		return err
	}

	fmt.Printf("Clip %03d regenerated.\n", clipIndex)
	return nil
}

func pickShot(prompter *prompt.Prompter, sb *storyboard.Storyboard, label string) (int, error) {
	options := make([]string, len(sb.Shots))
	for i, shot := range sb.Shots {
		name := shot.Name
		if name == "" {
			name = "?"
		}
		options[i] = fmt.Sprintf("%03d — %s", i, name)
	}
	return prompter.Select(label, options)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
