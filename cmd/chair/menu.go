package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/j03m/directors-chair/internal/pipeline"
	"github.com/j03m/directors-chair/internal/prompt"
)

// runMenu is the interactive entry point when chair is invoked bare.
func runMenu(ctx context.Context) error {
	fmt.Println("DIRECTOR'S CHAIR")
	fmt.Println("Storyboard-driven AI video production")
	fmt.Println()

	prompter := prompt.New()
	for {
		choice, err := prompter.Select("Main menu", []string{
			"Generate character images",
			"Generate character variations",
			"Storyboard to video",
			"Clip & keyframe tools",
			"Voice design",
			"Train LoRA",
			"Assemble movie",
			"Exit",
		})
		if err != nil {
			return err
		}

		switch choice {
		case 0:
			err = runGenerate(ctx, "", 0, "", false)
		case 1:
			err = runVariations(ctx, "", "", 0, 0)
		case 2:
			err = runStoryboard(ctx, "", "kling", pipeline.Options{})
		case 3:
			err = clipToolsMenu(ctx, prompter)
		case 4:
			err = voiceMenu(ctx, prompter)
		case 5:
			err = trainMenu(ctx, prompter)
		case 6:
			err = runAssemble(ctx, nil, "movie")
		case 7:
			return nil
		}

		if err != nil {
			if errors.Is(err, pipeline.ErrAborted) {
				fmt.Println("Aborted.")
			} else {
				fmt.Printf("Error: %v\n", err)
			}
		}
	}
}

func trainMenu(ctx context.Context, prompter *prompt.Prompter) error {
	dataset, err := prompter.Input("Dataset directory")
	if err != nil {
		return err
	}
	if dataset == "" {
		return fmt.Errorf("dataset directory is required")
	}
	name, err := prompter.Input("LoRA name")
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("LoRA name is required")
	}
	trigger, err := prompter.Input("Trigger word")
	if err != nil {
		return err
	}
	if trigger == "" {
		return fmt.Errorf("trigger word is required")
	}

	engines := []string{"wan", "flux"}
	idx, err := prompter.Select("Training engine", engines)
	if err != nil {
		return err
	}
	return runTrain(ctx, dataset, name, trigger, engines[idx], 0, 0)
}

func clipToolsMenu(ctx context.Context, prompter *prompt.Prompter) error {
	for {
		choice, err := prompter.Select("Clip & keyframe tools", []string{
			"Edit clip (video-to-video)",
			"Edit keyframe",
			"Regenerate single clip",
			"Back",
		})
		if err != nil {
			return err
		}

		switch choice {
		case 0:
			err = runEditClip(ctx, "", -1, "", false, false, true)
		case 1:
			err = runEditKeyframe(ctx, "", -1, "", false)
		case 2:
			err = runRegenClip(ctx, "", -1, false)
		case 3:
			return nil
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func voiceMenu(ctx context.Context, prompter *prompt.Prompter) error {
	for {
		choice, err := prompter.Select("Voice design", []string{
			"Design voice (from text prompt)",
			"Clone voice (from audio recording)",
			"Remix voice (mutate existing)",
			"List voices",
			"Test voice (TTS)",
			"Render dialogue script",
			"Back",
		})
		if err != nil {
			return err
		}

		switch choice {
		case 0:
			err = runVoiceDesign(ctx, "elevenlabs", "", "", "", false)
		case 1:
			err = runVoiceClone(ctx, "", "", nil, false)
		case 2:
			err = runVoiceRemix(ctx, "", "", "", 0)
		case 3:
			err = runVoiceList(ctx, "elevenlabs")
		case 4:
			err = runVoiceTest(ctx, "elevenlabs", "", "")
		case 5:
			var script string
			script, err = prompter.Input("Dialogue script (JSON file)")
			if err == nil && script != "" {
				err = runVoiceDialogue(ctx, script, "")
			}
		case 6:
			return nil
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}
