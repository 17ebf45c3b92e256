package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/j03m/directors-chair/internal/config"
	"github.com/j03m/directors-chair/internal/training"
)

func newTrainCmd() *cobra.Command {
	var (
		dataset      string
		name         string
		trigger      string
		engine       string
		steps        int
		learningRate float64
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a LoRA from a dataset directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd.Context(), dataset, name, trigger, engine, steps, learningRate)
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset directory (required)")
	cmd.Flags().StringVar(&name, "name", "", "LoRA name (required)")
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger word (required)")
	cmd.Flags().StringVar(&engine, "engine", "wan", "trainer: wan or flux")
	cmd.Flags().IntVar(&steps, "steps", 0, "training steps (0 = default)")
	cmd.Flags().Float64Var(&learningRate, "learning-rate", 0, "learning rate (0 = default)")
	cmd.MarkFlagRequired("dataset")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("trigger")
	return cmd
}

func runTrain(ctx context.Context, dataset, name, trigger, engine string, steps int, learningRate float64) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := os.Stat(dataset); err != nil {
		return fmt.Errorf("dataset directory not found: %s", dataset)
	}

	opts := training.DefaultOptions()
	if steps > 0 {
		opts.Steps = steps
	}
	if learningRate > 0 {
		opts.LearningRate = learningRate
	}

	falClient, err := newFalClient()
	if err != nil {
		return err
	}
	trainer := training.NewTrainer(falClient, cfg.Directories.Loras)

	var result *training.Result
	switch engine {
	case "wan":
		result, err = trainer.TrainWAN(ctx, dataset, name, trigger, opts)
	case "flux":
		result, err = trainer.TrainFlux(ctx, dataset, name, trigger, opts)
	default:
		return fmt.Errorf("unknown trainer %q (wan or flux)", engine)
	}
	if err != nil {
		return err
	}

	if cfg.Loras == nil {
		cfg.Loras = make(map[string]config.Lora)
	}
	cfg.Loras[name] = config.Lora{
		Path:    result.LocalPath,
		FalURL:  result.FalURL,
		Trigger: trigger,
		Type:    engine,
	}
	if err := cfg.Save(flagConfig); err != nil {
		return err
	}

	fmt.Printf("LoRA %q trained and registered (%s)\n", name, result.LocalPath)
	return nil
}
