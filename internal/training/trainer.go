// Package training runs cloud LoRA training jobs on fal.ai: the dataset is
// zipped and uploaded, the trainer runs remotely, and the resulting
// .safetensors file is downloaded into the local LoRA directory.
package training

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
)

const (
	wanTrainerApp  = "fal-ai/wan-trainer"
	fluxTrainerApp = "fal-ai/flux-lora-fast-training"
)

// queueClient is the subset of the fal client the trainer uses.
type queueClient interface {
	Subscribe(ctx context.Context, app string, payload any, onLog func(string)) (json.RawMessage, error)
	UploadFile(ctx context.Context, path string) (string, error)
	DownloadFile(ctx context.Context, url, destPath string) error
}

// Options tune a training run.
type Options struct {
	Steps          int
	LearningRate   float64
	AutoScaleInput bool
}

// DefaultOptions returns the standard training settings.
func DefaultOptions() Options {
	return Options{
		Steps:          1000,
		LearningRate:   0.0002,
		AutoScaleInput: true,
	}
}

// Result describes a finished training run.
type Result struct {
	// LocalPath is where the .safetensors file was saved.
	LocalPath string
	// FalURL is the remote LoRA URL, reusable in flux-lora requests
	// without re-uploading.
	FalURL string
}

// Trainer submits LoRA training jobs.
type Trainer struct {
	client   queueClient
	lorasDir string
	log      zerolog.Logger
}

// NewTrainer returns a Trainer saving trained LoRAs under lorasDir.
func NewTrainer(client queueClient, lorasDir string) *Trainer {
	return &Trainer{
		client:   client,
		lorasDir: lorasDir,
		log:      logging.WithComponent("training"),
	}
}

type wanTrainerPayload struct {
	TrainingDataURL string  `json:"training_data_url"`
	TriggerPhrase   string  `json:"trigger_phrase"`
	NumberOfSteps   int     `json:"number_of_steps"`
	LearningRate    float64 `json:"learning_rate"`
	AutoScaleInput  bool    `json:"auto_scale_input"`
}

type fluxTrainerPayload struct {
	ImagesDataURL string `json:"images_data_url"`
	TriggerWord   string `json:"trigger_word"`
	Steps         int    `json:"steps"`
}

type trainerResult struct {
	LoraFile struct {
		URL string `json:"url"`
	} `json:"lora_file"`
	DiffusersLoraFile struct {
		URL string `json:"url"`
	} `json:"diffusers_lora_file"`
}

func (r trainerResult) loraURL() string {
	if r.LoraFile.URL != "" {
		return r.LoraFile.URL
	}
	return r.DiffusersLoraFile.URL
}

// TrainWAN trains a WAN 2.1 LoRA from the dataset directory.
func (t *Trainer) TrainWAN(ctx context.Context, datasetDir, name, trigger string, opts Options) (*Result, error) {
	dataURL, err := t.uploadDataset(ctx, datasetDir, name)
	if err != nil {
		return nil, err
	}

	t.log.Info().Str("trigger", trigger).Int("steps", opts.Steps).Msg("submitting WAN LoRA training job")
	raw, err := t.client.Subscribe(ctx, wanTrainerApp, wanTrainerPayload{
		TrainingDataURL: dataURL,
		TriggerPhrase:   trigger,
		NumberOfSteps:   opts.Steps,
		LearningRate:    opts.LearningRate,
		AutoScaleInput:  opts.AutoScaleInput,
	}, func(msg string) {
		t.log.Info().Str("trainer", msg).Msg("progress")
	})
	if err != nil {
		return nil, fmt.Errorf("WAN training failed: %w", err)
	}

	return t.downloadLora(ctx, raw, name)
}

// TrainFlux trains a Flux LoRA from the dataset directory.
func (t *Trainer) TrainFlux(ctx context.Context, datasetDir, name, trigger string, opts Options) (*Result, error) {
	dataURL, err := t.uploadDataset(ctx, datasetDir, name)
	if err != nil {
		return nil, err
	}

	t.log.Info().Str("trigger", trigger).Int("steps", opts.Steps).Msg("submitting Flux LoRA training job")
	raw, err := t.client.Subscribe(ctx, fluxTrainerApp, fluxTrainerPayload{
		ImagesDataURL: dataURL,
		TriggerWord:   trigger,
		Steps:         opts.Steps,
	}, func(msg string) {
		t.log.Info().Str("trainer", msg).Msg("progress")
	})
	if err != nil {
		return nil, fmt.Errorf("Flux training failed: %w", err)
	}

	return t.downloadLora(ctx, raw, name)
}

func (t *Trainer) uploadDataset(ctx context.Context, datasetDir, name string) (string, error) {
	zipPath := filepath.Join(os.TempDir(), name+"_training.zip")
	count, err := zipDataset(datasetDir, zipPath)
	if err != nil {
		return "", err
	}
	defer os.Remove(zipPath)
	t.log.Info().Int("files", count).Msg("zipped training data")

	url, err := t.client.UploadFile(ctx, zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to upload training data: %w", err)
	}
	return url, nil
}

func (t *Trainer) downloadLora(ctx context.Context, raw json.RawMessage, name string) (*Result, error) {
	var result trainerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse training result: %w", err)
	}
	url := result.loraURL()
	if url == "" {
		return nil, fmt.Errorf("no LoRA URL in training result")
	}

	localPath := filepath.Join(t.lorasDir, name+".safetensors")
	if err := t.client.DownloadFile(ctx, url, localPath); err != nil {
		return nil, fmt.Errorf("failed to download LoRA: %w", err)
	}

	t.log.Info().Str("path", localPath).Msg("training complete")
	return &Result{LocalPath: localPath, FalURL: url}, nil
}

// zipDataset packs the dataset's media and caption files into a zip archive,
// returning the media file count.
func zipDataset(datasetDir, zipPath string) (int, error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	count := 0

	err = filepath.Walk(datasetDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".png", ".jpg", ".jpeg", ".txt", ".mp4":
		default:
			return nil
		}

		rel, err := filepath.Rel(datasetDir, path)
		if err != nil {
			return err
		}
		entry, err := w.Create(rel)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, f)
		f.Close()
		if err != nil {
			return err
		}

		if ext != ".txt" {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to zip dataset: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if count == 0 {
		return 0, fmt.Errorf("no media files found in %s", datasetDir)
	}
	return count, nil
}
