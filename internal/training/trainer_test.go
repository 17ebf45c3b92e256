package training

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img-0.png"), []byte("png"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img-0.txt"), []byte("viking gorilla"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img-1.jpg"), []byte("jpg"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("skip me"), 0644))
	return dir
}

func TestZipDatasetFiltersAndCounts(t *testing.T) {
	dir := writeDataset(t)
	zipPath := filepath.Join(t.TempDir(), "data.zip")

	count, err := zipDataset(dir, zipPath)
	require.NoError(t, err)
	// Captions are zipped but not counted as media.
	require.Equal(t, 2, count)

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"img-0.png", "img-0.txt", "img-1.jpg"}, names)
}

func TestZipDatasetEmptyDirFails(t *testing.T) {
	_, err := zipDataset(t.TempDir(), filepath.Join(t.TempDir(), "data.zip"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no media files")
}

type fakeClient struct {
	app     string
	payload map[string]any
	result  string
}

func (f *fakeClient) Subscribe(ctx context.Context, app string, payload any, onLog func(string)) (json.RawMessage, error) {
	f.app = app
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &f.payload); err != nil {
		return nil, err
	}
	return json.RawMessage(f.result), nil
}

func (f *fakeClient) UploadFile(ctx context.Context, path string) (string, error) {
	return "https://storage.fal/" + filepath.Base(path), nil
}

func (f *fakeClient) DownloadFile(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(url), 0644)
}

func TestTrainWANDownloadsLora(t *testing.T) {
	dataset := writeDataset(t)
	lorasDir := t.TempDir()

	client := &fakeClient{result: `{"lora_file":{"url":"https://cdn/lora.safetensors"}}`}
	trainer := NewTrainer(client, lorasDir)

	result, err := trainer.TrainWAN(context.Background(), dataset, "viking_gorilla", "viking", DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, "fal-ai/wan-trainer", client.app)
	require.Equal(t, "viking", client.payload["trigger_phrase"])
	require.Equal(t, float64(1000), client.payload["number_of_steps"])
	require.Equal(t, true, client.payload["auto_scale_input"])

	require.Equal(t, "https://cdn/lora.safetensors", result.FalURL)
	require.Equal(t, filepath.Join(lorasDir, "viking_gorilla.safetensors"), result.LocalPath)
	_, err = os.Stat(result.LocalPath)
	require.NoError(t, err)
}

func TestTrainFluxUsesFluxTrainer(t *testing.T) {
	dataset := writeDataset(t)

	client := &fakeClient{result: `{"diffusers_lora_file":{"url":"https://cdn/flux.safetensors"}}`}
	trainer := NewTrainer(client, t.TempDir())

	result, err := trainer.TrainFlux(context.Background(), dataset, "viking_gorilla", "viking", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, "fal-ai/flux-lora-fast-training", client.app)
	require.Equal(t, "viking", client.payload["trigger_word"])
	require.Equal(t, "https://cdn/flux.safetensors", result.FalURL)
}

func TestTrainWANNoLoraURL(t *testing.T) {
	client := &fakeClient{result: `{}`}
	trainer := NewTrainer(client, t.TempDir())

	_, err := trainer.TrainWAN(context.Background(), writeDataset(t), "x", "y", DefaultOptions())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no LoRA URL")
}
