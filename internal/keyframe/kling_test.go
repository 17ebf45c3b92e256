package keyframe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/j03m/directors-chair/internal/storyboard"
)

// fakeClient records queue submissions and serves canned results.
type fakeClient struct {
	payloads []klingImagePayload
	results  []string
	uploads  int
}

func (f *fakeClient) Subscribe(ctx context.Context, app string, payload any, onLog func(string)) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var p klingImagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	f.payloads = append(f.payloads, p)
	result := f.results[len(f.payloads)-1]
	return json.RawMessage(fmt.Sprintf(`{"images":[{"url":%q}]}`, result)), nil
}

func (f *fakeClient) UploadFile(ctx context.Context, path string) (string, error) {
	f.uploads++
	return "https://storage.fal/" + filepath.Base(path), nil
}

func (f *fakeClient) DownloadFile(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(url), 0644)
}

func TestKlingSinglePass(t *testing.T) {
	client := &fakeClient{results: []string{"https://cdn/final.png"}}
	engine := NewKlingEngine(client)

	output := filepath.Join(t.TempDir(), "keyframe_000.png")
	err := engine.Generate(context.Background(), Request{
		Prompt:    "the gorilla at the mailbox",
		CompImage: "comp.png",
		Characters: []CharacterRef{
			{Name: "gorilla", Character: storyboard.Character{ReferenceImage: "gorilla.png"}},
		},
		Params:     storyboard.KlingParams{AspectRatio: "16:9", Resolution: "2K"},
		OutputPath: output,
	})
	require.NoError(t, err)

	require.Len(t, client.payloads, 1)
	p := client.payloads[0]
	require.Equal(t, "the gorilla at the mailbox", p.Prompt)
	require.Equal(t, []string{"https://storage.fal/comp.png"}, p.ImageURLs)
	require.Len(t, p.Elements, 1)
	require.Equal(t, "https://storage.fal/gorilla.png", p.Elements[0].FrontalImageURL)
	require.Equal(t, "16:9", p.AspectRatio)
	require.Equal(t, "2K", p.Resolution)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, "https://cdn/final.png", string(data))
}

func TestKlingSinglePassTooManyCharacters(t *testing.T) {
	engine := NewKlingEngine(&fakeClient{results: []string{""}})

	err := engine.Generate(context.Background(), Request{
		Prompt:    "three figures",
		CompImage: "comp.png",
		Characters: []CharacterRef{
			{Name: "a", Character: storyboard.Character{ReferenceImage: "a.png"}},
			{Name: "b", Character: storyboard.Character{ReferenceImage: "b.png"}},
			{Name: "c", Character: storyboard.Character{ReferenceImage: "c.png"}},
		},
		OutputPath: filepath.Join(t.TempDir(), "keyframe_000.png"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "keyframe_passes")
}

func TestKlingMultiPassChainsResults(t *testing.T) {
	client := &fakeClient{results: []string{"https://cdn/pass1.png", "https://cdn/pass2.png"}}
	engine := NewKlingEngine(client)

	output := filepath.Join(t.TempDir(), "keyframe_000.png")
	err := engine.Generate(context.Background(), Request{
		CompImage: "comp.png",
		Passes: []storyboard.KeyframePass{
			{Characters: []string{"cranial"}, Prompt: "place @Element1 per @Image1"},
			{Characters: []string{"gorilla"}, Prompt: "add @Element1 behind"},
		},
		Characters: []CharacterRef{
			{Name: "cranial", Character: storyboard.Character{ReferenceImage: "cranial.png"}},
			{Name: "gorilla", Character: storyboard.Character{ReferenceImage: "gorilla.png"}},
		},
		OutputPath: output,
	})
	require.NoError(t, err)
	require.Len(t, client.payloads, 2)

	// Pass 1 starts from the comp, pass 2 from pass 1's result.
	require.Equal(t, []string{"https://storage.fal/comp.png"}, client.payloads[0].ImageURLs)
	require.Equal(t, []string{"https://cdn/pass1.png"}, client.payloads[1].ImageURLs)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, "https://cdn/pass2.png", string(data))
}
