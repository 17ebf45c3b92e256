// Package keyframe generates shot keyframes from Blender composition renders
// plus character reference images, via Kling O3 image-to-image or Nano Banana
// Pro editing.
package keyframe

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/j03m/directors-chair/internal/storyboard"
)

// CharacterRef is one character with a stable position, since positional
// prompt references (@Element1, image 2) depend on ordering.
type CharacterRef struct {
	Name      string
	Character storyboard.Character
}

// OrderedCharacters flattens a character map into name-sorted refs.
func OrderedCharacters(characters map[string]storyboard.Character) []CharacterRef {
	names := make([]string, 0, len(characters))
	for name := range characters {
		names = append(names, name)
	}
	sort.Strings(names)

	refs := make([]CharacterRef, len(names))
	for i, name := range names {
		refs[i] = CharacterRef{Name: name, Character: characters[name]}
	}
	return refs
}

// Request is one keyframe generation job.
type Request struct {
	Prompt     string
	Passes     []storyboard.KeyframePass
	CompImage  string
	Characters []CharacterRef
	Params     storyboard.KlingParams
	OutputPath string
	NumImages  int
}

// Engine generates a keyframe image on disk.
type Engine interface {
	Name() string
	Generate(ctx context.Context, req Request) error
}

// queueClient is the subset of the fal client the engines use.
type queueClient interface {
	Subscribe(ctx context.Context, app string, payload any, onLog func(string)) (json.RawMessage, error)
	UploadFile(ctx context.Context, path string) (string, error)
	DownloadFile(ctx context.Context, url, destPath string) error
}

type imageResult struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}
