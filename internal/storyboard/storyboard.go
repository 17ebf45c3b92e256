// Package storyboard defines the storyboard JSON document: an ordered list of
// shots, the characters that appear in them, and the engine parameters used
// to turn each shot into a video clip.
package storyboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxElementsPerPass is the Kling O3 limit on character references per
// image-to-image pass.
const MaxElementsPerPass = 2

// MaxVoicesPerClip is the Kling V3 Pro limit on custom voices per clip.
const MaxVoicesPerClip = 2

// ValidDurations are the clip beat durations accepted by the Kling API, in
// seconds.
var ValidDurations = []int{5, 10}

// Storyboard is one storyboard JSON document.
type Storyboard struct {
	Name           string               `json:"name"`
	Shots          []Shot               `json:"shots"`
	Characters     map[string]Character `json:"characters"`
	KeyframeEngine string               `json:"keyframe_engine,omitempty"` // "kling" or "nano-banana"
	KlingParams    KlingParams          `json:"kling_params,omitempty"`
}

// Shot describes one clip: the layout to render, the keyframe to generate
// from it, and the timed beats that drive the video model.
type Shot struct {
	Name             string         `json:"name,omitempty"`
	LayoutPrompt     string         `json:"layout_prompt,omitempty"`
	LayoutPromptFile string         `json:"layout_prompt_file,omitempty"`
	KeyframePrompt   string         `json:"keyframe_prompt,omitempty"`
	KeyframeFile     string         `json:"keyframe_prompt_file,omitempty"`
	KeyframePasses   []KeyframePass `json:"keyframe_passes,omitempty"`
	Beats            []Beat         `json:"beats,omitempty"`
	Characters       []string       `json:"characters,omitempty"`
}

// KeyframePass is one step of a multi-pass keyframe: which characters to
// composite and the prompt for that pass.
type KeyframePass struct {
	Characters []string `json:"characters"`
	Prompt     string   `json:"prompt"`
}

// Beat is a timed sub-prompt within a clip.
type Beat struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

// Character defines a recurring character: its reference image for visual
// consistency and the Blender body type used in layout renders.
type Character struct {
	ReferenceImage string `json:"reference_image"`
	BodyType       string `json:"body_type,omitempty"`
	Description    string `json:"description,omitempty"`
	KlingVoiceID   string `json:"kling_voice_id,omitempty"`
}

// KlingParams are shared Kling request parameters.
type KlingParams struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
}

// AspectRatioOrDefault returns the configured aspect ratio or "16:9".
func (p KlingParams) AspectRatioOrDefault() string {
	if p.AspectRatio == "" {
		return "16:9"
	}
	return p.AspectRatio
}

// ResolutionOrDefault returns the configured resolution or "2K".
func (p KlingParams) ResolutionOrDefault() string {
	if p.Resolution == "" {
		return "2K"
	}
	return p.Resolution
}

// ShotCharacters returns the characters scoped to the shot, falling back to
// all storyboard characters when the shot does not narrow them.
func (s *Storyboard) ShotCharacters(shot Shot) map[string]Character {
	if len(shot.Characters) == 0 {
		return s.Characters
	}
	scoped := make(map[string]Character, len(shot.Characters))
	for _, name := range shot.Characters {
		if c, ok := s.Characters[name]; ok {
			scoped[name] = c
		}
	}
	return scoped
}

// Load reads a storyboard JSON file and resolves *_file prompt references
// relative to the storyboard's directory.
func Load(path string) (*Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storyboard: %w", err)
	}

	var sb Storyboard
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("failed to parse storyboard: %w", err)
	}

	baseDir := filepath.Dir(path)
	for i := range sb.Shots {
		shot := &sb.Shots[i]
		if shot.LayoutPromptFile != "" {
			shot.LayoutPrompt, err = resolveFileRef(baseDir, shot.LayoutPromptFile)
			if err != nil {
				return nil, fmt.Errorf("shot %d: %w", i+1, err)
			}
		}
		if shot.KeyframeFile != "" {
			shot.KeyframePrompt, err = resolveFileRef(baseDir, shot.KeyframeFile)
			if err != nil {
				return nil, fmt.Errorf("shot %d: %w", i+1, err)
			}
		}
	}

	return &sb, nil
}

func resolveFileRef(baseDir, ref string) (string, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, ref))
	if err != nil {
		return "", fmt.Errorf("failed to read prompt file %q: %w", ref, err)
	}
	return strings.TrimSpace(string(data)), nil
}

var voiceTagPattern = regexp.MustCompile(`<<<(\w+)>>>`)

// Validate checks the storyboard against the schema rules and API limits.
// It returns every problem found rather than stopping at the first.
func (s *Storyboard) Validate() []string {
	var errs []string

	if s.Name == "" {
		errs = append(errs, "missing required field: 'name'")
	}
	if len(s.Shots) == 0 {
		errs = append(errs, "'shots' must contain at least 1 entry")
	}

	if s.KeyframeEngine != "" && s.KeyframeEngine != "kling" && s.KeyframeEngine != "nano-banana" {
		errs = append(errs, fmt.Sprintf("keyframe_engine must be 'kling' or 'nano-banana', got %q", s.KeyframeEngine))
	}

	for name, c := range s.Characters {
		if c.ReferenceImage == "" {
			errs = append(errs, fmt.Sprintf("character %q: missing 'reference_image'", name))
			continue
		}
		if _, err := os.Stat(c.ReferenceImage); err != nil {
			errs = append(errs, fmt.Sprintf("character %q: reference image not found at %q", name, c.ReferenceImage))
		}
	}

	for i, shot := range s.Shots {
		label := fmt.Sprintf("shot %d", i+1)
		if shot.Name != "" {
			label = fmt.Sprintf("shot %d (%s)", i+1, shot.Name)
		}

		if shot.LayoutPrompt == "" && shot.LayoutPromptFile == "" {
			errs = append(errs, label+": missing 'layout_prompt' (or 'layout_prompt_file')")
		}
		if shot.KeyframePrompt == "" && shot.KeyframeFile == "" && len(shot.KeyframePasses) == 0 {
			errs = append(errs, label+": missing 'keyframe_prompt' (or 'keyframe_passes')")
		}

		for j, pass := range shot.KeyframePasses {
			if pass.Prompt == "" {
				errs = append(errs, fmt.Sprintf("%s: keyframe pass %d missing 'prompt'", label, j+1))
			}
			if len(pass.Characters) > MaxElementsPerPass {
				errs = append(errs, fmt.Sprintf("%s: keyframe pass %d names %d characters, max %d per pass",
					label, j+1, len(pass.Characters), MaxElementsPerPass))
			}
			for _, name := range pass.Characters {
				if _, ok := s.Characters[name]; !ok {
					errs = append(errs, fmt.Sprintf("%s: keyframe pass %d references unknown character %q", label, j+1, name))
				}
			}
		}

		if len(shot.Beats) == 0 {
			errs = append(errs, label+": missing 'beats' (at least 1 required)")
		}
		for j, beat := range shot.Beats {
			if beat.Prompt == "" {
				errs = append(errs, fmt.Sprintf("%s: beat %d missing 'prompt'", label, j+1))
			}
			if !validDuration(beat.Duration) {
				errs = append(errs, fmt.Sprintf("%s: beat %d duration %d not in %v", label, j+1, beat.Duration, ValidDurations))
			}
		}

		for _, name := range shot.Characters {
			if _, ok := s.Characters[name]; !ok {
				errs = append(errs, fmt.Sprintf("%s: references unknown character %q", label, name))
			}
		}

		errs = append(errs, s.validateVoiceTags(label, shot)...)
	}

	return errs
}

// validateVoiceTags checks that <<<name>>> tags in beat prompts resolve to
// characters with a voice id, within the per-clip voice limit.
func (s *Storyboard) validateVoiceTags(label string, shot Shot) []string {
	var errs []string
	var seen []string

	for _, beat := range shot.Beats {
		for _, m := range voiceTagPattern.FindAllStringSubmatch(beat.Prompt, -1) {
			name := m[1]
			if strings.HasPrefix(name, "voice_") {
				continue
			}
			if contains(seen, name) {
				continue
			}
			seen = append(seen, name)

			c, ok := s.Characters[name]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: <<<%s>>> in beat prompt but %q not in characters", label, name, name))
				continue
			}
			if c.KlingVoiceID == "" {
				errs = append(errs, fmt.Sprintf("%s: character %q has no kling_voice_id", label, name))
			}
		}
	}

	if len(seen) > MaxVoicesPerClip {
		errs = append(errs, fmt.Sprintf("%s: %d voices tagged but Kling supports max %d per clip", label, len(seen), MaxVoicesPerClip))
	}

	return errs
}

func validDuration(d int) bool {
	for _, v := range ValidDurations {
		if d == v {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
