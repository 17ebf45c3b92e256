package storyboard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRef(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
	return path
}

func validStoryboard(t *testing.T) *Storyboard {
	t.Helper()
	dir := t.TempDir()
	return &Storyboard{
		Name: "campfire",
		Characters: map[string]Character{
			"mara": {ReferenceImage: writeRef(t, dir, "mara.png")},
		},
		Shots: []Shot{
			{
				Name:           "arrival",
				LayoutPrompt:   "wide shot of a campsite",
				KeyframePrompt: "place @Element1 by the fire",
				Beats:          []Beat{{Prompt: "the fire crackles", Duration: 5}},
			},
		},
	}
}

func TestValidateOK(t *testing.T) {
	sb := validStoryboard(t)
	require.Empty(t, sb.Validate())
}

func TestValidateProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Storyboard)
		want   string
	}{
		{
			name:   "missing name",
			mutate: func(sb *Storyboard) { sb.Name = "" },
			want:   "missing required field: 'name'",
		},
		{
			name:   "no shots",
			mutate: func(sb *Storyboard) { sb.Shots = nil },
			want:   "'shots' must contain at least 1 entry",
		},
		{
			name:   "bad keyframe engine",
			mutate: func(sb *Storyboard) { sb.KeyframeEngine = "dalle" },
			want:   "keyframe_engine must be 'kling' or 'nano-banana'",
		},
		{
			name: "missing reference image",
			mutate: func(sb *Storyboard) {
				sb.Characters["ghost"] = Character{}
			},
			want: `character "ghost": missing 'reference_image'`,
		},
		{
			name: "reference image not on disk",
			mutate: func(sb *Storyboard) {
				sb.Characters["ghost"] = Character{ReferenceImage: "/nonexistent/ghost.png"}
			},
			want: "reference image not found",
		},
		{
			name:   "missing layout prompt",
			mutate: func(sb *Storyboard) { sb.Shots[0].LayoutPrompt = "" },
			want:   "missing 'layout_prompt'",
		},
		{
			name:   "missing keyframe prompt",
			mutate: func(sb *Storyboard) { sb.Shots[0].KeyframePrompt = "" },
			want:   "missing 'keyframe_prompt'",
		},
		{
			name:   "missing beats",
			mutate: func(sb *Storyboard) { sb.Shots[0].Beats = nil },
			want:   "missing 'beats'",
		},
		{
			name: "bad beat duration",
			mutate: func(sb *Storyboard) {
				sb.Shots[0].Beats[0].Duration = 7
			},
			want: "duration 7 not in [5 10]",
		},
		{
			name: "unknown shot character",
			mutate: func(sb *Storyboard) {
				sb.Shots[0].Characters = []string{"ghost"}
			},
			want: `references unknown character "ghost"`,
		},
		{
			name: "too many pass characters",
			mutate: func(sb *Storyboard) {
				sb.Shots[0].KeyframePasses = []KeyframePass{
					{Prompt: "p", Characters: []string{"a", "b", "c"}},
				}
			},
			want: "max 2 per pass",
		},
		{
			name: "voice tag without voice id",
			mutate: func(sb *Storyboard) {
				sb.Shots[0].Beats[0].Prompt = "<<<mara>>> speaks"
			},
			want: `character "mara" has no kling_voice_id`,
		},
		{
			name: "voice tag unknown character",
			mutate: func(sb *Storyboard) {
				sb.Shots[0].Beats[0].Prompt = "<<<ghost>>> moans"
			},
			want: `<<<ghost>>> in beat prompt`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := validStoryboard(t)
			tt.mutate(sb)
			errs := sb.Validate()
			require.NotEmpty(t, errs)
			found := false
			for _, e := range errs {
				if strings.Contains(e, tt.want) {
					found = true
				}
			}
			require.True(t, found, "expected a problem containing %q, got %v", tt.want, errs)
		})
	}
}

func TestLoadResolvesPromptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "layout.txt"), []byte("wide shot of a canyon\n"), 0644))

	doc := `{
		"name": "canyon",
		"shots": [{
			"layout_prompt_file": "layout.txt",
			"keyframe_prompt": "kf",
			"beats": [{"prompt": "p", "duration": 5}]
		}]
	}`
	path := filepath.Join(dir, "canyon.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	sb, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "wide shot of a canyon", sb.Shots[0].LayoutPrompt)
}

func TestLoadMissingPromptFile(t *testing.T) {
	dir := t.TempDir()
	doc := `{"name": "x", "shots": [{"layout_prompt_file": "gone.txt"}]}`
	path := filepath.Join(dir, "x.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "shot 1")
}

func TestShotCharactersScoping(t *testing.T) {
	sb := &Storyboard{
		Characters: map[string]Character{
			"mara": {ReferenceImage: "m.png"},
			"joel": {ReferenceImage: "j.png"},
		},
	}

	all := sb.ShotCharacters(Shot{})
	require.Len(t, all, 2)

	scoped := sb.ShotCharacters(Shot{Characters: []string{"mara"}})
	require.Len(t, scoped, 1)
	require.Contains(t, scoped, "mara")
}
