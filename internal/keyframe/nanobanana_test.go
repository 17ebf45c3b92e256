package keyframe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/j03m/directors-chair/internal/storyboard"
)

func TestTranslatePrompt(t *testing.T) {
	chars := []CharacterRef{
		{Name: "cranial", Character: storyboard.Character{}},
		{Name: "gorilla", Character: storyboard.Character{}},
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"image ref",
			"Match the pose in @Image1 exactly",
			"Match the pose in image 1 (the composition layout) exactly",
		},
		{
			"element refs",
			"@Element1 stands left of @Element2",
			"the character from image 2 stands left of the character from image 3",
		},
		{
			"no refs",
			"a desert at dusk",
			"a desert at dusk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, translatePrompt(tt.input, chars))
		})
	}
}

func TestBuildNanoBananaPromptPreamble(t *testing.T) {
	chars := []CharacterRef{
		{Name: "gorilla", Character: storyboard.Character{Description: "a silverback in viking armor"}},
	}

	prompt := buildNanoBananaPrompt("@Element1 roars at the camera", chars)

	require.Contains(t, prompt, "Image 1 is a composition layout")
	require.Contains(t, prompt, "Image 2 is a reference photo of gorilla: a silverback in viking armor.")
	require.Contains(t, prompt, "the character from image 2 roars at the camera")
}

func TestOrderedCharactersSortsByName(t *testing.T) {
	refs := OrderedCharacters(map[string]storyboard.Character{
		"zombie":  {},
		"cranial": {},
		"gorilla": {},
	})

	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	require.Equal(t, []string{"cranial", "gorilla", "zombie"}, names)
}
