package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/j03m/directors-chair/internal/config"
)

func findCommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range parent.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestCommandFlags(t *testing.T) {
	root := newRootCmd()

	tests := map[string][]string{
		"storyboard":    {"file", "auto", "keyframes-only", "crossfade", "fps", "video-engine"},
		"generate":      {"theme", "count", "lora", "auto"},
		"variations":    {"image", "prompt", "count", "strength"},
		"assemble":      {"clips", "name"},
		"edit-clip":     {"file", "clip", "prompt", "auto", "save-as-new", "keep-audio"},
		"edit-keyframe": {"file", "keyframe", "prompt", "auto"},
		"regen-clip":    {"file", "clip", "auto"},
		"train":         {"dataset", "name", "trigger", "engine", "steps", "learning-rate"},
	}
	for name, flags := range tests {
		cmd := findCommand(t, root, name)
		for _, flag := range flags {
			require.NotNil(t, cmd.Flags().Lookup(flag), "%s --%s", name, flag)
		}
	}

	voiceCmd := findCommand(t, root, "voice")
	require.NotNil(t, voiceCmd.PersistentFlags().Lookup("engine"))
	for _, sub := range []string{"design", "clone", "remix", "list", "test", "dialogue"} {
		findCommand(t, voiceCmd, sub)
	}
	dialogue := findCommand(t, voiceCmd, "dialogue")
	require.NotNil(t, dialogue.Flags().Lookup("script"))
	require.NotNil(t, dialogue.Flags().Lookup("output"))
}

func TestLoadDialogueScript(t *testing.T) {
	cfg := &config.Config{
		Voices: map[string]config.Voice{
			"mara": {VoiceID: "gen-123", Name: "mara_voice", Engine: "hume"},
		},
	}

	doc := `[
		{"text": "We ride at dawn.", "character": "mara", "direction": "quiet, resolute"},
		{"text": "Not without water.", "character": "joel", "voice_name": "trader_voice", "speed": 0.9}
	]`
	path := filepath.Join(t.TempDir(), "script.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	lines, err := loadDialogueScript(cfg, path)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	// Configured character resolves to its registered voice name.
	require.Equal(t, "mara_voice", lines[0].VoiceName)
	require.Equal(t, "quiet, resolute", lines[0].Direction)
	// An explicit voice_name wins over the registry.
	require.Equal(t, "trader_voice", lines[1].VoiceName)
	require.Equal(t, 0.9, lines[1].Speed)
}

func TestLoadDialogueScriptRejectsEmptyText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"character": "mara"}]`), 0644))

	_, err := loadDialogueScript(&config.Config{}, path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 1")
}
