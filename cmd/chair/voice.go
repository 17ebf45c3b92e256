package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/j03m/directors-chair/internal/config"
	"github.com/j03m/directors-chair/internal/prompt"
	"github.com/j03m/directors-chair/internal/voice"
)

const defaultTestText = "The wasteland stretches on forever. We ride at dawn."

func newVoiceCmd() *cobra.Command {
	var engine string

	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Design, clone, remix, list, and test character voices",
	}
	cmd.PersistentFlags().StringVar(&engine, "engine", "elevenlabs", "voice engine: elevenlabs or hume")

	cmd.AddCommand(
		newVoiceDesignCmd(&engine),
		newVoiceCloneCmd(),
		newVoiceRemixCmd(),
		newVoiceListCmd(&engine),
		newVoiceTestCmd(&engine),
		newVoiceDialogueCmd(),
	)
	return cmd
}

func newElevenLabs() (*voice.ElevenLabsClient, error) {
	key := os.Getenv("ELEVENLABS_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("ELEVENLABS_API_KEY not set")
	}
	return voice.NewElevenLabsClient(key), nil
}

func newHume() (*voice.HumeClient, error) {
	key := os.Getenv("HUME_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("HUME_API_KEY not set")
	}
	return voice.NewHumeClient(key), nil
}

func newVoiceDesignCmd(engine *string) *cobra.Command {
	var (
		name        string
		description string
		sampleText  string
		auto        bool
	)

	cmd := &cobra.Command{
		Use:   "design",
		Short: "Design a new voice from a text description",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVoiceDesign(cmd.Context(), *engine, name, description, sampleText, auto)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "character name")
	cmd.Flags().StringVar(&description, "description", "", "voice description")
	cmd.Flags().StringVar(&sampleText, "text", "", "sample text (auto-generated when empty)")
	cmd.Flags().BoolVar(&auto, "auto", false, "pick the first preview without asking")
	return cmd
}

func runVoiceDesign(ctx context.Context, engine, name, description, sampleText string, auto bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompter := prompt.New()

	if name, err = askIfEmpty(prompter, name, "Character name (e.g. 'gorilla')"); err != nil || name == "" {
		return err
	}
	if description, err = askIfEmpty(prompter, description, "Voice description"); err != nil || description == "" {
		return err
	}

	outputDir := filepath.Join(cfg.Directories.Voices, name)

	if engine == "hume" {
		return designHume(ctx, cfg, prompter, name, description, sampleText, outputDir, auto)
	}

	el, err := newElevenLabs()
	if err != nil {
		return err
	}

	for {
		previews, err := el.Design(ctx, description, sampleText, outputDir)
		if err != nil {
			return err
		}
		if len(previews) == 0 {
			return fmt.Errorf("no previews generated")
		}

		idx := 0
		if !auto {
			idx, err = pickPreview(prompter, len(previews), outputDir)
			if err != nil {
				return err
			}
			if idx == retryChoice {
				if description, err = prompter.InputDefault("New voice description", description); err != nil {
					return err
				}
				continue
			}
			if idx == cancelChoice {
				return nil
			}
		}

		voiceID, err := el.Save(ctx, previews[idx].GeneratedVoiceID, name+"_voice", description)
		if err != nil {
			return err
		}
		return registerVoice(cfg, name, config.Voice{
			VoiceID:     voiceID,
			Name:        name + "_voice",
			Description: description,
			Source:      "designed",
		})
	}
}

func designHume(ctx context.Context, cfg *config.Config, prompter *prompt.Prompter, name, description, sampleText, outputDir string, auto bool) error {
	hume, err := newHume()
	if err != nil {
		return err
	}
	if sampleText == "" {
		sampleText = defaultTestText
	}

	for {
		previews, err := hume.Design(ctx, description, sampleText, outputDir, 0)
		if err != nil {
			return err
		}
		if len(previews) == 0 {
			return fmt.Errorf("no previews generated")
		}

		idx := 0
		if !auto {
			idx, err = pickPreview(prompter, len(previews), outputDir)
			if err != nil {
				return err
			}
			if idx == retryChoice {
				if description, err = prompter.InputDefault("New voice description", description); err != nil {
					return err
				}
				continue
			}
			if idx == cancelChoice {
				return nil
			}
		}

		if err := hume.Save(ctx, previews[idx].GenerationID, name+"_voice"); err != nil {
			return err
		}
		return registerVoice(cfg, name, config.Voice{
			VoiceID:     previews[idx].GenerationID,
			Name:        name + "_voice",
			Description: description,
			Source:      "designed",
			Engine:      "hume",
		})
	}
}

func newVoiceCloneCmd() *cobra.Command {
	var (
		name        string
		description string
		files       []string
		removeNoise bool
	)

	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone a voice from audio recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVoiceClone(cmd.Context(), name, description, files, removeNoise)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "character name")
	cmd.Flags().StringVar(&description, "description", "", "voice description")
	cmd.Flags().StringSliceVar(&files, "files", nil, "audio sample files")
	cmd.Flags().BoolVar(&removeNoise, "remove-noise", false, "remove background noise from samples")
	return cmd
}

func runVoiceClone(ctx context.Context, name, description string, files []string, removeNoise bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompter := prompt.New()

	if name, err = askIfEmpty(prompter, name, "Character name (e.g. 'cranial')"); err != nil || name == "" {
		return err
	}
	if description, err = askIfEmpty(prompter, description, "Voice description"); err != nil || description == "" {
		return err
	}
	if len(files) == 0 {
		answer, err := prompter.Input("Audio file paths (comma-separated)")
		if err != nil || answer == "" {
			return err
		}
		for _, f := range strings.Split(answer, ",") {
			files = append(files, strings.TrimSpace(f))
		}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("audio file not found: %s", f)
		}
	}

	el, err := newElevenLabs()
	if err != nil {
		return err
	}
	voiceID, err := el.Clone(ctx, name+"_voice", description, files, removeNoise)
	if err != nil {
		return err
	}

	return registerVoice(cfg, name, config.Voice{
		VoiceID:     voiceID,
		Name:        name + "_voice",
		Description: description,
		Source:      "cloned",
	})
}

func newVoiceRemixCmd() *cobra.Command {
	var (
		baseName    string
		description string
		newName     string
		strength    float64
	)

	cmd := &cobra.Command{
		Use:   "remix",
		Short: "Remix a configured voice with a modification prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVoiceRemix(cmd.Context(), baseName, description, newName, strength)
		},
	}

	cmd.Flags().StringVar(&baseName, "voice", "", "configured voice to remix")
	cmd.Flags().StringVar(&description, "description", "", "modification description")
	cmd.Flags().StringVar(&newName, "new-name", "", "name for the remixed voice")
	cmd.Flags().Float64Var(&strength, "strength", 0, "prompt strength (0-1, 0 = API default)")
	return cmd
}

func runVoiceRemix(ctx context.Context, baseName, description, newName string, strength float64) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompter := prompt.New()

	if baseName == "" {
		baseName, err = pickConfiguredVoice(cfg, prompter, "Select voice to remix")
		if err != nil || baseName == "" {
			return err
		}
	}
	base, ok := cfg.Voices[baseName]
	if !ok {
		return fmt.Errorf("voice %q not found in config", baseName)
	}
	if base.Engine == "hume" {
		return fmt.Errorf("remix is only supported for ElevenLabs voices")
	}

	if description, err = askIfEmpty(prompter, description, "Describe the modification"); err != nil || description == "" {
		return err
	}
	if newName == "" {
		if newName, err = prompter.InputDefault("Name for remixed voice", baseName+"_remix"); err != nil {
			return err
		}
	}

	el, err := newElevenLabs()
	if err != nil {
		return err
	}
	outputDir := filepath.Join(cfg.Directories.Voices, newName)

	for {
		previews, err := el.Remix(ctx, base.VoiceID, description, "", strength, outputDir)
		if err != nil {
			return err
		}
		if len(previews) == 0 {
			return fmt.Errorf("no remix previews generated")
		}

		idx, err := pickPreview(prompter, len(previews), outputDir)
		if err != nil {
			return err
		}
		if idx == retryChoice {
			if description, err = prompter.InputDefault("New modification description", description); err != nil {
				return err
			}
			continue
		}
		if idx == cancelChoice {
			return nil
		}

		voiceID, err := el.Save(ctx, previews[idx].GeneratedVoiceID, newName+"_voice", description)
		if err != nil {
			return err
		}
		return registerVoice(cfg, newName, config.Voice{
			VoiceID:     voiceID,
			Name:        newName + "_voice",
			Description: description,
			Source:      "remixed",
			RemixedFrom: baseName,
		})
	}
}

func newVoiceListCmd(engine *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured and account voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVoiceList(cmd.Context(), *engine)
		},
	}
}

func runVoiceList(ctx context.Context, engine string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(cfg.Voices) == 0 {
		fmt.Println("No voices configured.")
	} else {
		names := make([]string, 0, len(cfg.Voices))
		for name := range cfg.Voices {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("Configured voices:")
		for _, name := range names {
			v := cfg.Voices[name]
			eng := v.Engine
			if eng == "" {
				eng = "elevenlabs"
			}
			fmt.Printf("  %-16s %-10s %-10s %s\n", name, v.Source, eng, v.Description)
		}
	}

	if engine == "hume" {
		hume, err := newHume()
		if err != nil {
			return err
		}
		remote, err := hume.List(ctx)
		if err != nil {
			return err
		}
		fmt.Println("\nHume account voices:")
		for _, name := range remote {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}

	el, err := newElevenLabs()
	if err != nil {
		return err
	}
	remote, err := el.List(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nElevenLabs account voices:")
	for _, v := range remote {
		fmt.Printf("  %-24s %-24s %s\n", v.Name, v.VoiceID, v.Category)
	}
	return nil
}

func newVoiceTestCmd(engine *string) *cobra.Command {
	var (
		name string
		text string
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Generate a test speech sample from a configured voice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVoiceTest(cmd.Context(), *engine, name, text)
		},
	}

	cmd.Flags().StringVar(&name, "voice", "", "configured voice name")
	cmd.Flags().StringVar(&text, "text", "", "text to speak")
	return cmd
}

func runVoiceTest(ctx context.Context, engine, name, text string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	prompter := prompt.New()

	if name == "" {
		name, err = pickConfiguredVoice(cfg, prompter, "Select voice to test")
		if err != nil || name == "" {
			return err
		}
	}
	v, ok := cfg.Voices[name]
	if !ok {
		return fmt.Errorf("voice %q not found in config", name)
	}
	if text == "" {
		if text, err = prompter.InputDefault("Test text", defaultTestText); err != nil {
			return err
		}
	}

	outputPath := filepath.Join(cfg.Directories.Voices, name, "test_speech.mp3")
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}

	if v.Engine == "hume" || engine == "hume" {
		hume, err := newHume()
		if err != nil {
			return err
		}
		if _, err := hume.Speak(ctx, text, outputPath, voice.SpeakOptions{VoiceName: v.Name}); err != nil {
			return err
		}
	} else {
		el, err := newElevenLabs()
		if err != nil {
			return err
		}
		if err := el.Speak(ctx, v.VoiceID, text, outputPath); err != nil {
			return err
		}
	}

	fmt.Printf("Audio: %s\n", outputPath)
	return nil
}

func newVoiceDialogueCmd() *cobra.Command {
	var (
		script string
		output string
	)

	cmd := &cobra.Command{
		Use:   "dialogue",
		Short: "Generate directed dialogue lines via Hume from a script file",
		Long: "Reads a JSON array of lines ({text, character, direction, voice_name, " +
			"speed}) and synthesizes each with its acting direction. Lines without a " +
			"voice_name use the character's configured Hume voice.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVoiceDialogue(cmd.Context(), script, output)
		},
	}

	cmd.Flags().StringVar(&script, "script", "", "dialogue script JSON file (required)")
	cmd.Flags().StringVar(&output, "output", "", "output directory (default <voices>/dialogue)")
	cmd.MarkFlagRequired("script")
	return cmd
}

func runVoiceDialogue(ctx context.Context, script, output string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lines, err := loadDialogueScript(cfg, script)
	if err != nil {
		return err
	}
	if output == "" {
		output = filepath.Join(cfg.Directories.Voices, "dialogue")
	}

	hume, err := newHume()
	if err != nil {
		return err
	}
	paths, err := hume.Dialogue(ctx, lines, output)
	if err != nil {
		return err
	}

	fmt.Printf("Generated %d dialogue lines in %s\n", len(paths), output)
	return nil
}

// loadDialogueScript parses a script file, resolving characters without an
// explicit voice_name through the config voice registry.
func loadDialogueScript(cfg *config.Config, path string) ([]voice.DialogueLine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	var raw []struct {
		Text      string  `json:"text"`
		Character string  `json:"character"`
		Direction string  `json:"direction"`
		VoiceName string  `json:"voice_name"`
		Speed     float64 `json:"speed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("script has no lines")
	}

	lines := make([]voice.DialogueLine, len(raw))
	for i, r := range raw {
		if r.Text == "" {
			return nil, fmt.Errorf("line %d: missing text", i+1)
		}
		name := r.VoiceName
		if name == "" {
			if v, ok := cfg.Voices[r.Character]; ok {
				name = v.Name
			}
		}
		lines[i] = voice.DialogueLine{
			Text:      r.Text,
			Character: r.Character,
			Direction: r.Direction,
			VoiceName: name,
			Speed:     r.Speed,
		}
	}
	return lines, nil
}

const (
	retryChoice  = -1
	cancelChoice = -2
)

// pickPreview asks which preview to keep, or retry/cancel.
func pickPreview(prompter *prompt.Prompter, n int, outputDir string) (int, error) {
	fmt.Printf("Listen to the previews in %s\n", outputDir)

	options := make([]string, 0, n+2)
	for i := 0; i < n; i++ {
		options = append(options, fmt.Sprintf("Preview %d", i+1))
	}
	options = append(options, "Retry with different description", "Cancel")

	idx, err := prompter.Select("Select voice", options)
	if err != nil {
		return 0, err
	}
	switch idx {
	case n:
		return retryChoice, nil
	case n + 1:
		return cancelChoice, nil
	default:
		return idx, nil
	}
}

func pickConfiguredVoice(cfg *config.Config, prompter *prompt.Prompter, label string) (string, error) {
	if len(cfg.Voices) == 0 {
		return "", fmt.Errorf("no voices configured, design or clone one first")
	}
	names := make([]string, 0, len(cfg.Voices))
	for name := range cfg.Voices {
		names = append(names, name)
	}
	sort.Strings(names)

	idx, err := prompter.Select(label, names)
	if err != nil {
		return "", err
	}
	return names[idx], nil
}

func registerVoice(cfg *config.Config, name string, v config.Voice) error {
	if cfg.Voices == nil {
		cfg.Voices = make(map[string]config.Voice)
	}
	cfg.Voices[name] = v
	if err := cfg.Save(flagConfig); err != nil {
		return err
	}
	fmt.Printf("Voice %q saved to config.\n", name)
	return nil
}

func askIfEmpty(prompter *prompt.Prompter, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return prompter.Input(label)
}
