// Package layout renders storyboard layout frames: an LLM writes a Blender
// Python script from the layout prompt, and Blender executes it headless.
package layout

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/llm"
	"github.com/j03m/directors-chair/internal/logging"
	"github.com/j03m/directors-chair/internal/storyboard"
)

const systemPrompt = "You are a Blender Python script generator. " +
	"You output ONLY valid Python code. No markdown, no explanations, no commentary. " +
	"Just the raw Python script that Blender can execute."

// Generator turns layout prompts into rendered PNG frames.
type Generator struct {
	provider    llm.Provider
	blenderPath string
	log         zerolog.Logger
}

// NewGenerator returns a Generator using the given provider and Blender
// binary.
func NewGenerator(provider llm.Provider, blenderPath string) *Generator {
	return &Generator{
		provider:    provider,
		blenderPath: blenderPath,
		log:         logging.WithComponent("layout"),
	}
}

// Generate renders a layout frame to outputPath. The generated script is
// saved next to the render with a _layout.py suffix.
func (g *Generator) Generate(ctx context.Context, layoutPrompt string, characters map[string]storyboard.Character, outputPath string) error {
	outputPath, err := filepath.Abs(outputPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	userPrompt := buildPrompt(layoutPrompt, characters, outputPath)

	g.log.Debug().Str("provider", g.provider.Name()).Msg("generating Blender script")
	script, err := g.provider.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("failed to generate script: %w", err)
	}
	script = stripFences(script)

	if !looksLikePython(script) {
		g.log.Warn().Msg("model returned prose instead of code, retrying")
		script, err = g.provider.Generate(ctx,
			"Output raw Python code only. Never output explanations.",
			"Output ONLY a Python script for Blender. No text. No explanation.\n\n"+userPrompt)
		if err != nil {
			return fmt.Errorf("failed to generate script on retry: %w", err)
		}
		script = stripFences(script)
		if !looksLikePython(script) {
			return fmt.Errorf("model returned prose instead of Python after retry")
		}
	}

	scriptPath := strings.TrimSuffix(outputPath, ".png") + "_layout.py"
	if err := os.MkdirAll(filepath.Dir(scriptPath), 0755); err != nil {
		return fmt.Errorf("failed to create layout directory: %w", err)
	}
	if err := os.WriteFile(scriptPath, []byte(script), 0644); err != nil {
		return fmt.Errorf("failed to save script: %w", err)
	}
	g.log.Debug().Str("script", filepath.Base(scriptPath)).Msg("script saved")

	return g.Render(ctx, scriptPath, outputPath)
}

// Render runs a Blender script headless and verifies the output exists.
func (g *Generator) Render(ctx context.Context, scriptPath, outputPath string) error {
	if _, err := os.Stat(g.blenderPath); err != nil {
		return fmt.Errorf("blender not found at %s (set system.blender_path in config): %w", g.blenderPath, err)
	}

	g.log.Info().Str("script", filepath.Base(scriptPath)).Msg("running Blender headless")

	cmd := exec.CommandContext(ctx, g.blenderPath, "--background", "--python", scriptPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("blender failed: %w: %s", err, stderr.String())
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("blender ran but output not found at %s", outputPath)
	}
	return nil
}

func buildPrompt(layoutPrompt string, characters map[string]storyboard.Character, outputPath string) string {
	names := make([]string, 0, len(characters))
	for name := range characters {
		names = append(names, name)
	}
	sort.Strings(names)

	var charLines []string
	for i, name := range names {
		c := characters[name]
		bodyType := c.BodyType
		if bodyType == "" {
			bodyType = "regular_male"
		}
		builder, ok := bodyTypeBuilders[bodyType]
		if !ok {
			builder = defaultBuilder
		}
		color := characterColors[i%len(characterColors)]
		desc := c.Description
		if desc == "" {
			desc = name
		}
		charLines = append(charLines, fmt.Sprintf(
			"- %s: body_type=%s, builder function=%s(), color=%s, description='%s'",
			name, bodyType, builder, color, desc))
	}

	return fmt.Sprintf(`Generate a complete Blender Python script.

The script MUST start by defining these exact helper functions, then use them:

%s

After the helpers, add scene setup code:
1. clean_scene()
2. scene = bpy.context.scene
3. setup_render(scene)
4. add_light(scene)
5. Create materials with make_mat()
6. add_ground() with dark ground material (0.2, 0.15, 0.1, 1)
7. Place characters using build_*_figure() functions if the layout calls for them
8. setup_camera() positioned per the layout description
9. scene.frame_set(1)
10. scene.render.filepath = "%s"
11. bpy.ops.render.render(write_still=True)

Characters available:
%s

Layout:
%s

Rules:
- Output ONLY Python code, nothing else
- If layout says no characters, skip character placement
- Use appropriate poses: standing, arms_raised, fighting_stance, fallen, seated`,
		templateCode, outputPath, strings.Join(charLines, "\n"), layoutPrompt)
}

// stripFences removes markdown code fence lines the model sometimes wraps
// its output in.
func stripFences(script string) string {
	script = strings.TrimSpace(script)
	if !strings.Contains(script, "```") {
		return script
	}
	var kept []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// looksLikePython checks the first 20 lines for code rather than prose.
func looksLikePython(script string) bool {
	lines := strings.Split(script, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") ||
			strings.HasPrefix(trimmed, "def ") ||
			strings.HasPrefix(trimmed, "bpy.") ||
			strings.HasPrefix(trimmed, "clean_scene") {
			return true
		}
	}
	return false
}
