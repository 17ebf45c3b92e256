package video

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/j03m/directors-chair/internal/logging"
	"github.com/j03m/directors-chair/internal/storyboard"
)

const (
	klingElementsApp = "fal-ai/kling-video/o3/standard/image-to-video"
	klingVoiceApp    = "fal-ai/kling-video/v3/pro/image-to-video"
)

// KlingEngine generates clips via Kling image-to-video with multi-prompt
// beats. Elements mode (O3) carries character references for visual
// consistency with no audio; voice mode (V3 Pro) is selected when beat
// prompts contain <<<name>>> tags and generates native audio with the
// characters' voices.
type KlingEngine struct {
	client queueClient
	params storyboard.KlingParams
	log    zerolog.Logger
}

// NewKlingEngine returns a KlingEngine with the storyboard's shared params.
func NewKlingEngine(client queueClient, params storyboard.KlingParams) *KlingEngine {
	return &KlingEngine{
		client: client,
		params: params,
		log:    logging.WithComponent("video.kling"),
	}
}

type klingElement struct {
	FrontalImageURL    string   `json:"frontal_image_url"`
	ReferenceImageURLs []string `json:"reference_image_urls"`
}

type multiPromptEntry struct {
	Prompt   string `json:"prompt"`
	Duration string `json:"duration"`
}

type klingVideoPayload struct {
	// Elements mode
	ImageURL string         `json:"image_url,omitempty"`
	Elements []klingElement `json:"elements,omitempty"`

	// Voice mode
	StartImageURL string   `json:"start_image_url,omitempty"`
	GenerateAudio bool     `json:"generate_audio,omitempty"`
	VoiceIDs      []string `json:"voice_ids,omitempty"`

	AspectRatio string             `json:"aspect_ratio"`
	Prompt      string             `json:"prompt,omitempty"`
	Duration    string             `json:"duration,omitempty"`
	MultiPrompt []multiPromptEntry `json:"multi_prompt,omitempty"`
}

// Generate produces the clip at outputPath from the start keyframe and beats.
func (e *KlingEngine) Generate(ctx context.Context, startImage string, beats []storyboard.Beat, characters map[string]storyboard.Character, outputPath string) error {
	resolvedBeats, voiceIDs, err := resolveVoices(beats, characters)
	if err != nil {
		return err
	}

	startURL, err := e.client.UploadFile(ctx, startImage)
	if err != nil {
		return fmt.Errorf("failed to upload start keyframe: %w", err)
	}

	multiPrompt := make([]multiPromptEntry, len(resolvedBeats))
	total := 0
	for i, beat := range resolvedBeats {
		multiPrompt[i] = multiPromptEntry{
			Prompt:   beat.Prompt,
			Duration: strconv.Itoa(beat.Duration),
		}
		total += beat.Duration
	}
	e.log.Info().Int("beats", len(beats)).Int("seconds", total).Bool("voice", len(voiceIDs) > 0).Msg("generating clip")

	payload := klingVideoPayload{AspectRatio: e.params.AspectRatioOrDefault()}
	app := klingElementsApp

	if len(voiceIDs) > 0 {
		app = klingVoiceApp
		payload.StartImageURL = startURL
		payload.GenerateAudio = true
		payload.VoiceIDs = voiceIDs
	} else {
		payload.ImageURL = startURL
		payload.Elements, err = e.uploadElements(ctx, characters)
		if err != nil {
			return err
		}
	}

	// Single prompt for one beat avoids the multi_prompt length limit.
	if len(multiPrompt) == 1 {
		payload.Prompt = multiPrompt[0].Prompt
		payload.Duration = multiPrompt[0].Duration
	} else {
		payload.MultiPrompt = multiPrompt
	}

	raw, err := e.client.Subscribe(ctx, app, payload, func(msg string) {
		e.log.Debug().Str("kling", msg).Msg("progress")
	})
	if err != nil {
		return err
	}

	var result videoResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to parse result: %w", err)
	}
	if result.videoURL() == "" {
		return fmt.Errorf("no video URL in response")
	}

	if err := e.client.DownloadFile(ctx, result.videoURL(), outputPath); err != nil {
		return fmt.Errorf("failed to download clip: %w", err)
	}
	return nil
}

func (e *KlingEngine) uploadElements(ctx context.Context, characters map[string]storyboard.Character) ([]klingElement, error) {
	names := make([]string, 0, len(characters))
	for name := range characters {
		names = append(names, name)
	}
	sort.Strings(names)

	elements := make([]klingElement, 0, len(names))
	for _, name := range names {
		url, err := e.client.UploadFile(ctx, characters[name].ReferenceImage)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s reference: %w", name, err)
		}
		elements = append(elements, klingElement{
			FrontalImageURL:    url,
			ReferenceImageURLs: []string{url},
		})
	}
	return elements, nil
}

var (
	voiceTagPattern = regexp.MustCompile(`<<<(\w+)>>>`)
	elementPattern  = regexp.MustCompile(`@(?:Element|Image)\d+\s*`)
)

// resolveVoices scans beat prompts for <<<name>>> tags. When found, it maps
// each name to its character's kling_voice_id, replaces the tags with
// <<<voice_N>>> slots in order of first appearance, and strips
// @Element/@Image references, which the voice endpoint does not accept.
func resolveVoices(beats []storyboard.Beat, characters map[string]storyboard.Character) ([]storyboard.Beat, []string, error) {
	var seen []string
	for _, beat := range beats {
		for _, m := range voiceTagPattern.FindAllStringSubmatch(beat.Prompt, -1) {
			name := m[1]
			if strings.HasPrefix(name, "voice_") {
				continue
			}
			found := false
			for _, s := range seen {
				if s == name {
					found = true
					break
				}
			}
			if !found {
				seen = append(seen, name)
			}
		}
	}

	if len(seen) == 0 {
		return beats, nil, nil
	}

	voiceIDs := make([]string, 0, len(seen))
	slots := make(map[string]string, len(seen))
	for _, name := range seen {
		c, ok := characters[name]
		if !ok {
			return nil, nil, fmt.Errorf("<<<%s>>> in beat prompt but %q not in characters", name, name)
		}
		if c.KlingVoiceID == "" {
			return nil, nil, fmt.Errorf("character %q has no kling_voice_id", name)
		}
		slots[name] = fmt.Sprintf("<<<voice_%d>>>", len(voiceIDs)+1)
		voiceIDs = append(voiceIDs, c.KlingVoiceID)
	}

	if len(voiceIDs) > storyboard.MaxVoicesPerClip {
		return nil, nil, fmt.Errorf("Kling supports max %d voices per clip but found %d: %v",
			storyboard.MaxVoicesPerClip, len(voiceIDs), seen)
	}

	resolved := make([]storyboard.Beat, len(beats))
	for i, beat := range beats {
		prompt := elementPattern.ReplaceAllString(beat.Prompt, "")
		for name, slot := range slots {
			prompt = strings.ReplaceAll(prompt, "<<<"+name+">>>", slot)
		}
		resolved[i] = storyboard.Beat{Prompt: prompt, Duration: beat.Duration}
	}
	return resolved, voiceIDs, nil
}
