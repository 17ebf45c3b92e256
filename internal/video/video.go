// Package video turns keyframes into video clips through fal-hosted models:
// Kling image-to-video for storyboard clips, Kling video-to-video for edits,
// and WAN image-to-video as an alternate engine.
package video

import (
	"context"
	"encoding/json"
)

// queueClient is the subset of the fal client the engines use.
type queueClient interface {
	Subscribe(ctx context.Context, app string, payload any, onLog func(string)) (json.RawMessage, error)
	UploadFile(ctx context.Context, path string) (string, error)
	DownloadFile(ctx context.Context, url, destPath string) error
}

type videoResult struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	URL string `json:"url"`
}

func (r videoResult) videoURL() string {
	if r.Video.URL != "" {
		return r.Video.URL
	}
	return r.URL
}
