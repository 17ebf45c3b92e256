package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHumeSpeakWritesAudioAndMetadata(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("mp3-bytes"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v0/tts", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-Hume-Api-Key"))

		var req humeTTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Utterances, 1)
		require.Equal(t, "I warned you about the mailbox.", req.Utterances[0].Text)
		require.Equal(t, "deadpan, barely keeping a straight face", req.Utterances[0].Description)
		require.Equal(t, "warlord", req.Utterances[0].Voice.Name)
		require.Equal(t, "1", req.Version)

		fmt.Fprintf(w, `{"generations":[{"generation_id":"gen-9","audio":%q,"duration":2.4}]}`, audio)
	}))
	t.Cleanup(server.Close)

	out := filepath.Join(t.TempDir(), "dialogue", "line.mp3")
	client := NewHumeClient("test-key").WithBaseURL(server.URL)

	genID, err := client.Speak(context.Background(), "I warned you about the mailbox.", out, SpeakOptions{
		VoiceName: "warlord",
		Direction: "deadpan, barely keeping a straight face",
	})
	require.NoError(t, err)
	require.Equal(t, "gen-9", genID)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "mp3-bytes", string(data))

	metaData, err := os.ReadFile(filepath.Join(filepath.Dir(out), "line_meta.json"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(metaData, &meta))
	require.Equal(t, "gen-9", meta["generation_id"])
}

func TestHumeSpeakPassesContext(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("x"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req humeTTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Context)
		require.Equal(t, "gen-1", req.Context.GenerationID)
		fmt.Fprintf(w, `{"generations":[{"generation_id":"gen-2","audio":%q,"duration":1.0}]}`, audio)
	}))
	t.Cleanup(server.Close)

	client := NewHumeClient("test-key").WithBaseURL(server.URL)
	genID, err := client.Speak(context.Background(), "and another thing", filepath.Join(t.TempDir(), "l.mp3"), SpeakOptions{
		ContextGenerationID: "gen-1",
	})
	require.NoError(t, err)
	require.Equal(t, "gen-2", genID)
}

func TestHumeDialogueNamesFiles(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("x"))
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, `{"generations":[{"generation_id":"gen-%d","audio":%q,"duration":1.0}]}`, calls, audio)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	client := NewHumeClient("test-key").WithBaseURL(server.URL)

	paths, err := client.Dialogue(context.Background(), []DialogueLine{
		{Text: "who goes there", Character: "warlord", Direction: "booming"},
		{Text: "just me", Character: "cranial", Direction: "nervous"},
	}, dir)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "line_000_warlord.mp3"),
		filepath.Join(dir, "line_001_cranial.mp3"),
	}, paths)
}

func TestHumeDesignSavesPreviews(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("mp3"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req humeTTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 3, req.NumGenerations)
		fmt.Fprintf(w, `{"generations":[
			{"generation_id":"g1","audio":%q,"duration":2.0},
			{"generation_id":"g2","audio":%q,"duration":2.1},
			{"generation_id":"g3","audio":%q,"duration":1.9}
		]}`, audio, audio, audio)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	client := NewHumeClient("test-key").WithBaseURL(server.URL)

	previews, err := client.Design(context.Background(), "a tired wizard", "magic is mostly paperwork", dir, 0)
	require.NoError(t, err)
	require.Len(t, previews, 3)

	_, err = os.Stat(filepath.Join(dir, "preview_2.mp3"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "previews.json"))
	require.NoError(t, err)
}
