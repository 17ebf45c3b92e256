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

func TestDesignSavesPreviewsAndMetadata(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("mp3-bytes"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/text-to-voice/create-previews", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("xi-api-key"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "a gravelly viking warlord", req["voice_description"])
		require.Equal(t, true, req["auto_generate_text"])

		fmt.Fprintf(w, `{"text":"generated sample","previews":[
			{"audio_base_64":%q,"generated_voice_id":"gen-1","duration_secs":3.2,"media_type":"audio/mpeg"},
			{"audio_base_64":%q,"generated_voice_id":"gen-2","duration_secs":3.5,"media_type":"audio/mpeg"}
		]}`, audio, audio)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	client := NewElevenLabsClient("test-key").WithBaseURL(server.URL)

	previews, err := client.Design(context.Background(), "a gravelly viking warlord", "", dir)
	require.NoError(t, err)
	require.Len(t, previews, 2)
	require.Equal(t, "gen-1", previews[0].GeneratedVoiceID)

	data, err := os.ReadFile(filepath.Join(dir, "preview_1.mp3"))
	require.NoError(t, err)
	require.Equal(t, "mp3-bytes", string(data))

	metaData, err := os.ReadFile(filepath.Join(dir, "previews.json"))
	require.NoError(t, err)
	var meta struct {
		SampleText string `json:"sample_text"`
		Previews   []struct {
			GeneratedVoiceID string `json:"generated_voice_id"`
		} `json:"previews"`
	}
	require.NoError(t, json.Unmarshal(metaData, &meta))
	require.Equal(t, "generated sample", meta.SampleText)
	require.Len(t, meta.Previews, 2)
}

func TestSaveVoiceFromPreview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/text-to-voice/create-voice-from-preview", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gen-1", req["generated_voice_id"])
		require.Equal(t, "warlord", req["voice_name"])
		fmt.Fprint(w, `{"voice_id":"voice-123"}`)
	}))
	t.Cleanup(server.Close)

	client := NewElevenLabsClient("test-key").WithBaseURL(server.URL)
	voiceID, err := client.Save(context.Background(), "gen-1", "warlord", "a gravelly viking warlord")
	require.NoError(t, err)
	require.Equal(t, "voice-123", voiceID)
}

func TestCloneSendsMultipart(t *testing.T) {
	sample := filepath.Join(t.TempDir(), "sample.mp3")
	require.NoError(t, os.WriteFile(sample, []byte("recording"), 0644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/voices/add", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "warlord", r.FormValue("name"))
		require.Len(t, r.MultipartForm.File["files"], 1)
		fmt.Fprint(w, `{"voice_id":"voice-456"}`)
	}))
	t.Cleanup(server.Close)

	client := NewElevenLabsClient("test-key").WithBaseURL(server.URL)
	voiceID, err := client.Clone(context.Background(), "warlord", "cloned", []string{sample}, false)
	require.NoError(t, err)
	require.Equal(t, "voice-456", voiceID)
}

func TestSpeakWritesAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/text-to-speech/voice-123", r.URL.Path)
		require.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "eleven_multilingual_v2", req["model_id"])
		w.Write([]byte("mp3-bytes"))
	}))
	t.Cleanup(server.Close)

	out := filepath.Join(t.TempDir(), "test.mp3")
	client := NewElevenLabsClient("test-key").WithBaseURL(server.URL)
	require.NoError(t, client.Speak(context.Background(), "voice-123", "hello there", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "mp3-bytes", string(data))
}

func TestAPIErrorSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusPaymentRequired)
	}))
	t.Cleanup(server.Close)

	client := NewElevenLabsClient("test-key").WithBaseURL(server.URL)
	_, err := client.List(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "402")
	require.Contains(t, err.Error(), "quota exceeded")
}
