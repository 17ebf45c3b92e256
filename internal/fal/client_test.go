package fal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noBackoff(int) time.Duration { return 0 }

// newQueueServer fakes the queue API: submit, two status polls, result.
func newQueueServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()

	var server *httptest.Server
	mux.HandleFunc("POST /fal-ai/test-app", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Key test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{
			"request_id":   "req-1",
			"status_url":   server.URL + "/status",
			"response_url": server.URL + "/result",
		})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("logs"))
		status := "IN_PROGRESS"
		if polls.Add(1) > 1 {
			status = "COMPLETED"
		}
		fmt.Fprintf(w, `{"status":%q,"logs":[{"message":"working"}]}`, status)
	})
	mux.HandleFunc("GET /result", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, result)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSubscribeCompletes(t *testing.T) {
	server := newQueueServer(t, `{"video":{"url":"https://cdn/out.mp4"}}`)
	client := NewClient("test-key", WithBaseURLs(server.URL, server.URL), WithBackoff(noBackoff))

	var logs []string
	raw, err := client.Subscribe(context.Background(), "fal-ai/test-app",
		map[string]string{"prompt": "a gorilla"},
		func(msg string) { logs = append(logs, msg) })
	require.NoError(t, err)

	var result struct {
		Video struct {
			URL string `json:"url"`
		} `json:"video"`
	}
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Equal(t, "https://cdn/out.mp4", result.Video.URL)
	require.Contains(t, logs, "working")
}

func TestSubscribeRetriesTransientErrors(t *testing.T) {
	server := newFlakyQueueServer(t, 2)
	client := NewClient("test-key", WithBaseURLs(server.URL, server.URL), WithBackoff(noBackoff))

	raw, err := client.Subscribe(context.Background(), "fal-ai/test-app", map[string]string{}, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(raw))
}

// newFlakyQueueServer fails the first n submits with a 503, then succeeds.
func newFlakyQueueServer(t *testing.T, n int32) *httptest.Server {
	t.Helper()
	var submits atomic.Int32

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST /fal-ai/test-app", func(w http.ResponseWriter, r *http.Request) {
		if submits.Add(1) <= n {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"request_id":   "req-1",
			"status_url":   server.URL + "/status",
			"response_url": server.URL + "/result",
		})
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"COMPLETED","logs":[]}`)
	})
	mux.HandleFunc("GET /result", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSubscribeContentFilterIsTerminal(t *testing.T) {
	var submits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		submits.Add(1)
		http.Error(w, `{"detail":"content policy violation"}`, http.StatusUnprocessableEntity)
	}))
	t.Cleanup(server.Close)

	client := NewClient("test-key", WithBaseURLs(server.URL, server.URL), WithBackoff(noBackoff))
	_, err := client.Subscribe(context.Background(), "fal-ai/test-app", map[string]string{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "content filter")
	require.Equal(t, int32(1), submits.Load())
}

func TestSubscribeGivesUpAfterMaxAttempts(t *testing.T) {
	var submits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		submits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewClient("test-key", WithBaseURLs(server.URL, server.URL), WithBackoff(noBackoff))
	_, err := client.Subscribe(context.Background(), "fal-ai/test-app", map[string]string{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 3 attempts")
	require.Equal(t, int32(3), submits.Load())
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0644))

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("POST /storage/upload/initiate", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "frame.png", req["file_name"])
		require.Equal(t, "image/png", req["content_type"])
		json.NewEncoder(w).Encode(map[string]string{
			"upload_url": server.URL + "/put/frame.png",
			"file_url":   "https://storage.fal/frame.png",
		})
	})
	mux.HandleFunc("PUT /put/frame.png", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient("test-key", WithBaseURLs(server.URL, server.URL))
	url, err := client.UploadFile(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "https://storage.fal/frame.png", url)
}

func TestDownloadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp4-bytes"))
	}))
	t.Cleanup(server.Close)

	dest := filepath.Join(t.TempDir(), "clips", "clip_001.mp4")
	client := NewClient("test-key")
	require.NoError(t, client.DownloadFile(context.Background(), server.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "mp4-bytes", string(data))

	_, err = os.Stat(dest + ".tmp")
	require.True(t, os.IsNotExist(err))
}
