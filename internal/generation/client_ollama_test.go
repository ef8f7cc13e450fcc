package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peterbot/internal/types"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}

func TestOllamaClient_StreamWithImages(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer images.Close()

	var got OllamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		for _, part := range []string{"Hehe", "hehe"} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", part)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	client := NewOllamaClient(Config{
		BaseURL: server.URL,
		Capability: Capability{
			Provider: "ollama", TextModel: "llama3.2", VisionModel: "llava", Vision: VisionMultimodal,
		},
	})

	req := types.GenerationRequest{
		Prompt:  "what's this",
		Images:  []string{images.URL + "/a.png", images.URL + "/b.png"},
		History: []types.Turn{types.UserTurn("yo"), types.ModelTurn("sup")},
	}
	var text string
	require.NoError(t, Drain(context.Background(), client, req, func(s string) { text += s }))

	assert.Equal(t, "Hehehehe", text)
	assert.Equal(t, "llava", got.Model)
	assert.True(t, got.Stream)
	assert.Equal(t, 2000, got.Options.NumPredict)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
	user := got.Messages[2]
	assert.Equal(t, "what's this", user.Content)
	require.Len(t, user.Images, 2)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), user.Images[0])
}

func TestOllamaClient_SkipsFailedImages(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(pngBytes)
	}))
	defer images.Close()

	var got OllamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprintln(w, `{"message":{"content":"ok"},"done":true}`)
	}))
	defer server.Close()

	client := NewOllamaClient(Config{
		BaseURL:    server.URL,
		Capability: Capability{TextModel: "llava", Vision: VisionMultimodal},
	})
	req := types.GenerationRequest{Prompt: "x", Images: []string{images.URL + "/missing.png", images.URL + "/ok.png"}}
	require.NoError(t, Drain(context.Background(), client, req, func(string) {}))

	require.Len(t, got.Messages, 1)
	assert.Len(t, got.Messages[0].Images, 1)
}

func TestOllamaClient_Errors(t *testing.T) {
	t.Run("429 is overload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewOllamaClient(Config{BaseURL: server.URL, Capability: Capability{TextModel: "m"}})
		err := Drain(context.Background(), client, types.GenerationRequest{Prompt: "x"}, func(string) {})
		assert.True(t, IsOverloaded(err))
	})

	t.Run("error line mid-stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"message":{"content":"a"},"done":false}`)
			fmt.Fprintln(w, `{"error":"model crashed"}`)
		}))
		defer server.Close()

		client := NewOllamaClient(Config{BaseURL: server.URL, Capability: Capability{TextModel: "m"}})
		err := Drain(context.Background(), client, types.GenerationRequest{Prompt: "x"}, func(string) {})
		require.Error(t, err)
		assert.False(t, IsOverloaded(err))
		assert.Contains(t, err.Error(), "model crashed")
	})
}

func TestOllamaClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body OllamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.False(t, body.Stream)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"Roadhouse!"},"done":true}`)
	}))
	defer server.Close()

	client := NewOllamaClient(Config{BaseURL: server.URL, Capability: Capability{TextModel: "m"}})
	text, err := client.Generate(context.Background(), types.GenerationRequest{Prompt: "where to?"})
	require.NoError(t, err)
	assert.Equal(t, "Roadhouse!", text)
}
