package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestDetectDish(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(completionResponse(" «Борщ». "))
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "gpt-4o")
	dish, err := client.DetectDish(context.Background(), []byte("fake-jpeg"))
	require.NoError(t, err)

	assert.Equal(t, "Борщ", dish)
	assert.Equal(t, "gpt-4o", captured.Model)
	assert.Equal(t, 20, captured.MaxTokens)
}

func TestCritique(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(completionResponse("Жир в тарелке, жир на боках."))
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "gpt-4o")
	critique, err := client.Critique(context.Background(), "Пицца", []byte("fake-jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "Жир в тарелке, жир на боках.", critique)
	assert.Equal(t, 300, captured.MaxTokens)

	// The user message must carry the dish label and the photo itself.
	require.Len(t, captured.Messages, 2)
	parts, ok := captured.Messages[1].Content.([]any)
	require.True(t, ok)
	require.Len(t, parts, 2)

	text := parts[0].(map[string]any)
	assert.Equal(t, "text", text["type"])
	assert.Contains(t, text["text"], "Пицца")

	img := parts[1].(map[string]any)
	assert.Equal(t, "image_url", img["type"])
	url := img["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, imageDataURL([]byte("fake-jpeg")), url)
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limit exceeded", "type": "rate_limit"},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "gpt-4o")
	_, err := client.Critique(context.Background(), "Пицца", []byte("fake-jpeg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewClient("test-key", srv.URL, "gpt-4o")
	_, err := client.DetectDish(context.Background(), []byte("fake-jpeg"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty completion")
}
