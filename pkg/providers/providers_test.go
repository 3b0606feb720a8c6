package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(context.Background(), "anthropic")
	assert.Error(t, err)

	t.Setenv("GEMINI_API_KEY", "")
	_, err = New(context.Background(), "gemini")
	assert.Error(t, err)

	client, err := New(context.Background(), "openai", WithAPIKey("test-openai-api-key"))
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)
}

func TestOpenAIComplete(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			gotModel, _ = body["model"].(string)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "ANSWER: yes"},
			}},
		})
	}))
	defer srv.Close()

	client := OpenAi(context.Background(), WithBaseURL(srv.URL+"/"), WithAPIKey("test-openai-api-key"))
	out, err := client.Complete(context.Background(), "gpt-4o-mini", "was it a success?")
	require.NoError(t, err)
	assert.Equal(t, "ANSWER: yes", out)
	assert.Equal(t, "gpt-4o-mini", gotModel)
}
