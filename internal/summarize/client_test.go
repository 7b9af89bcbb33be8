package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSummarize(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "the summary"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Model: "test-model", RequestsPerMinute: 6000})
	out, err := c.Summarize(context.Background(), "transcript text", 150, "keep it upbeat")
	require.NoError(t, err)

	assert.Equal(t, "the summary", out)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[0].Content, "150 words")
	assert.Contains(t, got.Messages[0].Content, "keep it upbeat")
	assert.Equal(t, "transcript text", got.Messages[1].Content)
}

func TestClientSummarizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerMinute: 6000})
	_, err := c.Summarize(context.Background(), "text", 100, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClientSummarizeNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerMinute: 6000})
	_, err := c.Summarize(context.Background(), "text", 100, "")
	assert.Error(t, err)
}
