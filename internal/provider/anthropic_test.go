package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgate/gateway/internal/canonical"
)

func TestAnthropicProvider_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.System)
		assert.Equal(t, 8192, req.MaxTokens)

		resp := anthropicResponse{
			ID:         "msg_123",
			Model:      "claude-3-5-sonnet-20241022",
			StopReason: "end_turn",
			Content:    []anthropicContentPart{{Type: "text", Text: "hi there"}},
			Usage:      anthropicUsage{InputTokens: 10, OutputTokens: 5},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL, srv.Client())

	req := &canonical.CanonicalRequest{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []canonical.Message{
			{Role: canonical.RoleSystem, Content: []canonical.ContentPart{{Type: canonical.PartText, Text: "hello"}}},
			{Role: canonical.RoleUser, Content: []canonical.ContentPart{{Type: canonical.PartText, Text: "hi"}}},
		},
	}

	resp, err := p.ChatCompletion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Text())
	assert.Equal(t, canonical.FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
}

func TestAnthropicProvider_ChatCompletionStream_ReturnsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("event: message_start\ndata: {}\n\n"))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", srv.URL, srv.Client())
	rc, err := p.ChatCompletionStream(context.Background(), &canonical.CanonicalRequest{Model: "claude-3-5-sonnet-20241022"})
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(body), "message_start")
}

func TestAnthropicProvider_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("bad-key", srv.URL, srv.Client())
	_, err := p.ChatCompletion(context.Background(), &canonical.CanonicalRequest{Model: "claude-3-5-sonnet-20241022"})
	require.Error(t, err)
}

func TestDefaultMaxTokensFor(t *testing.T) {
	assert.Equal(t, 8192, defaultMaxTokensFor("claude-3-5-sonnet-20241022"))
	assert.Equal(t, fallbackMaxTokens, defaultMaxTokensFor("claude-3-opus-20240229"))
}
