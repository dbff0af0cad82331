package passthrough

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/llmgate/gateway/internal/canonical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion_MergesAnthropicMaxTokensDefault(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer server.Close()

	c := New(server.Client(), server.URL, "sk-ant-test", "x-api-key", KindAnthropic)
	result, err := c.ChatCompletion(context.Background(), []byte(`{"model":"claude-3-5-sonnet-20241022","messages":[]}`))
	require.NoError(t, err)

	assert.Equal(t, float64(4096), gotBody["max_tokens"])
	assert.Equal(t, false, gotBody["stream"])
	assert.Equal(t, 10, result.Usage.InputTokens)
	assert.Equal(t, 5, result.Usage.OutputTokens)
	assert.Equal(t, 15, result.Usage.TotalTokens)
}

func TestChatCompletion_PreservesExplicitMaxTokens(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer server.Close()

	c := New(server.Client(), server.URL, "sk-ant-test", "x-api-key", KindAnthropic)
	_, err := c.ChatCompletion(context.Background(), []byte(`{"model":"claude-3-5-sonnet-20241022","max_tokens":2048,"messages":[]}`))
	require.NoError(t, err)
	assert.Equal(t, float64(2048), gotBody["max_tokens"])
}

func TestChatCompletion_NonOKForwardsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
	}))
	defer server.Close()

	c := New(server.Client(), server.URL, "sk-test", "Authorization", KindOpenAIChat)
	_, err := c.ChatCompletion(context.Background(), []byte(`{"model":"gpt-4o","messages":[]}`))
	require.Error(t, err)

	var gwErr interface{ HTTPStatus() int }
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusTooManyRequests, gwErr.HTTPStatus())
}

func TestStream_SetsStreamTrueAndReturnsRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":20}}}\n\n"))
		_, _ = w.Write([]byte("data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":7}}\n\n"))
	}))
	defer server.Close()

	c := New(server.Client(), server.URL, "sk-ant-test", "x-api-key", KindAnthropic)
	body, sniffer, usageResult, err := c.Stream(context.Background(), []byte(`{"model":"claude-3-5-sonnet-20241022","messages":[]}`))
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	sniffer.Feed(raw)
	sniffer.Close()

	select {
	case u := <-usageResult:
		assert.Equal(t, 20, u.InputTokens)
		assert.Equal(t, 7, u.OutputTokens)
	default:
		t.Fatal("expected usage to be published after Close")
	}
}

func TestAnthropicUsageSniffer_AccumulatesAcrossEvents(t *testing.T) {
	result := make(chan canonical.Usage, 1)
	s := newAnthropicSniffer(result)
	s.Feed([]byte("data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":20,\"cache_read_input_tokens\":3}}}\n\n"))
	s.Feed([]byte("data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":12}}\n\n"))
	s.Close()

	got := <-result
	assert.Equal(t, 20, got.InputTokens)
	assert.Equal(t, 12, got.OutputTokens)
	assert.Equal(t, 3, got.CachedTokens)
}

func TestResponsesUsageSniffer_BraceBalancesCompletedEvent(t *testing.T) {
	result := make(chan canonical.Usage, 1)
	s := newResponsesSniffer(result)
	payload := `data: {"type":"response.completed","response":{"id":"r1","usage":{"input_tokens":30,"output_tokens":9,"input_tokens_details":{"cached_tokens":4}},"nested":{"a":{"b":1}}}}` + "\n\n"
	s.Feed([]byte(payload))
	s.Close()

	got := <-result
	assert.Equal(t, 30, got.InputTokens)
	assert.Equal(t, 9, got.OutputTokens)
	assert.Equal(t, 4, got.CachedTokens)
}

func TestChatUsageSniffer_StopsAtFirstUsageLine(t *testing.T) {
	result := make(chan canonical.Usage, 1)
	s := newChatSniffer(result)
	s.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
	s.Feed([]byte("data: {\"usage\":{\"prompt_tokens\":11,\"completion_tokens\":4}}\n\n"))
	s.Feed([]byte("data: [DONE]\n\n"))
	s.Close()

	got := <-result
	assert.Equal(t, 11, got.PromptTokens)
	assert.Equal(t, 4, got.CompletionTokens)
}
