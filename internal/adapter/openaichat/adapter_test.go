package openaichat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgate/gateway/internal/canonical"
)

func TestClientToCanonical_ExtractsSystemMessage(t *testing.T) {
	req := &ClientRequest{
		Model: "gpt-4o",
		Messages: []ClientMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
	}

	cr, err := ClientToCanonical(req)
	require.NoError(t, err)
	assert.Equal(t, "be terse", cr.System)
	require.Len(t, cr.Messages, 1)
	assert.Equal(t, canonical.RoleUser, cr.Messages[0].Role)
	assert.Equal(t, "hi", cr.Messages[0].Text())
}

func TestClientToCanonical_MissingModel(t *testing.T) {
	_, err := ClientToCanonical(&ClientRequest{Messages: []ClientMessage{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
}

func TestClientToCanonical_ToolChoiceFunction(t *testing.T) {
	req := &ClientRequest{
		Model:    "gpt-4o",
		Messages: []ClientMessage{{Role: "user", Content: "hi"}},
		ToolChoice: []byte(`{"type":"function","function":{"name":"get_weather"}}`),
	}

	cr, err := ClientToCanonical(req)
	require.NoError(t, err)
	require.NotNil(t, cr.ToolChoice)
	assert.Equal(t, canonical.ToolChoiceFunction, cr.ToolChoice.Mode)
	assert.Equal(t, "get_weather", cr.ToolChoice.Name)
}

func TestCanonicalToClient_RoundTripsToolCalls(t *testing.T) {
	resp := &canonical.CanonicalResponse{
		ID:    "resp_1",
		Model: "gpt-4o",
		Choices: []canonical.Choice{{
			Index: 0,
			Message: canonical.Message{
				Role:      canonical.RoleAssistant,
				ToolCalls: []canonical.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: `{"city":"nyc"}`}},
			},
			FinishReason: canonical.FinishToolCalls,
		}},
	}

	out := CanonicalToClient(resp)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "tool_calls", out.Choices[0].FinishReason)
	require.Len(t, out.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, "get_weather", out.Choices[0].Message.ToolCalls[0].Function.Name)
}

func TestStreamProcessor_ContentDeltaAndToolCalls(t *testing.T) {
	p := NewStreamProcessor()

	events, err := p.Process([]byte(`{"id":"1","choices":[{"index":0,"delta":{"content":"he"}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, canonical.EventResponseCreated, events[0].Type)
	assert.Equal(t, canonical.EventContentDelta, events[1].Type)
	assert.Equal(t, "he", events[1].Delta)

	events, err = p.Process([]byte(`{"id":"1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"f","arguments":"{\"a\":"}}]}}]}`))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, canonical.EventToolCallStart, events[0].Type)
	assert.Equal(t, canonical.EventFunctionArgsDelta, events[1].Type)

	events, err = p.Process([]byte(`{"id":"1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, canonical.EventResponseCompleted, events[0].Type)
	assert.Equal(t, canonical.EventUsage, events[1].Type)
	assert.Equal(t, 8, events[1].Usage.TotalTokens)
}
