package openairesponses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgate/gateway/internal/canonical"
)

func TestClientToCanonical_InputTextSubstitution(t *testing.T) {
	req := &ClientRequest{
		Model:        "gpt-5",
		Instructions: "be terse",
		Input: []ClientInput{
			{Role: "user", Content: []ClientInputPart{{Type: "input_text", Text: "hi"}}},
		},
	}

	cr, err := ClientToCanonical(req)
	require.NoError(t, err)
	assert.Equal(t, "be terse", cr.System)
	require.Len(t, cr.Messages, 1)
	assert.Equal(t, canonical.PartText, cr.Messages[0].Content[0].Type)
}

func TestCanonicalToClient_FunctionCall(t *testing.T) {
	resp := &canonical.CanonicalResponse{
		ID: "resp_1", Model: "gpt-5",
		Choices: []canonical.Choice{{
			Message:      canonical.Message{ToolCalls: []canonical.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: "{}"}}},
			FinishReason: canonical.FinishToolCalls,
		}},
	}

	out := CanonicalToClient(resp)
	require.Len(t, out.Output, 1)
	assert.Equal(t, "function_call", out.Output[0].Type)
	assert.Equal(t, "completed", out.Status)
}

func TestStreamProcessor_CompletedEvent(t *testing.T) {
	p := NewStreamProcessor()
	events, err := p.Process([]byte(`{"type":"response.completed","response":{"id":"resp_1","status":"completed","usage":{"input_tokens":3,"output_tokens":2}}}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, canonical.EventResponseCompleted, events[0].Type)
	assert.Equal(t, canonical.FinishStop, events[0].FinishReason)
	assert.Equal(t, 5, events[0].Usage.TotalTokens)
}

func TestStreamProcessor_TextDelta(t *testing.T) {
	p := NewStreamProcessor()
	events, err := p.Process([]byte(`{"type":"response.output_text.delta","delta":"hi","output_index":0}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, canonical.DeltaText, events[0].Part)
	assert.Equal(t, "hi", events[0].Delta)
}
