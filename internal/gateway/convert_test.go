package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolbridge/internal/convo"
	"toolbridge/internal/runloop"
)

func TestValidateChatRequest(t *testing.T) {
	base := func() ChatCompletionsRequest {
		return ChatCompletionsRequest{
			Model:    "gpt-4o",
			Messages: []ChatMessage{{Role: "user", Content: "hi"}},
		}
	}

	require.NoError(t, validateChatRequest(base()))

	cases := []struct {
		name   string
		mutate func(*ChatCompletionsRequest)
		code   string
	}{
		{"missing model", func(r *ChatCompletionsRequest) { r.Model = " " }, "missing_model"},
		{"missing messages", func(r *ChatCompletionsRequest) { r.Messages = nil }, "missing_messages"},
		{"bad role", func(r *ChatCompletionsRequest) { r.Messages[0].Role = "robot" }, "invalid_role"},
		{"tool message without id", func(r *ChatCompletionsRequest) {
			r.Messages = append(r.Messages, ChatMessage{Role: "tool", Content: "42"})
		}, "missing_tool_call_id"},
		{"bad tool type", func(r *ChatCompletionsRequest) {
			r.Tools = []ToolDefinition{{Type: "retrieval", Function: ToolFunction{Name: "x"}}}
		}, "invalid_tool_type"},
		{"nameless tool", func(r *ChatCompletionsRequest) {
			r.Tools = []ToolDefinition{{Type: "function"}}
		}, "missing_tool_name"},
		{"temperature range", func(r *ChatCompletionsRequest) { r.Temperature = ptr(2.5) }, "invalid_temperature"},
		{"top_p range", func(r *ChatCompletionsRequest) { r.TopP = ptr(-0.1) }, "invalid_top_p"},
		{"max_tokens positive", func(r *ChatCompletionsRequest) { n := 0; r.MaxTokens = &n }, "invalid_max_tokens"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			tc.mutate(&req)
			err := validateChatRequest(req)
			require.Error(t, err)
			_, _, code := classify(err)
			assert.Equal(t, tc.code, code)
		})
	}
}

func ptr(f float64) *float64 { return &f }

func TestToConvoMessagesPreservesToolHistory(t *testing.T) {
	msgs := toConvoMessages([]ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", ToolCalls: []ToolCall{
			{ID: "call_1", Type: "function", Function: ToolCallFunction{Name: "lookup", Arguments: `{"q":"x"}`}},
		}},
		{Role: "tool", Content: "42", ToolCallID: "call_1"},
	})
	require.Len(t, msgs, 3)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"q": "x"}, msgs[1].ToolCalls[0].Arguments)
	assert.Equal(t, "call_1", msgs[2].ToolCallID)
}

func TestToConvoMessagesGeneratesMissingCallIDs(t *testing.T) {
	msgs := toConvoMessages([]ChatMessage{
		{Role: "assistant", ToolCalls: []ToolCall{
			{Function: ToolCallFunction{Name: "lookup"}},
		}},
	})
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.NotEmpty(t, msgs[0].ToolCalls[0].ID)
}

func TestContentToText(t *testing.T) {
	assert.Equal(t, "plain", contentToText("plain"))
	assert.Equal(t, "", contentToText(nil))
	assert.Equal(t, "a\nb", contentToText([]any{
		map[string]any{"type": "text", "text": "a"},
		map[string]any{"type": "image_url", "image_url": "ignored"},
		map[string]any{"type": "text", "text": "b"},
	}))
}

func TestToChatResponse(t *testing.T) {
	outcome := runloop.Outcome{
		FinishReason:  runloop.FinishMaxIterations,
		Content:       "partial",
		ToolCalls:     []convo.ToolCall{{ID: "call_1", Name: "lookup", Arguments: map[string]any{"q": "x"}}},
		ToolNamesUsed: []string{"lookup"},
		Usage:         convo.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	}
	out := toChatResponse("chatcmpl_1", "gpt-4o", outcome, 1500*time.Millisecond)

	assert.Equal(t, "max_iterations", out.Choices[0].FinishReason)
	assert.Equal(t, "partial", out.Choices[0].Message.Content)
	require.Len(t, out.Choices[0].Message.ToolCalls, 1)
	assert.JSONEq(t, `{"q":"x"}`, out.Choices[0].Message.ToolCalls[0].Function.Arguments)
	assert.Equal(t, int64(1500), out.ResponseTimeMS)

	// tools_used is always present, even when empty.
	empty := toChatResponse("chatcmpl_2", "gpt-4o", runloop.Outcome{FinishReason: runloop.FinishStop}, 0)
	assert.NotNil(t, empty.ToolsUsed)
	assert.Empty(t, empty.ToolsUsed)
}
