package modelclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolbridge/internal/convo"
)

func TestToOpenAIMessagesToolRoundTrip(t *testing.T) {
	msgs := toOpenAIMessages([]convo.Message{
		{Role: convo.RoleUser, Content: "q"},
		{Role: convo.RoleAssistant, ToolCalls: []convo.ToolCall{
			{ID: "call_1", Name: "lookup", Arguments: map[string]any{"q": "x"}},
		}},
		{Role: convo.RoleTool, Content: "42", ToolCallID: "call_1"},
	})
	require.Len(t, msgs, 3)

	calls := msgs[1]["tool_calls"].([]map[string]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0]["id"])
	assert.Equal(t, "function", calls[0]["type"])
	fn := calls[0]["function"].(map[string]any)
	assert.Equal(t, "lookup", fn["name"])
	assert.JSONEq(t, `{"q":"x"}`, fn["arguments"].(string))

	assert.Equal(t, "call_1", msgs[2]["tool_call_id"])
	assert.Equal(t, "42", msgs[2]["content"])
}

func TestSplitAnthropicSystem(t *testing.T) {
	system, msgs := splitAnthropicSystem([]convo.Message{
		{Role: convo.RoleSystem, Content: "first"},
		{Role: convo.RoleSystem, Content: "second"},
		{Role: convo.RoleUser, Content: "q"},
		{Role: convo.RoleAssistant, Content: "checking", ToolCalls: []convo.ToolCall{
			{ID: "toolu_1", Name: "lookup", Arguments: map[string]any{"q": "x"}},
		}},
		{Role: convo.RoleTool, Content: "42", ToolCallID: "toolu_1"},
	})

	assert.Equal(t, "first\nsecond", system)
	require.Len(t, msgs, 3)

	blocks := msgs[1]["content"].([]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "text", blocks[0].(map[string]any)["type"])
	use := blocks[1].(map[string]any)
	assert.Equal(t, "tool_use", use["type"])
	assert.Equal(t, "toolu_1", use["id"])

	resultMsg := msgs[2]
	assert.Equal(t, "user", resultMsg["role"], "tool results travel as user tool_result blocks")
	result := resultMsg["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "toolu_1", result["tool_use_id"])
	assert.Equal(t, "42", result["content"])
}

func TestToolSchemasDefaultToEmptyObject(t *testing.T) {
	oa := toOpenAITools([]convo.Tool{{Name: "bare"}})
	fn := oa[0]["function"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, fn["parameters"])

	an := toAnthropicTools([]convo.Tool{{Name: "bare", Description: "d"}})
	assert.Equal(t, "bare", an[0]["name"])
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, an[0]["input_schema"])
}
