package modelclient

import (
	"encoding/json"

	"toolbridge/internal/convo"
)

func toOpenAIMessages(messages []convo.Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		entry := map[string]any{"role": m.Role}
		switch m.Role {
		case convo.RoleTool:
			entry["content"] = m.Content
			entry["tool_call_id"] = m.ToolCallID
		case convo.RoleAssistant:
			entry["content"] = m.Content
			if len(m.ToolCalls) > 0 {
				calls := make([]map[string]any, 0, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					args, _ := json.Marshal(tc.Arguments)
					calls = append(calls, map[string]any{
						"id":   tc.ID,
						"type": "function",
						"function": map[string]any{
							"name":      tc.Name,
							"arguments": string(args),
						},
					})
				}
				entry["tool_calls"] = calls
			}
		default:
			entry["content"] = m.Content
		}
		out = append(out, entry)
	}
	return out
}

func toOpenAITools(tools []convo.Tool) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return out
}

// splitAnthropicSystem pulls system messages out of the log (the anthropic
// API takes them as a top-level field) and converts the rest to its block
// format, folding tool results into user-role tool_result blocks.
func splitAnthropicSystem(messages []convo.Message) (string, []map[string]any) {
	system := ""
	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case convo.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case convo.RoleTool:
			out = append(out, map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{
						"type":        "tool_result",
						"tool_use_id": m.ToolCallID,
						"content":     m.Content,
					},
				},
			})
		case convo.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, map[string]any{"role": "assistant", "content": m.Content})
				continue
			}
			blocks := make([]any, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			out = append(out, map[string]any{"role": "assistant", "content": blocks})
		default:
			out = append(out, map[string]any{"role": "user", "content": m.Content})
		}
	}
	return system, out
}

func toAnthropicTools(tools []convo.Tool) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": schema,
		})
	}
	return out
}
