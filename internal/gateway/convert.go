package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"toolbridge/internal/convo"
	"toolbridge/internal/modelclient"
	"toolbridge/internal/runloop"
)

// toConvoMessages converts the OpenAI wire messages into the internal log.
// Assistant tool-call history is preserved so multi-request conversations
// replay correctly against either backend.
func toConvoMessages(messages []ChatMessage) []convo.Message {
	out := make([]convo.Message, 0, len(messages))
	for _, m := range messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		msg := convo.Message{
			Role:       role,
			Content:    contentToText(m.Content),
			ToolCallID: strings.TrimSpace(m.ToolCallID),
		}
		for _, tc := range m.ToolCalls {
			id := strings.TrimSpace(tc.ID)
			if id == "" {
				id = nextID("call")
			}
			msg.ToolCalls = append(msg.ToolCalls, convo.ToolCall{
				ID:        id,
				Name:      tc.Function.Name,
				Arguments: parseArgumentsJSON(tc.Function.Arguments),
			})
		}
		out = append(out, msg)
	}
	return out
}

// contentToText flattens string or content-part array bodies to plain text.
func contentToText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		parts := make([]string, 0, len(c))
		for _, item := range c {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := block["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	case nil:
		return ""
	default:
		raw, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func parseArgumentsJSON(arguments string) map[string]any {
	arguments = strings.TrimSpace(arguments)
	if arguments == "" {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(arguments), &decoded); err != nil {
		return map[string]any{"_raw": arguments}
	}
	return decoded
}

func toConvoTools(defs []ToolDefinition) []convo.Tool {
	out := make([]convo.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, convo.Tool{
			Name:        d.Function.Name,
			Description: d.Function.Description,
			Parameters:  d.Function.Parameters,
		})
	}
	return out
}

func toSamplingParams(req ChatCompletionsRequest) modelclient.SamplingParams {
	params := modelclient.SamplingParams{
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
		Stop:             req.Stop,
	}
	if req.MaxTokens != nil {
		params.MaxTokens = *req.MaxTokens
	}
	return params
}

// toChatResponse renders a finished loop outcome as the atomic response
// object: all assistant text concatenated, every tool call flattened, the
// aggregated usage and the ordered tool names.
func toChatResponse(id, model string, outcome runloop.Outcome, elapsed time.Duration) ChatCompletionsResponse {
	toolCalls := make([]ToolCall, 0, len(outcome.ToolCalls))
	for _, tc := range outcome.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		toolCalls = append(toolCalls, ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: ToolCallFunction{
				Name:      tc.Name,
				Arguments: string(args),
			},
		})
	}
	toolsUsed := outcome.ToolNamesUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}

	return ChatCompletionsResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: ChatResponseMessage{
					Role:      convo.RoleAssistant,
					Content:   outcome.Content,
					ToolCalls: toolCalls,
				},
				FinishReason: outcome.FinishReason,
			},
		},
		Usage: UsageBody{
			PromptTokens:     outcome.Usage.PromptTokens,
			CompletionTokens: outcome.Usage.CompletionTokens,
			TotalTokens:      outcome.Usage.TotalTokens,
		},
		ToolsUsed:      toolsUsed,
		ResponseTimeMS: elapsed.Milliseconds(),
	}
}
