package gateway

import (
	"fmt"
	"strings"
)

// validateChatRequest enforces the inbound contract before any state is
// created or upstream call made.
func validateChatRequest(req ChatCompletionsRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return invalidRequest("missing_model", "model is required")
	}
	if len(req.Messages) == 0 {
		return invalidRequest("missing_messages", "messages is required and must contain at least one entry")
	}
	for i, m := range req.Messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "system", "user", "assistant", "tool":
		default:
			return invalidRequest("invalid_role", fmt.Sprintf("messages[%d]: unsupported role %q", i, m.Role))
		}
		if role == "tool" && strings.TrimSpace(m.ToolCallID) == "" {
			return invalidRequest("missing_tool_call_id", fmt.Sprintf("messages[%d]: tool message requires tool_call_id", i))
		}
	}
	for i, t := range req.Tools {
		if t.Type != "" && t.Type != "function" {
			return invalidRequest("invalid_tool_type", fmt.Sprintf("tools[%d]: unsupported type %q", i, t.Type))
		}
		if strings.TrimSpace(t.Function.Name) == "" {
			return invalidRequest("missing_tool_name", fmt.Sprintf("tools[%d]: function name is required", i))
		}
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return invalidRequest("invalid_temperature", "temperature must be between 0 and 2")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return invalidRequest("invalid_top_p", "top_p must be between 0 and 1")
	}
	if req.PresencePenalty != nil && (*req.PresencePenalty < -2 || *req.PresencePenalty > 2) {
		return invalidRequest("invalid_presence_penalty", "presence_penalty must be between -2 and 2")
	}
	if req.FrequencyPenalty != nil && (*req.FrequencyPenalty < -2 || *req.FrequencyPenalty > 2) {
		return invalidRequest("invalid_frequency_penalty", "frequency_penalty must be between -2 and 2")
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return invalidRequest("invalid_max_tokens", "max_tokens must be greater than 0")
	}
	if req.N != nil && *req.N <= 0 {
		return invalidRequest("invalid_n", "n must be greater than 0")
	}
	return nil
}

func validateAnalyzeRequest(req AnalyzeRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return invalidRequest("missing_query", "query is required")
	}
	return nil
}
