package gateway

// ChatCompletionsRequest mirrors the OpenAI chat-completions body for the
// fields this gateway inspects. Unknown top-level fields are tolerated.
type ChatCompletionsRequest struct {
	Model            string            `json:"model"`
	Messages         []ChatMessage     `json:"messages"`
	Tools            []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice       any               `json:"tool_choice,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	PresencePenalty  *float64          `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64          `json:"frequency_penalty,omitempty"`
	MaxTokens        *int              `json:"max_tokens,omitempty"`
	N                *int              `json:"n,omitempty"`
	Stop             any               `json:"stop,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	User             string            `json:"user,omitempty"`
}

type ChatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolDefinition struct {
	Type     string       `json:"type,omitempty"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ChatCompletionsResponse struct {
	ID             string       `json:"id"`
	Object         string       `json:"object"`
	Created        int64        `json:"created"`
	Model          string       `json:"model"`
	Choices        []ChatChoice `json:"choices"`
	Usage          UsageBody    `json:"usage"`
	ToolsUsed      []string     `json:"tools_used"`
	ResponseTimeMS int64        `json:"response_time_ms"`
}

type ChatChoice struct {
	Index        int                 `json:"index"`
	Message      ChatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type ChatResponseMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type UsageBody struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type AnalyzeRequest struct {
	Query           string   `json:"query"`
	StaticToolkits  []string `json:"staticToolkits,omitempty"`
	StaticActions   []string `json:"staticActions,omitempty"`
}

type AnalyzeResponse struct {
	Success   bool   `json:"success"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
}

type ToolsResponse struct {
	Success bool           `json:"success"`
	Tools   []ToolListItem `json:"tools"`
	Count   int            `json:"count"`
}

type ToolListItem struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
}
