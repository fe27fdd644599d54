package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"toolbridge/internal/convo"
)

type Backend string

const (
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "anthropic"
)

var (
	// ErrAuth means the upstream rejected the configured credential.
	ErrAuth = errors.New("model credential rejected")
	// ErrUnavailable means the upstream is unreachable or failing.
	ErrUnavailable = errors.New("model upstream unavailable")
)

// DetectBackend selects the upstream wire format from the credential shape.
// Pure function; the selection is stable for the process lifetime.
func DetectBackend(credential string) Backend {
	if strings.HasPrefix(strings.TrimSpace(credential), "sk-ant-") {
		return BackendAnthropic
	}
	return BackendOpenAI
}

// UpstreamModel strips a vendor namespace prefix ("openai/gpt-4o" -> "gpt-4o")
// so the name matches what the backend expects. Applied immediately before
// each call; never leaks into the conversation or stored records.
func UpstreamModel(model string) string {
	model = strings.TrimSpace(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

type Config struct {
	APIKey   string
	BaseURL  string
	ProxyURL string
	Timeout  time.Duration
}

// Client submits one conversation turn to the upstream model API. The backend
// is fixed at construction from the credential shape.
type Client struct {
	backend Backend
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("model api key is required")
	}
	backend := DetectBackend(apiKey)

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		switch backend {
		case BackendAnthropic:
			base = "https://api.anthropic.com"
		default:
			base = "https://api.openai.com"
		}
	}

	transport := http.DefaultTransport
	if proxy := strings.TrimSpace(cfg.ProxyURL); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		backend: backend,
		apiKey:  apiKey,
		baseURL: base,
		client:  &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

func (c *Client) Backend() Backend {
	return c.backend
}

type SamplingParams struct {
	MaxTokens        int
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Stop             any
}

type Request struct {
	Model    string
	Messages []convo.Message
	Tools    []convo.Tool
	Sampling SamplingParams
}

// Result is one assistant turn plus its usage tuple. Usage may be all-zero
// when the upstream omits usage reporting.
type Result struct {
	Message convo.Message
	Usage   convo.Usage
}

// Complete submits the conversation and returns the assistant turn. Never
// retried internally; failures abort the whole request.
func (c *Client) Complete(ctx context.Context, req Request) (Result, error) {
	switch c.backend {
	case BackendAnthropic:
		return c.completeAnthropic(ctx, req)
	default:
		return c.completeOpenAI(ctx, req)
	}
}

func (c *Client) completeOpenAI(ctx context.Context, req Request) (Result, error) {
	payload := map[string]any{
		"model":    UpstreamModel(req.Model),
		"messages": toOpenAIMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		payload["tools"] = toOpenAITools(req.Tools)
	}
	applySampling(payload, req.Sampling, c.backend)

	raw, err := c.doJSON(ctx, c.baseURL+"/v1/chat/completions", payload)
	if err != nil {
		return Result{}, err
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("openai response decode failed: %w", err)
	}
	if len(out.Choices) == 0 {
		return Result{}, fmt.Errorf("%w: empty choices", ErrUnavailable)
	}

	msg := convo.Message{
		Role:    convo.RoleAssistant,
		Content: out.Choices[0].Message.Content,
	}
	for i, tc := range out.Choices[0].Message.ToolCalls {
		id := strings.TrimSpace(tc.ID)
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}
		msg.ToolCalls = append(msg.ToolCalls, convo.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: parseArguments(tc.Function.Arguments),
		})
	}
	usage := convo.Usage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return Result{Message: msg, Usage: usage}, nil
}

func (c *Client) completeAnthropic(ctx context.Context, req Request) (Result, error) {
	system, messages := splitAnthropicSystem(req.Messages)
	maxTokens := req.Sampling.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	payload := map[string]any{
		"model":      UpstreamModel(req.Model),
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if system != "" {
		payload["system"] = system
	}
	if len(req.Tools) > 0 {
		payload["tools"] = toAnthropicTools(req.Tools)
	}
	applySampling(payload, req.Sampling, c.backend)

	raw, err := c.doJSON(ctx, c.baseURL+"/v1/messages", payload)
	if err != nil {
		return Result{}, err
	}

	var out struct {
		Content []struct {
			Type  string         `json:"type"`
			Text  string         `json:"text"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("anthropic response decode failed: %w", err)
	}

	msg := convo.Message{Role: convo.RoleAssistant}
	var text strings.Builder
	for i, b := range out.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			id := strings.TrimSpace(b.ID)
			if id == "" {
				id = fmt.Sprintf("toolu_%d", i+1)
			}
			msg.ToolCalls = append(msg.ToolCalls, convo.ToolCall{
				ID:        id,
				Name:      b.Name,
				Arguments: b.Input,
			})
		}
	}
	msg.Content = text.String()
	return Result{
		Message: msg,
		Usage: convo.Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		},
	}, nil
}

func (c *Client) doJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	switch c.backend {
	case BackendAnthropic:
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	default:
		req.Header.Set("authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, compactBody(body))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, compactBody(body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("model upstream status %d: %s", resp.StatusCode, compactBody(body))
	}
	return body, nil
}

func applySampling(payload map[string]any, sampling SamplingParams, backend Backend) {
	if sampling.Temperature != nil {
		payload["temperature"] = *sampling.Temperature
	}
	if sampling.TopP != nil {
		payload["top_p"] = *sampling.TopP
	}
	if backend == BackendOpenAI {
		if sampling.MaxTokens > 0 {
			payload["max_tokens"] = sampling.MaxTokens
		}
		if sampling.PresencePenalty != nil {
			payload["presence_penalty"] = *sampling.PresencePenalty
		}
		if sampling.FrequencyPenalty != nil {
			payload["frequency_penalty"] = *sampling.FrequencyPenalty
		}
		if sampling.Stop != nil {
			payload["stop"] = sampling.Stop
		}
	}
}

func parseArguments(arguments string) map[string]any {
	arguments = strings.TrimSpace(arguments)
	if arguments == "" {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal([]byte(arguments), &decoded); err != nil {
		return map[string]any{"_raw": arguments}
	}
	if obj, ok := decoded.(map[string]any); ok {
		return obj
	}
	return map[string]any{"value": decoded}
}

func compactBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
