package toolprovider

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

	"github.com/mitchellh/mapstructure"

	"toolbridge/internal/convo"
)

// ErrProvider marks a total tool-provider outage: listing failed or the
// invoke call itself failed. Individual tool failures never produce it.
var ErrProvider = errors.New("tool provider error")

// Selection configures which tools a listing returns.
type Selection struct {
	IncludeDiscovered bool
	Toolkits          []string
	Actions           []string
}

// Client talks to the external tool discovery/execution service.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func New(cfg Config, client *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("tool provider base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid tool provider base url: %w", err)
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
	}, nil
}

// toolDescriptor is the narrow slice of the provider's schema-less tool
// payload that the gateway actually needs.
type toolDescriptor struct {
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	Parameters  map[string]any `mapstructure:"parameters"`
}

// ListTools fetches the tool descriptors matching the selection. Not retried;
// failures propagate to the caller.
func (c *Client) ListTools(ctx context.Context, sel Selection) ([]convo.Tool, error) {
	q := url.Values{}
	if sel.IncludeDiscovered {
		q.Set("discovered", "true")
	}
	if len(sel.Toolkits) > 0 {
		q.Set("toolkits", strings.Join(sel.Toolkits, ","))
	}
	if len(sel.Actions) > 0 {
		q.Set("actions", strings.Join(sel.Actions, ","))
	}
	endpoint := c.baseURL + "/v1/tools"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	var payload struct {
		Items []map[string]any `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	tools := make([]convo.Tool, 0, len(payload.Items))
	for i, item := range payload.Items {
		var desc toolDescriptor
		if err := mapstructure.Decode(item, &desc); err != nil {
			return nil, fmt.Errorf("%w: malformed tool descriptor [%d]: %v", ErrProvider, i, err)
		}
		if strings.TrimSpace(desc.Name) == "" {
			return nil, fmt.Errorf("%w: tool descriptor [%d] missing name", ErrProvider, i)
		}
		tools = append(tools, convo.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			Parameters:  desc.Parameters,
		})
	}
	return tools, nil
}

type invokeResult struct {
	ToolCallID string `mapstructure:"tool_call_id"`
	Content    any    `mapstructure:"content"`
	Success    *bool  `mapstructure:"success"`
	Error      string `mapstructure:"error"`
}

// Invoke executes a batch of tool calls. One result comes back per request,
// in provider order, which callers must not assume matches input order. An
// empty batch short-circuits to an empty result. A single failing tool is a
// Success=false result, never an error.
func (c *Client) Invoke(ctx context.Context, calls []convo.ToolCall) ([]convo.ToolResult, error) {
	if len(calls) == 0 {
		return []convo.ToolResult{}, nil
	}

	body := map[string]any{"calls": calls}
	var payload struct {
		Results []map[string]any `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/execute", body, &payload); err != nil {
		return nil, err
	}

	out := make([]convo.ToolResult, 0, len(payload.Results))
	for i, item := range payload.Results {
		var res invokeResult
		if err := mapstructure.Decode(item, &res); err != nil {
			return nil, fmt.Errorf("%w: malformed execution result [%d]: %v", ErrProvider, i, err)
		}
		success := res.Success == nil || *res.Success
		content := renderContent(res.Content)
		if !success && content == "" {
			content = res.Error
		}
		out = append(out, convo.ToolResult{
			ToolCallID: strings.TrimSpace(res.ToolCallID),
			Content:    content,
			Success:    success,
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, truncate(string(raw), 200))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrProvider, err)
	}
	return nil
}

func renderContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", content)
		}
		return string(raw)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
