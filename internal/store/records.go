package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RequestRecord is the snapshot persisted at request entry.
type RequestRecord struct {
	ID        string          `json:"id"`
	User      string          `json:"user,omitempty"`
	Model     string          `json:"model"`
	Messages  json.RawMessage `json:"messages"`
	Tools     json.RawMessage `json:"tools,omitempty"`
	Stream    bool            `json:"stream"`
	CreatedAt time.Time       `json:"created_at"`
}

// ResponseRecord is the snapshot persisted when a request finishes, whether
// successfully or not.
type ResponseRecord struct {
	RequestID    string          `json:"request_id"`
	Body         json.RawMessage `json:"body,omitempty"`
	ToolsUsed    []string        `json:"tools_used,omitempty"`
	FinishReason string          `json:"finish_reason"`
	Error        string          `json:"error,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

type UsageRecord struct {
	RequestID        string    `json:"request_id"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
}

type ToolCallRecord struct {
	RequestID  string          `json:"request_id"`
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Content    string          `json:"content,omitempty"`
	Success    bool            `json:"success"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Log is the append-only keyed record log the audit recorder writes through.
// Every record is write-once; keys embed the request id (and tool-call id for
// tool-call records) so concurrent requests never contend.
type Log struct {
	backend Backend
}

func NewLog(backend Backend) *Log {
	return &Log{backend: backend}
}

func (l *Log) SaveRequest(ctx context.Context, rec RequestRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("request record missing id")
	}
	return l.put(ctx, "req/"+rec.ID, rec)
}

func (l *Log) SaveResponse(ctx context.Context, rec ResponseRecord) error {
	if strings.TrimSpace(rec.RequestID) == "" {
		return fmt.Errorf("response record missing request id")
	}
	return l.put(ctx, "resp/"+rec.RequestID, rec)
}

func (l *Log) SaveUsage(ctx context.Context, rec UsageRecord) error {
	if strings.TrimSpace(rec.RequestID) == "" {
		return fmt.Errorf("usage record missing request id")
	}
	return l.put(ctx, "usage/"+rec.RequestID, rec)
}

func (l *Log) SaveToolCall(ctx context.Context, rec ToolCallRecord) error {
	if strings.TrimSpace(rec.RequestID) == "" || strings.TrimSpace(rec.ToolCallID) == "" {
		return fmt.Errorf("tool call record missing request id or tool call id")
	}
	return l.put(ctx, "toolcall/"+rec.RequestID+"/"+rec.ToolCallID, rec)
}

func (l *Log) GetRequest(ctx context.Context, id string) (RequestRecord, error) {
	var rec RequestRecord
	err := l.get(ctx, "req/"+id, &rec)
	return rec, err
}

func (l *Log) GetResponse(ctx context.Context, requestID string) (ResponseRecord, error) {
	var rec ResponseRecord
	err := l.get(ctx, "resp/"+requestID, &rec)
	return rec, err
}

func (l *Log) GetUsage(ctx context.Context, requestID string) (UsageRecord, error) {
	var rec UsageRecord
	err := l.get(ctx, "usage/"+requestID, &rec)
	return rec, err
}

func (l *Log) ListToolCalls(ctx context.Context, requestID string) ([]ToolCallRecord, error) {
	keys, err := l.backend.List(ctx, "toolcall/"+requestID+"/")
	if err != nil {
		return nil, err
	}
	out := make([]ToolCallRecord, 0, len(keys))
	for _, key := range keys {
		var rec ToolCallRecord
		if err := l.get(ctx, key, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (l *Log) put(ctx context.Context, key string, rec any) error {
	if _, ok, err := l.backend.Get(ctx, key); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return l.backend.Set(ctx, key, string(raw))
}

func (l *Log) get(ctx context.Context, key string, out any) error {
	raw, ok, err := l.backend.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return json.Unmarshal([]byte(raw), out)
}
