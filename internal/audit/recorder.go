// Package audit persists best-effort snapshots of each request's lifecycle.
// Every checkpoint is independent: a failed write is logged and never aborts
// the response path.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"toolbridge/internal/convo"
	"toolbridge/internal/pricing"
	"toolbridge/internal/runloop"
	"toolbridge/internal/store"
)

type Recorder struct {
	records *store.Log
	pricing *pricing.Table
}

func NewRecorder(records *store.Log, table *pricing.Table) *Recorder {
	return &Recorder{records: records, pricing: table}
}

// RequestSnapshot captures the inbound request at entry.
type RequestSnapshot struct {
	ID       string
	User     string
	Model    string
	Messages []convo.Message
	// Tools is the caller-supplied schema; nil when tools were discovered.
	Tools  []convo.Tool
	Stream bool
}

func (r *Recorder) Request(ctx context.Context, snap RequestSnapshot) {
	messages, err := json.Marshal(snap.Messages)
	if err != nil {
		log.Printf("audit: marshal request messages %s: %v", snap.ID, err)
		return
	}
	rec := store.RequestRecord{
		ID:        snap.ID,
		User:      snap.User,
		Model:     snap.Model,
		Messages:  messages,
		Stream:    snap.Stream,
		CreatedAt: time.Now().UTC(),
	}
	if snap.Tools != nil {
		if tools, err := json.Marshal(snap.Tools); err == nil {
			rec.Tools = tools
		}
	}
	if err := r.records.SaveRequest(ctx, rec); err != nil {
		log.Printf("audit: save request %s: %v", snap.ID, err)
	}
}

// ToolCall persists one request/result pair. Satisfies runloop.Hooks when
// bound to a request id via Hooks.
func (r *Recorder) ToolCall(ctx context.Context, requestID string, call convo.ToolCall, result convo.ToolResult, elapsed time.Duration) {
	rec := store.ToolCallRecord{
		RequestID:  requestID,
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    result.Content,
		Success:    result.Success,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if call.Arguments != nil {
		if args, err := json.Marshal(call.Arguments); err == nil {
			rec.Arguments = args
		}
	}
	if err := r.records.SaveToolCall(ctx, rec); err != nil {
		log.Printf("audit: save tool call %s/%s: %v", requestID, call.ID, err)
	}
}

// Completed persists the response and usage records for a finished loop.
func (r *Recorder) Completed(ctx context.Context, requestID, model string, body any, outcome runloop.Outcome, elapsed time.Duration) {
	raw, err := json.Marshal(body)
	if err != nil {
		log.Printf("audit: marshal response %s: %v", requestID, err)
		raw = nil
	}
	if err := r.records.SaveResponse(ctx, store.ResponseRecord{
		RequestID:    requestID,
		Body:         raw,
		ToolsUsed:    outcome.ToolNamesUsed,
		FinishReason: outcome.FinishReason,
		DurationMS:   elapsed.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		log.Printf("audit: save response %s: %v", requestID, err)
	}
	if err := r.records.SaveUsage(ctx, store.UsageRecord{
		RequestID:        requestID,
		PromptTokens:     outcome.Usage.PromptTokens,
		CompletionTokens: outcome.Usage.CompletionTokens,
		TotalTokens:      outcome.Usage.TotalTokens,
		CostUSD:          r.pricing.Cost(model, outcome.Usage),
		CreatedAt:        time.Now().UTC(),
	}); err != nil {
		log.Printf("audit: save usage %s: %v", requestID, err)
	}
}

// Failed persists a response record carrying the error instead of the
// Completed pair.
func (r *Recorder) Failed(ctx context.Context, requestID string, cause error, elapsed time.Duration) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.records.SaveResponse(ctx, store.ResponseRecord{
		RequestID:    requestID,
		FinishReason: "error",
		Error:        msg,
		DurationMS:   elapsed.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		log.Printf("audit: save failure %s: %v", requestID, err)
	}
}

// Hooks binds the recorder to one request so it can serve as the loop's tool
// call observer.
func (r *Recorder) Hooks(ctx context.Context, requestID string) runloop.Hooks {
	return &boundHooks{recorder: r, ctx: ctx, requestID: requestID}
}

type boundHooks struct {
	recorder  *Recorder
	ctx       context.Context
	requestID string
}

func (h *boundHooks) ToolCall(call convo.ToolCall, result convo.ToolResult, elapsed time.Duration) {
	h.recorder.ToolCall(h.ctx, h.requestID, call, result, elapsed)
}
