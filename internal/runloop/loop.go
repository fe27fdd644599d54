// Package runloop drives one conversation through repeated model and tool
// provider calls until the model stops requesting tools. It is the sole owner
// of iteration control, termination, and usage accumulation.
package runloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"toolbridge/internal/convo"
	"toolbridge/internal/emit"
	"toolbridge/internal/modelclient"
)

// Finish reasons for a terminated loop.
const (
	// FinishStop: the model produced a final answer with no tool calls.
	FinishStop = "stop"
	// FinishToolsExhausted: the provider returned zero results for a
	// non-empty batch; the loop stops rather than spinning against a dead
	// provider.
	FinishToolsExhausted = "tools_exhausted"
	// FinishMaxIterations: the configured iteration cap was reached while
	// the model still wanted tools.
	FinishMaxIterations = "max_iterations"
)

// ErrOrphanToolResult is returned when the provider sends a result whose id
// matches no tool call from the current turn.
var ErrOrphanToolResult = errors.New("tool provider returned orphan result")

// ModelClient is the model provider collaborator: one conversation in, one
// assistant turn plus usage out.
type ModelClient interface {
	Complete(ctx context.Context, req modelclient.Request) (modelclient.Result, error)
}

// ToolInvoker executes a batch of tool calls. Results correlate by id, not
// position; individual failures arrive as Success=false results.
type ToolInvoker interface {
	Invoke(ctx context.Context, calls []convo.ToolCall) ([]convo.ToolResult, error)
}

// Hooks observes tool executions for auditing. Best-effort; hook latency sits
// on the request path, persistence inside hooks should not.
type Hooks interface {
	ToolCall(call convo.ToolCall, result convo.ToolResult, elapsed time.Duration)
}

type nopHooks struct{}

func (nopHooks) ToolCall(convo.ToolCall, convo.ToolResult, time.Duration) {}

type Config struct {
	Model string
	// MaxIterations caps the number of model calls; 0 means unbounded,
	// preserving the run-until-done baseline as an explicit opt-in.
	MaxIterations int
	Sampling      modelclient.SamplingParams
	Hooks         Hooks
}

// Outcome is everything accumulated across the loop's iterations.
type Outcome struct {
	FinishReason  string
	Content       string
	ToolCalls     []convo.ToolCall
	ToolNamesUsed []string
	Usage         convo.Usage
	ModelCalls    int
}

// Loop is a reusable runner; per-request state lives in the convo.State
// passed to Run, so one Loop serves concurrent requests.
type Loop struct {
	model ModelClient
	tools ToolInvoker
}

func New(model ModelClient, tools ToolInvoker) *Loop {
	return &Loop{model: model, tools: tools}
}

// Run executes the tool-call loop to termination. The emitter receives
// progress in strict order; in atomic mode pass emit.Nop. On error the
// returned outcome still carries whatever was accumulated, with an "error"
// finish reason left to the caller's audit path.
func (l *Loop) Run(ctx context.Context, st *convo.State, cfg Config, em emit.Emitter) (Outcome, error) {
	if em == nil {
		em = emit.Nop{}
	}
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = nopHooks{}
	}

	var content strings.Builder
	out := Outcome{}
	if err := em.Begin(); err != nil {
		return out, err
	}

	for turn := 1; ; turn++ {
		if err := ctx.Err(); err != nil {
			out.snapshot(st, content.String())
			return out, err
		}

		res, err := l.model.Complete(ctx, modelclient.Request{
			Model:    cfg.Model,
			Messages: st.Messages(),
			Tools:    st.Tools(),
			Sampling: cfg.Sampling,
		})
		if err != nil {
			out.snapshot(st, content.String())
			return out, err
		}
		out.ModelCalls++
		if err := st.AppendAssistant(res.Message, res.Usage); err != nil {
			out.snapshot(st, content.String())
			return out, fmt.Errorf("conversation state violation: %w", err)
		}
		content.WriteString(res.Message.Content)
		out.ToolCalls = append(out.ToolCalls, res.Message.ToolCalls...)

		if len(res.Message.ToolCalls) == 0 {
			return l.finish(st, em, &out, content.String(), FinishStop)
		}
		if cfg.MaxIterations > 0 && turn >= cfg.MaxIterations {
			return l.finish(st, em, &out, content.String(), FinishMaxIterations)
		}

		names := make([]string, 0, len(res.Message.ToolCalls))
		for _, call := range res.Message.ToolCalls {
			names = append(names, call.Name)
		}
		if err := em.ToolDispatch(names); err != nil {
			out.snapshot(st, content.String())
			return out, err
		}
		if err := ctx.Err(); err != nil {
			out.snapshot(st, content.String())
			return out, err
		}

		started := time.Now()
		results, err := l.tools.Invoke(ctx, res.Message.ToolCalls)
		elapsed := time.Since(started)
		if err != nil {
			out.snapshot(st, content.String())
			return out, err
		}
		if len(results) == 0 {
			return l.finish(st, em, &out, content.String(), FinishToolsExhausted)
		}

		byID := make(map[string]convo.ToolCall, len(res.Message.ToolCalls))
		for _, call := range res.Message.ToolCalls {
			byID[call.ID] = call
		}
		for _, result := range results {
			call, ok := byID[result.ToolCallID]
			if !ok {
				out.snapshot(st, content.String())
				return out, fmt.Errorf("%w: %q", ErrOrphanToolResult, result.ToolCallID)
			}
			delete(byID, result.ToolCallID)
			hooks.ToolCall(call, result, elapsed)
			if err := st.AppendToolResult(result); err != nil {
				out.snapshot(st, content.String())
				return out, fmt.Errorf("conversation state violation: %w", err)
			}
		}
		// A provider that answered only part of the batch still owes the
		// model one result per call; fill the gaps as failures so the next
		// turn never sees unresolved calls.
		for id, call := range byID {
			missing := convo.ToolResult{
				ToolCallID: id,
				Content:    "tool provider returned no result for this call",
				Success:    false,
			}
			hooks.ToolCall(call, missing, elapsed)
			if err := st.AppendToolResult(missing); err != nil {
				out.snapshot(st, content.String())
				return out, fmt.Errorf("conversation state violation: %w", err)
			}
		}
	}
}

func (l *Loop) finish(st *convo.State, em emit.Emitter, out *Outcome, content, reason string) (Outcome, error) {
	out.snapshot(st, content)
	out.FinishReason = reason
	if err := em.Final(content, reason, out.Usage); err != nil {
		return *out, err
	}
	if err := em.Done(); err != nil {
		return *out, err
	}
	return *out, nil
}

func (o *Outcome) snapshot(st *convo.State, content string) {
	o.Content = content
	o.Usage = st.Usage()
	o.ToolNamesUsed = st.ToolNamesUsed()
}
