// Package emit renders loop progress into the outbound wire format. Exactly
// one of the two modes is picked at request entry: atomic (Nop here, the
// handler serializes the finished outcome) or incremental (SSE).
package emit

import (
	"toolbridge/internal/convo"
)

// Emitter receives loop progress in strict send order. Implementations must
// not reorder or batch events. A write error tells the loop the transport is
// gone; the loop stops after the in-flight call.
type Emitter interface {
	// Begin fires once when the request starts, before the first model call.
	Begin() error
	// ToolDispatch fires once per iteration that dispatches tool calls,
	// carrying the tool names only, never arguments or results.
	ToolDispatch(names []string) error
	// Final carries the finished assistant content and finish reason.
	Final(content, finishReason string, usage convo.Usage) error
	// Done is the terminal sentinel; no events may follow it.
	Done() error
}

// Nop is the atomic-mode emitter: everything is accumulated in the loop
// outcome and serialized once at the end.
type Nop struct{}

func (Nop) Begin() error                            { return nil }
func (Nop) ToolDispatch([]string) error             { return nil }
func (Nop) Final(string, string, convo.Usage) error { return nil }
func (Nop) Done() error                             { return nil }
