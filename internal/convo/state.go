package convo

import (
	"fmt"
	"strings"
)

// State is the message log plus accumulated usage for one request lifecycle.
// It is owned by a single loop run and never shared across requests. Messages
// are append-only; the pending set tracks assistant tool calls that still
// need a matching result before the next model call.
type State struct {
	messages []Message
	tools    []Tool
	usage    Usage
	// toolNamesUsed records names at result time, so it reflects calls that
	// actually executed, not merely ones the model requested.
	toolNamesUsed []string
	pending       map[string]string
}

func NewState(seed []Message, tools []Tool) *State {
	s := &State{
		messages: append([]Message(nil), seed...),
		tools:    append([]Tool(nil), tools...),
		pending:  map[string]string{},
	}
	return s
}

func (s *State) Messages() []Message {
	return s.messages
}

func (s *State) Tools() []Tool {
	return s.tools
}

func (s *State) Usage() Usage {
	return s.usage
}

func (s *State) ToolNamesUsed() []string {
	return append([]string(nil), s.toolNamesUsed...)
}

// AppendAssistant records one model turn. The turn's tool calls become the
// pending set; a turn may not arrive while earlier calls are unresolved.
func (s *State) AppendAssistant(msg Message, usage Usage) error {
	if len(s.pending) > 0 {
		return fmt.Errorf("assistant turn with %d unresolved tool calls", len(s.pending))
	}
	msg.Role = RoleAssistant
	s.messages = append(s.messages, msg)
	s.usage.Add(usage)
	for _, call := range msg.ToolCalls {
		id := strings.TrimSpace(call.ID)
		if id == "" {
			return fmt.Errorf("tool call for %q missing id", call.Name)
		}
		if _, dup := s.pending[id]; dup {
			return fmt.Errorf("duplicate tool call id %q in one turn", id)
		}
		s.pending[id] = call.Name
	}
	return nil
}

// AppendToolResult appends one result, correlated strictly by id. Orphan
// results (no pending call with that id) are rejected.
func (s *State) AppendToolResult(res ToolResult) error {
	id := strings.TrimSpace(res.ToolCallID)
	if id == "" {
		return fmt.Errorf("tool result missing tool_call_id")
	}
	name, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("orphan tool result %q", id)
	}
	delete(s.pending, id)
	s.toolNamesUsed = append(s.toolNamesUsed, name)
	s.messages = append(s.messages, Message{
		Role:       RoleTool,
		Content:    res.Content,
		ToolCallID: id,
	})
	return nil
}

// PendingToolCalls reports how many tool calls from the last assistant turn
// still lack a result.
func (s *State) PendingToolCalls() int {
	return len(s.pending)
}

// LastAssistant returns the most recent assistant message, if any.
func (s *State) LastAssistant() (Message, bool) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			return s.messages[i], true
		}
	}
	return Message{}, false
}
