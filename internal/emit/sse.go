package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"toolbridge/internal/convo"
)

// SSE streams chat-completion chunk objects over text/event-stream,
// terminated by the literal [DONE] sentinel.
type SSE struct {
	w       io.Writer
	flusher http.Flusher
	id      string
	model   string
	created int64
}

// NewSSE writes the stream headers and returns the emitter. The model name is
// the one the client sent, not the upstream-translated one.
func NewSSE(w http.ResponseWriter, id, model string) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by transport")
	}
	w.Header().Set("content-type", "text/event-stream")
	w.Header().Set("cache-control", "no-cache")
	w.Header().Set("connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &SSE{
		w:       w,
		flusher: flusher,
		id:      id,
		model:   model,
		created: time.Now().Unix(),
	}, nil
}

func (s *SSE) Begin() error {
	return s.chunk(map[string]any{"role": "assistant", "content": ""}, nil)
}

func (s *SSE) ToolDispatch(names []string) error {
	note := fmt.Sprintf("\n[using tools: %s]\n", strings.Join(names, ", "))
	return s.chunk(map[string]any{"content": note}, nil)
}

func (s *SSE) Final(content, finishReason string, _ convo.Usage) error {
	if err := s.chunk(map[string]any{"content": content}, nil); err != nil {
		return err
	}
	return s.chunk(map[string]any{}, &finishReason)
}

func (s *SSE) Done() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Fail emits a trailing error object on an already-open stream.
func (s *SSE) Fail(message string) error {
	if _, err := fmt.Fprintf(s.w, "data: {\"error\":{\"message\":%q}}\n\n", message); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSE) chunk(delta map[string]any, finishReason *string) error {
	payload := map[string]any{
		"id":      s.id,
		"object":  "chat.completion.chunk",
		"created": s.created,
		"model":   s.model,
		"choices": []map[string]any{
			{
				"index":         0,
				"delta":         delta,
				"finish_reason": finishReason,
			},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
