package emit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolbridge/internal/convo"
)

func parseEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestSSEStreamShape(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSE(rec, "req_1", "gpt-4o")
	require.NoError(t, err)

	require.NoError(t, sse.Begin())
	require.NoError(t, sse.ToolDispatch([]string{"lookup", "verify"}))
	require.NoError(t, sse.Final("answer: 42", "stop", convo.Usage{TotalTokens: 15}))
	require.NoError(t, sse.Done())

	assert.Equal(t, "text/event-stream", rec.Header().Get("content-type"))
	assert.Equal(t, "no-cache", rec.Header().Get("cache-control"))

	events := parseEvents(t, rec.Body.String())
	require.Len(t, events, 5)
	assert.Equal(t, "[DONE]", events[len(events)-1])

	type chunk struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			Index        int            `json:"index"`
			Delta        map[string]any `json:"delta"`
			FinishReason *string        `json:"finish_reason"`
		} `json:"choices"`
	}
	decode := func(raw string) chunk {
		var c chunk
		require.NoError(t, json.Unmarshal([]byte(raw), &c))
		require.Len(t, c.Choices, 1)
		assert.Equal(t, "req_1", c.ID)
		assert.Equal(t, "chat.completion.chunk", c.Object)
		assert.Equal(t, "gpt-4o", c.Model)
		return c
	}

	first := decode(events[0])
	assert.Equal(t, "assistant", first.Choices[0].Delta["role"])
	assert.Equal(t, "", first.Choices[0].Delta["content"])
	assert.Nil(t, first.Choices[0].FinishReason)

	dispatch := decode(events[1])
	assert.Contains(t, dispatch.Choices[0].Delta["content"], "lookup, verify")

	content := decode(events[2])
	assert.Equal(t, "answer: 42", content.Choices[0].Delta["content"])
	assert.Nil(t, content.Choices[0].FinishReason)

	last := decode(events[3])
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, "stop", *last.Choices[0].FinishReason)
	assert.Empty(t, last.Choices[0].Delta)
}

func TestSSEFail(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSE(rec, "req_1", "m")
	require.NoError(t, err)

	require.NoError(t, sse.Begin())
	require.NoError(t, sse.Fail("model upstream unavailable"))

	events := parseEvents(t, rec.Body.String())
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1]), &envelope))
	assert.Equal(t, "model upstream unavailable", envelope.Error.Message)
}

func TestNewSSERequiresFlusher(t *testing.T) {
	_, err := NewSSE(nonFlushingWriter{httptest.NewRecorder()}, "req_1", "m")
	require.Error(t, err)
}

// nonFlushingWriter hides the recorder's Flush method so the http.Flusher
// assertion fails.
type nonFlushingWriter struct{ http.ResponseWriter }
