package modelclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolbridge/internal/convo"
)

func TestDetectBackend(t *testing.T) {
	assert.Equal(t, BackendAnthropic, DetectBackend("sk-ant-api03-abc"))
	assert.Equal(t, BackendAnthropic, DetectBackend("  sk-ant-xyz "))
	assert.Equal(t, BackendOpenAI, DetectBackend("sk-proj-abc"))
	assert.Equal(t, BackendOpenAI, DetectBackend("anything-else"))
}

func TestUpstreamModel(t *testing.T) {
	assert.Equal(t, "gpt-4o", UpstreamModel("openai/gpt-4o"))
	assert.Equal(t, "gpt-4o", UpstreamModel("gpt-4o"))
	assert.Equal(t, "claude-sonnet-4", UpstreamModel("anthropic/claude-sonnet-4"))
	assert.Equal(t, "m", UpstreamModel("  a/b/m  "))
}

func TestCompleteOpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"], "vendor prefix must be stripped")
		if _, ok := body["tools"]; !ok {
			t.Fatalf("expected tools in payload")
		}

		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"","tool_calls":[
				{"id":"call_abc","function":{"name":"lookup","arguments":"{\"q\":\"answer\"}"}}
			]}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
		}`))
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)
	require.Equal(t, BackendOpenAI, client.Backend())

	res, err := client.Complete(context.Background(), Request{
		Model:    "openai/gpt-4o",
		Messages: []convo.Message{{Role: convo.RoleUser, Content: "q"}},
		Tools:    []convo.Tool{{Name: "lookup", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	require.Len(t, res.Message.ToolCalls, 1)
	call := res.Message.ToolCalls[0]
	assert.Equal(t, "call_abc", call.ID)
	assert.Equal(t, "lookup", call.Name)
	assert.Equal(t, map[string]any{"q": "answer"}, call.Arguments)
	assert.Equal(t, convo.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, res.Usage)
}

func TestCompleteOpenAIFillsMissingCallIDsAndTotal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"","tool_calls":[
				{"id":"","function":{"name":"a","arguments":"{}"}},
				{"id":"","function":{"name":"b","arguments":"not-json"}}
			]}}],
			"usage":{"prompt_tokens":7,"completion_tokens":3}
		}`))
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	res, err := client.Complete(context.Background(), Request{Model: "gpt-4o"})
	require.NoError(t, err)
	require.Len(t, res.Message.ToolCalls, 2)
	assert.Equal(t, "call_1", res.Message.ToolCalls[0].ID)
	assert.Equal(t, "call_2", res.Message.ToolCalls[1].ID)
	assert.Equal(t, "not-json", res.Message.ToolCalls[1].Arguments["_raw"])
	assert.Equal(t, 10, res.Usage.TotalTokens, "total computed when upstream omits it")
}

func TestCompleteAnthropic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Fatalf("unexpected api key header: %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Fatalf("unexpected version header: %q", got)
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "system prompt", body["system"], "system message moves to the top-level field")
		msgs := body["messages"].([]any)
		for _, m := range msgs {
			assert.NotEqual(t, "system", m.(map[string]any)["role"])
		}

		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{
			"content":[
				{"type":"text","text":"let me check"},
				{"type":"tool_use","id":"toolu_1","name":"lookup","input":{"q":"answer"}}
			],
			"usage":{"input_tokens":12,"output_tokens":4}
		}`))
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-ant-test", BaseURL: server.URL})
	require.NoError(t, err)
	require.Equal(t, BackendAnthropic, client.Backend())

	res, err := client.Complete(context.Background(), Request{
		Model: "claude-sonnet-4",
		Messages: []convo.Message{
			{Role: convo.RoleSystem, Content: "system prompt"},
			{Role: convo.RoleUser, Content: "q"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "let me check", res.Message.Content)
	require.Len(t, res.Message.ToolCalls, 1)
	assert.Equal(t, "toolu_1", res.Message.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"q": "answer"}, res.Message.ToolCalls[0].Arguments)
	assert.Equal(t, convo.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16}, res.Usage)
}

func TestCompleteErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer server.Close()

			client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
			require.NoError(t, err)
			_, err = client.Complete(context.Background(), Request{Model: "m"})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCompleteConnectionRefusedIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // nothing listening anymore

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), Request{Model: "m"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestParseArguments(t *testing.T) {
	assert.Equal(t, map[string]any{}, parseArguments(""))
	assert.Equal(t, map[string]any{"a": float64(1)}, parseArguments(`{"a":1}`))
	assert.Equal(t, map[string]any{"value": float64(3)}, parseArguments(`3`))
	assert.Equal(t, map[string]any{"_raw": "{broken"}, parseArguments(`{broken`))
}
