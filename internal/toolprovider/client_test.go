package toolprovider

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

func TestListTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tools" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "tp-key" {
			t.Fatalf("unexpected api key header: %q", got)
		}
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("discovered"))
		assert.Equal(t, "github,slack", q.Get("toolkits"))

		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"name":"search","description":"web search","parameters":{"type":"object"},"extra":"ignored"},
			{"name":"fetch"}
		]}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, APIKey: "tp-key"}, nil)
	require.NoError(t, err)

	tools, err := client.ListTools(context.Background(), Selection{
		IncludeDiscovered: true,
		Toolkits:          []string{"github", "slack"},
	})
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "search", tools[0].Name)
	assert.Equal(t, "web search", tools[0].Description)
	assert.Equal(t, map[string]any{"type": "object"}, tools[0].Parameters)
	assert.Equal(t, "fetch", tools[1].Name)
	assert.Nil(t, tools[1].Parameters)
}

func TestListToolsRejectsNamelessDescriptor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"description":"no name"}]}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	_, err = client.ListTools(context.Background(), Selection{})
	require.ErrorIs(t, err, ErrProvider)
}

func TestInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/execute" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body struct {
			Calls []convo.ToolCall `json:"calls"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Calls, 2)

		// Deliberately answer out of order; the loop correlates by id.
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"tool_call_id":"call_2","content":{"rows":3},"success":true},
			{"tool_call_id":"call_1","success":false,"error":"rate limited"}
		]}`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	results, err := client.Invoke(context.Background(), []convo.ToolCall{
		{ID: "call_1", Name: "a"},
		{ID: "call_2", Name: "b"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "call_2", results[0].ToolCallID)
	assert.True(t, results[0].Success)
	assert.JSONEq(t, `{"rows":3}`, results[0].Content, "structured content is serialized")

	assert.Equal(t, "call_1", results[1].ToolCallID)
	assert.False(t, results[1].Success, "a single failing tool is a result, not an error")
	assert.Equal(t, "rate limited", results[1].Content)
}

func TestInvokeEmptyBatchSkipsHTTP(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	results, err := client.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, called)
}

func TestInvokeOutageIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	_, err = client.Invoke(context.Background(), []convo.ToolCall{{ID: "call_1", Name: "a"}})
	require.ErrorIs(t, err, ErrProvider)

	server.Close() // connection refused path
	_, err = client.Invoke(context.Background(), []convo.ToolCall{{ID: "call_1", Name: "a"}})
	require.ErrorIs(t, err, ErrProvider)
}

func TestInvokeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": "not a list"`))
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)
	_, err = client.Invoke(context.Background(), []convo.ToolCall{{ID: "call_1", Name: "a"}})
	require.ErrorIs(t, err, ErrProvider)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}
