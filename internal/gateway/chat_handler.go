package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"toolbridge/internal/audit"
	"toolbridge/internal/convo"
	"toolbridge/internal/emit"
	"toolbridge/internal/reqlog"
	"toolbridge/internal/runloop"
	"toolbridge/internal/toolprovider"
)

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	statusCode := http.StatusOK
	errText := ""
	requestID := ""
	model := ""
	streamMode := false
	toolCount := 0
	turns := 0
	defer func() {
		if err := s.requestLog.Log(reqlog.Entry{
			RequestID:  requestID,
			Path:       "/v1/chat/completions",
			Model:      model,
			Stream:     streamMode,
			ToolCount:  toolCount,
			Turns:      turns,
			Status:     statusCode,
			Error:      errText,
			DurationMS: time.Since(started).Milliseconds(),
		}); err != nil {
			log.Printf("request log: %v", err)
		}
	}()

	if r.Method != http.MethodPost {
		statusCode = http.StatusMethodNotAllowed
		errText = "method not allowed"
		s.writeError(w, statusCode, errTypeInvalidRequest, "method_not_allowed", errText)
		return
	}

	var req ChatCompletionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		statusCode = http.StatusBadRequest
		errText = "invalid JSON body"
		s.writeError(w, statusCode, errTypeInvalidRequest, "invalid_json", errText)
		return
	}
	if err := validateChatRequest(req); err != nil {
		status, kind, code := classify(err)
		statusCode = status
		errText = err.Error()
		s.writeError(w, status, kind, code, err.Error())
		return
	}

	model = req.Model
	streamMode = req.Stream
	requestID = nextID("req")
	w.Header().Set("x-request-id", requestID)

	tools, callerSupplied, err := s.resolveTools(r.Context(), req)
	if err != nil {
		status, kind, code := classify(err)
		statusCode = status
		errText = err.Error()
		s.writeError(w, status, kind, code, err.Error())
		return
	}
	toolCount = len(tools)

	seed := toConvoMessages(req.Messages)
	st := convo.NewState(seed, tools)

	var auditTools []convo.Tool
	if callerSupplied {
		auditTools = tools
	}
	s.audit.Request(r.Context(), audit.RequestSnapshot{
		ID:       requestID,
		User:     strings.TrimSpace(req.User),
		Model:    req.Model,
		Messages: seed,
		Tools:    auditTools,
		Stream:   req.Stream,
	})

	cfg := runloop.Config{
		Model:         req.Model,
		MaxIterations: s.maxIterations,
		Sampling:      toSamplingParams(req),
		Hooks:         s.audit.Hooks(r.Context(), requestID),
	}

	if req.Stream {
		s.streamChatCompletions(w, r, st, cfg, requestID, started, &statusCode, &errText, &turns)
		return
	}

	outcome, err := s.loop.Run(r.Context(), st, cfg, emit.Nop{})
	turns = outcome.ModelCalls
	if err != nil {
		s.audit.Failed(r.Context(), requestID, err, time.Since(started))
		status, kind, code := classify(err)
		statusCode = status
		errText = err.Error()
		s.writeError(w, status, kind, code, err.Error())
		return
	}

	out := toChatResponse(nextID("chatcmpl"), req.Model, outcome, time.Since(started))
	s.audit.Completed(r.Context(), requestID, req.Model, out, outcome, time.Since(started))
	writeJSON(w, http.StatusOK, out)
}

func (s *server) streamChatCompletions(w http.ResponseWriter, r *http.Request, st *convo.State, cfg runloop.Config, requestID string, started time.Time, statusCode *int, errText *string, turns *int) {
	completionID := nextID("chatcmpl")
	sse, err := emit.NewSSE(w, completionID, cfg.Model)
	if err != nil {
		*statusCode = http.StatusInternalServerError
		*errText = err.Error()
		s.writeError(w, *statusCode, errTypeAPI, "streaming_unsupported", err.Error())
		return
	}

	outcome, err := s.loop.Run(r.Context(), st, cfg, sse)
	*turns = outcome.ModelCalls
	if err != nil {
		// The audit context must outlive the request when the client is
		// already gone.
		actx := r.Context()
		if actx.Err() != nil {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		s.audit.Failed(actx, requestID, err, time.Since(started))
		*errText = err.Error()
		if !errors.Is(err, context.Canceled) && r.Context().Err() == nil {
			_ = sse.Fail(s.clientMessage(err))
		}
		return
	}
	// The audited body carries the same completion id the chunks streamed
	// under.
	out := toChatResponse(completionID, cfg.Model, outcome, time.Since(started))
	s.audit.Completed(r.Context(), requestID, cfg.Model, out, outcome, time.Since(started))
}

// clientMessage applies the production-mode genericization to mid-stream
// errors, which bypass writeError.
func (s *server) clientMessage(err error) string {
	status, _, _ := classify(err)
	if s.production && status >= 500 {
		return "Internal server error"
	}
	return err.Error()
}

// resolveTools returns the tool schema for one request: the caller's own
// tools verbatim, or the provider's discovered set when none were supplied.
// tool_choice "none" disables tools entirely.
func (s *server) resolveTools(ctx context.Context, req ChatCompletionsRequest) (tools []convo.Tool, callerSupplied bool, err error) {
	if choice, ok := req.ToolChoice.(string); ok && choice == "none" {
		return nil, false, nil
	}
	if len(req.Tools) > 0 {
		return toConvoTools(req.Tools), true, nil
	}
	if s.tools == nil {
		return nil, false, nil
	}
	listed, err := s.tools.ListTools(ctx, toolprovider.Selection{IncludeDiscovered: true})
	if err != nil {
		return nil, false, err
	}
	return listed, false, nil
}
