package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"toolbridge/internal/audit"
	"toolbridge/internal/convo"
	"toolbridge/internal/emit"
	"toolbridge/internal/reqlog"
	"toolbridge/internal/runloop"
	"toolbridge/internal/toolprovider"
)

const analyzeSystemPrompt = `You are a token analysis assistant. Use the available tools to gather
on-chain and market data about the token the user asks about, then produce a
concise analysis report covering activity, liquidity and notable risks.
Answer with the report text only.`

const analyzeModel = "gpt-4o"

// handleAnalyze runs the templated token analysis through the same loop as
// chat completions, always in atomic mode, and writes the result to a static
// HTML file.
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	statusCode := http.StatusOK
	errText := ""
	requestID := ""
	turns := 0
	defer func() {
		if err := s.requestLog.Log(reqlog.Entry{
			RequestID:  requestID,
			Path:       "/v1/analyze",
			Model:      analyzeModel,
			Status:     statusCode,
			Turns:      turns,
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
	if s.reports == nil {
		statusCode = http.StatusInternalServerError
		errText = "report writer not configured"
		s.writeError(w, statusCode, errTypeAPI, "internal_error", errText)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		statusCode = http.StatusBadRequest
		errText = "invalid JSON body"
		s.writeError(w, statusCode, errTypeInvalidRequest, "invalid_json", errText)
		return
	}
	if err := validateAnalyzeRequest(req); err != nil {
		status, kind, code := classify(err)
		statusCode = status
		errText = err.Error()
		s.writeError(w, status, kind, code, err.Error())
		return
	}

	requestID = nextID("ana")
	var tools []convo.Tool
	if s.tools != nil {
		sel := toolprovider.Selection{
			IncludeDiscovered: len(req.StaticToolkits) == 0 && len(req.StaticActions) == 0,
			Toolkits:          req.StaticToolkits,
			Actions:           req.StaticActions,
		}
		listed, err := s.tools.ListTools(r.Context(), sel)
		if err != nil {
			status, kind, code := classify(err)
			statusCode = status
			errText = err.Error()
			s.writeError(w, status, kind, code, err.Error())
			return
		}
		tools = listed
	}

	seed := []convo.Message{
		{Role: convo.RoleSystem, Content: analyzeSystemPrompt},
		{Role: convo.RoleUser, Content: req.Query},
	}
	st := convo.NewState(seed, tools)
	s.audit.Request(r.Context(), audit.RequestSnapshot{
		ID:       requestID,
		Model:    analyzeModel,
		Messages: seed,
	})

	outcome, err := s.loop.Run(r.Context(), st, runloop.Config{
		Model:         analyzeModel,
		MaxIterations: s.maxIterations,
		Hooks:         s.audit.Hooks(r.Context(), requestID),
	}, emit.Nop{})
	turns = outcome.ModelCalls
	if err != nil {
		s.audit.Failed(r.Context(), requestID, err, time.Since(started))
		status, kind, code := classify(err)
		statusCode = status
		errText = err.Error()
		s.writeError(w, status, kind, code, err.Error())
		return
	}

	url, err := s.reports.Write(fmt.Sprintf("Token analysis: %s", req.Query), outcome.Content)
	if err != nil {
		s.audit.Failed(r.Context(), requestID, err, time.Since(started))
		statusCode = http.StatusInternalServerError
		errText = err.Error()
		s.writeError(w, statusCode, errTypeAPI, "report_write_failed", err.Error())
		return
	}

	out := AnalyzeResponse{
		Success:   true,
		URL:       url,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	s.audit.Completed(r.Context(), requestID, analyzeModel, out, outcome, time.Since(started))
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, errTypeInvalidRequest, "method_not_allowed", "method not allowed")
		return
	}

	items := []ToolListItem{}
	if s.tools != nil {
		listed, err := s.tools.ListTools(r.Context(), toolprovider.Selection{IncludeDiscovered: true})
		if err != nil {
			status, kind, code := classify(err)
			s.writeError(w, status, kind, code, err.Error())
			return
		}
		for _, t := range listed {
			items = append(items, ToolListItem{
				Name:        t.Name,
				Description: t.Description,
				Type:        "function",
			})
		}
	}
	writeJSON(w, http.StatusOK, ToolsResponse{
		Success: true,
		Tools:   items,
		Count:   len(items),
	})
}
