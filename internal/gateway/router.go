package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"toolbridge/internal/audit"
	"toolbridge/internal/convo"
	"toolbridge/internal/ratelimit"
	"toolbridge/internal/report"
	"toolbridge/internal/reqlog"
	"toolbridge/internal/runloop"
	"toolbridge/internal/toolprovider"
)

// ToolSource lists the externally discoverable tools. Nil when no tool
// provider credential is configured; the gateway then runs tool-less.
type ToolSource interface {
	ListTools(ctx context.Context, sel toolprovider.Selection) ([]convo.Tool, error)
}

type Dependencies struct {
	Loop          *runloop.Loop
	Tools         ToolSource
	Audit         *audit.Recorder
	Reports       *report.Writer
	RequestLog    reqlog.Logger
	// Limits throttles /v1/ traffic per client address; nil disables it.
	Limits        *ratelimit.Limiter
	MaxIterations int
	Production    bool
	CORSOrigin    string
	Version       string
}

type server struct {
	loop          *runloop.Loop
	tools         ToolSource
	audit         *audit.Recorder
	reports       *report.Writer
	requestLog    reqlog.Logger
	limits        *ratelimit.Limiter
	maxIterations int
	production    bool
	corsOrigin    string
	version       string
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Loop == nil {
		panic("loop dependency is required")
	}
	if deps.Audit == nil {
		panic("audit dependency is required")
	}
	if deps.RequestLog == nil {
		deps.RequestLog = reqlog.NopLogger{}
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := &server{
		loop:          deps.Loop,
		tools:         deps.Tools,
		audit:         deps.Audit,
		reports:       deps.Reports,
		requestLog:    deps.RequestLog,
		limits:        deps.Limits,
		maxIterations: deps.MaxIterations,
		production:    deps.Production,
		corsOrigin:    strings.TrimSpace(deps.CORSOrigin),
		version:       deps.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/analyze", s.handleAnalyze)
	mux.HandleFunc("/v1/tools", s.handleListTools)
	if deps.Reports != nil {
		mux.Handle("/public/", http.StripPrefix("/public/", http.FileServer(http.Dir(deps.Reports.Dir()))))
	}
	return s.withCommonHeaders(mux)
}

func (s *server) withCommonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-content-type-options", "nosniff")
		if s.corsOrigin != "" {
			w.Header().Set("access-control-allow-origin", s.corsOrigin)
			w.Header().Set("access-control-allow-headers", "content-type, authorization")
			w.Header().Set("access-control-allow-methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if s.limits != nil && strings.HasPrefix(r.URL.Path, "/v1/") {
			if !s.limits.Allow(clientKey(r)) {
				s.writeError(w, http.StatusTooManyRequests, errTypeRateLimit, "rate_limit_exceeded", "Too many requests, slow down")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey buckets requests per remote address, ignoring the ephemeral port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
	})
}

func nextID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
