package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"toolbridge/internal/audit"
	"toolbridge/internal/config"
	"toolbridge/internal/convo"
	"toolbridge/internal/gateway"
	"toolbridge/internal/modelclient"
	"toolbridge/internal/pricing"
	"toolbridge/internal/ratelimit"
	"toolbridge/internal/report"
	"toolbridge/internal/reqlog"
	"toolbridge/internal/runloop"
	"toolbridge/internal/store"
	"toolbridge/internal/toolprovider"
)

const version = "0.3.0"

// Options are the command-line flags; each one overrides its environment
// counterpart.
type Options struct {
	Port          string `short:"p" long:"port" description:"listen port (overrides PORT)"`
	Env           string `long:"env" description:"runtime environment: development or production (overrides APP_ENV)"`
	RecordDir     string `long:"record-dir" description:"directory for file-backed audit records (overrides RECORD_DIR)"`
	MaxIterations int    `long:"max-iterations" default:"-1" description:"tool loop iteration cap, 0 for unbounded (overrides TOOL_LOOP_MAX_ITERATIONS)"`
	Version       bool   `long:"version" description:"print version and exit"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		os.Exit(1)
	}
	if opts.Version {
		fmt.Println("toolbridge " + version)
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	if opts.Env != "" {
		cfg.Environment = opts.Env
	}
	if opts.RecordDir != "" {
		cfg.RecordDir = opts.RecordDir
	}
	if opts.MaxIterations >= 0 {
		cfg.MaxIterations = opts.MaxIterations
	}

	model, err := modelclient.New(modelclient.Config{
		APIKey:   cfg.ModelAPIKey,
		BaseURL:  cfg.ModelBaseURL,
		ProxyURL: cfg.ProxyURL,
		Timeout:  cfg.CallTimeout,
	})
	if err != nil {
		log.Fatalf("invalid model client config: %v", err)
	}
	log.Printf("model backend: %s", model.Backend())

	var toolSource gateway.ToolSource
	var invoker runloop.ToolInvoker = noTools{}
	if cfg.ToolProviderAPIKey != "" {
		provider, err := toolprovider.New(toolprovider.Config{
			BaseURL: cfg.ToolProviderBaseURL,
			APIKey:  cfg.ToolProviderAPIKey,
			Timeout: cfg.CallTimeout,
		}, nil)
		if err != nil {
			log.Fatalf("invalid tool provider config: %v", err)
		}
		toolSource = provider
		invoker = provider
	} else {
		log.Printf("no tool provider credential; running without discovered tools")
	}

	var backend store.Backend
	if cfg.RecordDir != "" {
		backend, err = store.NewFileBackend(cfg.RecordDir)
		if err != nil {
			log.Fatalf("invalid record backend: %v", err)
		}
		log.Printf("audit records persisted at %s", cfg.RecordDir)
	} else {
		backend = store.NewMemoryBackend()
	}
	defer backend.Close()

	table, err := pricing.NewFromEnv()
	if err != nil {
		log.Fatalf("invalid pricing config: %v", err)
	}

	var requestLog reqlog.Logger = reqlog.NopLogger{}
	if cfg.RequestLogPath != "" {
		requestLog, err = reqlog.NewFileLogger(cfg.RequestLogPath)
		if err != nil {
			log.Fatalf("failed to init request logger: %v", err)
		}
	}
	reports, err := report.NewWriter(cfg.ReportDir, "/public")
	if err != nil {
		log.Fatalf("failed to init report writer: %v", err)
	}

	limits := ratelimit.NewFromEnv()
	go func() {
		for range time.Tick(10 * time.Minute) {
			limits.Cleanup(time.Hour)
		}
	}()

	router := gateway.NewRouter(gateway.Dependencies{
		Loop:          runloop.New(model, invoker),
		Tools:         toolSource,
		Audit:         audit.NewRecorder(store.NewLog(backend), table),
		Reports:       reports,
		RequestLog:    requestLog,
		Limits:        limits,
		MaxIterations: cfg.MaxIterations,
		Production:    cfg.Production(),
		CORSOrigin:    cfg.CORSOrigin,
		Version:       version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("toolbridge listening on :%s (%s)", cfg.Port, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

// noTools satisfies the invoker contract when no provider is configured; an
// empty result batch makes the loop terminate with tools_exhausted should a
// model hallucinate tool calls anyway.
type noTools struct{}

func (noTools) Invoke(context.Context, []convo.ToolCall) ([]convo.ToolResult, error) {
	return nil, nil
}
