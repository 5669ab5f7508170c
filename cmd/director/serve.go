package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dirworks/director/internal/browser"
	"github.com/dirworks/director/internal/config"
	"github.com/dirworks/director/internal/credentials"
	"github.com/dirworks/director/internal/director"
	"github.com/dirworks/director/internal/domtoolkit"
	"github.com/dirworks/director/internal/httpapi"
	"github.com/dirworks/director/internal/llmprovider"
	"github.com/dirworks/director/internal/state"
	"github.com/dirworks/director/internal/workflow"
)

// snapshotTTL is how long the DOM Toolkit serves a cached snapshot
// before re-reading the page (mutation events invalidate it sooner).
const snapshotTTL = 30 * time.Second

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := llmprovider.NewAnthropicProvider(llmprovider.AnthropicConfig{
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.LLM.Model,
	})
	if err != nil {
		return err
	}

	pool, err := browser.NewPool(browser.PoolConfig{
		MaxInstances: cfg.Browser.MaxInstances,
		Timeout:      cfg.Browser.Timeout,
		Headless:     cfg.Browser.Headless,
		RemoteURL:    cfg.Browser.RemoteURL,
		CDPDebugPort: cfg.Browser.CDPDebugPort,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	actuator := llmprovider.NewAIActuator(provider, cfg.LLM.Model, cfg.LLM.MaxTokens)
	extractor := llmprovider.NewAIExtractor(provider, cfg.LLM.Model, cfg.LLM.MaxTokens)
	cognition := llmprovider.NewCognitionAdapter(provider, cfg.LLM.Model, cfg.LLM.MaxTokens)
	creds := credentials.NewMemoryStore()

	sessions := httpapi.NewSessions(
		func(ctx context.Context, workflowID string) (*browser.Facade, error) {
			return browser.NewFacade(ctx, pool, store, workflowID, actuator, extractor)
		},
		func(workflowID string, facade *browser.Facade) *workflow.Runtime {
			rt := workflow.NewRuntime(store, facade, cognition, logger)
			rt.Credentials = creds
			return rt
		},
	)
	defer sessions.StopAll()

	events := director.NewEventBus()
	usage := director.NewUsageTracker()
	toolkits := newToolkitSet(logger)
	defer toolkits.CloseAll()

	manager := director.NewManagerWithFactory(func(workflowID string) *director.Loop {
		loop := director.NewLoop(provider, store, buildRegistry(store, sessions, toolkits, workflowID), director.LoopConfig{
			DefaultModel:         cfg.LLM.Model,
			MaxTokens:            cfg.LLM.MaxTokens,
			EnableThinking:       cfg.LLM.EnableThinking,
			ThinkingBudgetTokens: cfg.LLM.ThinkingBudgetTokens,
			SystemPrompt:         cfg.Director.SystemPrompt,
			MaxToolIterations:    cfg.Director.MaxToolIterations,
			RecentMessageLimit:   cfg.Director.RecentMessageLimit,
		})
		loop.Events = events
		loop.Usage = usage
		if facade, ok := sessions.Facade(workflowID); ok {
			loop.Facade = facade
		}
		return loop
	})

	api := httpapi.NewServer(manager, store, events, sessions, logger)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Routes(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("director server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func openStore(cfg *config.Config, logger *slog.Logger) (state.Store, func(), error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		logger.Warn("no database url configured; using in-memory state store")
		return state.NewMemoryStore(), func() {}, nil
	}
	pg, err := state.NewPostgresStoreFromDSN(cfg.Database.URL, nil)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}

// buildRegistry assembles the Director's full tool surface for one
// workflow. Store-backed tools always work; browser and DOM tools bind
// to the workflow's live execution session if one exists, and report
// "no session" otherwise. The Manager drops the loop whenever a session
// starts or stops, so the bindings never outlive the session they wrap.
func buildRegistry(store state.Store, sessions *httpapi.Sessions, toolkits *toolkitSet, workflowID string) *director.ToolRegistry {
	registry := director.NewToolRegistry()

	registry.Register(&director.AddOrReplaceNodesTool{Store: store})
	registry.Register(&director.DeleteNodesTool{Store: store})
	registry.Register(&director.UpdatePlanTool{Store: store})
	registry.Register(&director.UpdateWorkflowDescriptionTool{Store: store})
	registry.Register(&director.SetVariableTool{Store: store})
	registry.Register(&director.ClearVariableTool{Store: store})
	registry.Register(&director.ClearAllVariablesTool{Store: store})
	registry.Register(&director.GetWorkflowVariablesTool{Store: store})
	registry.Register(&director.GetCurrentPlanTool{Store: store})
	registry.Register(&director.GetWorkflowNodesTool{Store: store})
	registry.Register(&director.GetWorkflowDescriptionTool{Store: store})

	var facade *browser.Facade
	if f, ok := sessions.Facade(workflowID); ok {
		facade = f
	}
	var runtime *workflow.Runtime
	if rt, ok := sessions.Runtime(workflowID); ok {
		runtime = rt
	}
	registry.Register(&director.ExecuteNodesTool{Runtime: runtime})
	registry.Register(&director.GetBrowserStateTool{Facade: facade})
	registry.Register(&director.GetScreenshotTool{Facade: facade})
	registry.Register(&director.BrowserActionTool{Facade: facade})

	toolkit := toolkits.For(workflowID, facade)
	registry.Register(&director.DOMOverviewTool{Toolkit: toolkit})
	registry.Register(&director.DOMStructureTool{Toolkit: toolkit})
	registry.Register(&director.DOMSearchTool{Toolkit: toolkit})
	registry.Register(&director.DOMInspectTool{Toolkit: toolkit})
	registry.Register(&director.DOMCheckPortalsTool{Toolkit: toolkit})
	registry.Register(&director.DOMClickInspectTool{Toolkit: toolkit})

	return registry
}

// toolkitSet tracks one DOM Toolkit attachment per workflow, replacing
// (and closing) the previous attachment when the workflow's Director is
// rebuilt against a new browser session.
type toolkitSet struct {
	logger *slog.Logger

	mu         sync.Mutex
	byWorkflow map[string]*domtoolkit.Toolkit
}

func newToolkitSet(logger *slog.Logger) *toolkitSet {
	return &toolkitSet{logger: logger, byWorkflow: make(map[string]*domtoolkit.Toolkit)}
}

// For attaches a toolkit to facade's active tab over CDP, or returns nil
// when the session has no debug endpoint (remote browsers, fakes). A nil
// toolkit leaves the DOM tools registered but answering "not attached".
func (s *toolkitSet) For(workflowID string, facade *browser.Facade) *domtoolkit.Toolkit {
	s.mu.Lock()
	old := s.byWorkflow[workflowID]
	delete(s.byWorkflow, workflowID)
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	if facade == nil || facade.CDPDebugURL() == "" {
		return nil
	}

	toolkit, err := domtoolkit.AttachByURL(context.Background(), facade.CDPDebugURL(), "", snapshotTTL)
	if err != nil {
		s.logger.Warn("DOM toolkit attach failed; dom_* tools disabled for this session",
			"workflow_id", workflowID, "error", err)
		return nil
	}

	s.mu.Lock()
	s.byWorkflow[workflowID] = toolkit
	s.mu.Unlock()
	return toolkit
}

// CloseAll detaches every live toolkit, for server shutdown.
func (s *toolkitSet) CloseAll() {
	s.mu.Lock()
	toolkits := make([]*domtoolkit.Toolkit, 0, len(s.byWorkflow))
	for id, tk := range s.byWorkflow {
		toolkits = append(toolkits, tk)
		delete(s.byWorkflow, id)
	}
	s.mu.Unlock()

	for _, tk := range toolkits {
		tk.Close()
	}
}
