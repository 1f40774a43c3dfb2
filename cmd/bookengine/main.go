package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/nickheyer/bookrule/internal/backend"
	"github.com/nickheyer/bookrule/internal/config"
	"github.com/nickheyer/bookrule/internal/debugtrace"
	"github.com/nickheyer/bookrule/internal/executor"
	"github.com/nickheyer/bookrule/internal/flowstore"
	"github.com/nickheyer/bookrule/internal/ratelimit"
	"github.com/nickheyer/bookrule/internal/rlog"
	"github.com/nickheyer/bookrule/internal/source"
)

const VERSION = "v0.1.0"

func main() {
	configPath := flag.String("config", "bookengine.json", "Path to configuration file")
	sourcesPath := flag.String("sources", "sources.json", "Path to the source import document")
	keyword := flag.String("search", "", "Run a one-shot search against every enabled source and exit")
	refreshCron := flag.String("refresh-cron", "", "Schedule a periodic demo refresh using a cron expression, e.g. \"*/30 * * * *\"")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		rlog.GetLogger().Warn("failed to load config, using defaults", map[string]any{"path": *configPath, "error": err.Error()})
		cfg = config.GetDefaultConfig()
	}

	sources, err := loadSources(*sourcesPath)
	if err != nil {
		rlog.GetLogger().Fatal("failed to load sources", map[string]any{"path": *sourcesPath, "error": err.Error()})
		os.Exit(1)
	}
	rlog.GetLogger().Info("bookengine starting", map[string]any{"version": VERSION, "sources": len(sources)})

	eng := buildEngine(cfg)

	if *keyword != "" {
		runSearchSweep(context.Background(), eng, sources, *keyword)
		return
	}

	if *refreshCron == "" {
		runSearchSweep(context.Background(), eng, sources, "")
		return
	}

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Cron(*refreshCron).Do(func() {
		runSearchSweep(context.Background(), eng, sources, "")
	}); err != nil {
		rlog.GetLogger().Fatal("failed to schedule refresh job", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	scheduler.StartAsync()
	rlog.GetLogger().Info("scheduled periodic source refresh", map[string]any{"cron": *refreshCron})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	scheduler.Stop()
	rlog.GetLogger().Info("bookengine shutting down", nil)
}

// buildEngine wires the Fetch backend, WebView factory, rate limiter,
// and flow-var store explicitly into an Engine constructed at startup.
// No JS runtime is wired here: fetch-mode `@js:` atoms and `{{@js:...}}`
// interpolation blocks evaluate to empty string without one (under
// loadUrl the page itself evaluates `@js:` atoms).
func buildEngine(cfg *config.Config) *executor.Engine {
	httpClient := backend.NewHTTPFetcher()
	limiter := ratelimit.New()
	flowVars := flowstore.New(cfg.MaxFlowVarScopes)
	debug := debugtrace.NewMemoryCollector()

	newWebView := func(ctx context.Context) (backend.WebViewController, error) {
		ctrl, err := backend.NewChromedpController(ctx, cfg.UserAgent)
		if err != nil {
			return nil, err
		}
		return ctrl, nil
	}

	return executor.NewEngine(httpClient, newWebView, nil, limiter, flowVars, debug, cfg.DefaultTimeoutMs, cfg.MaxDebugFieldSample)
}

func loadSources(path string) ([]source.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	accepted, skipped, err := source.ParseImport(data)
	if err != nil {
		return nil, err
	}
	for _, s := range skipped {
		rlog.GetLogger().Warn("skipped source import entry", map[string]any{"reason": s.Reason, "example": s.Example})
	}
	return accepted, nil
}

// runSearchSweep is the demo driver: it re-runs Search against every
// enabled source on each scheduler tick and logs/prints the results.
func runSearchSweep(ctx context.Context, eng *executor.Engine, sources []source.Source, keyword string) {
	for i := range sources {
		src := &sources[i]
		if !src.Enabled {
			continue
		}
		books, err := executor.Search(ctx, eng, src, keyword, executor.Options{})
		if err != nil {
			rlog.GetLogger().Error("search failed", map[string]any{"sourceId": src.ID, "error": err.Error()})
			continue
		}
		rlog.GetLogger().Info("search complete", map[string]any{"sourceId": src.ID, "books": len(books)})
		printBooks(src.ID, books)
	}
}

func printBooks(sourceID string, books []source.Book) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	fmt.Fprintf(os.Stdout, "# %s\n", sourceID)
	_ = enc.Encode(books)
}
