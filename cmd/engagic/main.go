// Command engagic runs the municipal meeting ingestion daemon: the
// background sync scheduler, the processing queue worker, and the
// read-only search API, all sharing one SQLite-backed store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/engagic/engagic/internal/api"
	"github.com/engagic/engagic/internal/config"
	"github.com/engagic/engagic/internal/health"
	"github.com/engagic/engagic/internal/llm"
	"github.com/engagic/engagic/internal/pdfextract"
	"github.com/engagic/engagic/internal/pipeline"
	"github.com/engagic/engagic/internal/queue"
	"github.com/engagic/engagic/internal/ratelimit"
	"github.com/engagic/engagic/internal/scheduler"
	"github.com/engagic/engagic/internal/store"
	"github.com/engagic/engagic/internal/topics"
	"github.com/engagic/engagic/internal/vendor"
)

func configureLogger(logLevel string, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if dev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	configPath := flag.String("config", "engagic.toml", "path to config file")
	once := flag.Bool("once", false, "run a single sync sweep (plus a processing sweep when an LLM credential is set) then exit")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	syncCity := flag.String("sync-city", "", "sync only the named city (banana identifier), then exit")
	status := flag.Bool("status", false, "print scheduler/queue status and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("engagic starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = configureLogger(cfg.General.LogLevel, *dev)
	slog.SetDefault(logger)
	cfgMgr := config.NewManager(cfg)

	lockPath := "/tmp/engagic.lock"
	if cfg.General.LockFile != "" {
		lockPath = config.ExpandHome(cfg.General.LockFile)
	}
	lockFile, err := health.AcquireFlock(lockPath)
	if err != nil {
		logger.Error("failed to acquire lock", "path", lockPath, "error", err)
		os.Exit(1)
	}
	defer health.ReleaseFlock(lockFile)

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath(), "error", err)
		os.Exit(1)
	}
	defer st.Close()

	registry, err := vendor.NewRegistry(cfg.GranicusViewIDsPath(), os.Getenv("LEGISTAR_TOKEN"), logger.With("component", "vendor"))
	if err != nil {
		logger.Error("failed to build vendor registry", "error", err)
		os.Exit(1)
	}

	normalizer, err := topics.Load(config.ExpandHome(cfg.Paths.TopicTaxonomyJSON))
	if err != nil {
		logger.Error("failed to load topic taxonomy", "path", cfg.Paths.TopicTaxonomyJSON, "error", err)
		os.Exit(1)
	}
	unknownTopicsLog, err := os.OpenFile(cfg.UnknownTopicsLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Error("failed to open unknown-topics log", "path", cfg.UnknownTopicsLogPath(), "error", err)
		os.Exit(1)
	}
	defer unknownTopicsLog.Close()
	normalizer.OnUnknownTopic(func(raw string) {
		fmt.Fprintf(unknownTopicsLog, "%s\t%s\n", time.Now().Format(time.RFC3339), raw)
	})

	extractor := pdfextract.New(cfg.PDF.OCRThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var summarizer *llm.Summarizer
	if apiKey := cfg.LLMAPIKey(); apiKey != "" {
		prompts, err := llm.LoadPrompts(config.ExpandHome(cfg.Paths.PromptsJSON))
		if err != nil {
			logger.Error("failed to load prompts", "path", cfg.Paths.PromptsJSON, "error", err)
			os.Exit(1)
		}
		summarizer, err = llm.New(ctx, apiKey, prompts, normalizer.IsCanonical, logger.With("component", "llm"))
		if err != nil {
			logger.Error("failed to build summarizer", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no LLM credential configured, running read-only (no new summarization)")
	}

	analyzer := pipeline.New(extractor, summarizer, normalizer, st, logger.With("component", "pipeline"))
	worker := queue.New(st, analyzer, logger.With("component", "queue"))

	sched := scheduler.New(cfgMgr, st, registry, worker, logger.With("component", "scheduler"))

	if *status {
		printStatus(st, sched)
		return
	}

	if *syncCity != "" {
		city, err := st.GetCityByBanana(*syncCity)
		if err != nil {
			logger.Error("city not found", "banana", *syncCity, "error", err)
			os.Exit(1)
		}
		logger.Info("syncing single city", "banana", city.Banana, "vendor", city.Vendor)
		n, err := sched.SyncCity(ctx, *city)
		if err != nil {
			logger.Error("city sync failed", "banana", city.Banana, "error", err)
			os.Exit(1)
		}
		logger.Info("city sync complete", "banana", city.Banana, "meetings_found", n)
		return
	}

	if *once {
		logger.Info("running single sync sweep (--once mode)")
		sched.RunSync(ctx)
		if summarizer != nil {
			sched.RunProcessingSweep(ctx)
		} else {
			logger.Warn("skipping processing sweep: no LLM credential configured")
		}
		logger.Info("single sweep complete, exiting")
		return
	}

	rateLimiter, err := ratelimit.Open(cfg.RateLimitDBPath(), cfg.API.RateLimitMax, cfg.API.RateLimitWindow.Duration)
	if err != nil {
		logger.Error("failed to open rate limiter", "path", cfg.RateLimitDBPath(), "error", err)
		os.Exit(1)
	}
	defer rateLimiter.Close()

	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler stopped with error", "error", err)
		}
	}()

	if summarizer != nil {
		go worker.Run(ctx, cfg.Queue.PollInterval.Duration)
	} else {
		logger.Warn("queue worker not started: no LLM credential, meetings will sync and queue but not summarize")
	}

	apiSrv, err := api.NewServer(cfg, st, rateLimiter, sched, worker, logger.With("component", "api"))
	if err != nil {
		logger.Error("failed to create api server", "error", err)
		os.Exit(1)
	}
	defer apiSrv.Close()

	go func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server error", "error", err)
		}
	}()

	logger.Info("engagic running", "bind", cfg.API.Bind)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP:
			if err := cfgMgr.Reload(*configPath); err != nil {
				logger.Error("config reload failed", "error", err)
				continue
			}
			logger.Info("config reloaded")
		default:
			shutdownStart := time.Now()
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			logger.Info("engagic stopped", "shutdown_duration", time.Since(shutdownStart).String())
			return
		}
	}
}

func printStatus(st *store.Store, sched *scheduler.Scheduler) {
	schedStatus := sched.Status()
	fmt.Printf("scheduler running: %v\n", schedStatus.Running)
	if len(schedStatus.FailedCities) > 0 {
		fmt.Printf("failed cities (%d):\n", len(schedStatus.FailedCities))
		for _, c := range schedStatus.FailedCities {
			fmt.Printf("  - %s\n", c)
		}
	}

	stats, err := st.GetQueueStats()
	if err != nil {
		fmt.Printf("failed to load queue stats: %v\n", err)
		return
	}
	fmt.Println("processing queue:")
	for status, count := range stats.CountByStatus {
		fmt.Printf("  %s: %d\n", status, count)
	}
	fmt.Printf("  avg processing time: %.1fs\n", stats.AvgProcessingSecs)
}
