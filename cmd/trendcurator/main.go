package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	openai "github.com/sashabaranov/go-openai"

	"github.com/deusflow/trendcurator/internal/cache"
	"github.com/deusflow/trendcurator/internal/cleaner"
	"github.com/deusflow/trendcurator/internal/config"
	"github.com/deusflow/trendcurator/internal/fetcher"
	"github.com/deusflow/trendcurator/internal/gemini"
	"github.com/deusflow/trendcurator/internal/ingest"
	"github.com/deusflow/trendcurator/internal/logger"
	"github.com/deusflow/trendcurator/internal/metrics"
	"github.com/deusflow/trendcurator/internal/model"
	"github.com/deusflow/trendcurator/internal/newsagent"
	"github.com/deusflow/trendcurator/internal/quota"
	"github.com/deusflow/trendcurator/internal/ratelimit"
	"github.com/deusflow/trendcurator/internal/retry"
	"github.com/deusflow/trendcurator/internal/rss"
	"github.com/deusflow/trendcurator/internal/search"
	"github.com/deusflow/trendcurator/internal/store"
	"github.com/deusflow/trendcurator/internal/trend"
)

// app wires every component once; jobs borrow from it.
type app struct {
	cfg      *config.Config
	store    *store.Store
	gemini   *gemini.Client
	searchc  *search.Client
	fetcher  *fetcher.Fetcher
	cleaner  *cleaner.Cleaner
	uploader *ingest.Uploader
	updater  *trend.Updater
	agent    *newsagent.Agent
	sources  []rss.Source
}

func main() {
	// Missing .env is fine in production where real env vars are set.
	_ = godotenv.Load()

	job := flag.String("job", "serve", "one of: serve, ingest, backfill, trend, topic, news")
	userID := flag.String("user", "", "user id for -job trend and -job topic")
	topicInput := flag.String("topic", "", "raw topic text for -job topic")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.Init(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer a.close()

	switch *job {
	case "serve":
		a.serve(ctx)
	case "ingest":
		a.runIngest(ctx)
	case "backfill":
		a.runBackfill(ctx)
	case "trend":
		if *userID == "" {
			log.Fatal("-job trend requires -user")
		}
		a.runTrend(ctx, *userID)
	case "topic":
		if *userID == "" || *topicInput == "" {
			log.Fatal("-job topic requires -user and -topic")
		}
		a.runTopic(ctx, *userID, *topicInput)
	case "news":
		a.runNewsAgent(ctx)
	default:
		log.Fatalf("unknown job %q", *job)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(map[string]int{
		"gemini": cfg.MaxGeminiRequests,
		"openai": cfg.MaxOpenAIRequests,
		"search": cfg.MaxSearchRequests,
	})
	retryCfg := retry.Config{
		MaxAttempts: cfg.RetryAttempts,
		Delay:       cfg.RetryDelay,
	}

	gem, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingModel, limiter, retryCfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	searchc, err := search.NewClient(ctx, cfg.SearchAPIKey, cfg.SearchCSEID, limiter)
	if err != nil {
		st.Close()
		return nil, err
	}

	pages := cache.New()
	fetch := fetcher.New(cfg.FetchTimeout, cfg.FetchDelay, pages, cfg.FetchCacheTTL)
	clean := cleaner.New(gem, cfg.MaxCleanInput)

	sources, err := rss.LoadSources(cfg.FeedsConfigPath)
	if err != nil {
		gem.Close()
		st.Close()
		return nil, fmt.Errorf("load feeds config: %w", err)
	}
	feeds := rss.NewIngester(cfg.FeedEntryLimit)
	uploader := ingest.NewUploader(feeds, sources, st, fetch, clean, gem)

	q := quota.New(st, cfg.MonthlyLimit)
	updater := trend.NewUpdater(gem, searchc, fetch, st, q, trend.Options{
		RelatedKeywords:     cfg.RelatedKeywords,
		SearchResults:       cfg.SearchResults,
		EvidenceLimit:       cfg.EvidenceLimit,
		EvidenceCharBudget:  cfg.EvidenceCharBudget,
		ManuscriptMaxChars:  cfg.ManuscriptMaxChars,
		ExclusionWindowDays: cfg.ExclusionWindowDays,
	})

	a := &app{
		cfg:      cfg,
		store:    st,
		gemini:   gem,
		searchc:  searchc,
		fetcher:  fetch,
		cleaner:  clean,
		uploader: uploader,
		updater:  updater,
		sources:  sources,
	}

	if cfg.OpenAIAPIKey != "" {
		toolbox := newsagent.NewToolbox(gem, st, searchc, fetch, clean)
		a.agent = newsagent.New(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel, st, toolbox,
			cfg.LanguageCode, newsagent.WithLeadWindow(cfg.ArticleWindowDays))
	}

	return a, nil
}

func (a *app) close() {
	a.gemini.Close()
	a.store.Close()
}

// serve runs the scheduler plus the monitoring endpoints until the
// process is signalled.
func (a *app) serve(ctx context.Context) {
	c := cron.New()
	c.AddFunc("0 * * * *", func() { a.runIngest(ctx) })
	c.AddFunc("30 4 * * *", func() { a.runBackfill(ctx) })
	c.AddFunc("0 6 * * *", func() {
		for _, userID := range a.cfg.TrendUsers {
			a.runTrend(ctx, userID)
		}
	})
	if a.agent != nil {
		c.AddFunc("30 6 * * *", func() { a.runNewsAgent(ctx) })
	}
	c.Start()
	defer c.Stop()

	go startMonitoringServer()

	logger.Info("scheduler started", "trend_users", len(a.cfg.TrendUsers))
	<-ctx.Done()
	logger.Info("shutting down")
}

func (a *app) runIngest(ctx context.Context) {
	count, err := a.uploader.BulkUpload(ctx)
	if err != nil {
		metrics.Global.SetError(err.Error())
		logger.Error("ingest failed", "error", err)
		return
	}
	metrics.Global.SetLastRun()
	logger.Info("ingest finished", "uploaded", count)
}

func (a *app) runBackfill(ctx context.Context) {
	if err := a.uploader.BackfillEmpty(ctx); err != nil {
		metrics.Global.SetError(err.Error())
		logger.Error("backfill failed", "error", err)
		return
	}
	logger.Info("backfill finished")
}

func (a *app) runTrend(ctx context.Context, userID string) {
	news, err := a.updater.Update(ctx, userID)
	switch {
	case errors.Is(err, trend.ErrQuotaExhausted):
		logger.Warn("trend skipped", "user", userID, "reason", "quota exhausted")
	case errors.Is(err, trend.ErrNoTopic):
		logger.Warn("trend skipped", "user", userID, "reason", "no eligible topic")
	case err != nil:
		metrics.Global.SetError(err.Error())
		logger.Error("trend failed", "user", userID, "error", err)
	default:
		logger.Info("trend finished", "user", userID, "keyword", news.Keyword)
	}
}

// runTopic corrects raw topic input and saves it as the user's seed.
func (a *app) runTopic(ctx context.Context, userID, raw string) {
	corrected, err := trend.CorrectTopic(ctx, a.gemini, raw)
	if err != nil {
		logger.Error("topic correction failed", "user", userID, "error", err)
		return
	}

	topic, err := a.store.GetTopic(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		topic = model.Topic{UserID: userID, LanguageCode: a.cfg.LanguageCode}
	} else if err != nil {
		logger.Error("topic load failed", "user", userID, "error", err)
		return
	}
	topic.RawTopic = raw
	topic.Topic = corrected

	if err := a.store.SaveTopic(ctx, topic); err != nil {
		logger.Error("topic save failed", "user", userID, "error", err)
		return
	}
	logger.Info("topic saved", "user", userID, "topic", corrected)
}

func (a *app) runNewsAgent(ctx context.Context) {
	if a.agent == nil {
		logger.Warn("news agent disabled", "reason", "OPENAI_API_KEY not set")
		return
	}
	news, err := a.agent.Run(ctx)
	if err != nil {
		metrics.Global.SetError(err.Error())
		logger.Error("news agent failed", "error", err)
		return
	}
	logger.Info("news agent finished", "keyword", news.Keyword)
}

func startMonitoringServer() {
	port := os.Getenv("MONITORING_PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/metrics", metricsHandler)

	log.Printf("Starting monitoring server on port %s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Printf("Monitoring server error: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	// Headers must be set before WriteHeader or they are dropped.
	w.Header().Set("Content-Type", "application/json")

	status := "ok"
	if !stats["is_healthy"].(bool) {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}

	json.NewEncoder(w).Encode(response)
}

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
