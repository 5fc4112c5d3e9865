// Package config loads pipeline configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Gemini settings
	GeminiAPIKey   string
	GeminiModel    string
	EmbeddingModel string

	// OpenAI settings (news generation agent; optional)
	OpenAIAPIKey string
	OpenAIModel  string

	// Google Custom Search settings
	SearchAPIKey string
	SearchCSEID  string

	// Store settings
	DBPath string

	// RSS settings
	FeedsConfigPath string
	FeedEntryLimit  int // first N entries per feed

	// Fetcher settings
	FetchTimeout  time.Duration
	FetchDelay    time.Duration // courtesy pause between requests in a loop
	FetchCacheTTL time.Duration

	// Selection settings
	MaxCleanInput       int // chars of raw text sent to the cleaner LLM
	EvidenceLimit       int // related URLs fetched per cycle
	EvidenceCharBudget  int // chars of body per evidence article
	ManuscriptMaxChars  int
	ExclusionWindowDays int // trailing window for already-covered keywords
	ArticleWindowDays   int // trailing window for candidate articles
	SearchResults       int // results per search query
	RelatedKeywords     int

	// Quota settings
	MonthlyLimit int

	// Per-run AI budgets (0 = unlimited)
	MaxGeminiRequests int
	MaxOpenAIRequests int
	MaxSearchRequests int

	// App settings
	Debug         bool
	RetryAttempts int
	RetryDelay    time.Duration
	TrendUsers    []string // user ids covered by the scheduled trend job
	LanguageCode  string
}

func Load() (*Config, error) {
	cfg := &Config{
		GeminiModel:         "gemini-1.5-flash",
		EmbeddingModel:      "text-embedding-004",
		OpenAIModel:         "gpt-4o-mini",
		DBPath:              "trendcurator.db",
		FeedsConfigPath:     "configs/feeds.yaml",
		FeedEntryLimit:      10,
		FetchTimeout:        15 * time.Second,
		FetchDelay:          500 * time.Millisecond,
		FetchCacheTTL:       1 * time.Hour,
		MaxCleanInput:       3000,
		EvidenceLimit:       3,
		EvidenceCharBudget:  3000,
		ManuscriptMaxChars:  250,
		ExclusionWindowDays: 7,
		ArticleWindowDays:   3,
		SearchResults:       10,
		RelatedKeywords:     3,
		MonthlyLimit:        100,
		RetryAttempts:       3,
		RetryDelay:          5 * time.Second,
		LanguageCode:        "en",
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.SearchAPIKey = os.Getenv("GOOGLE_CUSTOM_SEARCH_API_KEY")
	cfg.SearchCSEID = os.Getenv("GOOGLE_SEARCH_CSE_ID")

	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.EmbeddingModel = getEnvOrDefault("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.DBPath = getEnvOrDefault("DB_PATH", cfg.DBPath)
	cfg.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", cfg.FeedsConfigPath)
	cfg.LanguageCode = getEnvOrDefault("LANGUAGE_CODE", cfg.LanguageCode)

	cfg.FeedEntryLimit = getEnvIntOrDefault("FEED_ENTRY_LIMIT", cfg.FeedEntryLimit)
	cfg.MaxCleanInput = getEnvIntOrDefault("MAX_CLEAN_INPUT", cfg.MaxCleanInput)
	cfg.EvidenceLimit = getEnvIntOrDefault("EVIDENCE_LIMIT", cfg.EvidenceLimit)
	cfg.EvidenceCharBudget = getEnvIntOrDefault("EVIDENCE_CHAR_BUDGET", cfg.EvidenceCharBudget)
	cfg.ManuscriptMaxChars = getEnvIntOrDefault("MANUSCRIPT_MAX_CHARS", cfg.ManuscriptMaxChars)
	cfg.ExclusionWindowDays = getEnvIntOrDefault("EXCLUSION_WINDOW_DAYS", cfg.ExclusionWindowDays)
	cfg.ArticleWindowDays = getEnvIntOrDefault("ARTICLE_WINDOW_DAYS", cfg.ArticleWindowDays)
	cfg.SearchResults = getEnvIntOrDefault("SEARCH_RESULTS", cfg.SearchResults)
	cfg.RelatedKeywords = getEnvIntOrDefault("RELATED_KEYWORDS", cfg.RelatedKeywords)
	cfg.MonthlyLimit = getEnvIntOrDefault("MONTHLY_LIMIT", cfg.MonthlyLimit)
	cfg.MaxGeminiRequests = getEnvIntOrDefault("MAX_GEMINI_REQUESTS", cfg.MaxGeminiRequests)
	cfg.MaxOpenAIRequests = getEnvIntOrDefault("MAX_OPENAI_REQUESTS", cfg.MaxOpenAIRequests)
	cfg.MaxSearchRequests = getEnvIntOrDefault("MAX_SEARCH_REQUESTS", cfg.MaxSearchRequests)
	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)

	if v := os.Getenv("FETCH_TIMEOUT_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.FetchTimeout = time.Duration(val) * time.Second
		}
	}
	if v := os.Getenv("FETCH_DELAY_MS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val >= 0 {
			cfg.FetchDelay = time.Duration(val) * time.Millisecond
		}
	}
	if v := os.Getenv("FETCH_CACHE_TTL_MINUTES"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.FetchCacheTTL = time.Duration(val) * time.Minute
		}
	}
	if v := os.Getenv("RETRY_DELAY_SECONDS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.RetryDelay = time.Duration(val) * time.Second
		}
	}
	if v := os.Getenv("TREND_USERS"); v != "" {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.TrendUsers = append(cfg.TrendUsers, u)
			}
		}
	}
	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.SearchAPIKey == "" {
		return fmt.Errorf("GOOGLE_CUSTOM_SEARCH_API_KEY is required")
	}
	if c.SearchCSEID == "" {
		return fmt.Errorf("GOOGLE_SEARCH_CSE_ID is required")
	}
	if c.MonthlyLimit <= 0 {
		return fmt.Errorf("MONTHLY_LIMIT must be positive")
	}
	if c.FeedEntryLimit <= 0 {
		return fmt.Errorf("FEED_ENTRY_LIMIT must be positive")
	}
	return nil
}
