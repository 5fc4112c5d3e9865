package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ArticlesIngested   int64
	DuplicatesSkipped  int64
	FetchFailures      int64
	CleanFailures      int64
	TopicsSelected     int64
	SelectionFailures  int64
	QuotaRejections    int64
	NewsGenerated      int64
	EmbeddingsComputed int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrementArticlesIngested() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesIngested++
}

func (m *Metrics) IncrementDuplicatesSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesSkipped++
}

func (m *Metrics) IncrementFetchFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchFailures++
}

func (m *Metrics) IncrementCleanFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CleanFailures++
}

func (m *Metrics) IncrementTopicsSelected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TopicsSelected++
}

func (m *Metrics) IncrementSelectionFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SelectionFailures++
}

func (m *Metrics) IncrementQuotaRejections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuotaRejections++
}

func (m *Metrics) IncrementNewsGenerated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NewsGenerated++
}

func (m *Metrics) IncrementEmbeddingsComputed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbeddingsComputed++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"articles_ingested":          m.ArticlesIngested,
		"duplicates_skipped":         m.DuplicatesSkipped,
		"fetch_failures":             m.FetchFailures,
		"clean_failures":             m.CleanFailures,
		"topics_selected":            m.TopicsSelected,
		"selection_failures":         m.SelectionFailures,
		"quota_rejections":           m.QuotaRejections,
		"news_generated":             m.NewsGenerated,
		"embeddings_computed":        m.EmbeddingsComputed,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
