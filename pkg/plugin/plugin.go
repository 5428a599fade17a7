// Package plugin defines the public interfaces for deepcrawl.
// External tools can import this package to write custom fetchers or
// document writers without forking the project.
package plugin

import (
	"context"
	"time"
)

// ---------- Core Data Types ----------

// SourceType records how a URL entered the frontier.
type SourceType string

const (
	SourceSeed    SourceType = "seed"
	SourceCrawl   SourceType = "crawl"
	SourceSitemap SourceType = "sitemap"
)

// CrawlRequest is a single unit of work taken from the frontier.
type CrawlRequest struct {
	URL        string     `json:"url"`
	Depth      int        `json:"depth"`
	SourceType SourceType `json:"source_type"`
}

// FetchStatus is the outcome of a fetch attempt.
type FetchStatus int

const (
	// StatusFetched means HTML was obtained (possibly partial for the browser).
	StatusFetched FetchStatus = iota
	// StatusSkipped means the fetcher declined the URL without a request
	// (asset URL, unparsable document). Not an error.
	StatusSkipped
	// StatusFailed means the request itself failed. The page is dropped.
	StatusFailed
)

func (s FetchStatus) String() string {
	switch s {
	case StatusFetched:
		return "fetched"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PageData represents a fetched page after strip selectors were applied.
type PageData struct {
	URL           string        `json:"url"`
	FinalURL      string        `json:"final_url"`
	StatusCode    int           `json:"status_code"`
	Title         string        `json:"title,omitempty"`
	HTML          string        `json:"-"`
	ContentType   string        `json:"content_type"`
	FetchedAt     time.Time     `json:"fetched_at"`
	FetchDuration time.Duration `json:"fetch_duration"`
	FetcherUsed   string        `json:"fetcher_used"`
	Depth         int           `json:"depth"`
	Error         string        `json:"error,omitempty"`
}

// Document is the final output record for one page.
type Document struct {
	PageContent string           `json:"pageContent"`
	Metadata    DocumentMetadata `json:"metadata"`
}

// DocumentMetadata describes where a document came from.
type DocumentMetadata struct {
	URL                string     `json:"url"`
	Title              string     `json:"title,omitempty"`
	Depth              int        `json:"depth"`
	SourceType         SourceType `json:"sourceType"`
	FetchedAt          time.Time  `json:"fetchedAt"`
	BlockCount         int        `json:"blockCount"`
	OriginalBlockCount int        `json:"originalBlockCount"`
	OrgID              string     `json:"orgId"`
	Description        string     `json:"description,omitempty"`
	Language           string     `json:"language,omitempty"`
	Canonical          string     `json:"canonical,omitempty"`
}

// CrawlSummary is the final aggregated output of the entire crawl.
type CrawlSummary struct {
	RunID          string        `json:"run_id"`
	TargetURL      string        `json:"target_url"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"duration"`
	Stats          CrawlStats    `json:"stats"`
	TotalDocuments int           `json:"total_documents"`
	CommonBlocks   int           `json:"common_blocks"`
}

// ---------- Event Types ----------

// CrawlEvent represents a real-time event emitted by the crawler.
type CrawlEvent struct {
	Type    EventType
	URL     string
	Page    *PageData
	Error   error
	Stats   *CrawlStats
	Message string
}

// EventType identifies the kind of event.
type EventType int

const (
	EventPageQueued EventType = iota
	EventPageStarted
	EventPageDone
	EventPageSkipped
	EventPageError
	EventSitemapDone
	EventCrawlStarted
	EventCrawlFinished
)

// CrawlStats holds real-time crawl statistics.
type CrawlStats struct {
	PagesQueued   int           `json:"pages_queued"`
	PagesFetched  int           `json:"pages_fetched"`
	PagesRecorded int           `json:"pages_recorded"`
	PagesSkipped  int           `json:"pages_skipped"`
	PagesErrored  int           `json:"pages_errored"`
	SitemapURLs   int           `json:"sitemap_urls"`
	UniqueBlocks  int           `json:"unique_blocks"`
	Elapsed       time.Duration `json:"elapsed"`
	PagesPerSec   float64       `json:"pages_per_sec"`
}

// ---------- Plugin Interfaces ----------

// Fetcher defines how pages are retrieved.
type Fetcher interface {
	// Name returns a human-readable identifier for this fetcher.
	Name() string

	// Fetch retrieves the page for req. The returned PageData is non-nil
	// whenever the status is StatusFetched.
	Fetch(ctx context.Context, req CrawlRequest) (*PageData, FetchStatus, error)

	// Close releases any resources held by the fetcher.
	Close() error
}

// OutputWriter defines how crawl documents are persisted.
type OutputWriter interface {
	// Name returns a human-readable identifier for this writer.
	Name() string

	// WriteDocuments writes the final document set.
	WriteDocuments(docs []Document) error

	// Finalize writes the summary and closes resources.
	Finalize(summary *CrawlSummary) error
}
