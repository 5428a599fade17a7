package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ramkansal/deepcrawl/internal/extractor"
	"github.com/ramkansal/deepcrawl/internal/fetcher"
	"github.com/ramkansal/deepcrawl/internal/robots"
	"github.com/ramkansal/deepcrawl/internal/sitemap"
	"github.com/ramkansal/deepcrawl/internal/urlfilter"
	"github.com/ramkansal/deepcrawl/pkg/plugin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// statsInterval is how often queue stats are logged while crawling.
const statsInterval = 5 * time.Second

// State is the orchestrator's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateSeeding
	StateDiscovering
	StateCrawling
	StateDeduplicating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeding:
		return "seeding"
	case StateDiscovering:
		return "discovering"
	case StateCrawling:
		return "crawling"
	case StateDeduplicating:
		return "deduplicating"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Crawler is the core engine that orchestrates discovery, fetching,
// extraction and deduplication for one run. A Crawler is single-use.
type Crawler struct {
	config    *CrawlConfig
	fetch     plugin.Fetcher
	content   *extractor.ContentExtractor
	readable  extractor.Readability
	writer    plugin.OutputWriter
	client    *http.Client
	log       logrus.FieldLogger
	events    chan plugin.CrawlEvent
	frontier  *Frontier
	store     *PageStore
	limiter   *rate.Limiter
	stripSels []string

	// Stats
	stats     plugin.CrawlStats
	statsMu   sync.Mutex
	startTime time.Time

	stateMu sync.Mutex
	state   State
	summary *plugin.CrawlSummary
	inited  bool
	stopped bool
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithFetcher overrides the fetch strategy chosen from the config.
func WithFetcher(f plugin.Fetcher) Option {
	return func(c *Crawler) { c.fetch = f }
}

// WithReadability overrides the readability extractor.
func WithReadability(r extractor.Readability) Option {
	return func(c *Crawler) { c.readable = r }
}

// WithWriter sets where documents and the summary are written.
func WithWriter(w plugin.OutputWriter) Option {
	return func(c *Crawler) { c.writer = w }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Crawler) { c.log = l }
}

// WithHTTPClient sets the client used for robots.txt and sitemaps.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Crawler) { c.client = hc }
}

// New creates a new Crawler with the given configuration.
func New(config *CrawlConfig, opts ...Option) *Crawler {
	c := &Crawler{
		config: config,
		events: make(chan plugin.CrawlEvent, 1000),
		client: &http.Client{},
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the event channel. It is closed when Run returns.
func (c *Crawler) Events() <-chan plugin.CrawlEvent {
	return c.events
}

// State returns the current lifecycle phase.
func (c *Crawler) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Crawler) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	c.log.WithField("state", s.String()).Debug("crawl state")
}

// Init validates the configuration and builds every component. Run calls
// it when it has not been called yet.
func (c *Crawler) Init() error {
	if c.inited {
		return nil
	}
	if err := c.config.Validate(); err != nil {
		return err
	}
	c.log = c.log.WithField("run_id", c.config.RunID)

	start, _ := url.Parse(c.config.StartURL)
	include, err := urlfilter.CompileRegex(c.config.IncludeRegex)
	if err != nil {
		c.log.WithError(err).Warn("ignoring invalid include pattern")
		include = nil
	}
	exclude, err := urlfilter.CompileRegex(c.config.ExcludeRegex)
	if err != nil {
		c.log.WithError(err).Warn("ignoring invalid exclude pattern")
		exclude = nil
	}

	c.stripSels = extractor.MergeStripSelectors(c.config.StripSelectors)
	c.store = NewPageStore(c.config.MaxPages, c.config.MinBlockChars)
	fr := NewFrontier(FrontierConfig{
		Scope: urlfilter.Scope{
			StartHost:      start.Host,
			SameDomainOnly: c.config.SameDomainOnly,
			Include:        include,
			Exclude:        exclude,
		},
		RespectRobots: c.config.RespectRobots,
		Full:          c.store.Full,
		MaxRequests:   c.config.MaxRequests(),
		RunID:         c.config.RunID,
		Logger:        c.log,
	})
	c.stateMu.Lock()
	c.frontier = fr
	stopped := c.stopped
	c.stateMu.Unlock()
	if stopped {
		fr.Close()
	}
	c.content = extractor.NewContentExtractor(c.readable, c.stripSels)

	// A delay of d allows at most one dispatch per d across all workers.
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	if c.config.Delay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(c.config.Delay), 1)
	}

	if c.fetch == nil {
		c.fetch = c.newFetcher()
	}
	c.inited = true
	return nil
}

// newFetcher picks the fetch strategy once for the whole run. A browser
// that cannot be launched falls back to plain HTTP.
func (c *Crawler) newFetcher() plugin.Fetcher {
	if c.config.RenderJS {
		bf, err := fetcher.NewBrowserFetcher(fetcher.BrowserFetcherConfig{
			Timeout:        c.config.Timeout,
			UserAgent:      c.config.UserAgent,
			StripSelectors: c.stripSels,
			Bin:            c.config.ChromeBin,
			Logger:         c.log,
		})
		if err == nil {
			return bf
		}
		c.log.WithError(err).Warn("browser fetcher unavailable, falling back to HTTP")
		c.emit(plugin.CrawlEvent{
			Type:    plugin.EventPageError,
			Error:   err,
			Message: fmt.Sprintf("Browser fetcher unavailable: %v (falling back to HTTP)", err),
		})
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPFetcherConfig{
		UserAgent:       c.config.UserAgent,
		Timeout:         c.config.Timeout,
		MaxResponseSize: c.config.MaxResponseSize,
		StripSelectors:  c.stripSels,
		CustomHeaders:   c.config.CustomHeaders,
	})
}

// Run crawls until the frontier drains, the page cap or request budget is
// reached, or ctx is cancelled, then deduplicates and returns the
// documents. Only configuration errors and output failures are returned;
// per-page and per-sitemap failures are logged and counted.
func (c *Crawler) Run(ctx context.Context) ([]plugin.Document, error) {
	defer close(c.events)
	if err := c.Init(); err != nil {
		return nil, err
	}
	c.startTime = time.Now()

	c.emit(plugin.CrawlEvent{
		Type:    plugin.EventCrawlStarted,
		URL:     c.config.StartURL,
		Message: fmt.Sprintf("Starting crawl of %s", c.config.StartURL),
	})
	c.log.WithFields(logrus.Fields{
		"url":         c.config.StartURL,
		"mode":        c.config.Mode,
		"max_pages":   c.config.MaxPages,
		"max_depth":   c.config.MaxDepth,
		"concurrency": c.config.Concurrency,
		"fetcher":     c.fetch.Name(),
	}).Info("crawl started")

	if c.config.RespectRobots {
		c.frontier.SetRobots(robots.Fetch(ctx, c.client, c.config.StartURL, c.config.UserAgent, c.log))
	}

	// Seeding
	c.setState(StateSeeding)
	seed, ok := c.frontier.Seed(c.config.StartURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStartURL, c.config.StartURL)
	}
	c.queued(seed)

	// Discovering runs alongside the crawl and holds the frontier open.
	crawlCtx, cancelDiscovery := context.WithCancel(ctx)
	defer cancelDiscovery()
	var discovery sync.WaitGroup
	if c.config.UsesSitemaps() {
		c.setState(StateDiscovering)
		c.frontier.Hold()
		discovery.Add(1)
		go func() {
			defer discovery.Done()
			defer c.frontier.Release()
			c.discoverSitemaps(crawlCtx)
		}()
	}

	// Crawling
	c.setState(StateCrawling)
	stopStats := c.logQueueStats(crawlCtx)
	c.crawl(crawlCtx)
	stopStats()
	cancelDiscovery()
	discovery.Wait()

	// Deduplicating
	c.setState(StateDeduplicating)
	pages, freq := c.store.Snapshot()
	res := Deduplicate(pages, freq, c.config.DedupeCommonBlocks, c.config.CommonBlockThreshold, c.config.OrgID)
	c.log.WithFields(logrus.Fields{
		"pages":        len(pages),
		"total_blocks": res.TotalBlocks,
		"common":       res.CommonBlocks,
		"threshold":    res.ThresholdCount,
		"applied":      res.Applied,
	}).Info("common block deduplication")

	summary := c.buildSummary(res)
	c.stateMu.Lock()
	c.summary = summary
	c.stateMu.Unlock()

	var writeErr error
	if c.writer != nil {
		writeErr = c.writeOutput(res.Documents, summary)
	}

	c.setState(StateDone)
	stats := c.Stats()
	c.emit(plugin.CrawlEvent{
		Type:    plugin.EventCrawlFinished,
		Stats:   &stats,
		Message: fmt.Sprintf("Crawl complete. %d pages, %d documents.", stats.PagesRecorded, len(res.Documents)),
	})
	c.log.WithFields(logrus.Fields{
		"fetched":   stats.PagesFetched,
		"recorded":  stats.PagesRecorded,
		"skipped":   stats.PagesSkipped,
		"errored":   stats.PagesErrored,
		"documents": len(res.Documents),
		"elapsed":   stats.Elapsed.Round(time.Millisecond),
	}).Info("crawl finished")

	return res.Documents, writeErr
}

// crawl runs the bounded worker pool until the frontier stops handing out
// requests.
func (c *Crawler) crawl(ctx context.Context) {
	var g errgroup.Group
	for i := 0; i < c.config.Concurrency; i++ {
		g.Go(func() error {
			for {
				req, ok := c.frontier.Next(ctx)
				if !ok {
					return nil
				}
				c.processRequest(ctx, req)
				c.frontier.Done()
			}
		})
	}
	_ = g.Wait()
}

// discoverSitemaps feeds sitemap page URLs to the frontier until the page
// cap is reached.
func (c *Crawler) discoverSitemaps(ctx context.Context) {
	d := sitemap.NewDiscoverer(c.client, c.config.Timeout, c.log)
	found := 0
	err := d.Discover(ctx, c.config.StartURL, func(pageURL string) bool {
		if c.store.Full() {
			return false
		}
		found++
		if ok, _ := c.frontier.Enqueue(pageURL, 0, plugin.SourceSitemap); ok {
			c.queued(pageURL)
		}
		return !c.store.Full()
	})
	if err != nil {
		c.log.WithError(err).Warn("sitemap discovery failed")
	}

	c.statsMu.Lock()
	c.stats.SitemapURLs = found
	c.statsMu.Unlock()

	c.log.WithField("urls", found).Info("sitemap discovery finished")
	c.emit(plugin.CrawlEvent{
		Type:    plugin.EventSitemapDone,
		URL:     c.config.StartURL,
		Message: fmt.Sprintf("Sitemaps listed %d URLs", found),
	})
}

// processRequest runs fetch, extract, record and link discovery for one
// request. Failures drop the page without retry.
func (c *Crawler) processRequest(ctx context.Context, req plugin.CrawlRequest) {
	log := c.log.WithFields(logrus.Fields{"url": req.URL, "depth": req.Depth, "source": req.SourceType})

	if err := c.limiter.Wait(ctx); err != nil {
		return
	}
	if c.config.Delay > 0 {
		select {
		case <-time.After(c.config.Delay):
		case <-ctx.Done():
			return
		}
	}

	c.emit(plugin.CrawlEvent{
		Type: plugin.EventPageStarted,
		URL:  req.URL,
	})

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	page, status, err := c.fetch.Fetch(fetchCtx, req)
	cancel()

	switch status {
	case plugin.StatusSkipped:
		c.bump(func(s *plugin.CrawlStats) { s.PagesSkipped++ })
		log.Debug("page skipped")
		c.emit(plugin.CrawlEvent{Type: plugin.EventPageSkipped, URL: req.URL, Page: page})
		return
	case plugin.StatusFailed:
		if err == nil {
			err = errors.New("fetch failed")
		}
		c.bump(func(s *plugin.CrawlStats) { s.PagesErrored++ })
		log.WithError(err).Warn("page fetch failed")
		c.emit(plugin.CrawlEvent{
			Type:    plugin.EventPageError,
			URL:     req.URL,
			Page:    page,
			Error:   err,
			Message: fmt.Sprintf("Error fetching %s: %v", req.URL, err),
		})
		return
	}
	c.bump(func(s *plugin.CrawlStats) { s.PagesFetched++ })

	if c.store.Full() {
		log.Debug("page cap reached, discarding result")
		return
	}

	baseURL := page.FinalURL
	if baseURL == "" {
		baseURL = req.URL
	}
	content, meta, links := c.parsePage(page.HTML, baseURL)
	title := content.Title
	if title == "" {
		title = page.Title
	}

	recorded := c.store.Record(PageResult{
		URL:         req.URL,
		Title:       title,
		Depth:       req.Depth,
		SourceType:  req.SourceType,
		FetchedAt:   page.FetchedAt,
		Description: meta.Description,
		Language:    meta.Language,
		Canonical:   meta.Canonical,
	}, content.Text)
	if recorded {
		c.bump(func(s *plugin.CrawlStats) {
			s.PagesRecorded++
		})
	}
	log.WithFields(logrus.Fields{"method": content.Method, "recorded": recorded}).Debug("page processed")

	stats := c.Stats()
	c.emit(plugin.CrawlEvent{
		Type:  plugin.EventPageDone,
		URL:   req.URL,
		Page:  page,
		Stats: &stats,
	})

	if c.config.FollowsLinks() && req.Depth < c.config.MaxDepth && !c.store.Full() {
		for _, link := range links {
			if ok, _ := c.frontier.Enqueue(link, req.Depth+1, plugin.SourceCrawl); ok {
				c.queued(link)
			}
		}
	}
}

// parsePage parses rawHTML once and reads metadata, outgoing links and text
// from the same tree. Links and metadata come first because extraction
// strips the tree in place.
func (c *Crawler) parsePage(rawHTML, baseURL string) (extractor.Content, extractor.PageMeta, []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return c.content.Extract(nil, rawHTML, baseURL), extractor.PageMeta{}, nil
	}
	meta := extractor.Metadata(doc, baseURL)
	var links []string
	if c.config.FollowsLinks() {
		links = extractor.Links(doc, baseURL)
	}
	return c.content.Extract(doc, rawHTML, baseURL), meta, links
}

// logQueueStats logs frontier progress periodically until the returned
// stop function is called.
func (c *Crawler) logQueueStats(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.log.WithFields(logrus.Fields{
					"queued":    c.frontier.Len(),
					"in_flight": c.frontier.InFlight(),
					"seen":      c.frontier.SeenCount(),
					"recorded":  c.store.Len(),
				}).Debug("queue stats")
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (c *Crawler) queued(u string) {
	c.bump(func(s *plugin.CrawlStats) { s.PagesQueued++ })
	c.emit(plugin.CrawlEvent{
		Type: plugin.EventPageQueued,
		URL:  u,
	})
}

func (c *Crawler) writeOutput(docs []plugin.Document, summary *plugin.CrawlSummary) error {
	if err := c.writer.WriteDocuments(docs); err != nil {
		return fmt.Errorf("write documents to %s: %w", c.writer.Name(), err)
	}
	if err := c.writer.Finalize(summary); err != nil {
		return fmt.Errorf("finalize %s: %w", c.writer.Name(), err)
	}
	return nil
}

// Stop asks the crawler to stop handing out new requests. In-flight pages
// finish and the collected pages are still deduplicated. It is safe to call
// from any goroutine, including before Run.
func (c *Crawler) Stop() {
	c.stateMu.Lock()
	c.stopped = true
	fr := c.frontier
	c.stateMu.Unlock()
	if fr != nil {
		fr.Close()
	}
}

// emit sends an event to the event channel (non-blocking).
func (c *Crawler) emit(event plugin.CrawlEvent) {
	select {
	case c.events <- event:
	default:
		// Drop event if channel is full; consumers never block the crawl.
	}
}

func (c *Crawler) bump(f func(*plugin.CrawlStats)) {
	c.statsMu.Lock()
	f(&c.stats)
	c.statsMu.Unlock()
}

// Stats returns a copy of the current stats.
func (c *Crawler) Stats() plugin.CrawlStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	s := c.stats
	if c.store != nil {
		s.UniqueBlocks = c.store.UniqueBlocks()
	}
	if !c.startTime.IsZero() {
		s.Elapsed = time.Since(c.startTime)
		if s.Elapsed.Seconds() > 0 {
			s.PagesPerSec = float64(s.PagesFetched) / s.Elapsed.Seconds()
		}
	}
	return s
}

// Summary returns the final summary, or nil before Run completes.
func (c *Crawler) Summary() *plugin.CrawlSummary {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.summary
}

// buildSummary creates the final CrawlSummary.
func (c *Crawler) buildSummary(res DedupeResult) *plugin.CrawlSummary {
	stats := c.Stats()
	return &plugin.CrawlSummary{
		RunID:          c.config.RunID,
		TargetURL:      c.config.StartURL,
		StartedAt:      c.startTime,
		FinishedAt:     time.Now(),
		Duration:       time.Since(c.startTime),
		Stats:          stats,
		TotalDocuments: len(res.Documents),
		CommonBlocks:   res.CommonBlocks,
	}
}

// Close releases all resources.
func (c *Crawler) Close() error {
	if c.fetch != nil {
		return c.fetch.Close()
	}
	return nil
}
