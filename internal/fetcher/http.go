package fetcher

import (
	"bytes"
	"context"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/ramkansal/deepcrawl/internal/extractor"
	"github.com/ramkansal/deepcrawl/internal/urlfilter"
	"github.com/ramkansal/deepcrawl/pkg/plugin"
)

// HTTPFetcher uses Colly for fast, JS-free page fetching.
type HTTPFetcher struct {
	collector *colly.Collector
	strip     []string
	headers   map[string]string
}

// HTTPFetcherConfig holds configuration for the HTTP fetcher.
type HTTPFetcherConfig struct {
	UserAgent       string
	Timeout         time.Duration
	MaxResponseSize int
	StripSelectors  []string
	CustomHeaders   []string
	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper
}

// NewHTTPFetcher creates a new Colly-based HTTP fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	c := colly.NewCollector(
		colly.Async(false), // concurrency is owned by the crawler's worker pool
		colly.AllowURLRevisit(),
	)

	// Robots are evaluated at admission time, not per request.
	c.IgnoreRobotsTxt = true
	c.DetectCharset = true

	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}
	if cfg.MaxResponseSize > 0 {
		c.MaxBodySize = cfg.MaxResponseSize
	}
	if cfg.Transport != nil {
		c.WithTransport(cfg.Transport)
	}

	// Custom headers are re-applied on every clone; callbacks do not survive Clone.
	headers := make(map[string]string)
	for _, h := range cfg.CustomHeaders {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return &HTTPFetcher{
		collector: c,
		strip:     cfg.StripSelectors,
		headers:   headers,
	}
}

func (f *HTTPFetcher) Name() string { return "http" }

// Fetch retrieves req.URL without running scripts. Asset URLs and
// responses that do not parse as HTML are skipped; transport errors and
// non-2xx statuses fail the page. There are no retries.
func (f *HTTPFetcher) Fetch(ctx context.Context, req plugin.CrawlRequest) (*plugin.PageData, plugin.FetchStatus, error) {
	if urlfilter.IsAsset(req.URL) {
		return nil, plugin.StatusSkipped, nil
	}

	start := time.Now()
	page := &plugin.PageData{
		URL:         req.URL,
		FinalURL:    req.URL,
		FetcherUsed: f.Name(),
		FetchedAt:   start,
		Depth:       req.Depth,
	}

	// Clone the collector for this individual fetch so we get clean state
	c := f.collector.Clone()
	c.Context = ctx
	if len(f.headers) > 0 {
		c.OnRequest(func(r *colly.Request) {
			for k, v := range f.headers {
				r.Headers.Set(k, v)
			}
		})
	}

	var (
		mu       sync.Mutex
		body     []byte
		fetchErr error
	)

	c.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		body = r.Body
		page.StatusCode = r.StatusCode
		page.FinalURL = r.Request.URL.String()
		if r.Headers != nil {
			page.ContentType = r.Headers.Get("Content-Type")
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		fetchErr = err
		if r != nil {
			page.StatusCode = r.StatusCode
		}
	})

	err := c.Visit(req.URL)
	c.Wait()
	page.FetchDuration = time.Since(start)

	mu.Lock()
	defer mu.Unlock()
	if err == nil {
		err = fetchErr
	}
	if err != nil {
		page.Error = err.Error()
		return page, plugin.StatusFailed, err
	}
	if !isHTML(page.ContentType) {
		return page, plugin.StatusSkipped, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil || len(doc.Nodes) == 0 {
		return page, plugin.StatusSkipped, nil
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	extractor.Strip(doc.Selection, f.strip)

	html, err := doc.Html()
	if err != nil {
		return page, plugin.StatusSkipped, nil
	}
	page.HTML = html
	return page, plugin.StatusFetched, nil
}

func (f *HTTPFetcher) Close() error {
	return nil
}

// isHTML accepts HTML media types; a missing Content-Type is given the
// benefit of the doubt.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
