package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ramkansal/deepcrawl/internal/extractor"
	"github.com/ramkansal/deepcrawl/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noReadability forces the body-text extraction tier so that test pages
// produce predictable blocks.
type noReadability struct{}

func (noReadability) Extract(*goquery.Document, string) (extractor.Article, error) {
	return extractor.Article{}, nil
}

const sharedParagraph = "This shared paragraph is repeated on every page of the site."

type testSite struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func (s *testSite) hit(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// htmlPage wraps body in site chrome plus the shared paragraph. An empty
// body yields a page whose only content is stripped chrome.
func htmlPage(title, body string) string {
	if body == "" {
		return fmt.Sprintf(`<html><head><title>%s</title></head><body>
<nav><a href="/nav-only">Navigation</a></nav><footer>Footer only</footer></body></html>`, title)
	}
	return fmt.Sprintf(`<html><head><title>%s</title></head><body>
<nav><a href="/nav-only">Navigation</a></nav>
<main>%s<p>%s</p></main>
<footer>Footer text that is long enough to be a block</footer>
</body></html>`, title, body, sharedParagraph)
}

// newTestSite serves a small docs site. pages maps a path to its <main>
// body; every other path is a 404 unless handled by extra.
func newTestSite(t *testing.T, pages map[string]string, extra map[string]string) *testSite {
	t.Helper()
	site := &testSite{hits: make(map[string]int)}
	site.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.hits[r.URL.Path]++
		site.mu.Unlock()

		if body, ok := extra[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, strings.ReplaceAll(body, "{{base}}", site.URL))
			return
		}
		if body, ok := pages[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, htmlPage("Page "+r.URL.Path, body))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(site.Close)
	return site
}

func testConfig(start string) *CrawlConfig {
	c := DefaultConfig()
	c.StartURL = start
	c.Mode = ModeLinks
	c.MinBlockChars = 20
	c.Timeout = 5 * time.Second
	c.OrgID = "acme"
	return c
}

func runCrawl(t *testing.T, cfg *CrawlConfig) ([]plugin.Document, *Crawler) {
	t.Helper()
	c := New(cfg, WithReadability(noReadability{}), WithLogger(quietLogger()))
	defer c.Close()
	docs, err := c.Run(context.Background())
	require.NoError(t, err)
	return docs, c
}

func docsByPath(t *testing.T, base string, docs []plugin.Document) map[string]plugin.Document {
	t.Helper()
	out := make(map[string]plugin.Document, len(docs))
	for _, d := range docs {
		out[strings.TrimPrefix(d.Metadata.URL, base)] = d
	}
	return out
}

func TestCrawler_SameDomainLinks(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<p>Welcome to the documentation home page.</p>
<ul><li><a href="/guide">Guide</a></li><li><a href="/faq#top">FAQ</a></li>
<li><a href="https://elsewhere.example/page">Elsewhere</a></li>
<li><a href="/private/secret">Secret</a></li>
<li><a href="/assets/manual.pdf">Manual</a></li>
<li><a href="/empty">Empty</a></li></ul>`,
		"/guide":          `<p>The guide explains how to configure the crawler.</p><a href="/guide/deeper">Deeper</a>`,
		"/faq":            `<p>Frequently asked questions and their answers.</p>`,
		"/private/secret": `<p>This page must never be fetched by the crawler.</p>`,
		"/guide/deeper":   `<p>Depth two content that is beyond the depth limit.</p>`,
		"/empty":          ``,
	}, map[string]string{
		"/robots.txt": "User-agent: *\nDisallow: /private/\n",
	})

	cfg := testConfig(site.URL + "/")
	cfg.MaxDepth = 1
	cfg.Concurrency = 3
	docs, c := runCrawl(t, cfg)

	byPath := docsByPath(t, site.URL, docs)
	assert.Len(t, byPath, 3)
	require.Contains(t, byPath, "/")
	require.Contains(t, byPath, "/guide")
	require.Contains(t, byPath, "/faq")
	assert.NotContains(t, byPath, "/empty")

	// Filtered links are never requested.
	assert.Zero(t, site.hit("/private/secret"))
	assert.Zero(t, site.hit("/assets/manual.pdf"))
	assert.Zero(t, site.hit("/guide/deeper"))
	assert.Zero(t, site.hit("/nav-only"), "links inside stripped navigation are ignored")
	assert.Equal(t, 1, site.hit("/empty"))
	assert.Equal(t, 1, site.hit("/robots.txt"))

	for path, d := range byPath {
		assert.NotContains(t, d.PageContent, sharedParagraph, path)
		assert.NotContains(t, d.PageContent, "Footer text", path)
		assert.Equal(t, "acme", d.Metadata.OrgID)
		assert.Equal(t, d.Metadata.OriginalBlockCount-1, d.Metadata.BlockCount, path)
	}
	assert.Equal(t, "Welcome to the documentation home page.", byPath["/"].PageContent)
	assert.Equal(t, plugin.SourceSeed, byPath["/"].Metadata.SourceType)
	assert.Equal(t, 0, byPath["/"].Metadata.Depth)
	assert.Equal(t, plugin.SourceCrawl, byPath["/guide"].Metadata.SourceType)
	assert.Equal(t, 1, byPath["/guide"].Metadata.Depth)
	assert.Equal(t, "Page /guide", byPath["/guide"].Metadata.Title)

	stats := c.Stats()
	assert.Equal(t, 4, stats.PagesFetched)
	assert.Equal(t, 3, stats.PagesRecorded, "/empty has no content")
	assert.Equal(t, StateDone, c.State())

	summary := c.Summary()
	require.NotNil(t, summary)
	assert.Equal(t, 3, summary.TotalDocuments)
	assert.Equal(t, 1, summary.CommonBlocks)
	assert.Equal(t, cfg.RunID, summary.RunID)
}

func TestCrawler_SinglePageKeepsAllBlocks(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<p>Only page of the crawl, nothing else is linked.</p>`,
	}, nil)

	cfg := testConfig(site.URL)
	cfg.MaxDepth = 0
	docs, _ := runCrawl(t, cfg)

	require.Len(t, docs, 1)
	assert.Equal(t, "Only page of the crawl, nothing else is linked.\n\n"+sharedParagraph, docs[0].PageContent)
	assert.Equal(t, 2, docs[0].Metadata.BlockCount)
	assert.Equal(t, 2, docs[0].Metadata.OriginalBlockCount)
}

func TestCrawler_PageCap(t *testing.T) {
	pages := map[string]string{}
	var links strings.Builder
	for i := 0; i < 12; i++ {
		p := fmt.Sprintf("/p%d", i)
		links.WriteString(fmt.Sprintf(`<a href="%s">%d</a> `, p, i))
		pages[p] = fmt.Sprintf("<p>Content for numbered page %d of the site.</p>", i)
	}
	pages["/"] = "<p>The index page links to many numbered pages.</p>" + links.String()
	site := newTestSite(t, pages, nil)

	cfg := testConfig(site.URL + "/")
	cfg.MaxPages = 3
	cfg.MaxDepth = 1
	cfg.Concurrency = 4
	cfg.RespectRobots = false
	docs, c := runCrawl(t, cfg)

	assert.LessOrEqual(t, len(docs), 3)
	assert.LessOrEqual(t, c.Stats().PagesRecorded, 3)

	requested := 0
	for i := 0; i < 12; i++ {
		requested += site.hit(fmt.Sprintf("/p%d", i))
	}
	assert.LessOrEqual(t, requested+site.hit("/"), 3, "dispatch budget equals max pages")
}

func TestCrawler_SitemapIndex(t *testing.T) {
	pages := map[string]string{"/": "<p>Home page reached through the seed only.</p>"}
	for i := 1; i <= 6; i++ {
		pages[fmt.Sprintf("/doc%d", i)] = fmt.Sprintf("<p>Sitemap listed document number %d.</p>", i)
	}
	site := newTestSite(t, pages, map[string]string{
		"/sitemap_index.xml": `<?xml version="1.0"?><sitemapindex>
<sitemap><loc>{{base}}/sitemap-a.xml</loc></sitemap>
<sitemap><loc>{{base}}/sitemap-b.xml</loc></sitemap></sitemapindex>`,
		"/sitemap-a.xml": `<?xml version="1.0"?><urlset>
<url><loc>{{base}}/doc1</loc></url><url><loc>{{base}}/doc2</loc></url><url><loc>{{base}}/doc3</loc></url></urlset>`,
		"/sitemap-b.xml": `<?xml version="1.0"?><urlset>
<url><loc>{{base}}/doc4</loc></url><url><loc>{{base}}/doc5</loc></url><url><loc>{{base}}/doc6</loc></url></urlset>`,
	})

	cfg := testConfig(site.URL)
	cfg.Mode = ModeSitemap
	cfg.MaxPages = 0
	cfg.RespectRobots = false
	docs, c := runCrawl(t, cfg)

	byPath := docsByPath(t, site.URL, docs)
	assert.Len(t, byPath, 7)
	for i := 1; i <= 6; i++ {
		d, ok := byPath[fmt.Sprintf("/doc%d", i)]
		require.True(t, ok, "doc%d", i)
		assert.Equal(t, plugin.SourceSitemap, d.Metadata.SourceType)
		assert.Equal(t, 1, site.hit(fmt.Sprintf("/doc%d", i)))
	}
	assert.Equal(t, 6, c.Stats().SitemapURLs)
	assert.Equal(t, 7, c.Stats().PagesQueued)
}

func TestCrawler_InvalidStartURL(t *testing.T) {
	cfg := testConfig("not-a-url")
	c := New(cfg, WithLogger(quietLogger()))
	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStartURL))

	// The event channel is closed even on failure.
	_, open := <-c.Events()
	assert.False(t, open)
}

func TestCrawler_FetchFailuresDoNotAbort(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<p>Home page with a link to a missing page.</p><a href="/missing">Missing</a>`,
	}, nil)

	cfg := testConfig(site.URL)
	cfg.MaxDepth = 1
	cfg.RespectRobots = false
	docs, c := runCrawl(t, cfg)

	require.Len(t, docs, 1)
	assert.Equal(t, 1, c.Stats().PagesErrored)
	assert.Equal(t, 1, site.hit("/missing"))
}

// recordingWriter captures writer calls.
type recordingWriter struct {
	docs    []plugin.Document
	summary *plugin.CrawlSummary
}

func (w *recordingWriter) Name() string { return "recording" }

func (w *recordingWriter) WriteDocuments(docs []plugin.Document) error {
	w.docs = docs
	return nil
}

func (w *recordingWriter) Finalize(s *plugin.CrawlSummary) error {
	w.summary = s
	return nil
}

func TestCrawler_WriterAndEvents(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<p>A page that should reach the output writer.</p>`,
	}, nil)

	cfg := testConfig(site.URL)
	cfg.MaxDepth = 0
	cfg.RespectRobots = false
	w := &recordingWriter{}
	c := New(cfg, WithReadability(noReadability{}), WithLogger(quietLogger()), WithWriter(w))
	defer c.Close()

	docs, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, docs, w.docs)
	require.NotNil(t, w.summary)
	assert.Equal(t, 1, w.summary.TotalDocuments)

	var types []plugin.EventType
	for ev := range c.Events() {
		types = append(types, ev.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, plugin.EventCrawlStarted, types[0])
	assert.Equal(t, plugin.EventCrawlFinished, types[len(types)-1])
	assert.Contains(t, types, plugin.EventPageDone)
}

// stubFetcher serves canned pages without a network.
type stubFetcher struct {
	mu    sync.Mutex
	calls []plugin.CrawlRequest
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Fetch(_ context.Context, req plugin.CrawlRequest) (*plugin.PageData, plugin.FetchStatus, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if strings.HasSuffix(req.URL, "/skip") {
		return nil, plugin.StatusSkipped, nil
	}
	return &plugin.PageData{
		URL:      req.URL,
		FinalURL: req.URL,
		Title:    "Stub",
		HTML: `<html lang="en"><head><meta name="description" content="A stub page">
<link rel="canonical" href="/canonical"></head>
<body><p>Stub page body text for testing.</p><a href="/skip">skip</a></body></html>`,
	}, plugin.StatusFetched, nil
}

func (f *stubFetcher) Close() error { return nil }

func TestCrawler_InjectedFetcher(t *testing.T) {
	cfg := testConfig("https://docs.example.test/")
	cfg.MaxDepth = 1
	cfg.RespectRobots = false
	f := &stubFetcher{}
	c := New(cfg, WithFetcher(f), WithReadability(noReadability{}), WithLogger(quietLogger()))

	docs, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Stub page body text for testing.", docs[0].PageContent)
	assert.Equal(t, "Stub", docs[0].Metadata.Title)
	assert.Equal(t, "https://docs.example.test/canonical", docs[0].Metadata.Canonical)
	assert.Equal(t, "A stub page", docs[0].Metadata.Description)
	assert.Equal(t, "en", docs[0].Metadata.Language)
	assert.Len(t, f.calls, 2)
	assert.Equal(t, 1, c.Stats().PagesSkipped)
}

// chainFetcher serves an endless chain of pages, each linking to the next.
type chainFetcher struct {
	calls atomic.Int64
}

func (f *chainFetcher) Name() string { return "chain" }

func (f *chainFetcher) Fetch(ctx context.Context, req plugin.CrawlRequest) (*plugin.PageData, plugin.FetchStatus, error) {
	n := f.calls.Add(1)
	select {
	case <-time.After(2 * time.Millisecond):
	case <-ctx.Done():
		return nil, plugin.StatusFailed, ctx.Err()
	}
	return &plugin.PageData{
		URL:      req.URL,
		FinalURL: req.URL,
		HTML:     fmt.Sprintf(`<html><body><p>Chain page number %d of an endless site.</p><a href="/p%d">next</a></body></html>`, n, n),
	}, plugin.StatusFetched, nil
}

func (f *chainFetcher) Close() error { return nil }

func chainConfig() *CrawlConfig {
	cfg := testConfig("https://chain.example.test/")
	cfg.MaxPages = 0
	cfg.MaxDepth = 1 << 20
	cfg.RespectRobots = false
	return cfg
}

func TestCrawler_StopBeforeRun(t *testing.T) {
	f := &chainFetcher{}
	c := New(chainConfig(), WithFetcher(f), WithReadability(noReadability{}), WithLogger(quietLogger()))

	c.Stop()
	docs, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, f.calls.Load())
	assert.Equal(t, StateDone, c.State())
}

func TestCrawler_StopDuringRun(t *testing.T) {
	f := &chainFetcher{}
	c := New(chainConfig(), WithFetcher(f), WithReadability(noReadability{}), WithLogger(quietLogger()))

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()

	// The first Stop races Init; the second lands while workers are busy.
	go c.Stop()
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateDone, c.State())
}
