// Package sitemap discovers page URLs from well-known sitemap locations,
// expanding sitemap indexes recursively.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

// UserAgent is sent with every sitemap request.
const UserAgent = "Mozilla/5.0 (compatible; DeepWebCrawler/1.0)"

const (
	// MaxDepth bounds sitemap index recursion.
	MaxDepth = 5
	// Fanout bounds concurrent fetches per discovery level.
	Fanout = 4
	// maxBodySize caps a single sitemap document.
	maxBodySize = 50 * 1024 * 1024
)

// candidatePaths are tried on the start URL's origin.
var candidatePaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/sitemap.php",
	"/sitemap.txt",
	"/sitemap/",
	"/sitemaps/",
}

var (
	locRe   = regexp.MustCompile(`(?i)<loc>\s*([^<\s]+)\s*</loc>`)
	indexRe = regexp.MustCompile(`(?i)<sitemapindex[\s>]`)
)

// Candidates returns the well-known sitemap URLs for the origin of startURL.
func Candidates(startURL string) ([]string, error) {
	u, err := url.Parse(startURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("sitemap: %q is not an absolute URL", startURL)
	}
	out := make([]string, 0, len(candidatePaths))
	for _, p := range candidatePaths {
		out = append(out, u.Scheme+"://"+u.Host+p)
	}
	return out, nil
}

// Document is the parsed form of one sitemap file.
type Document struct {
	// Index is true for <sitemapindex> documents; Locs are then sitemaps.
	Index bool
	Locs  []string
}

// Parse extracts <loc> entries from a sitemap body. XML is parsed with
// xmlquery; bodies that are not well-formed fall back to a regex scan.
func Parse(body []byte) Document {
	if doc, err := xmlquery.Parse(bytes.NewReader(body)); err == nil {
		var d Document
		walk(doc, &d)
		if len(d.Locs) > 0 {
			return d
		}
	}

	var d Document
	d.Index = indexRe.Match(body)
	for _, m := range locRe.FindAllSubmatch(body, -1) {
		d.Locs = append(d.Locs, string(m[1]))
	}
	return d
}

func walk(n *xmlquery.Node, d *Document) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		switch strings.ToLower(c.Data) {
		case "sitemapindex":
			d.Index = true
		case "loc":
			if loc := strings.TrimSpace(c.InnerText()); loc != "" {
				d.Locs = append(d.Locs, loc)
			}
			continue
		}
		walk(c, d)
	}
}

// Discoverer fetches and expands sitemaps.
type Discoverer struct {
	client  *http.Client
	timeout time.Duration
	log     logrus.FieldLogger

	mu      sync.Mutex
	visited map[string]bool
}

// NewDiscoverer creates a Discoverer. timeout applies to each fetch.
func NewDiscoverer(client *http.Client, timeout time.Duration, log logrus.FieldLogger) *Discoverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Discoverer{
		client:  client,
		timeout: timeout,
		log:     log,
		visited: make(map[string]bool),
	}
}

// Discover tries every candidate sitemap for startURL and streams each
// discovered page URL to emit. emit returns false to stop early (page cap
// reached). Failed candidates contribute nothing; Discover itself only
// fails when startURL has no usable origin.
func (d *Discoverer) Discover(ctx context.Context, startURL string, emit func(pageURL string) bool) error {
	candidates, err := Candidates(startURL)
	if err != nil {
		return err
	}

	var emitMu sync.Mutex
	stopped := false
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Fanout)
	for _, sm := range candidates {
		g.Go(func() error {
			urls := d.Expand(gctx, sm)
			emitMu.Lock()
			defer emitMu.Unlock()
			for _, u := range urls {
				if stopped {
					return nil
				}
				if !emit(u) {
					stopped = true
					return nil
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Expand fetches one sitemap and returns its page URLs, recursing into
// nested sitemaps of an index. A sitemap already expanded during this
// Discoverer's lifetime yields nothing.
func (d *Discoverer) Expand(ctx context.Context, sitemapURL string) []string {
	return d.expand(ctx, sitemapURL, 0)
}

func (d *Discoverer) expand(ctx context.Context, sitemapURL string, depth int) []string {
	if depth > MaxDepth || !d.markVisited(sitemapURL) {
		return nil
	}
	entry := d.log.WithFields(logrus.Fields{"sitemap": sitemapURL, "depth": depth})

	body, err := d.fetch(ctx, sitemapURL)
	if err != nil {
		entry.WithError(err).Debug("sitemap not available")
		return nil
	}

	doc := Parse(body)
	if !doc.Index {
		entry.WithField("urls", len(doc.Locs)).Debug("sitemap parsed")
		return doc.Locs
	}

	entry.WithField("nested", len(doc.Locs)).Debug("sitemap index parsed")
	results := make([][]string, len(doc.Locs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Fanout)
	for i, nested := range doc.Locs {
		g.Go(func() error {
			results[i] = d.expand(gctx, nested, depth+1)
			return nil
		})
	}
	_ = g.Wait()

	var out []string
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (d *Discoverer) markVisited(u string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.visited[u] {
		return false
	}
	d.visited[u] = true
	return true
}

func (d *Discoverer) fetch(ctx context.Context, sitemapURL string) ([]byte, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	r, err := charset.NewReader(io.LimitReader(resp.Body, maxBodySize), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
