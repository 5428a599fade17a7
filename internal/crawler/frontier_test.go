package crawler

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/ramkansal/deepcrawl/internal/robots"
	"github.com/ramkansal/deepcrawl/internal/urlfilter"
	"github.com/ramkansal/deepcrawl/pkg/plugin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestFrontier(cfg FrontierConfig) *Frontier {
	if cfg.Scope.StartHost == "" {
		cfg.Scope = urlfilter.Scope{StartHost: "ex.com", SameDomainOnly: true}
	}
	cfg.Logger = quietLogger()
	return NewFrontier(cfg)
}

func TestFrontier_SeedBypassesFilters(t *testing.T) {
	f := newTestFrontier(FrontierConfig{
		Scope: urlfilter.Scope{
			StartHost:      "ex.com",
			SameDomainOnly: true,
			Exclude:        regexp.MustCompile(`.*`),
		},
	})

	seed, ok := f.Seed("https://EX.com/Start/#top")
	require.True(t, ok)
	assert.Equal(t, "https://ex.com/start", seed)

	req, ok := f.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, plugin.CrawlRequest{URL: seed, Depth: 0, SourceType: plugin.SourceSeed}, req)

	// The same URL as a discovered link is already seen.
	admitted, reason := f.Enqueue("https://ex.com/start/", 1, plugin.SourceCrawl)
	assert.False(t, admitted)
	assert.Equal(t, urlfilter.ReasonAlreadySeen, reason)
}

func TestFrontier_AdmissionReasons(t *testing.T) {
	rules, err := robots.Parse([]byte("User-agent: *\nDisallow: /private/\n"))
	require.NoError(t, err)

	f := newTestFrontier(FrontierConfig{RespectRobots: true, Robots: rules})

	tests := []struct {
		url    string
		reason string
	}{
		{"https://ex.com/docs", ""},
		{"https://www.ex.com/other", ""},
		{"https://ex.com/docs/", urlfilter.ReasonAlreadySeen},
		{"https://ex.com/assets/logo.png", urlfilter.ReasonAsset},
		{"https://other.com/docs", urlfilter.ReasonFiltered},
		{"https://ex.com/private/page", urlfilter.ReasonRobots},
		{"not a url", urlfilter.ReasonInvalidURL},
	}
	for _, tt := range tests {
		admitted, reason := f.Enqueue(tt.url, 1, plugin.SourceCrawl)
		assert.Equal(t, tt.reason == "", admitted, tt.url)
		assert.Equal(t, tt.reason, reason, tt.url)
	}
	assert.Equal(t, 2, f.Len())
	assert.False(t, f.Seen("https://ex.com/private/page"))
}

func TestFrontier_RobotsIgnoredWhenDisabled(t *testing.T) {
	rules, err := robots.Parse([]byte("User-agent: *\nDisallow: /\n"))
	require.NoError(t, err)

	f := newTestFrontier(FrontierConfig{RespectRobots: false, Robots: rules})
	admitted, _ := f.Enqueue("https://ex.com/page", 1, plugin.SourceCrawl)
	assert.True(t, admitted)
}

func TestFrontier_CapCheckedFirst(t *testing.T) {
	full := false
	f := newTestFrontier(FrontierConfig{Full: func() bool { return full }})

	full = true
	// Would otherwise be rejected as an asset.
	admitted, reason := f.Enqueue("https://ex.com/img/a.png", 1, plugin.SourceCrawl)
	assert.False(t, admitted)
	assert.Equal(t, urlfilter.ReasonMaxPages, reason)

	_, ok := f.Next(context.Background())
	assert.False(t, ok)
}

func TestFrontier_NextDrains(t *testing.T) {
	f := newTestFrontier(FrontierConfig{})
	f.Seed("https://ex.com/")

	req, ok := f.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, f.InFlight())

	// A second consumer waits while the first request is in flight, then
	// receives the link it enqueues.
	got := make(chan plugin.CrawlRequest, 1)
	go func() {
		r, ok := f.Next(context.Background())
		if ok {
			got <- r
		}
		close(got)
	}()

	time.Sleep(20 * time.Millisecond)
	f.Enqueue("https://ex.com/next", req.Depth+1, plugin.SourceCrawl)
	f.Done()

	r, ok := <-got
	require.True(t, ok)
	assert.Equal(t, "https://ex.com/next", r.URL)
	assert.Equal(t, 1, r.Depth)
	f.Done()

	_, ok = f.Next(context.Background())
	assert.False(t, ok, "empty queue with nothing in flight is drained")
}

func TestFrontier_HoldKeepsOpen(t *testing.T) {
	f := newTestFrontier(FrontierConfig{})
	f.Hold()

	done := make(chan bool)
	go func() {
		_, ok := f.Next(context.Background())
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("Next returned while a producer held the frontier")
	case <-time.After(30 * time.Millisecond):
	}

	f.Enqueue("https://ex.com/from-sitemap", 0, plugin.SourceSitemap)
	assert.True(t, <-done)
	f.Done()

	f.Release()
	_, ok := f.Next(context.Background())
	assert.False(t, ok)
}

func TestFrontier_RequestBudget(t *testing.T) {
	f := newTestFrontier(FrontierConfig{MaxRequests: 2})
	f.Seed("https://ex.com/")
	for i := 0; i < 5; i++ {
		f.Enqueue(fmt.Sprintf("https://ex.com/p%d", i), 1, plugin.SourceCrawl)
	}

	n := 0
	for {
		_, ok := f.Next(context.Background())
		if !ok {
			break
		}
		n++
		f.Done()
	}
	assert.Equal(t, 2, n)
}

func TestFrontier_ContextAndClose(t *testing.T) {
	f := newTestFrontier(FrontierConfig{})
	f.Hold()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool)
	go func() {
		_, ok := f.Next(ctx)
		done <- ok
	}()
	cancel()
	assert.False(t, <-done)

	f.Close()
	_, ok := f.Next(context.Background())
	assert.False(t, ok)
	admitted, _ := f.Enqueue("https://ex.com/late", 1, plugin.SourceCrawl)
	assert.False(t, admitted)
}

func TestFrontier_ConcurrentEnqueueAdmitsOnce(t *testing.T) {
	f := newTestFrontier(FrontierConfig{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Variants of the same five pages.
			u := fmt.Sprintf("https://ex.com//page%d/?b=2&a=1#frag%d", i%5, i)
			if ok, _ := f.Enqueue(u, 1, plugin.SourceCrawl); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, admitted)
	assert.Equal(t, 5, f.SeenCount())
}
