package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ramkansal/deepcrawl/internal/urlfilter"
	"github.com/ramkansal/deepcrawl/pkg/plugin"
	"github.com/sirupsen/logrus"
)

// ErrBrowserUnavailable is returned when no browser could be launched.
var ErrBrowserUnavailable = errors.New("fetcher: headless browser unavailable")

// stripScript removes every element matching any of the given selectors
// from the live page. Invalid selectors are skipped.
const stripScript = `(sels) => {
	for (const s of sels) {
		try { document.querySelectorAll(s).forEach((e) => e.remove()); } catch (e) {}
	}
}`

// BrowserFetcher uses Rod (headless Chrome) for JS-rendered page fetching.
type BrowserFetcher struct {
	browser    *rod.Browser
	timeout    time.Duration
	navTimeout time.Duration
	userAgent  string
	strip      []string
	log        logrus.FieldLogger
}

// BrowserFetcherConfig holds configuration for the browser fetcher.
type BrowserFetcherConfig struct {
	// Timeout bounds the whole page; navigation gets half of it.
	Timeout        time.Duration
	UserAgent      string
	StripSelectors []string
	// Bin is an optional path to a Chrome binary.
	Bin    string
	Logger logrus.FieldLogger
}

// NewBrowserFetcher creates a new Rod-based browser fetcher.
func NewBrowserFetcher(cfg BrowserFetcherConfig) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(true).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navTimeout := timeout / 2
	if navTimeout < time.Second {
		navTimeout = time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &BrowserFetcher{
		browser:    browser,
		timeout:    timeout,
		navTimeout: navTimeout,
		userAgent:  cfg.UserAgent,
		strip:      cfg.StripSelectors,
		log:        log,
	}, nil
}

func (f *BrowserFetcher) Name() string { return "browser" }

// Fetch renders req.URL in a fresh tab. Navigation errors and timeouts are
// tolerated: whatever the page holds at that point is used.
func (f *BrowserFetcher) Fetch(ctx context.Context, req plugin.CrawlRequest) (*plugin.PageData, plugin.FetchStatus, error) {
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
		ContentType: "text/html",
	}
	fail := func(err error) (*plugin.PageData, plugin.FetchStatus, error) {
		page.Error = err.Error()
		page.FetchDuration = time.Since(start)
		return page, plugin.StatusFailed, err
	}

	// The tab is opened outside ctx so that Close still reaches Chrome after
	// ctx has expired.
	tab, err := f.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fail(err)
	}
	defer f.closeTab(tab, req.URL)

	rodPage := tab.Context(ctx).Timeout(f.timeout)

	if f.userAgent != "" {
		_ = rodPage.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: f.userAgent,
		})
	}

	navPage := rodPage.Timeout(f.navTimeout)
	wait := navPage.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := navPage.Navigate(req.URL); err != nil {
		f.log.WithFields(logrus.Fields{"url": req.URL, "error": err}).Debug("navigation error, continuing")
	} else {
		wait()
	}

	if ctx.Err() != nil {
		return fail(ctx.Err())
	}

	if len(f.strip) > 0 {
		if _, err := rodPage.Eval(stripScript, f.strip); err != nil {
			f.log.WithFields(logrus.Fields{"url": req.URL, "error": err}).Debug("strip selectors failed")
		}
	}

	if info, err := rodPage.Info(); err == nil {
		page.Title = info.Title
		if info.URL != "" && info.URL != "about:blank" {
			page.FinalURL = info.URL
		}
	}

	html, err := rodPage.HTML()
	if err != nil {
		return fail(err)
	}
	page.HTML = html
	page.StatusCode = 200 // best effort; rod does not surface the navigation status
	page.FetchDuration = time.Since(start)
	return page, plugin.StatusFetched, nil
}

func (f *BrowserFetcher) closeTab(tab *rod.Page, pageURL string) {
	if err := tab.Close(); err != nil {
		f.log.WithFields(logrus.Fields{"url": pageURL, "error": err}).Warn("closing browser tab failed")
	}
}

func (f *BrowserFetcher) Close() error {
	if f.browser != nil {
		return f.browser.Close()
	}
	return nil
}
