package crawler

import (
	"context"
	"sync"

	"github.com/ramkansal/deepcrawl/internal/robots"
	"github.com/ramkansal/deepcrawl/internal/urlfilter"
	"github.com/ramkansal/deepcrawl/pkg/plugin"
	"github.com/sirupsen/logrus"
)

// robotsAgent is the user-agent token robots rules are evaluated for.
const robotsAgent = "*"

// FrontierConfig configures a Frontier.
type FrontierConfig struct {
	Scope urlfilter.Scope
	// Robots may be nil, which allows everything.
	Robots        *robots.Rules
	RespectRobots bool
	// Full reports whether the page cap has been reached.
	Full func() bool
	// MaxRequests caps how many requests Next hands out; 0 is unlimited.
	MaxRequests int
	RunID       string
	Logger      logrus.FieldLogger
}

// Frontier is the run-scoped request queue. It owns the seen set and the
// admission policy; consumers pull work with Next and report it with Done.
type Frontier struct {
	cfg  FrontierConfig
	log  logrus.FieldLogger
	mu   sync.Mutex
	cond *sync.Cond

	queue      []plugin.CrawlRequest
	seen       map[string]struct{}
	inFlight   int
	producers  int
	dispatched int
	closed     bool
}

// NewFrontier creates an empty frontier.
func NewFrontier(cfg FrontierConfig) *Frontier {
	if cfg.Full == nil {
		cfg.Full = func() bool { return false }
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	f := &Frontier{
		cfg:  cfg,
		log:  log.WithField("run_id", cfg.RunID),
		seen: make(map[string]struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// SetRobots installs robots rules used by later admissions.
func (f *Frontier) SetRobots(r *robots.Rules) {
	f.mu.Lock()
	f.cfg.Robots = r
	f.mu.Unlock()
}

// Seed admits the start URL without consulting the filters. It returns the
// normalized URL and false only when the URL cannot be normalized.
func (f *Frontier) Seed(rawURL string) (string, bool) {
	normalized, ok := urlfilter.Normalize(rawURL)
	if !ok {
		return rawURL, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[normalized]; dup {
		return normalized, true
	}
	f.seen[normalized] = struct{}{}
	f.push(plugin.CrawlRequest{URL: normalized, Depth: 0, SourceType: plugin.SourceSeed})
	return normalized, true
}

// Enqueue runs the admission checks for rawURL and queues it when every
// check passes. The first failing check is returned as a reason code.
func (f *Frontier) Enqueue(rawURL string, depth int, source plugin.SourceType) (bool, string) {
	reason := f.admit(rawURL, depth, source)
	if reason != "" {
		f.log.WithFields(logrus.Fields{
			"url":    rawURL,
			"depth":  depth,
			"source": source,
			"reason": reason,
		}).Debug("url not admitted")
		return false, reason
	}
	return true, ""
}

func (f *Frontier) admit(rawURL string, depth int, source plugin.SourceType) string {
	if f.cfg.Full() {
		return urlfilter.ReasonMaxPages
	}
	normalized, ok := urlfilter.Normalize(rawURL)
	if !ok {
		return urlfilter.ReasonInvalidURL
	}
	if urlfilter.IsAsset(normalized) {
		return urlfilter.ReasonAsset
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return urlfilter.ReasonMaxPages
	}
	if _, dup := f.seen[normalized]; dup {
		return urlfilter.ReasonAlreadySeen
	}
	if !f.cfg.Scope.Allowed(normalized) {
		return urlfilter.ReasonFiltered
	}
	if f.cfg.RespectRobots && !f.cfg.Robots.Allowed(normalized, robotsAgent) {
		return urlfilter.ReasonRobots
	}

	f.seen[normalized] = struct{}{}
	f.push(plugin.CrawlRequest{URL: normalized, Depth: depth, SourceType: source})
	return ""
}

// push appends a request; f.mu must be held.
func (f *Frontier) push(req plugin.CrawlRequest) {
	f.queue = append(f.queue, req)
	f.cond.Signal()
}

// Next blocks until a request is available and marks it in flight. It
// returns false once the frontier is drained (no queued work, nothing in
// flight, no producer holding it open), the request budget or page cap is
// spent, the frontier is closed, or ctx is done.
func (f *Frontier) Next(ctx context.Context) (plugin.CrawlRequest, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed || ctx.Err() != nil || f.budgetSpent() || f.cfg.Full() {
			return plugin.CrawlRequest{}, false
		}
		if len(f.queue) > 0 {
			req := f.queue[0]
			f.queue = f.queue[1:]
			f.inFlight++
			f.dispatched++
			return req, true
		}
		if f.inFlight == 0 && f.producers == 0 {
			// Drained: wake every other waiter so they can exit too.
			f.cond.Broadcast()
			return plugin.CrawlRequest{}, false
		}
		f.cond.Wait()
	}
}

func (f *Frontier) budgetSpent() bool {
	return f.cfg.MaxRequests > 0 && f.dispatched >= f.cfg.MaxRequests
}

// Done marks one request returned by Next as finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	f.inFlight--
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Hold keeps the frontier open while an external producer (sitemap
// discovery) may still add work. Every Hold needs a matching Release.
func (f *Frontier) Hold() {
	f.mu.Lock()
	f.producers++
	f.mu.Unlock()
}

// Release ends a Hold.
func (f *Frontier) Release() {
	f.mu.Lock()
	f.producers--
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Close stops the frontier: pending Next calls return false and further
// admissions are refused.
func (f *Frontier) Close() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Len returns the number of queued requests.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// InFlight returns the number of requests handed out and not yet Done.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// SeenCount returns how many URLs have been admitted, the seed included.
func (f *Frontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Seen reports whether rawURL has been admitted.
func (f *Frontier) Seen(rawURL string) bool {
	normalized, ok := urlfilter.Normalize(rawURL)
	if !ok {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, found := f.seen[normalized]
	return found
}
