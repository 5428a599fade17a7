package crawler

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/ramkansal/deepcrawl/internal/sitemap"
)

var (
	// ErrInvalidStartURL is returned when the start URL cannot be crawled.
	ErrInvalidStartURL = errors.New("invalid start URL")
	// ErrInvalidConfig is returned for out-of-range or unknown options.
	ErrInvalidConfig = errors.New("invalid crawl config")
)

// MaxConcurrency is the hard ceiling on parallel page fetches.
const MaxConcurrency = 10

// DefaultOrgID tags documents when the caller supplies no org.
const DefaultOrgID = "unknown-org"

// DefaultCommonBlockThreshold is the fraction of pages a block must appear
// on to count as common.
const DefaultCommonBlockThreshold = 0.5

// CrawlConfig holds all configuration for a crawl session. It is read by
// every component and must not change once Run has started.
type CrawlConfig struct {
	// Target
	StartURL string
	Mode     CrawlMode

	// Crawl control
	RenderJS       bool
	MaxPages       int // 0 means unlimited
	MaxDepth       int // ignored in sitemap mode
	SameDomainOnly bool
	IncludeRegex   string
	ExcludeRegex   string
	RespectRobots  bool

	// Extraction
	StripSelectors       string // comma-separated, merged with the defaults
	DedupeCommonBlocks   bool
	CommonBlockThreshold float64
	MinBlockChars        int

	// Politeness
	Concurrency int
	Delay       time.Duration
	Timeout     time.Duration

	// Request options
	UserAgent       string
	CustomHeaders   []string
	MaxResponseSize int
	ChromeBin       string

	// Tagging
	OrgID string
	RunID string
}

// CrawlMode selects which frontiers feed the crawl.
type CrawlMode string

const (
	ModeLinks   CrawlMode = "links"
	ModeSitemap CrawlMode = "sitemap"
	ModeBoth    CrawlMode = "both"
)

// ParseMode converts a flag value into a CrawlMode.
func ParseMode(s string) (CrawlMode, error) {
	switch m := CrawlMode(s); m {
	case ModeLinks, ModeSitemap, ModeBoth:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown crawl mode %q", ErrInvalidConfig, s)
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		Mode:                 ModeBoth,
		MaxPages:             50,
		MaxDepth:             2,
		SameDomainOnly:       true,
		RespectRobots:        true,
		DedupeCommonBlocks:   true,
		CommonBlockThreshold: DefaultCommonBlockThreshold,
		MinBlockChars:        40,
		Concurrency:          4,
		Timeout:              20 * time.Second,
		UserAgent:            sitemap.UserAgent,
		MaxResponseSize:      10 * 1024 * 1024,
		OrgID:                DefaultOrgID,
	}
}

// Validate checks the configuration and clamps soft limits into range:
// concurrency to [1, MaxConcurrency], the threshold to [0, 1] and
// MinBlockChars to at least 1. It also assigns a RunID when none is set.
func (c *CrawlConfig) Validate() error {
	u, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStartURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidStartURL, c.StartURL)
	}

	if c.Mode == "" {
		c.Mode = ModeBoth
	}
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: max pages must be >= 0", ErrInvalidConfig)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max depth must be >= 0", ErrInvalidConfig)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: delay must be >= 0", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if math.IsNaN(c.CommonBlockThreshold) {
		return fmt.Errorf("%w: common block threshold is not a number", ErrInvalidConfig)
	}

	c.Concurrency = clampInt(c.Concurrency, 1, MaxConcurrency)
	if c.MinBlockChars < 1 {
		c.MinBlockChars = 1
	}
	c.CommonBlockThreshold = clampThreshold(c.CommonBlockThreshold)

	if c.OrgID == "" {
		c.OrgID = DefaultOrgID
	}
	if c.UserAgent == "" {
		c.UserAgent = sitemap.UserAgent
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	return nil
}

// FollowsLinks reports whether discovered links are enqueued.
func (c *CrawlConfig) FollowsLinks() bool { return c.Mode != ModeSitemap }

// UsesSitemaps reports whether sitemap discovery runs.
func (c *CrawlConfig) UsesSitemaps() bool { return c.Mode != ModeLinks }

// MaxRequests is the dispatch budget for one run; 0 means unlimited.
func (c *CrawlConfig) MaxRequests() int { return c.MaxPages }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampThreshold bounds v to [0, 1]. NaN maps to the default.
func clampThreshold(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultCommonBlockThreshold
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
