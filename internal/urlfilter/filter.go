package urlfilter

import (
	"net/url"
	"regexp"
	"strings"
)

// Reason codes for rejected admissions. They feed diagnostics only.
const (
	ReasonMaxPages    = "max_pages_reached"
	ReasonInvalidURL  = "invalid_url"
	ReasonAsset       = "asset_url"
	ReasonAlreadySeen = "already_seen"
	ReasonFiltered    = "filtered"
	ReasonRobots      = "robots_txt"
)

// Scope holds the domain and pattern rules for a crawl.
type Scope struct {
	StartHost      string
	SameDomainOnly bool
	Include        *regexp.Regexp
	Exclude        *regexp.Regexp
}

// CompileRegex compiles a user-supplied pattern. Blank or invalid patterns
// yield nil, which means "not configured".
func CompileRegex(pattern string) (*regexp.Regexp, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

// Allowed reports whether rawURL passes the domain and include/exclude
// rules. Exclude wins over include, and unparsable URLs are rejected.
func (s Scope) Allowed(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	if s.SameDomainOnly && bareHost(parsed.Host) != bareHost(s.StartHost) {
		return false
	}
	if s.Exclude != nil && s.Exclude.MatchString(rawURL) {
		return false
	}
	if s.Include != nil && !s.Include.MatchString(rawURL) {
		return false
	}
	return true
}

func bareHost(h string) string {
	h = strings.ToLower(h)
	return strings.TrimPrefix(h, "www.")
}
