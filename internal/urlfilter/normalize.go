// Package urlfilter canonicalizes URLs and decides whether they may enter
// the crawl frontier.
package urlfilter

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// Normalize canonicalizes a URL for deduplication: the fragment is dropped,
// query parameters are sorted by name, repeated slashes in the path collapse,
// one trailing slash is removed (the root path stays "/"), and the result is
// lowercased.
//
// The second return value is false when rawURL could not be parsed as an
// absolute URL; in that case rawURL is returned unchanged and callers must
// not trust it for dedup or filtering.
func Normalize(rawURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return rawURL, false
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	if parsed.RawQuery != "" {
		parsed.RawQuery = sortQuery(parsed.RawQuery)
	}

	// Work on the escaped form so an encoded "%2F" stays distinct from "/".
	p := repeatedSlashes.ReplaceAllString(parsed.EscapedPath(), "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		p = "/"
	}
	unescaped, err := url.PathUnescape(p)
	if err != nil {
		return rawURL, false
	}
	parsed.Path = unescaped
	parsed.RawPath = p

	return strings.ToLower(parsed.String()), true
}

// sortQuery orders query pairs by case-folded name so the ordering survives
// the final lowercasing. Pairs sharing a name keep their relative order.
func sortQuery(raw string) string {
	pairs := strings.Split(raw, "&")
	kept := pairs[:0]
	for _, p := range pairs {
		if p != "" {
			kept = append(kept, p)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return queryKey(kept[i]) < queryKey(kept[j])
	})
	return strings.Join(kept, "&")
}

func queryKey(pair string) string {
	key, _, _ := strings.Cut(pair, "=")
	if unescaped, err := url.QueryUnescape(key); err == nil {
		key = unescaped
	}
	return strings.ToLower(key)
}
