package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Links returns the absolute http(s) links found in doc, resolved against
// baseURL (or a <base href> when present). Duplicates are removed and
// document order is kept. The result is not normalized or filtered.
func Links(doc *goquery.Document, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b := resolveURL(base, strings.TrimSpace(href)); b != "" {
			base, _ = url.Parse(b)
		}
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")

		// Skip fragments, javascript:, mailto:, tel:
		trimmed := strings.TrimSpace(href)
		lower := strings.ToLower(trimmed)
		if trimmed == "" ||
			strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") {
			return
		}

		resolved := resolveURL(base, trimmed)
		if resolved == "" || seen[resolved] {
			return
		}
		u, err := url.Parse(resolved)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	})

	return links
}

// resolveURL resolves a potentially relative URL against a base URL.
func resolveURL(base *url.URL, raw string) string {
	if base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
