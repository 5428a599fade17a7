package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// DefaultStripSelectors removes page chrome that is never article content:
// scripts, navigation, headers/footers, forms, cookie banners and sidebars.
func DefaultStripSelectors() []string {
	return []string{
		"script",
		"style",
		"noscript",
		"nav",
		"header",
		"footer",
		"aside",
		"form",
		"iframe",
		"svg",
		`[role="navigation"]`,
		`[role="banner"]`,
		`[role="contentinfo"]`,
		"#cookie",
		".cookie",
		".cookies",
		".cookie-banner",
		".consent",
		".gdpr",
		`[id*="cookie"]`,
		`[class*="cookie"]`,
		`[id*="consent"]`,
		`[class*="consent"]`,
		".menu",
		".navbar",
		".nav",
		".sidebar",
		".breadcrumbs",
		".breadcrumb",
		`[class*="sidebar"]`,
		`[id*="sidebar"]`,
		`[class*="nav"]`,
		`[id*="nav"]`,
	}
}

// MergeStripSelectors appends the comma-separated selectors in extra to the
// defaults, dropping blanks and duplicates while keeping first-seen order.
func MergeStripSelectors(extra string) []string {
	merged := DefaultStripSelectors()
	seen := make(map[string]bool, len(merged))
	for _, s := range merged {
		seen[s] = true
	}
	for _, s := range strings.Split(extra, ",") {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		merged = append(merged, s)
	}
	return merged
}

// Strip removes every element matching selectors from sel. The selectors
// are tried as one group first; if the group does not compile, each one is
// applied alone and invalid selectors are skipped. It returns the number of
// removed elements.
func Strip(sel *goquery.Selection, selectors []string) int {
	if sel == nil || len(selectors) == 0 {
		return 0
	}
	if m, err := cascadia.Compile(strings.Join(selectors, ",")); err == nil {
		found := sel.FindMatcher(m)
		n := found.Length()
		found.Remove()
		return n
	}

	removed := 0
	for _, s := range selectors {
		m, err := cascadia.Compile(s)
		if err != nil {
			continue
		}
		found := sel.FindMatcher(m)
		removed += found.Length()
		found.Remove()
	}
	return removed
}
