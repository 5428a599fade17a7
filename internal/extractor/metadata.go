package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta holds head metadata carried onto output documents.
type PageMeta struct {
	Description string
	Language    string
	// Canonical is the absolute <link rel="canonical"> target, if any.
	Canonical string
}

// Metadata reads description, language and canonical URL from doc. A
// relative canonical is resolved against baseURL.
func Metadata(doc *goquery.Document, baseURL string) PageMeta {
	var m PageMeta

	// Meta tags: description first, then the Open Graph variant.
	m.Description = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	if m.Description == "" {
		m.Description = strings.TrimSpace(doc.Find(`meta[property="og:description"]`).AttrOr("content", ""))
	}

	lang, exists := doc.Find("html").Attr("lang")
	if exists {
		m.Language = strings.TrimSpace(lang)
	}
	if m.Language == "" {
		m.Language = strings.TrimSpace(doc.Find(`meta[property="og:locale"]`).AttrOr("content", ""))
	}

	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		href = strings.TrimSpace(href)
		if base, err := url.Parse(baseURL); err == nil && href != "" {
			href = resolveURL(base, href)
		}
		m.Canonical = href
	}
	return m
}
