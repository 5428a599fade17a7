package urlfilter

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// assetDirs are path fragments that almost always hold static files.
var assetDirs = []string{
	"/img/", "/images/", "/assets/", "/static/",
	"/media/", "/uploads/", "/cdn/", "/dist/",
}

// assetExtensions are extensions of images, stylesheets, scripts, documents,
// archives, media and fonts.
var assetExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"webp": true, "svg": true, "ico": true, "bmp": true, "tiff": true,
	"css": true, "js": true, "map": true,
	"pdf": true,
	"zip": true, "rar": true, "7z": true, "tar": true, "gz": true, "bz2": true,
	"mp4": true, "avi": true, "mov": true, "wmv": true, "flv": true,
	"mp3": true, "wav": true, "ogg": true, "wma": true,
	"woff": true, "woff2": true, "ttf": true, "eot": true, "otf": true,
}

// pageExtensions are extensions that denote crawlable documents.
var pageExtensions = map[string]bool{
	"html": true, "htm": true, "php": true, "asp": true, "aspx": true, "jsp": true,
	"xml": true, "rss": true, "atom": true,
	"txt": true, "md": true, "rst": true,
	"cgi": true, "pl": true, "py": true, "rb": true,
}

var (
	hasExtension  = regexp.MustCompile(`\.\w+$`)
	assetSuffixRe = regexp.MustCompile(`(?i)\.(?:jpe?g|png|gif|webp|svg|ico|css|js|map|pdf|zip|rar|7z|tar|gz|mp[34]|wav|woff2?|ttf|eot)$`)
)

// IsAsset reports whether rawURL points at a static asset rather than a page.
func IsAsset(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		// Unparsable: only look at the suffix before any query or fragment.
		bare, _, _ := strings.Cut(rawURL, "?")
		bare, _, _ = strings.Cut(bare, "#")
		return assetSuffixRe.MatchString(bare)
	}

	p := strings.ToLower(parsed.Path)
	for _, dir := range assetDirs {
		if strings.Contains(p, dir) {
			return true
		}
	}

	last := path.Base(p)
	if !hasExtension.MatchString(last) {
		return false
	}
	ext := strings.TrimPrefix(path.Ext(last), ".")
	if pageExtensions[ext] {
		return false
	}
	return assetExtensions[ext]
}
