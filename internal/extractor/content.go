package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
)

// Article is what a readability pass returns. Either field may be empty.
type Article struct {
	Title string
	Text  string
}

// Readability pulls the main article out of a parsed document.
type Readability interface {
	Extract(doc *goquery.Document, pageURL string) (Article, error)
}

// Trafilatura implements Readability with go-trafilatura.
type Trafilatura struct{}

func (Trafilatura) Extract(doc *goquery.Document, pageURL string) (Article, error) {
	if len(doc.Nodes) == 0 {
		return Article{}, nil
	}
	opts := trafilatura.Options{}
	if u, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = u
	}

	// trafilatura rewrites the tree it is given, so hand it a private copy.
	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Nodes[0]); err != nil {
		return Article{}, err
	}
	root, err := html.Parse(&buf)
	if err != nil {
		return Article{}, err
	}

	res, err := trafilatura.ExtractDocument(root, opts)
	if err != nil || res == nil {
		return Article{}, err
	}
	text := paragraphText(res.ContentNode)
	if text == "" {
		text = res.ContentText
	}
	return Article{Title: res.Metadata.Title, Text: strings.TrimSpace(text)}, nil
}

// paragraphText joins the text of each top-level element under n with a
// blank line so that paragraphs survive as separate blocks.
func paragraphText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var parts []string
	goquery.NewDocumentFromNode(n).Children().Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

var (
	scriptBlock   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleBlock    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
	lineBreakRun  = regexp.MustCompile(`[ \t\r\f\v]*\n\s*`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
	multiSpaces   = regexp.MustCompile(`[ \t\r\f\v]{2,}`)
	anySpaceRun   = regexp.MustCompile(`\s{2,}`)
)

// Content is the outcome of text extraction.
type Content struct {
	Title string
	Text  string
	// Method records which tier produced Text: "readability", "body" or "raw".
	Method string
}

// ContentExtractor turns HTML into readable plain text. It never fails:
// readability is tried first, then the body text, then a regex strip of the
// raw markup.
type ContentExtractor struct {
	readability Readability
	strip       []string
}

// NewContentExtractor builds an extractor. A nil readability uses Trafilatura.
func NewContentExtractor(r Readability, stripSelectors []string) *ContentExtractor {
	if r == nil {
		r = Trafilatura{}
	}
	return &ContentExtractor{readability: r, strip: stripSelectors}
}

// Extract converts doc, parsed from rawHTML fetched at pageURL, into text.
// doc is stripped in place, so read links and metadata from it first. A nil
// doc means rawHTML did not parse and only the raw strip applies.
func (e *ContentExtractor) Extract(doc *goquery.Document, rawHTML, pageURL string) (c Content) {
	defer func() {
		// DOM-level failures (including panics inside third-party parsers)
		// fall through to the raw strip.
		if r := recover(); r != nil {
			c = Content{Text: StripMarkup(rawHTML), Method: "raw"}
		}
	}()

	if doc == nil {
		return Content{Text: StripMarkup(rawHTML), Method: "raw"}
	}
	Strip(doc.Selection, e.strip)
	docTitle := strings.TrimSpace(doc.Find("title").First().Text())

	if article, err := e.readability.Extract(doc, pageURL); err == nil && strings.TrimSpace(article.Text) != "" {
		title := strings.TrimSpace(article.Title)
		if title == "" {
			title = docTitle
		}
		return Content{Title: title, Text: strings.TrimSpace(article.Text), Method: "readability"}
	}

	return Content{Title: docTitle, Text: BodyText(doc), Method: "body"}
}

// BodyText returns the whitespace-collapsed text of <body>, keeping at most
// one blank line between paragraphs.
func BodyText(doc *goquery.Document) string {
	body := doc.Find("body")
	var raw string
	if body.Length() > 0 {
		raw = blockText(body.Nodes[0])
	}
	return CollapseWhitespace(raw)
}

// CollapseWhitespace trims each line break run to a single newline, caps
// newline runs at two and squeezes horizontal whitespace.
func CollapseWhitespace(s string) string {
	s = lineBreakRun.ReplaceAllStringFunc(s, func(m string) string {
		if strings.Count(m, "\n") >= 2 {
			return "\n\n"
		}
		return "\n"
	})
	s = multiNewlines.ReplaceAllString(s, "\n\n")
	s = multiSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StripMarkup is the last-resort extraction: drop script and style bodies,
// then every tag, and collapse whitespace.
func StripMarkup(rawHTML string) string {
	s := scriptBlock.ReplaceAllString(rawHTML, "")
	s = styleBlock.ReplaceAllString(s, "")
	s = anyTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = anySpaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "dd": true, "div": true,
	"dl": true, "dt": true, "figcaption": true, "figure": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "hr": true, "li": true, "main": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true, "tr": true, "ul": true,
}

// blockText renders the text under n, separating block-level elements by a
// blank line the way a browser lays them out.
func blockText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "br" {
				b.WriteString("\n")
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			b.WriteString("\n\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteString("\n\n")
		}
	}
	walk(n)
	return b.String()
}
