package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ramkansal/deepcrawl/pkg/plugin"
)

// TextWriter writes documents as a plain-text report, mirroring the
// terminal output (without ANSI color codes).
type TextWriter struct {
	w     io.Writer
	lines []string
	mu    sync.Mutex
}

// NewTextWriter creates a new plain-text output writer.
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

func (w *TextWriter) Name() string { return "text" }

func (w *TextWriter) WriteDocuments(docs []plugin.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, d := range docs {
		m := d.Metadata
		header := fmt.Sprintf("  [d%d %s] %s (%d/%d blocks)", m.Depth, m.SourceType, m.URL, m.BlockCount, m.OriginalBlockCount)
		if m.Title != "" {
			header += " " + m.Title
		}
		w.lines = append(w.lines, header)

		for _, line := range strings.Split(d.PageContent, "\n") {
			if line == "" {
				w.lines = append(w.lines, "      |")
				continue
			}
			w.lines = append(w.lines, "      | "+line)
		}
		w.lines = append(w.lines, "")
	}
	return nil
}

func (w *TextWriter) Finalize(summary *plugin.CrawlSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder

	b.WriteString("\n  DEEPCRAWL\n")
	b.WriteString("  " + strings.Repeat("-", 58) + "\n\n")

	if summary != nil {
		b.WriteString(fmt.Sprintf("  Target: %s\n", summary.TargetURL))
		b.WriteString(fmt.Sprintf("  Run:    %s\n", summary.RunID))
		b.WriteString(fmt.Sprintf("  Started: %s\n\n", summary.StartedAt.Format(time.RFC1123)))
	}

	for _, line := range w.lines {
		b.WriteString(line + "\n")
	}

	if summary != nil {
		s := summary.Stats
		b.WriteString("  " + strings.Repeat("-", 50) + "\n")
		b.WriteString("  Crawl complete\n")
		b.WriteString(fmt.Sprintf("    Pages:     %d fetched, %d recorded, %d skipped, %d errors\n",
			s.PagesFetched, s.PagesRecorded, s.PagesSkipped, s.PagesErrored))
		b.WriteString(fmt.Sprintf("    Documents: %d in %s\n", summary.TotalDocuments, fmtDur(summary.Duration)))
		b.WriteString(fmt.Sprintf("    Blocks:    %d unique, %d common removed\n", s.UniqueBlocks, summary.CommonBlocks))
		if s.SitemapURLs > 0 {
			b.WriteString(fmt.Sprintf("    Sitemaps:  %d urls discovered\n", s.SitemapURLs))
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w.w, b.String())
	return err
}
