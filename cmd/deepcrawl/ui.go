package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ramkansal/deepcrawl/internal/crawler"
	"github.com/ramkansal/deepcrawl/pkg/plugin"
)

// printer renders crawl progress for humans. It writes to stderr so that
// documents on stdout stay machine-readable.
type printer struct {
	w       io.Writer
	color   bool
	verbose bool
}

func newPrinter(w io.Writer, color, verbose bool) *printer {
	return &printer{w: w, color: color, verbose: verbose}
}

func (p *printer) start(cfg *crawler.CrawlConfig) {
	fetcher := "http"
	if cfg.RenderJS {
		fetcher = "browser"
	}
	fmt.Fprintf(p.w, "\n  %s  %s\n", p.clr("cyan", "DEEPCRAWL"), p.clr("dim", "v"+version))
	fmt.Fprintf(p.w, "  %s\n", p.clr("dim", strings.Repeat("─", 58)))
	fmt.Fprintf(p.w, "  %s %s\n", p.clr("cyan", "Target:"), cfg.StartURL)
	fmt.Fprintf(p.w, "  %s %s  %s %d  %s %d  %s %d  %s %s\n\n",
		p.clr("dim", "Mode:"), cfg.Mode,
		p.clr("dim", "Depth:"), cfg.MaxDepth,
		p.clr("dim", "Pages:"), cfg.MaxPages,
		p.clr("dim", "Workers:"), cfg.Concurrency,
		p.clr("dim", "Fetcher:"), fetcher,
	)
}

func (p *printer) event(event plugin.CrawlEvent) {
	switch event.Type {
	case plugin.EventPageDone:
		if event.Page == nil {
			return
		}
		pg := event.Page
		status := fmt.Sprintf("%d", pg.StatusCode)
		switch {
		case pg.StatusCode >= 200 && pg.StatusCode < 300:
			status = p.clr("green", status)
		case pg.StatusCode >= 300 && pg.StatusCode < 400:
			status = p.clr("yellow", status)
		case pg.StatusCode >= 400:
			status = p.clr("red", status)
		}
		fmt.Fprintf(p.w, "  %s [%s] %s %s\n",
			p.clr("green", "●"),
			status,
			event.URL,
			p.clr("dim", "("+fmtDur(pg.FetchDuration)+")"),
		)
		if p.verbose && pg.Title != "" {
			fmt.Fprintf(p.w, "      %s %s\n", p.clr("dim", "├─ title:"), pg.Title)
		}

	case plugin.EventPageSkipped:
		if p.verbose {
			fmt.Fprintf(p.w, "  %s %s %s\n", p.clr("dim", "○"), event.URL, p.clr("dim", "(skipped)"))
		}

	case plugin.EventPageError:
		fmt.Fprintf(p.w, "  %s %s\n", p.clr("red", "✗"), event.Message)

	case plugin.EventSitemapDone:
		fmt.Fprintf(p.w, "  %s %s\n", p.clr("cyan", "◆"), event.Message)

	case plugin.EventPageQueued, plugin.EventPageStarted, plugin.EventCrawlStarted:
		// too chatty for the terminal

	case plugin.EventCrawlFinished:
		if event.Stats == nil {
			return
		}
		s := event.Stats
		fmt.Fprintln(p.w)
		fmt.Fprintf(p.w, "  %s\n", strings.Repeat("─", 50))
		fmt.Fprintf(p.w, "  %s Crawl complete\n", p.clr("green", "✓"))
		fmt.Fprintf(p.w, "    Pages:  %s fetched, %s recorded, %s skipped, %s errors\n",
			p.clr("cyan", fmt.Sprintf("%d", s.PagesFetched)),
			p.clr("cyan", fmt.Sprintf("%d", s.PagesRecorded)),
			p.clr("dim", fmt.Sprintf("%d", s.PagesSkipped)),
			p.clr("red", fmt.Sprintf("%d", s.PagesErrored)),
		)
		fmt.Fprintf(p.w, "    Time:   %s (%.1f pages/sec)\n", fmtDur(s.Elapsed), s.PagesPerSec)
	}
}

func (p *printer) finish(summary *plugin.CrawlSummary, docs int, path string) {
	if summary != nil {
		fmt.Fprintf(p.w, "    Docs:   %s written, %s common blocks removed\n",
			p.clr("yellow", fmt.Sprintf("%d", docs)),
			p.clr("yellow", fmt.Sprintf("%d", summary.CommonBlocks)),
		)
	}
	if path != "" && path != "-" {
		fmt.Fprintf(p.w, "    Output: %s\n", p.clr("green", path))
	}
	fmt.Fprintln(p.w)
}

func (p *printer) clr(color, text string) string {
	if !p.color {
		return text
	}
	return clr(color, text)
}

// ---------- Utilities ----------

func fmtDur(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

func clr(color, text string) string {
	codes := map[string]string{
		"red":    "\033[31m",
		"green":  "\033[32m",
		"yellow": "\033[33m",
		"cyan":   "\033[36m",
		"dim":    "\033[2m",
		"bold":   "\033[1m",
		"reset":  "\033[0m",
	}
	c, ok := codes[color]
	if !ok {
		return text
	}
	return c + text + codes["reset"]
}
