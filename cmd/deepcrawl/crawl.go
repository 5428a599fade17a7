package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ramkansal/deepcrawl/internal/config"
	"github.com/ramkansal/deepcrawl/internal/crawler"
	"github.com/ramkansal/deepcrawl/internal/logger"
	"github.com/ramkansal/deepcrawl/internal/output"
	"github.com/spf13/cobra"
)

// crawlFlags holds the crawl command's options. Values only override the
// config file when the flag was given explicitly.
type crawlFlags struct {
	// Crawl
	mode          string
	renderJS      bool
	maxPages      int
	maxDepth      int
	sameDomain    bool
	include       string
	exclude       string
	robots        bool
	concurrency   int
	delay         time.Duration
	timeout       time.Duration
	strip         string
	dedupe        bool
	threshold     float64
	minBlockChars int

	// Request
	userAgent       string
	headers         []string
	maxResponseSize int
	chromeBin       string

	// Output
	orgID      string
	output     string
	format     string
	configFile string
}

// runSettings is everything the crawl needs after flags and the config
// file have been merged.
type runSettings struct {
	cfg     *crawler.CrawlConfig
	output  string
	format  output.Format
	verbose bool
	logJSON bool
}

func newCrawlCmd(g *globalFlags) *cobra.Command {
	f := &crawlFlags{}

	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a site and write its documents",
		Example: `  deepcrawl crawl https://docs.example.com
  deepcrawl crawl docs.example.com --mode sitemap --max-pages 500 -o docs.ndjson
  deepcrawl crawl https://app.example.com --render-js --strip ".promo,#chat"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(cmd, args, f, g)
			if err != nil {
				return err
			}
			return runCrawl(cmd, s, g)
		},
	}

	bindCrawlFlags(cmd, f)
	return cmd
}

func bindCrawlFlags(cmd *cobra.Command, f *crawlFlags) {
	def := crawler.DefaultConfig()

	fs := cmd.Flags()
	fs.StringVarP(&f.mode, "mode", "m", string(def.Mode), "url discovery: links, sitemap or both")
	fs.BoolVar(&f.renderJS, "render-js", def.RenderJS, "fetch pages with headless Chrome")
	fs.IntVar(&f.maxPages, "max-pages", def.MaxPages, "maximum pages to record (0 = unlimited)")
	fs.IntVarP(&f.maxDepth, "max-depth", "d", def.MaxDepth, "maximum link depth from the start page")
	fs.BoolVar(&f.sameDomain, "same-domain", def.SameDomainOnly, "only follow urls on the start host")
	fs.StringVar(&f.include, "include", "", "only admit urls matching this regex")
	fs.StringVar(&f.exclude, "exclude", "", "reject urls matching this regex")
	fs.BoolVar(&f.robots, "robots", def.RespectRobots, "respect robots.txt")
	fs.IntVarP(&f.concurrency, "concurrency", "c", def.Concurrency, "concurrent fetches (1-10)")
	fs.DurationVar(&f.delay, "delay", def.Delay, "pause between requests per worker (e.g. 250ms)")
	fs.DurationVarP(&f.timeout, "timeout", "t", def.Timeout, "per-page timeout")
	fs.StringVar(&f.strip, "strip", "", "extra CSS selectors to remove, comma separated")
	fs.BoolVar(&f.dedupe, "dedupe", def.DedupeCommonBlocks, "remove blocks shared by most pages")
	fs.Float64Var(&f.threshold, "threshold", def.CommonBlockThreshold, "fraction of pages a block must appear on to be common")
	fs.IntVar(&f.minBlockChars, "min-block-chars", def.MinBlockChars, "drop text blocks shorter than this")

	fs.StringVarP(&f.userAgent, "user-agent", "A", "", "custom user-agent string")
	fs.StringArrayVarP(&f.headers, "header", "H", nil, `custom header in "Key: Value" format (repeatable)`)
	fs.IntVar(&f.maxResponseSize, "max-response-size", def.MaxResponseSize, "maximum response body size in bytes")
	fs.StringVar(&f.chromeBin, "chrome-bin", "", "path to a Chrome binary for --render-js")

	fs.StringVar(&f.orgID, "org-id", def.OrgID, "organization id stamped on every document")
	fs.StringVarP(&f.output, "output", "o", "", "output file (default stdout)")
	fs.StringVarP(&f.format, "format", "f", string(output.FormatNDJSON), "output format: ndjson, json or text")
	fs.StringVar(&f.configFile, "config", "", "path to a TOML config file")
}

// resolveSettings layers defaults, the config file, flags and the url
// argument, in that order.
func resolveSettings(cmd *cobra.Command, args []string, f *crawlFlags, g *globalFlags) (*runSettings, error) {
	cfg := crawler.DefaultConfig()
	s := &runSettings{cfg: cfg, verbose: g.verbose, logJSON: g.logJSON}
	format := ""

	if f.configFile != "" {
		file, err := config.Load(f.configFile)
		if err != nil {
			return nil, err
		}
		if err := file.Apply(cfg); err != nil {
			return nil, err
		}
		s.output = file.Output.Path
		format = file.Output.Format
		s.verbose = s.verbose || file.Log.Verbose
		s.logJSON = s.logJSON || file.Log.JSON
	}

	fs := cmd.Flags()
	if fs.Changed("mode") {
		m, err := crawler.ParseMode(f.mode)
		if err != nil {
			return nil, err
		}
		cfg.Mode = m
	}
	if fs.Changed("render-js") {
		cfg.RenderJS = f.renderJS
	}
	if fs.Changed("max-pages") {
		cfg.MaxPages = f.maxPages
	}
	if fs.Changed("max-depth") {
		cfg.MaxDepth = f.maxDepth
	}
	if fs.Changed("same-domain") {
		cfg.SameDomainOnly = f.sameDomain
	}
	if fs.Changed("include") {
		cfg.IncludeRegex = f.include
	}
	if fs.Changed("exclude") {
		cfg.ExcludeRegex = f.exclude
	}
	if fs.Changed("robots") {
		cfg.RespectRobots = f.robots
	}
	if fs.Changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if fs.Changed("delay") {
		cfg.Delay = f.delay
	}
	if fs.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if fs.Changed("strip") {
		cfg.StripSelectors = f.strip
	}
	if fs.Changed("dedupe") {
		cfg.DedupeCommonBlocks = f.dedupe
	}
	if fs.Changed("threshold") {
		cfg.CommonBlockThreshold = f.threshold
	}
	if fs.Changed("min-block-chars") {
		cfg.MinBlockChars = f.minBlockChars
	}
	if fs.Changed("user-agent") {
		cfg.UserAgent = f.userAgent
	}
	if fs.Changed("header") {
		cfg.CustomHeaders = append(cfg.CustomHeaders, f.headers...)
	}
	if fs.Changed("max-response-size") {
		cfg.MaxResponseSize = f.maxResponseSize
	}
	if fs.Changed("chrome-bin") {
		cfg.ChromeBin = f.chromeBin
	}
	if fs.Changed("org-id") {
		cfg.OrgID = f.orgID
	}
	if fs.Changed("output") {
		s.output = f.output
	}
	if fs.Changed("format") || format == "" {
		format = f.format
	}

	if len(args) == 1 {
		cfg.StartURL = args[0]
	}
	if cfg.StartURL == "" {
		return nil, errors.New("no start url: pass one as an argument or set start_url in the config file")
	}
	// Ensure URL has a scheme
	if !strings.Contains(cfg.StartURL, "://") {
		cfg.StartURL = "https://" + cfg.StartURL
	}

	fmtName, err := output.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	s.format = fmtName

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func runCrawl(cmd *cobra.Command, s *runSettings, g *globalFlags) error {
	ui := newPrinter(cmd.ErrOrStderr(), !g.noColor && !s.logJSON, s.verbose)
	if ui.color {
		enableANSI()
	}

	log := logger.New(logger.Options{
		Verbose: s.verbose,
		Silent:  g.silent,
		JSON:    s.logJSON,
		NoColor: g.noColor,
		Output:  cmd.ErrOrStderr(),
	})

	var dest io.WriteCloser
	if s.output == "" || s.output == "-" {
		dest = nopCloser{cmd.OutOrStdout()}
	} else {
		f, err := output.Open(s.output)
		if err != nil {
			return err
		}
		dest = f
	}
	defer dest.Close()

	writer, err := output.New(s.format, dest)
	if err != nil {
		return err
	}

	c := crawler.New(s.cfg, crawler.WithLogger(log), crawler.WithWriter(writer))
	defer c.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// First Ctrl+C drains in-flight pages and still writes output; the
	// second aborts them.
	sig := make(chan os.Signal, 2)
	registerSignals(sig)
	defer signalStop(sig)
	go func() {
		if _, ok := <-sig; !ok {
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\n\n  %s Interrupt received, finishing in-flight pages...\n", ui.clr("yellow", "!"))
		c.Stop()
		if _, ok := <-sig; ok {
			cancel()
		}
	}()

	if !g.silent {
		ui.start(s.cfg)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range c.Events() {
			if g.silent {
				continue
			}
			ui.event(event)
		}
	}()

	docs, err := c.Run(ctx)
	<-done
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	if !g.silent {
		ui.finish(c.Summary(), len(docs), s.output)
	}
	return nil
}

// signalStop unregisters ch and closes it so the handler goroutine exits.
func signalStop(ch chan os.Signal) {
	signal.Stop(ch)
	close(ch)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
