package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose bool
	logJSON bool
	silent  bool
	noColor bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "deepcrawl",
		Short: "Crawl a site into deduplicated text documents",
		Long: `deepcrawl follows links and sitemaps from a start URL, extracts the main
text of every page and drops blocks repeated across most pages (navigation,
footers, cookie banners) before writing the documents out.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging and per-page details")
	pf.BoolVar(&g.logJSON, "log-json", false, "write logs as JSON")
	pf.BoolVar(&g.silent, "silent", false, "suppress all output except errors")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newCrawlCmd(g))
	root.AddCommand(newVersionCmd())
	return root
}
