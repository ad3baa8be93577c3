package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/malegislature-crawler/internal/app"
	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
)

type crawlFlags struct {
	cacheOnly   bool
	noCache     bool
	overwrite   bool
	concurrency int
	prune       bool
	noPrune     bool
	votes       bool
}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd(st *state) *cobra.Command {
	f := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl [kinds...]",
		Short: "Reconcile collections with the cache and crawl their entities",
		Long: `Reconciles the named collections, or leadership followed by every listed
collection when none are named, and crawls each entity until its fields are
resolved. The run report is written to stdout as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, st, f, args)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&f.cacheOnly, "cache-only", false, "read collections from the cache without contacting the API")
	flags.BoolVar(&f.noCache, "no-cache", false, "ignore cached entries when reconciling")
	flags.BoolVar(&f.overwrite, "overwrite", false, "let listed entries replace cached ones")
	flags.IntVar(&f.concurrency, "concurrency", 0, "entity crawls in flight (default from config)")
	flags.BoolVar(&f.prune, "prune", false, "delete cached entries missing from every listing")
	flags.BoolVar(&f.noPrune, "no-prune", false, "keep cached entries missing from listings")
	flags.BoolVar(&f.votes, "votes", false, "crawl committee votes of cached documents afterwards")
	cmd.MarkFlagsMutuallyExclusive("prune", "no-prune")
	cmd.MarkFlagsMutuallyExclusive("cache-only", "no-cache")
	return cmd
}

// options applies the flags on top of the configured defaults.
func (f *crawlFlags) options(base crawl.Options) (crawl.Options, error) {
	opts := base
	if f.cacheOnly {
		opts.CheckUpstream = false
	}
	if f.noCache {
		opts.UseCache = false
	}
	if f.overwrite {
		opts.Overwrite = true
	}
	if f.concurrency < 0 {
		return opts, fmt.Errorf("--concurrency must be > 0")
	}
	if f.concurrency > 0 {
		opts.Concurrency = f.concurrency
	}
	switch {
	case f.prune:
		opts.Prune = crawl.PruneAlways
	case f.noPrune:
		opts.Prune = crawl.PruneNever
	}
	return opts, nil
}

func runCrawl(cmd *cobra.Command, st *state, f *crawlFlags, kinds []string) error {
	opts, err := f.options(st.app.CrawlOptions())
	if err != nil {
		return err
	}
	rep, err := st.app.Run(cmd.Context(), app.Plan{Kinds: kinds, Votes: f.votes, Options: opts})
	if werr := writeIndented(cmd, rep); werr != nil && err == nil {
		err = werr
	}
	if err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}
	return nil
}

func writeIndented(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
