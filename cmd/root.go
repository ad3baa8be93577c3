// Package cmd defines the CLI commands of the malegislature crawler.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/app"
	"github.com/JakeFAU/malegislature-crawler/internal/config"
	"github.com/JakeFAU/malegislature-crawler/internal/logging"
)

// newApp is the run context factory. Tests replace it to inject fakes.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// state is shared by the root command and its subcommands.
type state struct {
	cfgFile  string
	logLevel string
	baseURL  string
	cacheDir string

	cfg    config.Config
	logger *zap.Logger
	app    *app.App
}

// setup loads configuration, applies flag overrides and opens the run
// context. It runs before every subcommand.
func (st *state) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(st.cfgFile)
	if err != nil {
		return err
	}
	if st.baseURL != "" {
		cfg.API.BaseURL = st.baseURL
	}
	if st.cacheDir != "" {
		cfg.Cache.Root = st.cacheDir
	}
	if st.logLevel != "" {
		cfg.Logging.Level = st.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	st.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	st.logger, err = logging.New(cfg.Logging.Development, level)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(st.logger)

	st.app, err = newApp(cmd.Context(), cfg, st.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	return nil
}

// close releases the run context. It runs whether or not the command failed.
func (st *state) close() {
	if st.app != nil {
		if err := st.app.Close(); err != nil {
			st.logger.Warn("error closing application services", zap.Error(err))
		}
		st.app = nil
	}
	if st.logger != nil {
		_ = st.logger.Sync()
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "malegislature-crawler",
		Short: "Mirror the Massachusetts Legislature API into a local cache.",
		Long: `malegislature-crawler reconciles the collections published by the
Massachusetts Legislature API with a local cache of one JSON record per
entity, crawling every entity until its fields are resolved.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&st.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.StringVar(&st.logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")
	flags.StringVar(&st.baseURL, "base-url", "", "legislature API base URL")
	flags.StringVar(&st.cacheDir, "cache-root", "", "cache directory")

	cmd.AddCommand(
		newCrawlCmd(st),
		newShowCmd(st),
		newTypesCmd(st),
		newServeCmd(st),
	)
	return cmd
}

// run executes the CLI with args, writing command output to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	st := &state{}
	defer st.close()
	root := newRootCmd(st)
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point. It returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
