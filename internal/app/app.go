// Package app opens the long-lived services of one crawler run and drives
// the crawl phases.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/clock/system"
	"github.com/JakeFAU/malegislature-crawler/internal/config"
	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/malegislature-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/malegislature-crawler/internal/hash/sha256"
	"github.com/JakeFAU/malegislature-crawler/internal/id/uuid"
	"github.com/JakeFAU/malegislature-crawler/internal/legislature"
	"github.com/JakeFAU/malegislature-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/malegislature-crawler/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/malegislature-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/malegislature-crawler/internal/store"
	gcsmirror "github.com/JakeFAU/malegislature-crawler/internal/store/gcs"
	pgmirror "github.com/JakeFAU/malegislature-crawler/internal/store/postgres"
)

// IDGenerator creates run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Option customizes service construction.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	publisher publisher.Publisher
	ids       IDGenerator
}

// WithTransport routes every upstream request through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithPublisher replaces the Pub/Sub publisher selected by configuration.
func WithPublisher(p publisher.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithIDGenerator replaces the UUID run ID generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

// App holds the services shared by every phase of one run: the upstream
// client, the error log, the store and its mirrors, and the notifier. They
// are opened by New and released by Close.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *crawl.Registry
	client   *fetcher.Client
	store    *store.Store
	crawler  *crawl.Crawler
	notifier *publisher.Notifier
	closers  []io.Closer
}

// New opens the run context described by cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{ids: uuid.New()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger, registry: legislature.NewRegistry()}
	if err := a.open(ctx, o); err != nil {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("close after failed start", zap.Error(cerr))
		}
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context, o options) error {
	clock := system.New()

	errLog, err := fetcher.OpenErrorLog(a.cfg.Cache.Root, clock)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, errLog)

	transport := o.transport
	if transport == nil {
		transport = fetcher.NewTransport()
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: a.cfg.HTTP.RequestsPerSecond, Burst: a.cfg.HTTP.Burst})
	a.client = fetcher.New(fetcher.Config{
		Timeout:   a.cfg.Timeout(),
		UserAgent: a.cfg.HTTP.UserAgent,
	}, transport, limiter, errLog, a.logger.Named("fetcher"))
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.Timeout(),
	}, transport, limiter, a.client)

	mirrors, err := a.openMirrors(ctx)
	if err != nil {
		return err
	}
	a.store, err = store.New(a.cfg.Cache, a.registry, sha256.New(), clock, a.logger.Named("store"), mirrors...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	env := &crawl.Env{
		BaseURL:  a.cfg.BaseURL(),
		Upstream: a.client,
		Pages:    pages,
		Errors:   errLog,
	}
	a.crawler, err = crawl.New(a.registry, a.store, env, a.logger.Named("crawl"))
	if err != nil {
		return err
	}

	pub := o.publisher
	if pub == nil && a.cfg.PubSub.TopicName != "" {
		p, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, p)
		pub = p
	}
	runID, err := o.ids.NewID()
	if err != nil {
		return err
	}
	a.notifier = publisher.NewNotifier(pub, a.cfg.PubSub.TopicName, runID, clock, a.logger.Named("publisher"))
	a.logger = a.logger.With(zap.String("run_id", runID))
	return nil
}

func (a *App) openMirrors(ctx context.Context) ([]store.Mirror, error) {
	var mirrors []store.Mirror
	if a.cfg.Storage.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		m, err := gcsmirror.New(client, gcsmirror.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, m)
		mirrors = append(mirrors, m)
		a.logger.Info("mirroring records to gcs", zap.String("bucket", a.cfg.Storage.GCSBucket))
	}
	if a.cfg.DB.DSN != "" {
		m, err := pgmirror.New(ctx, pgmirror.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.Table,
			MaxConns: int32(a.cfg.DB.MaxConns), // #nosec G115 -- small configured pool size.
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, m)
		mirrors = append(mirrors, m)
		a.logger.Info("mirroring records to postgres", zap.String("table", a.cfg.DB.Table))
	}
	return mirrors, nil
}

// Close releases every service in reverse opening order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry returns the entity types known to the run.
func (a *App) Registry() *crawl.Registry { return a.registry }

// Store returns the entity cache.
func (a *App) Store() *store.Store { return a.store }

// Crawler returns the crawl engine.
func (a *App) Crawler() *crawl.Crawler { return a.crawler }

// RunID identifies this run in logs and notices.
func (a *App) RunID() string { return a.notifier.RunID() }

// CrawlOptions returns the reconciliation options configured for the run.
func (a *App) CrawlOptions() crawl.Options {
	opts := crawl.DefaultOptions()
	opts.UseCache = a.cfg.Crawler.UseCache
	opts.Overwrite = a.cfg.Crawler.Overwrite
	opts.Concurrency = a.cfg.Crawler.Concurrency
	return opts
}
