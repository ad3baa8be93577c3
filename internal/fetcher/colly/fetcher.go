// Package collyfetcher scrapes links from server-rendered HTML pages using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
	"github.com/JakeFAU/malegislature-crawler/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Reporter records upstream status failures.
type Reporter interface {
	Report(req fetcher.Request, err *fetcher.StatusError)
}

// Scraper collects anchors matching a CSS selector from HTML pages.
type Scraper struct {
	baseCollector *colly.Collector
	limiter       fetcher.Limiter
	reporter      Reporter
}

type collectorHooks interface {
	OnHTML(string, colly.HTMLCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Scraper that shares transport with the JSON client.
func New(cfg Config, transport http.RoundTripper, limiter fetcher.Limiter, reporter Reporter) *Scraper {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if transport == nil {
		transport = fetcher.NewTransport()
	}
	c.WithTransport(transport)
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)

	return &Scraper{
		baseCollector: c,
		limiter:       limiter,
		reporter:      reporter,
	}
}

// Links visits req.URL and returns the absolute href of every element
// matching selector, in document order. A page without matches yields an
// empty, non-nil slice.
func (s *Scraper) Links(ctx context.Context, req fetcher.Request, selector string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("colly fetch canceled: %w", err)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, req.URL); err != nil {
			return nil, err
		}
	}
	links := []string{}
	var fetchErr error
	start := time.Now()

	collector := s.baseCollector.Clone()
	s.configureCollectorHooks(collector, req, selector, start, &links, &fetchErr)

	if err := s.runCollector(ctx, collector, req.URL, &fetchErr); err != nil {
		return nil, err
	}
	return links, nil
}

func (s *Scraper) configureCollectorHooks(
	hooks collectorHooks,
	req fetcher.Request,
	selector string,
	start time.Time,
	links *[]string,
	fetchErr *error,
) {
	hooks.OnHTML("html", func(e *colly.HTMLElement) {
		e.DOM.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			href = strings.TrimSpace(href)
			if !ok || href == "" {
				return
			}
			*links = append(*links, e.Request.AbsoluteURL(href))
		})
	})

	hooks.OnResponse(func(r *colly.Response) {
		metrics.ObserveUpstreamRequest(req.Kind, req.URL, r.StatusCode, time.Since(start))
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r == nil || r.StatusCode == 0 {
			metrics.ObserveUpstreamRequest(req.Kind, req.URL, 0, time.Since(start))
			*fetchErr = err
			return
		}
		metrics.ObserveUpstreamRequest(req.Kind, req.URL, r.StatusCode, time.Since(start))
		statusErr := &fetcher.StatusError{Status: r.StatusCode, URL: req.URL, Body: string(r.Body)}
		if s.reporter != nil {
			s.reporter.Report(req, statusErr)
		}
		*fetchErr = statusErr
	})
}

func (s *Scraper) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}
