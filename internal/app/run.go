package app

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/legislature"
)

// Plan selects what one run crawls.
type Plan struct {
	// Kinds to reconcile, in order. Empty means leadership followed by every
	// listed kind.
	Kinds []string
	// Votes runs the committee votes phase after the kinds.
	Votes   bool
	Options crawl.Options
}

// Report is the outcome of a run.
type Report struct {
	RunID     string                    `json:"runId"`
	Summaries []crawl.Summary           `json:"summaries"`
	Votes     *legislature.VotesSummary `json:"votes,omitempty"`
}

// Steps expands p into the ordered kinds to reconcile. Leadership and
// committee votes have no collection endpoint and run as phases.
func (a *App) Steps(p Plan) ([]string, error) {
	if len(p.Kinds) == 0 {
		return append([]string{legislature.KindLeadership}, legislature.Listed(a.registry)...), nil
	}
	listed := legislature.Listed(a.registry)
	out := make([]string, 0, len(p.Kinds))
	for _, kind := range p.Kinds {
		switch {
		case kind == legislature.KindLeadership, kind == legislature.KindCommitteeVote:
		case slices.Contains(listed, kind):
		default:
			if _, ok := a.registry.Lookup(kind); ok {
				return nil, fmt.Errorf("%s has no collection endpoint; it is crawled through its parents", kind)
			}
			return nil, fmt.Errorf("unknown kind %q", kind)
		}
		if !slices.Contains(out, kind) {
			out = append(out, kind)
		}
	}
	return out, nil
}

// Run executes p. Every reconciled collection is announced through the
// notifier. The first fatal error stops the run; the report holds what
// finished before it.
func (a *App) Run(ctx context.Context, p Plan) (Report, error) {
	steps, err := a.Steps(p)
	if err != nil {
		return Report{}, err
	}
	rep := Report{RunID: a.RunID()}
	a.logger.Info("crawl run started", zap.Strings("kinds", steps), zap.Bool("votes", p.Votes))

	votes := p.Votes
	for _, kind := range steps {
		switch kind {
		case legislature.KindLeadership:
			sums, err := legislature.CrawlLeadership(ctx, a.crawler, p.Options)
			a.announce(ctx, &rep, sums...)
			if err != nil {
				return rep, err
			}
		case legislature.KindCommitteeVote:
			votes = true
		default:
			_, sum, err := a.crawler.ScrapeAll(ctx, kind, p.Options)
			if err != nil {
				return rep, fmt.Errorf("crawl %s: %w", kind, err)
			}
			a.announce(ctx, &rep, sum)
		}
	}

	if votes {
		vs, err := legislature.CrawlVotes(ctx, a.crawler, p.Options, a.logger.Named("votes"))
		a.announce(ctx, &rep, vs.Listings...)
		if err != nil {
			return rep, err
		}
		rep.Votes = &vs
	}

	a.logger.Info("crawl run finished", zap.Int("collections", len(rep.Summaries)))
	return rep, nil
}

func (a *App) announce(ctx context.Context, rep *Report, sums ...crawl.Summary) {
	for _, sum := range sums {
		rep.Summaries = append(rep.Summaries, sum)
		if err := a.notifier.Notify(ctx, sum); err != nil {
			a.logger.Warn("collection summary not published", zap.String("kind", sum.Kind), zap.Error(err))
		}
	}
}
