package legislature

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
	"github.com/JakeFAU/malegislature-crawler/internal/entity"
	"github.com/JakeFAU/malegislature-crawler/internal/fetcher"
)

// CrawlLeadership reconciles the leadership of both branches. Each listing is
// partial, so nothing is pruned.
func CrawlLeadership(ctx context.Context, c *crawl.Crawler, opts crawl.Options) ([]crawl.Summary, error) {
	out := make([]crawl.Summary, 0, len(LeadershipEndpoints))
	for _, endpoint := range LeadershipEndpoints {
		o := opts
		o.Endpoint = endpoint
		_, sum, err := c.ScrapeAll(ctx, KindLeadership, o)
		if err != nil {
			return out, fmt.Errorf("leadership %s: %w", endpoint, err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// VoteEndpoints derives the committee vote listings of the given documents
// from their committee recommendations. The result is sorted and free of
// duplicates.
func VoteEndpoints(docs []entity.Entity) []string {
	seen := make(map[string]struct{})
	for _, e := range docs {
		doc, ok := e.(*Document)
		if !ok || doc.BillNumber == "" || doc.GeneralCourtNumber == 0 {
			continue
		}
		recs, ok := doc.CommitteeRecommendations.Get()
		if !ok {
			continue
		}
		for _, rec := range recs {
			if rec.Committee == nil || rec.Committee.CommitteeCode == "" {
				continue
			}
			seen[fmt.Sprintf("/api/Committees/%s/Documents/%s/CommitteeVotes",
				url.PathEscape(rec.Committee.CommitteeCode),
				url.PathEscape(doc.BillNumber),
			)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for endpoint := range seen {
		out = append(out, endpoint)
	}
	sort.Strings(out)
	return out
}

// VotesSummary reports the committee votes phase.
type VotesSummary struct {
	Endpoints int             `json:"endpoints"`
	Succeeded int             `json:"succeeded"`
	Rejected  int             `json:"rejected"`
	Votes     int             `json:"votes"`
	Listings  []crawl.Summary `json:"-"`
}

// CrawlVotes reconciles committee votes for every cached document. Listings
// the API rejects with 400 are counted and skipped; any other failure stops
// the phase.
func CrawlVotes(ctx context.Context, c *crawl.Crawler, opts crawl.Options, logger *zap.Logger) (VotesSummary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	docs, _, err := c.Collect(ctx, KindDocument, crawl.Options{UseCache: true})
	if err != nil {
		return VotesSummary{}, fmt.Errorf("load cached documents: %w", err)
	}
	endpoints := VoteEndpoints(docs)
	sum := VotesSummary{Endpoints: len(endpoints)}
	logger.Info("crawling committee votes", zap.Int("documents", len(docs)), zap.Int("endpoints", len(endpoints)))

	for _, endpoint := range endpoints {
		o := opts
		o.Endpoint = endpoint
		items, listing, err := c.ScrapeAll(ctx, KindCommitteeVote, o)
		if status, ok := fetcher.StatusOf(err); ok && status == http.StatusBadRequest {
			sum.Rejected++
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("committee votes %s: %w", endpoint, err)
		}
		sum.Succeeded++
		sum.Votes += len(items)
		sum.Listings = append(sum.Listings, listing)
	}
	logger.Info("committee votes crawled",
		zap.Int("endpoints", sum.Endpoints),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("rejected", sum.Rejected),
		zap.Int("votes", sum.Votes),
	)
	return sum, nil
}
