// Package publisher announces finished collection reconciliations to
// downstream consumers.
package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/malegislature-crawler/internal/crawl"
)

// Publisher sends one payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock supplies notice timestamps.
type Clock interface {
	Now() time.Time
}

// Notice is the payload published for every reconciled collection.
type Notice struct {
	RunID       string        `json:"runId"`
	CompletedAt time.Time     `json:"completedAt"`
	Summary     crawl.Summary `json:"summary"`
}

// Attributes are copied onto the transport message so subscribers can filter
// without decoding the body.
func (n Notice) Attributes() map[string]string {
	attrs := map[string]string{
		"runId": n.RunID,
		"kind":  n.Summary.Kind,
	}
	if n.Summary.Degraded {
		attrs["degraded"] = "true"
	}
	return attrs
}

// Notifier publishes notices for one crawl run.
type Notifier struct {
	pub    Publisher
	topic  string
	runID  string
	clock  Clock
	logger *zap.Logger
}

// NewNotifier builds a Notifier. A nil pub yields a Notifier that drops
// every notice.
func NewNotifier(pub Publisher, topic, runID string, clock Clock, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, topic: topic, runID: runID, clock: clock, logger: logger}
}

// RunID returns the run the notices belong to.
func (n *Notifier) RunID() string {
	return n.runID
}

// Notify publishes sum. Publishing never changes the outcome of a crawl, so
// the error is returned for the caller to log.
func (n *Notifier) Notify(ctx context.Context, sum crawl.Summary) error {
	if n == nil || n.pub == nil {
		return nil
	}
	notice := Notice{RunID: n.runID, Summary: sum}
	if n.clock != nil {
		notice.CompletedAt = n.clock.Now()
	}
	id, err := n.pub.Publish(ctx, n.topic, notice)
	if err != nil {
		return fmt.Errorf("publish %s summary: %w", sum.Kind, err)
	}
	n.logger.Debug("published collection summary",
		zap.String("kind", sum.Kind),
		zap.String("message_id", id),
	)
	return nil
}
