// Package monitoring watches newsroom health and alerts a webhook when
// editorial backlogs or email usage cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
)

// Snapshot holds a point-in-time view of newsroom health.
type Snapshot struct {
	Articles map[model.ArticleStatus]int `json:"articles"`

	// Items flagged for manual intervention.
	ManualArticles int `json:"manual_articles"`
	ManualTopics   int `json:"manual_topics"`

	// Assigned reviews whose deadline has passed.
	OverdueReviews int `json:"overdue_reviews"`

	EmailsSent  int `json:"emails_sent"`
	EmailsQuota int `json:"emails_quota"`

	CollectedAt time.Time `json:"collected_at"`
}

// ManualBacklog is the total number of flagged topics and articles.
func (s *Snapshot) ManualBacklog() int {
	return s.ManualArticles + s.ManualTopics
}

// QuotaUsage is the fraction of today's email quota already used.
func (s *Snapshot) QuotaUsage() float64 {
	if s.EmailsQuota <= 0 {
		return 0
	}
	return float64(s.EmailsSent) / float64(s.EmailsQuota)
}

// Reader is the subset of the store the collector needs.
type Reader interface {
	CountArticlesByStatus(ctx context.Context) (map[model.ArticleStatus]int, error)
	ListArticles(ctx context.Context, filter store.ArticleFilter) ([]model.Article, error)
	ListTopics(ctx context.Context, filter store.TopicFilter) ([]model.Topic, error)
}

// QuotaReader reports today's email usage.
type QuotaReader interface {
	Usage(ctx context.Context) (sent, quota int, err error)
}

// reviewStates hold articles an editor is expected to act on by a deadline.
var reviewStates = []model.ArticleStatus{
	model.ArticlePendingReview,
	model.ArticleUnderReview,
	model.ArticleNeedsSeniorReview,
}

// Collector gathers snapshots from the store and the mailer.
type Collector struct {
	store Reader
	quota QuotaReader
	now   func() time.Time
}

// NewCollector creates a collector. quota may be nil when email is not wired.
func NewCollector(st Reader, quota QuotaReader) *Collector {
	return &Collector{store: st, quota: quota, now: time.Now}
}

// Collect gathers a snapshot.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{CollectedAt: now}

	counts, err := c.store.CountArticlesByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count articles")
	}
	snap.Articles = counts

	flagged, err := c.store.ListArticles(ctx, store.ArticleFilter{ManualOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list flagged articles")
	}
	snap.ManualArticles = len(flagged)

	topics, err := c.store.ListTopics(ctx, store.TopicFilter{ManualOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list flagged topics")
	}
	snap.ManualTopics = len(topics)

	for _, st := range reviewStates {
		articles, err := c.store.ListArticles(ctx, store.ArticleFilter{Status: st})
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list %s articles", st)
		}
		for _, a := range articles {
			if a.ReviewDeadline != nil && a.ReviewDeadline.Before(now) {
				snap.OverdueReviews++
			}
		}
	}

	if c.quota != nil {
		snap.EmailsSent, snap.EmailsQuota, err = c.quota.Usage(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: email usage")
		}
	}
	return snap, nil
}
