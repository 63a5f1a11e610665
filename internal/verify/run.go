package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/config"
	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
)

// TopicStore is the subset of store.Store the verification stage needs.
type TopicStore interface {
	ListTopics(ctx context.Context, filter store.TopicFilter) ([]model.Topic, error)
	UpdateTopic(ctx context.Context, t *model.Topic) error
	GetSourceByDomain(ctx context.Context, domain string) (*model.Source, error)
	UpsertSource(ctx context.Context, src *model.Source) error
}

// Summary counts the outcomes of one verification run.
type Summary struct {
	Verified int `json:"verified"`
	Partial  int `json:"partial"`
	Failed   int `json:"failed"`
	Manual   int `json:"manual"`
}

// Run verifies up to limit pending topics. Each topic moves to in_progress,
// gathers candidates from searcher (nil means only the sources already on
// the topic), resolves their credibility through the source registry, and
// lands in verified, partial or failed. A searcher that keeps failing leaves
// the topic in_progress with a manual-intervention reason.
func Run(ctx context.Context, st TopicStore, searcher Searcher, cfg config.VerificationConfig, limit int) (*Summary, error) {
	topics, err := st.ListTopics(ctx, store.TopicFilter{Status: model.VerificationPending, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "verify: list pending topics")
	}

	policy := PolicyFromConfig(cfg)
	log := zap.L().With(zap.String("stage", "verify"))
	sum := &Summary{}

	for i := range topics {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		t := &topics[i]

		t.VerificationStatus = model.VerificationInProgress
		if err := st.UpdateTopic(ctx, t); err != nil {
			return sum, eris.Wrapf(err, "verify: mark topic %s in progress", t.ID)
		}

		candidates := append([]model.TopicSource(nil), t.Sources...)
		if searcher != nil {
			found, err := searcher.Search(ctx, searchQuery(t), cfg.MaxResults)
			if err != nil {
				t.ManualReason = fmt.Sprintf("source search unavailable: %v", err)
				sum.Manual++
				log.Warn("verify: search failed, flagged for manual verification",
					zap.String("topic_id", t.ID), zap.Error(err))
				if err := st.UpdateTopic(ctx, t); err != nil {
					return sum, eris.Wrapf(err, "verify: flag topic %s", t.ID)
				}
				continue
			}
			for _, c := range found {
				candidates = append(candidates, model.TopicSource{Name: c.Title, URL: c.URL})
			}
		}

		resolved, err := resolveSources(ctx, st, candidates, cfg.UnknownCredibility)
		if err != nil {
			return sum, err
		}

		res := Verify(resolved, policy)
		t.VerificationStatus = res.Status
		t.Sources = res.Sources
		t.CredibleCount = res.CredibleCount
		t.AcademicCount = res.AcademicCount
		t.Shortfall = res.Shortfall
		t.AttributionPlan = res.Plan
		t.ManualReason = ""

		if err := st.UpdateTopic(ctx, t); err != nil {
			return sum, eris.Wrapf(err, "verify: update topic %s", t.ID)
		}

		switch res.Status {
		case model.VerificationVerified:
			sum.Verified++
		case model.VerificationPartial:
			sum.Partial++
		default:
			sum.Failed++
		}
		log.Info("verify: topic classified",
			zap.String("topic_id", t.ID),
			zap.String("status", string(res.Status)),
			zap.Int("credible", res.CredibleCount),
			zap.Int("academic", res.AcademicCount),
		)
	}
	return sum, nil
}

const maxQueryRunes = 256

func searchQuery(t *model.Topic) string {
	q := t.Headline
	if t.Summary != "" {
		q += " " + t.Summary
	}
	return strings.TrimSpace(lo.Substring(q, 0, maxQueryRunes))
}

// resolveSources attaches registry ids and credibility to each candidate.
// Unknown domains are registered with the default credibility so later
// corrections can be attributed to them.
func resolveSources(ctx context.Context, st TopicStore, candidates []model.TopicSource, unknownScore float64) ([]model.TopicSource, error) {
	out := make([]model.TopicSource, 0, len(candidates))
	for _, c := range candidates {
		domain := c.Domain
		if domain == "" {
			domain = DomainOf(c.URL)
		}
		if domain == "" {
			continue
		}
		c.Domain = domain

		src, err := st.GetSourceByDomain(ctx, domain)
		if errors.Is(err, store.ErrNotFound) {
			name := c.Name
			if name == "" {
				name = domain
			}
			src = &model.Source{Name: name, Domain: domain, Credibility: unknownScore, Academic: IsAcademicDomain(domain)}
			if err := st.UpsertSource(ctx, src); err != nil {
				return nil, eris.Wrapf(err, "verify: register source %s", domain)
			}
		} else if err != nil {
			return nil, eris.Wrapf(err, "verify: look up source %s", domain)
		}

		c.SourceID = src.ID
		c.Credibility = src.Credibility
		c.Academic = src.Academic || IsAcademicDomain(domain)
		if c.Name == "" {
			c.Name = src.Name
		}
		out = append(out, c)
	}
	return out, nil
}
