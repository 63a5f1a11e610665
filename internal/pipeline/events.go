package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/scorer"
	"github.com/dailyworker/newsroom/internal/store"
)

// ScoreEvents scores discovered events.
func (n *Newsroom) ScoreEvents(ctx context.Context, limit int) (*scorer.Summary, error) {
	return scorer.Run(ctx, n.store, n.cfg.Scoring, limit)
}

// PromoteEvents turns approved events into pending topics and marks the
// events converted. It returns the number promoted.
func (n *Newsroom) PromoteEvents(ctx context.Context, limit int) (int, error) {
	events, err := n.store.ListEvents(ctx, store.EventFilter{Status: model.EventStatusApproved, Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list approved events")
	}

	log := zap.L().With(zap.String("stage", "promote"))
	promoted := 0
	for i := range events {
		if err := ctx.Err(); err != nil {
			return promoted, err
		}
		e := &events[i]

		t := &model.Topic{
			EventID:            e.ID,
			Headline:           e.Title,
			Summary:            e.Summary,
			Category:           e.Category,
			Opinion:            e.Opinion,
			VerificationStatus: model.VerificationPending,
		}
		for _, u := range e.Sources {
			t.Sources = append(t.Sources, model.TopicSource{URL: u})
		}
		if err := n.store.CreateTopic(ctx, t); err != nil {
			return promoted, eris.Wrapf(err, "pipeline: create topic for event %s", e.ID)
		}

		e.Status = model.EventStatusConverted
		e.TopicID = t.ID
		if err := n.store.UpdateEvent(ctx, e); err != nil {
			return promoted, eris.Wrapf(err, "pipeline: mark event %s converted", e.ID)
		}
		promoted++
		log.Info("pipeline: event promoted", zap.String("event_id", e.ID), zap.String("topic_id", t.ID))
	}
	return promoted, nil
}
