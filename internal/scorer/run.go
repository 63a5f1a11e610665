package scorer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/config"
	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
)

// EventStore is the subset of store.Store the scoring stage needs.
type EventStore interface {
	ListEvents(ctx context.Context, filter store.EventFilter) ([]model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
}

// Summary counts the outcomes of one scoring run.
type Summary struct {
	Scored   int `json:"scored"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Invalid  int `json:"invalid"`
}

// Run scores up to limit discovered events and writes the final score and
// status back. Events with malformed sub-scores are rejected with a
// validation reason so they stay queryable.
func Run(ctx context.Context, st EventStore, cfg config.ScoringConfig, limit int) (*Summary, error) {
	w := WeightsFromConfig(cfg)
	if err := ValidateWeights(w); err != nil {
		return nil, err
	}

	events, err := st.ListEvents(ctx, store.EventFilter{Status: model.EventStatusDiscovered, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: list discovered events")
	}

	log := zap.L().With(zap.String("stage", "score"))
	sum := &Summary{}
	for i := range events {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		e := &events[i]

		res, err := Score(e.SubScores, w, cfg.Threshold)
		switch {
		case errors.Is(err, ErrInvalidSubScore):
			e.Status = model.EventStatusRejected
			e.FinalScore = nil
			e.RejectReason = fmt.Sprintf("validation: %v", err)
			sum.Invalid++
			log.Warn("scorer: invalid sub-scores", zap.String("event_id", e.ID), zap.Error(err))
		case err != nil:
			return sum, err
		default:
			final := res.Final
			e.FinalScore = &final
			sum.Scored++
			if res.Approved {
				e.Status = model.EventStatusApproved
				e.RejectReason = ""
				sum.Approved++
			} else {
				e.Status = model.EventStatusRejected
				e.RejectReason = res.Reason
				sum.Rejected++
				log.Debug("scorer: event rejected",
					zap.String("event_id", e.ID),
					zap.Float64("score", res.Final),
				)
			}
		}

		if err := st.UpdateEvent(ctx, e); err != nil {
			return sum, eris.Wrapf(err, "scorer: update event %s", e.ID)
		}
	}

	log.Info("scorer: run complete",
		zap.Int("scored", sum.Scored),
		zap.Int("approved", sum.Approved),
		zap.Int("rejected", sum.Rejected),
		zap.Int("invalid", sum.Invalid),
	)
	return sum, nil
}
