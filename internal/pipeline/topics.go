package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
	"github.com/dailyworker/newsroom/internal/verify"
)

// VerifyTopics verifies pending topics and puts every topic the search
// collaborator could not serve on the board.
func (n *Newsroom) VerifyTopics(ctx context.Context, limit int) (*verify.Summary, error) {
	sum, err := verify.Run(ctx, n.store, n.searcher, n.cfg.Verification, limit)
	if err != nil {
		return sum, err
	}
	if sum.Manual == 0 {
		return sum, nil
	}

	flagged, err := n.store.ListTopics(ctx, store.TopicFilter{
		Status:     model.VerificationInProgress,
		ManualOnly: true,
	})
	if err != nil {
		return sum, eris.Wrap(err, "pipeline: list flagged topics")
	}
	for _, t := range flagged {
		n.flag(ctx, "topic", t.ID, t.Headline, t.ManualReason)
	}
	return sum, nil
}

// RequeueTopic moves a topic stuck in_progress back to pending so the next
// verification run picks it up again.
func (n *Newsroom) RequeueTopic(ctx context.Context, id string) (*model.Topic, error) {
	t, err := n.store.GetTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.VerificationStatus != model.VerificationInProgress {
		return nil, eris.Errorf("pipeline: topic %s is %s, only in_progress topics can be requeued", id, t.VerificationStatus)
	}
	t.VerificationStatus = model.VerificationPending
	t.ManualReason = ""
	if err := n.store.UpdateTopic(ctx, t); err != nil {
		return nil, eris.Wrapf(err, "pipeline: requeue topic %s", id)
	}
	n.unflag(ctx, "topic", id)
	return t, nil
}
