package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StageStatus is the outcome of one daily stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
	StageSkipped  StageStatus = "skipped"
)

// StageResult records one stage of a daily run.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DailyResult is the full record of a daily run.
type DailyResult struct {
	StartedAt time.Time     `json:"started_at"`
	Stages    []StageResult `json:"stages"`
}

// Failed reports whether any stage failed.
func (r *DailyResult) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == StageFailed {
			return true
		}
	}
	return false
}

// RunDaily runs the batch stages strictly in order: score, promote, verify,
// draft, assign, revise, publish. Each stage sees the committed output of
// the one before it. The first failing stage ends the run and its error is
// returned alongside the partial result.
func (n *Newsroom) RunDaily(ctx context.Context, limit int) (*DailyResult, error) {
	log := zap.L().With(zap.String("stage", "daily"))
	result := &DailyResult{StartedAt: n.now().UTC()}
	log.Info("pipeline: daily run starting", zap.Int("limit", limit))

	var runErr error
	trackStage := func(name string, fn func() (map[string]any, error)) {
		if runErr != nil {
			result.Stages = append(result.Stages, StageResult{Name: name, Status: StageSkipped})
			return
		}
		start := time.Now()
		meta, err := fn()
		sr := StageResult{
			Name:     name,
			Status:   StageComplete,
			Duration: time.Since(start).Milliseconds(),
			Metadata: meta,
		}
		if err != nil {
			sr.Status = StageFailed
			sr.Error = err.Error()
			runErr = err
			log.Error("pipeline: stage failed", zap.String("name", name), zap.Int64("duration_ms", sr.Duration), zap.Error(err))
		} else {
			log.Info("pipeline: stage complete", zap.String("name", name), zap.Int64("duration_ms", sr.Duration), zap.Any("metadata", meta))
		}
		result.Stages = append(result.Stages, sr)
	}

	trackStage("score", func() (map[string]any, error) {
		s, err := n.ScoreEvents(ctx, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"approved": s.Approved, "rejected": s.Rejected, "invalid": s.Invalid}, nil
	})
	trackStage("promote", func() (map[string]any, error) {
		c, err := n.PromoteEvents(ctx, limit)
		return map[string]any{"promoted": c}, err
	})
	trackStage("verify", func() (map[string]any, error) {
		s, err := n.VerifyTopics(ctx, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"verified": s.Verified, "partial": s.Partial, "failed": s.Failed, "manual": s.Manual}, nil
	})
	trackStage("draft", func() (map[string]any, error) {
		if n.drafter == nil {
			return map[string]any{"reason": "no drafter"}, nil
		}
		s, err := n.DraftArticles(ctx, limit)
		return draftMeta(s), err
	})
	trackStage("assign", func() (map[string]any, error) {
		c, err := n.AssignEditors(ctx, limit)
		return map[string]any{"assigned": c}, err
	})
	trackStage("revise", func() (map[string]any, error) {
		if n.drafter == nil {
			return map[string]any{"reason": "no drafter"}, nil
		}
		s, err := n.ReviseArticles(ctx, limit)
		return draftMeta(s), err
	})
	trackStage("publish", func() (map[string]any, error) {
		s, err := n.PublishApproved(ctx, limit)
		if s == nil {
			return nil, err
		}
		return map[string]any{"published": s.Published, "blocked": s.Blocked}, err
	})

	log.Info("pipeline: daily run finished", zap.Bool("failed", result.Failed()))
	return result, runErr
}

func draftMeta(s *DraftSummary) map[string]any {
	if s == nil {
		return nil
	}
	return map[string]any{
		"submitted": s.Submitted,
		"manual":    s.Manual,
		"rejected":  s.Rejected,
		"deferred":  s.Deferred,
	}
}
