package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
	"github.com/dailyworker/newsroom/internal/workflow"
)

var (
	// ErrNotSeniorEditor is returned when an editor outside the senior roster
	// approves an escalated article.
	ErrNotSeniorEditor = eris.New("pipeline: editor is not on the senior roster")
	// ErrInvalidCorrection is returned when a correction fails validation.
	ErrInvalidCorrection = eris.New("pipeline: invalid correction")
)

// Act applies an editor action to the article with id and persists it.
func (n *Newsroom) Act(ctx context.Context, id string, action workflow.Action, actor, note string) (*model.Article, error) {
	a, err := n.store.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if action == workflow.ActionApprove && a.Status == model.ArticleNeedsSeniorReview {
		if seniors := n.cfg.Workflow.SeniorEditors; len(seniors) > 0 && !lo.Contains(seniors, actor) {
			return nil, eris.Wrapf(ErrNotSeniorEditor, "pipeline: %s approving %s", actor, id)
		}
	}
	if err := n.transition(ctx, a, action, actor, note); err != nil {
		return nil, err
	}
	return a, nil
}

// Claim takes an assigned or unassigned pending article into review.
func (n *Newsroom) Claim(ctx context.Context, id, editor string) (*model.Article, error) {
	return n.Act(ctx, id, workflow.ActionClaim, editor, "")
}

// Approve approves an article under review or awaiting senior review.
func (n *Newsroom) Approve(ctx context.Context, id, editor, note string) (*model.Article, error) {
	return n.Act(ctx, id, workflow.ActionApprove, editor, note)
}

// RequestRevision sends an article back to the drafter with notes.
func (n *Newsroom) RequestRevision(ctx context.Context, id, editor, notes string) (*model.Article, error) {
	return n.Act(ctx, id, workflow.ActionRequestRevision, editor, notes)
}

// Escalate hands an article to the senior roster.
func (n *Newsroom) Escalate(ctx context.Context, id, editor, note string) (*model.Article, error) {
	return n.Act(ctx, id, workflow.ActionEscalate, editor, note)
}

// Archive takes a draft or published article out of circulation.
func (n *Newsroom) Archive(ctx context.Context, id, actor, note string) (*model.Article, error) {
	return n.Act(ctx, id, workflow.ActionArchive, actor, note)
}

// CorrectionOutcome reports everything a filed correction changed.
type CorrectionOutcome struct {
	Correction *model.Correction        `json:"correction"`
	Article    *model.Article           `json:"article"`
	Retracted  bool                     `json:"retracted"`
	Entries    []model.ReliabilityEntry `json:"reliability_entries"`
}

func validateCorrection(c *model.Correction) error {
	var errs []string
	if c.ArticleID == "" {
		errs = append(errs, "article id is required")
	}
	if _, err := model.ParseCorrectionType(string(c.Type)); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := model.ParseSeverity(string(c.Severity)); err != nil {
		errs = append(errs, err.Error())
	}
	if strings.TrimSpace(c.Description) == "" {
		errs = append(errs, "description is required")
	}
	if c.CreatedBy == "" {
		errs = append(errs, "created_by is required")
	}
	if c.Type == model.CorrectionRetraction && c.Severity != model.SeverityCritical {
		errs = append(errs, "a retraction must have critical severity")
	}
	if len(errs) > 0 {
		return eris.Wrap(ErrInvalidCorrection, strings.Join(errs, "; "))
	}
	return nil
}

// FileCorrection records a correction against a published (or already
// retracted) article. Only critical corrections retract a published
// article. Every implicated source's reliability is adjusted
// through the feedback loop, and the public notice is stamped when the
// correction is disclosed.
func (n *Newsroom) FileCorrection(ctx context.Context, c *model.Correction) (*CorrectionOutcome, error) {
	if err := validateCorrection(c); err != nil {
		return nil, err
	}
	a, err := n.store.GetArticle(ctx, c.ArticleID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.ArticlePublished && a.Status != model.ArticleRetracted {
		return nil, eris.Wrapf(ErrInvalidCorrection, "pipeline: article %s is %s, corrections apply to published articles", a.ID, a.Status)
	}
	c.SourceIDs = lo.Uniq(c.SourceIDs)
	for _, id := range c.SourceIDs {
		if _, err := n.store.GetSource(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, eris.Wrapf(ErrInvalidCorrection, "pipeline: unknown source %s", id)
			}
			return nil, eris.Wrapf(err, "pipeline: load source %s", id)
		}
	}
	if err := n.store.CreateCorrection(ctx, c); err != nil {
		return nil, eris.Wrap(err, "pipeline: create correction")
	}

	out := &CorrectionOutcome{Correction: c, Article: a}
	log := zap.L().With(zap.String("stage", "correction"), zap.String("correction_id", c.ID), zap.String("article_id", a.ID))

	if a.Status == model.ArticlePublished && c.Severity == model.SeverityCritical {
		if err := n.transition(ctx, a, workflow.ActionRetract, c.CreatedBy, c.Description); err != nil {
			return out, err
		}
		out.Retracted = true
	}

	entries, err := n.loop.ApplyCorrection(ctx, c)
	out.Entries = entries
	if err != nil {
		return out, eris.Wrap(err, "pipeline: apply reliability feedback")
	}

	if c.PublicDisclosure {
		at := n.now().UTC()
		if err := n.store.PublishCorrectionNotice(ctx, c.ID, at); err != nil {
			return out, eris.Wrap(err, "pipeline: publish correction notice")
		}
		c.NoticePublishedAt = &at
	}
	log.Info("pipeline: correction filed",
		zap.String("type", string(c.Type)),
		zap.String("severity", string(c.Severity)),
		zap.Bool("retracted", out.Retracted),
		zap.Int("sources_adjusted", len(entries)),
	)
	return out, nil
}
