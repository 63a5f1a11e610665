package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/russross/blackfriday/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/draft"
	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/quality"
	"github.com/dailyworker/newsroom/internal/store"
	"github.com/dailyworker/newsroom/internal/workflow"
)

// DraftSummary counts the outcomes of a drafting or revision run.
type DraftSummary struct {
	Submitted int `json:"submitted"`
	Manual    int `json:"manual"`
	Rejected  int `json:"rejected"`
	Deferred  int `json:"deferred"`
}

// PublishSummary counts the outcomes of a publication run.
type PublishSummary struct {
	Published int `json:"published"`
	Blocked   int `json:"blocked"`
}

// composition is the result of the draft-and-check loop.
type composition struct {
	out      *draft.Output
	report   *quality.Report
	attempts int
}

func (n *Newsroom) maxAttempts() int {
	if n.cfg.Quality.MaxAttempts > 0 {
		return n.cfg.Quality.MaxAttempts
	}
	return 3
}

func (n *Newsroom) requestFor(t *model.Topic) draft.Request {
	l := n.gate.Limits()
	return draft.Request{
		Headline:    t.Headline,
		Summary:     t.Summary,
		Category:    t.Category,
		Opinion:     t.Opinion,
		Plan:        t.AttributionPlan,
		MinWords:    l.MinWords,
		MaxWords:    l.MaxWords,
		TargetGrade: (l.MinReadingLevel + l.MaxReadingLevel) / 2,
	}
}

// compose drafts and checks until the gate passes or attempts run out,
// feeding each failed report back into the next prompt. A nil composition
// means the drafter never produced text. A non-nil composition with an
// error means the checks could not run on the last draft.
func (n *Newsroom) compose(ctx context.Context, req draft.Request, category string) (*composition, error) {
	c := &composition{}
	for c.attempts < n.maxAttempts() {
		out, err := n.drafter.Draft(ctx, req)
		if err != nil {
			if c.out == nil {
				return nil, err
			}
			return c, err
		}
		c.attempts++
		c.out = out

		report, err := n.gate.Evaluate(ctx, quality.Draft{
			Headline: out.Headline,
			Body:     out.Body,
			Category: category,
			Opinion:  req.Opinion,
		}, req.Plan)
		if err != nil {
			c.report = nil
			return c, err
		}
		c.report = report
		if report.Passed {
			return c, nil
		}
		req.Feedback = report.Reasons
	}
	return c, nil
}

func applyComposition(a *model.Article, c *composition) {
	a.Headline = c.out.Headline
	a.Body = c.out.Body
	a.Model = c.out.Model
	a.Attempts += c.attempts
	if c.report != nil {
		c.report.Apply(a)
	} else {
		a.SelfAuditPassed, a.BiasScanPassed, a.AttributionPassed = false, false, false
	}
}

func exhaustedReason(c *composition) string {
	return fmt.Sprintf("quality gate failed after %d attempt(s): %s", c.attempts, strings.Join(c.report.Reasons, "; "))
}

// DraftArticles drafts an article for each verified topic that has none.
// Passing drafts are submitted for review. Drafts that exhaust the
// regeneration cap follow the configured exhaustion policy.
func (n *Newsroom) DraftArticles(ctx context.Context, limit int) (*DraftSummary, error) {
	if n.drafter == nil {
		return nil, eris.Wrap(ErrCollaboratorMissing, "pipeline: drafter")
	}
	topics, err := n.store.ListTopics(ctx, store.TopicFilter{
		Status:    model.VerificationVerified,
		Undrafted: true,
		Limit:     limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list verified topics")
	}

	log := zap.L().With(zap.String("stage", "draft"))
	sum := &DraftSummary{}
	for i := range topics {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		t := &topics[i]

		c, err := n.compose(ctx, n.requestFor(t), t.Category)
		if c == nil {
			t.ManualReason = fmt.Sprintf("draft collaborator unavailable: %v", err)
			if uerr := n.store.UpdateTopic(ctx, t); uerr != nil {
				return sum, eris.Wrapf(uerr, "pipeline: flag topic %s", t.ID)
			}
			n.flag(ctx, "topic", t.ID, t.Headline, t.ManualReason)
			sum.Deferred++
			continue
		}
		if t.ManualReason != "" {
			t.ManualReason = ""
			if uerr := n.store.UpdateTopic(ctx, t); uerr != nil {
				return sum, eris.Wrapf(uerr, "pipeline: clear topic %s", t.ID)
			}
			n.unflag(ctx, "topic", t.ID)
		}

		a := &model.Article{
			TopicID:  t.ID,
			Category: t.Category,
			Opinion:  t.Opinion,
			Status:   model.ArticleDraft,
		}
		applyComposition(a, c)
		if err := n.store.CreateArticle(ctx, a); err != nil {
			return sum, eris.Wrapf(err, "pipeline: create article for topic %s", t.ID)
		}
		if serr := n.settleDraft(ctx, a, c, err, sum); serr != nil {
			return sum, serr
		}
		log.Info("pipeline: article drafted",
			zap.String("article_id", a.ID),
			zap.String("topic_id", t.ID),
			zap.String("status", string(a.Status)),
			zap.Int("attempts", a.Attempts),
		)
	}
	return sum, nil
}

// settleDraft routes a freshly composed draft: submit on pass, otherwise
// flag it or archive it per the exhaustion policy. checkErr is the error
// compose returned alongside c.
func (n *Newsroom) settleDraft(ctx context.Context, a *model.Article, c *composition, checkErr error, sum *DraftSummary) error {
	switch {
	case checkErr != nil:
		if err := n.flagArticle(ctx, a, fmt.Sprintf("quality checks unavailable: %v", checkErr)); err != nil {
			return err
		}
		sum.Manual++
	case c.report.Passed:
		flagged := a.ManualReason != ""
		a.ManualReason = ""
		if err := n.transition(ctx, a, workflow.ActionSubmit, SystemActor, ""); err != nil {
			return err
		}
		if flagged {
			n.unflag(ctx, "article", a.ID)
		}
		sum.Submitted++
	case n.cfg.Quality.ExhaustionPolicy == ExhaustReject:
		if err := n.transition(ctx, a, workflow.ActionArchive, SystemActor, exhaustedReason(c)); err != nil {
			return err
		}
		sum.Rejected++
	default:
		if err := n.flagArticle(ctx, a, exhaustedReason(c)); err != nil {
			return err
		}
		sum.Manual++
	}
	return nil
}

// ErrNotRedraftable is returned when a redraft targets an article that is
// not a flagged draft.
var ErrNotRedraftable = eris.New("pipeline: article is not a flagged draft")

// Redraft regenerates a draft that was held for manual intervention, with a
// fresh attempt budget, and submits it if the gate now passes.
func (n *Newsroom) Redraft(ctx context.Context, id string) (*model.Article, *DraftSummary, error) {
	if n.drafter == nil {
		return nil, nil, eris.Wrap(ErrCollaboratorMissing, "pipeline: drafter")
	}
	a, err := n.store.GetArticle(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.Status != model.ArticleDraft || a.ManualReason == "" {
		return nil, nil, eris.Wrapf(ErrNotRedraftable, "pipeline: article %s is %s", a.ID, a.Status)
	}
	sum := &DraftSummary{}
	if err := n.redraft(ctx, a, sum); err != nil {
		return a, sum, err
	}
	return a, sum, nil
}

// RedraftArticles retries every flagged draft.
func (n *Newsroom) RedraftArticles(ctx context.Context, limit int) (*DraftSummary, error) {
	if n.drafter == nil {
		return nil, eris.Wrap(ErrCollaboratorMissing, "pipeline: drafter")
	}
	articles, err := n.store.ListArticles(ctx, store.ArticleFilter{Status: model.ArticleDraft, ManualOnly: true, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list flagged drafts")
	}
	sum := &DraftSummary{}
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := n.redraft(ctx, &articles[i], sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (n *Newsroom) redraft(ctx context.Context, a *model.Article, sum *DraftSummary) error {
	t, err := n.store.GetTopic(ctx, a.TopicID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load topic for %s", a.ID)
	}
	c, err := n.compose(ctx, n.requestFor(t), a.Category)
	if c == nil {
		if ferr := n.flagArticle(ctx, a, fmt.Sprintf("draft collaborator unavailable: %v", err)); ferr != nil {
			return ferr
		}
		sum.Deferred++
		return nil
	}
	applyComposition(a, c)
	if serr := n.settleDraft(ctx, a, c, err, sum); serr != nil {
		return serr
	}
	zap.L().Info("pipeline: article redrafted",
		zap.String("article_id", a.ID),
		zap.String("status", string(a.Status)),
		zap.Int("attempts", a.Attempts),
	)
	return nil
}

// ReviseArticles regenerates every article an editor sent back, using the
// editor's notes, and resubmits the ones that pass. Revisions that cannot
// pass stay in revision_requested with a manual-intervention reason.
func (n *Newsroom) ReviseArticles(ctx context.Context, limit int) (*DraftSummary, error) {
	if n.drafter == nil {
		return nil, eris.Wrap(ErrCollaboratorMissing, "pipeline: drafter")
	}
	articles, err := n.store.ListArticles(ctx, store.ArticleFilter{Status: model.ArticleRevisionRequested, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list revision requests")
	}

	sum := &DraftSummary{}
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		a := &articles[i]
		t, err := n.store.GetTopic(ctx, a.TopicID)
		if err != nil {
			return sum, eris.Wrapf(err, "pipeline: load topic for %s", a.ID)
		}

		req := n.requestFor(t)
		req.Headline = a.Headline
		req.RevisionNotes = a.RevisionNotes

		c, err := n.compose(ctx, req, a.Category)
		if c == nil {
			if ferr := n.flagArticle(ctx, a, fmt.Sprintf("draft collaborator unavailable: %v", err)); ferr != nil {
				return sum, ferr
			}
			sum.Deferred++
			continue
		}
		applyComposition(a, c)

		switch {
		case err != nil:
			if ferr := n.flagArticle(ctx, a, fmt.Sprintf("quality checks unavailable: %v", err)); ferr != nil {
				return sum, ferr
			}
			sum.Manual++
		case c.report.Passed:
			a.ManualReason = ""
			a.RevisionNotes = ""
			if err := n.transition(ctx, a, workflow.ActionResubmit, SystemActor, ""); err != nil {
				return sum, err
			}
			n.unflag(ctx, "article", a.ID)
			sum.Submitted++
		default:
			if ferr := n.flagArticle(ctx, a, exhaustedReason(c)); ferr != nil {
				return sum, ferr
			}
			sum.Manual++
		}
	}
	return sum, nil
}

func (n *Newsroom) flagArticle(ctx context.Context, a *model.Article, reason string) error {
	a.ManualReason = reason
	if err := n.store.SaveArticle(ctx, a); err != nil {
		return eris.Wrapf(err, "pipeline: flag article %s", a.ID)
	}
	n.flag(ctx, "article", a.ID, a.Headline, reason)
	return nil
}

// AssignEditors assigns unassigned pending articles round-robin across the
// editor roster and sets their review deadline. It returns the number assigned.
func (n *Newsroom) AssignEditors(ctx context.Context, limit int) (int, error) {
	roster := n.cfg.Workflow.Editors
	if len(roster) == 0 {
		zap.L().Warn("pipeline: no editors configured, skipping assignment")
		return 0, nil
	}
	articles, err := n.store.ListArticles(ctx, store.ArticleFilter{Status: model.ArticlePendingReview, Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list pending articles")
	}

	hours := n.cfg.Workflow.ReviewDeadlineHours
	if hours <= 0 {
		hours = 24
	}
	assigned := 0
	for i := range articles {
		a := &articles[i]
		if a.AssignedEditor != "" {
			continue
		}
		a.AssignedEditor = roster[n.rosterPos%len(roster)]
		n.rosterPos++
		deadline := n.now().UTC().Add(time.Duration(hours) * time.Hour)
		a.ReviewDeadline = &deadline
		if err := n.store.SaveArticle(ctx, a); err != nil {
			return assigned, eris.Wrapf(err, "pipeline: assign article %s", a.ID)
		}
		assigned++
		zap.L().Info("pipeline: editor assigned",
			zap.String("article_id", a.ID),
			zap.String("editor", a.AssignedEditor),
			zap.Time("deadline", deadline),
		)
	}
	return assigned, nil
}

var citationRe = regexp.MustCompile(`\[(S\d+)\]`)

// RenderHTML converts a markdown body to HTML, turning [Sx] citations into
// links to the matching attribution plan entry.
func RenderHTML(body string, plan []model.Attribution) string {
	urls := lo.Associate(plan, func(a model.Attribution) (string, string) { return a.Key, a.URL })
	linked := citationRe.ReplaceAllStringFunc(body, func(m string) string {
		key := m[1 : len(m)-1]
		if u, ok := urls[key]; ok && u != "" {
			return "[" + key + "](" + u + ")"
		}
		return m
	})
	return string(blackfriday.Run([]byte(linked)))
}

// PublishApproved publishes every approved article the publication gate
// accepts. Blocked articles stay approved and go on the board.
func (n *Newsroom) PublishApproved(ctx context.Context, limit int) (*PublishSummary, error) {
	articles, err := n.store.ListArticles(ctx, store.ArticleFilter{Status: model.ArticleApproved, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list approved articles")
	}

	sum := &PublishSummary{}
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		a := &articles[i]
		var plan []model.Attribution
		if t, err := n.store.GetTopic(ctx, a.TopicID); err == nil {
			plan = t.AttributionPlan
		}

		html := a.BodyHTML
		a.BodyHTML = RenderHTML(a.Body, plan)
		err := n.transition(ctx, a, workflow.ActionPublish, SystemActor, "")
		switch {
		case err == nil:
			n.unflag(ctx, "article", a.ID)
			sum.Published++
		case errors.Is(err, workflow.ErrPublishBlocked):
			a.BodyHTML = html
			if ferr := n.flagArticle(ctx, a, err.Error()); ferr != nil {
				return sum, ferr
			}
			sum.Blocked++
		default:
			return sum, err
		}
	}
	return sum, nil
}
