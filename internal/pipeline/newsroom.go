// Package pipeline runs the newsroom's sequential batch stages over the
// shared store and exposes the editor actions that move articles through
// review.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/config"
	"github.com/dailyworker/newsroom/internal/draft"
	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/quality"
	"github.com/dailyworker/newsroom/internal/reliability"
	"github.com/dailyworker/newsroom/internal/store"
	"github.com/dailyworker/newsroom/internal/verify"
	"github.com/dailyworker/newsroom/internal/workflow"
	"github.com/dailyworker/newsroom/pkg/notion"
)

// SystemActor is recorded on transitions the batch stages make.
const SystemActor = "system"

// Exhaustion policies for the regeneration loop.
const (
	ExhaustManualReview = "manual_review"
	ExhaustReject       = "reject"
)

// Board receives items that need a human. It is optional.
type Board interface {
	Upsert(ctx context.Context, item notion.BoardItem) (*notion.BoardItem, error)
	Resolve(ctx context.Context, key string) error
}

// Newsroom holds the dependencies every stage shares.
type Newsroom struct {
	cfg      *config.Config
	store    store.Store
	drafter  draft.Drafter
	gate     *quality.Gate
	searcher verify.Searcher
	board    Board
	machine  *workflow.Machine
	loop     *reliability.Loop

	// next roster index for AssignEditors
	rosterPos int
	now       func() time.Time
}

// New creates a Newsroom. drafter, scanner, searcher and board may be nil;
// stages that need a missing collaborator flag their items for manual work.
func New(
	cfg *config.Config,
	st store.Store,
	drafter draft.Drafter,
	scanner quality.BiasScanner,
	searcher verify.Searcher,
	board Board,
) *Newsroom {
	limits := quality.LimitsFromConfig(cfg.Quality)
	if scanner == nil {
		scanner = unavailableScanner{}
	}
	return &Newsroom{
		cfg:      cfg,
		store:    st,
		drafter:  drafter,
		gate:     quality.NewGate(scanner, limits),
		searcher: searcher,
		board:    board,
		machine: workflow.NewMachine(workflow.PublicationGate{
			MinReadingLevel: limits.MinReadingLevel,
			MaxReadingLevel: limits.MaxReadingLevel,
		}),
		loop: reliability.NewLoop(st, reliability.PolicyFromConfig(cfg.Reliability)),
		now:  time.Now,
	}
}

// ErrCollaboratorMissing is returned by stand-ins for unconfigured collaborators.
var ErrCollaboratorMissing = eris.New("pipeline: collaborator not configured")

type unavailableScanner struct{}

func (unavailableScanner) Scan(context.Context, quality.Draft) (string, error) {
	return "", eris.Wrap(ErrCollaboratorMissing, "pipeline: bias scanner")
}

// Store returns the underlying store.
func (n *Newsroom) Store() store.Store { return n.store }

// transition applies action to a and persists it with its audit row.
func (n *Newsroom) transition(ctx context.Context, a *model.Article, action workflow.Action, actor, note string) error {
	before := *a
	tr, err := n.machine.Apply(a, action, actor, note, n.now().UTC())
	if err != nil {
		zap.L().Warn("pipeline: transition rejected",
			zap.String("article_id", a.ID),
			zap.String("status", string(a.Status)),
			zap.String("action", string(action)),
			zap.String("actor", actor),
			zap.Error(err),
		)
		return err
	}
	if err := n.store.CommitTransition(ctx, a, tr); err != nil {
		*a = before
		return eris.Wrapf(err, "pipeline: commit %s for %s", action, a.ID)
	}
	zap.L().Info("pipeline: article transitioned",
		zap.String("article_id", a.ID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("actor", actor),
	)
	return nil
}

func boardKey(kind, id string) string { return kind + ":" + id }

// flag records a manual-intervention item on the board. Board failures are
// logged; the store row already carries the reason.
func (n *Newsroom) flag(ctx context.Context, kind, id, title, reason string) {
	zap.L().Warn("pipeline: flagged for manual intervention",
		zap.String("kind", kind), zap.String("id", id), zap.String("reason", reason))
	if n.board == nil {
		return
	}
	if _, err := n.board.Upsert(ctx, notion.BoardItem{
		Key:    boardKey(kind, id),
		Title:  title,
		Kind:   kind,
		Reason: reason,
	}); err != nil {
		zap.L().Warn("pipeline: board update failed", zap.String("id", id), zap.Error(err))
	}
}

func (n *Newsroom) unflag(ctx context.Context, kind, id string) {
	if n.board == nil {
		return
	}
	if err := n.board.Resolve(ctx, boardKey(kind, id)); err != nil {
		zap.L().Warn("pipeline: board resolve failed", zap.String("id", id), zap.Error(err))
	}
}
