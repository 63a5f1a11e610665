// Package workflow is the editorial state machine. Every article status
// change goes through Next, and publication additionally goes through the
// PublicationGate.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/model"
)

var (
	// ErrIllegalTransition is returned for an action the current state does not allow.
	ErrIllegalTransition = eris.New("workflow: illegal transition")
	// ErrGuardFailed is returned when a legal action is missing something it needs.
	ErrGuardFailed = eris.New("workflow: guard failed")
	// ErrPublishBlocked is returned when the publication gate rejects an article.
	ErrPublishBlocked = eris.New("workflow: publication blocked")
)

// State is an article workflow state.
type State = model.ArticleStatus

// Action triggers a transition.
type Action string

const (
	ActionSubmit          Action = "submit"
	ActionClaim           Action = "claim"
	ActionApprove         Action = "approve"
	ActionRequestRevision Action = "request_revision"
	ActionEscalate        Action = "escalate"
	ActionResubmit        Action = "resubmit"
	ActionPublish         Action = "publish"
	ActionArchive         Action = "archive"
	ActionRetract         Action = "retract"
)

// Actions lists every action.
var Actions = []Action{
	ActionSubmit, ActionClaim, ActionApprove, ActionRequestRevision, ActionEscalate,
	ActionResubmit, ActionPublish, ActionArchive, ActionRetract,
}

// ParseAction converts a string into a known Action.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", eris.Errorf("workflow: unknown action %q", s)
}

type edge struct {
	from   State
	action Action
}

// transitions is the complete table. Anything absent is illegal.
var transitions = map[edge]State{
	{model.ArticleDraft, ActionSubmit}: model.ArticlePendingReview,
	// Discarding a draft that never reached review.
	{model.ArticleDraft, ActionArchive}: model.ArticleArchived,

	{model.ArticlePendingReview, ActionClaim}: model.ArticleUnderReview,

	{model.ArticleUnderReview, ActionApprove}:         model.ArticleApproved,
	{model.ArticleUnderReview, ActionRequestRevision}: model.ArticleRevisionRequested,
	{model.ArticleUnderReview, ActionEscalate}:        model.ArticleNeedsSeniorReview,

	{model.ArticleNeedsSeniorReview, ActionApprove}:         model.ArticleApproved,
	{model.ArticleNeedsSeniorReview, ActionRequestRevision}: model.ArticleRevisionRequested,

	{model.ArticleRevisionRequested, ActionResubmit}: model.ArticlePendingReview,

	{model.ArticleApproved, ActionPublish}: model.ArticlePublished,

	{model.ArticlePublished, ActionArchive}: model.ArticleArchived,
	{model.ArticlePublished, ActionRetract}: model.ArticleRetracted,
}

// Next returns the state reached by applying action in state.
func Next(state State, action Action) (State, error) {
	if to, ok := transitions[edge{state, action}]; ok {
		return to, nil
	}
	return "", eris.Wrapf(ErrIllegalTransition, "workflow: %s from %s", action, state)
}

// Allowed lists the actions legal in state.
func Allowed(state State) []Action {
	var out []Action
	for _, a := range Actions {
		if _, ok := transitions[edge{state, a}]; ok {
			out = append(out, a)
		}
	}
	return out
}

// PublicationGate holds the hard conditions for publishing.
type PublicationGate struct {
	MinReadingLevel float64
	MaxReadingLevel float64
}

// DefaultGate returns the gate with the closed [7.5, 8.5] reading band.
func DefaultGate() PublicationGate {
	return PublicationGate{MinReadingLevel: 7.5, MaxReadingLevel: 8.5}
}

// Failures lists every unmet publication condition. Empty means publishable.
func (g PublicationGate) Failures(a *model.Article) []string {
	var fails []string
	if !a.SelfAuditPassed {
		fails = append(fails, "self-audit not passed")
	}
	if !a.BiasScanPassed {
		fails = append(fails, "bias scan not passed")
	}
	if !a.AttributionPassed {
		fails = append(fails, "source attribution not passed")
	}
	if a.ReadingLevel < g.MinReadingLevel || a.ReadingLevel > g.MaxReadingLevel {
		fails = append(fails, fmt.Sprintf("reading level %.1f outside [%.1f, %.1f]",
			a.ReadingLevel, g.MinReadingLevel, g.MaxReadingLevel))
	}
	if a.AssignedEditor == "" {
		fails = append(fails, "no assigned editor")
	}
	if a.ApprovedBy == "" {
		fails = append(fails, "no recorded editorial approval")
	}
	return fails
}

// Check returns ErrPublishBlocked naming every unmet condition, or nil.
func (g PublicationGate) Check(a *model.Article) error {
	if fails := g.Failures(a); len(fails) > 0 {
		return eris.Wrapf(ErrPublishBlocked, "workflow: article %s: %s", a.ID, strings.Join(fails, "; "))
	}
	return nil
}

// Machine applies actions to articles.
type Machine struct {
	Gate PublicationGate
}

// NewMachine creates a machine with the given publication gate.
func NewMachine(gate PublicationGate) *Machine {
	return &Machine{Gate: gate}
}

// Apply validates action against a and its guards, then mutates a to the
// new state and returns the audit row to persist alongside it. On error a
// is left untouched.
func (m *Machine) Apply(a *model.Article, action Action, actor, note string, now time.Time) (*model.Transition, error) {
	to, err := Next(a.Status, action)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionClaim, ActionApprove, ActionRequestRevision, ActionEscalate:
		if actor == "" {
			return nil, eris.Wrapf(ErrGuardFailed, "workflow: %s requires an editor", action)
		}
	}
	switch action {
	case ActionApprove:
		if a.Status == model.ArticleUnderReview && a.AssignedEditor != "" && actor != a.AssignedEditor {
			return nil, eris.Wrapf(ErrGuardFailed, "workflow: article %s is assigned to %s", a.ID, a.AssignedEditor)
		}
	case ActionRequestRevision:
		if strings.TrimSpace(note) == "" {
			return nil, eris.Wrap(ErrGuardFailed, "workflow: request_revision requires notes")
		}
	case ActionPublish:
		if err := m.Gate.Check(a); err != nil {
			return nil, err
		}
	}

	tr := &model.Transition{
		ArticleID: a.ID,
		From:      a.Status,
		To:        to,
		Action:    string(action),
		Actor:     actor,
		Note:      note,
		CreatedAt: now,
	}

	switch action {
	case ActionClaim:
		a.AssignedEditor = actor
	case ActionApprove:
		a.ApprovedBy = actor
	case ActionRequestRevision:
		a.RevisionNotes = note
	case ActionResubmit:
		a.ApprovedBy = ""
	case ActionPublish:
		t := now
		a.PublishedAt = &t
	}
	a.Status = to
	return tr, nil
}
