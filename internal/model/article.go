package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ArticleStatus is the editorial workflow state of an article.
type ArticleStatus string

const (
	ArticleDraft             ArticleStatus = "draft"
	ArticlePendingReview     ArticleStatus = "pending_review"
	ArticleUnderReview       ArticleStatus = "under_review"
	ArticleRevisionRequested ArticleStatus = "revision_requested"
	ArticleNeedsSeniorReview ArticleStatus = "needs_senior_review"
	ArticleApproved          ArticleStatus = "approved"
	ArticlePublished         ArticleStatus = "published"
	ArticleArchived          ArticleStatus = "archived"
	ArticleRetracted         ArticleStatus = "retracted"
)

// ArticleStatuses lists every workflow state in lifecycle order.
var ArticleStatuses = []ArticleStatus{
	ArticleDraft,
	ArticlePendingReview,
	ArticleUnderReview,
	ArticleRevisionRequested,
	ArticleNeedsSeniorReview,
	ArticleApproved,
	ArticlePublished,
	ArticleArchived,
	ArticleRetracted,
}

// ParseArticleStatus converts a string into a known ArticleStatus.
func ParseArticleStatus(s string) (ArticleStatus, error) {
	for _, st := range ArticleStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", eris.Errorf("model: unknown article status %q", s)
}

// Terminal reports whether the status has no outgoing transitions.
func (s ArticleStatus) Terminal() bool {
	return s == ArticleArchived || s == ArticleRetracted
}

// QualityReport is the persisted diagnostic payload of the pre-publication checks.
type QualityReport struct {
	SelfAudit    map[string]bool `json:"self_audit,omitempty"`
	WordCount    int             `json:"word_count"`
	ReadingLevel float64         `json:"reading_level"`
	BiasVerdict  string          `json:"bias_verdict,omitempty"`
	Unattributed []string        `json:"unattributed,omitempty"`
	Reasons      []string        `json:"reasons,omitempty"`
}

// Article is drafted content tied to a verified topic.
type Article struct {
	ID                string         `json:"id"`
	TopicID           string         `json:"topic_id"`
	Headline          string         `json:"headline"`
	Body              string         `json:"body"`
	BodyHTML          string         `json:"body_html,omitempty"`
	Category          string         `json:"category,omitempty"`
	Opinion           bool           `json:"opinion,omitempty"`
	Status            ArticleStatus  `json:"status"`
	ReadingLevel      float64        `json:"reading_level"`
	SelfAuditPassed   bool           `json:"self_audit_passed"`
	BiasScanPassed    bool           `json:"bias_scan_passed"`
	AttributionPassed bool           `json:"attribution_passed"`
	Quality           *QualityReport `json:"quality,omitempty"`
	Attempts          int            `json:"attempts"`
	AssignedEditor    string         `json:"assigned_editor,omitempty"`
	ApprovedBy        string         `json:"approved_by,omitempty"`
	ReviewDeadline    *time.Time     `json:"review_deadline,omitempty"`
	RevisionNotes     string         `json:"revision_notes,omitempty"`
	ManualReason      string         `json:"manual_reason,omitempty"`
	Model             string         `json:"model,omitempty"`
	PublishedAt       *time.Time     `json:"published_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Transition is one row of the append-only workflow audit log.
type Transition struct {
	ID        string        `json:"id"`
	ArticleID string        `json:"article_id"`
	From      ArticleStatus `json:"from"`
	To        ArticleStatus `json:"to"`
	Action    string        `json:"action"`
	Actor     string        `json:"actor"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
