package store

import (
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/model"
)

// Both backends build their statements here; each applies its own
// placeholder format before ToSql.

const defaultListLimit = 100

var (
	eventColumns = []string{
		"id", "title", "summary", "category", "opinion", "url", "sources", "sub_scores",
		"final_score", "status", "reject_reason", "topic_id", "discovered_at", "updated_at",
	}
	topicColumns = []string{
		"id", "event_id", "headline", "summary", "category", "opinion", "verification_status",
		"sources", "credible_count", "academic_count", "shortfall", "attribution_plan",
		"manual_reason", "created_at", "updated_at",
	}
	sourceColumns = []string{
		"id", "name", "domain", "credibility", "academic", "created_at", "updated_at",
	}
	reliabilityColumns = []string{
		"id", "source_id", "correction_id", "requested_delta", "applied_delta",
		"old_score", "new_score", "created_at",
	}
	articleColumns = []string{
		"id", "topic_id", "headline", "body", "body_html", "category", "opinion", "status",
		"reading_level", "self_audit_passed", "bias_scan_passed", "attribution_passed", "quality",
		"attempts", "assigned_editor", "approved_by", "review_deadline", "revision_notes",
		"manual_reason", "model", "published_at", "created_at", "updated_at",
	}
	transitionColumns = []string{
		"id", "article_id", "from_status", "to_status", "action", "actor", "note", "created_at",
	}
	correctionColumns = []string{
		"id", "article_id", "type", "severity", "description", "source_ids",
		"public_disclosure", "notice_published_at", "created_by", "created_at",
	}
	subscriptionColumns = []string{
		"id", "customer_id", "external_id", "email", "tier", "status", "current_period_end",
		"cancel_at_period_end", "created_at", "updated_at",
	}
)

type rowScanner interface {
	Scan(dest ...any) error
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func listLimit(n int) uint64 {
	if n <= 0 {
		return defaultListLimit
	}
	return uint64(n)
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal json")
	}
	return string(b), nil
}

func fromJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(b, v), "store: unmarshal json")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// --- events ---

func insertEventQuery(e *model.Event) (sq.InsertBuilder, error) {
	sources, err := toJSON(e.Sources)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	subs, err := toJSON(e.SubScores)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return sq.Insert("events").Columns(eventColumns...).Values(
		e.ID, e.Title, e.Summary, e.Category, e.Opinion, e.URL, sources, subs,
		e.FinalScore, string(e.Status), e.RejectReason, e.TopicID, e.DiscoveredAt.UTC(), e.UpdatedAt.UTC(),
	), nil
}

func prepareEvent(e *model.Event, now time.Time) {
	e.ID = newID(e.ID)
	if e.Status == "" {
		e.Status = model.EventStatusDiscovered
	}
	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = now
	}
	e.UpdatedAt = now
}

func updateEventQuery(e *model.Event) sq.UpdateBuilder {
	return sq.Update("events").SetMap(map[string]any{
		"final_score":   e.FinalScore,
		"status":        string(e.Status),
		"reject_reason": e.RejectReason,
		"topic_id":      e.TopicID,
		"updated_at":    e.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": e.ID})
}

func listEventsQuery(f EventFilter) sq.SelectBuilder {
	q := sq.Select(eventColumns...).From("events").OrderBy("discovered_at ASC", "id ASC")
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	q = q.Limit(listLimit(f.Limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var sources, subs []byte
	if err := row.Scan(&e.ID, &e.Title, &e.Summary, &e.Category, &e.Opinion, &e.URL, &sources, &subs,
		&e.FinalScore, &e.Status, &e.RejectReason, &e.TopicID, &e.DiscoveredAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(sources, &e.Sources); err != nil {
		return nil, err
	}
	if err := fromJSON(subs, &e.SubScores); err != nil {
		return nil, err
	}
	return &e, nil
}

// --- topics ---

func prepareTopic(t *model.Topic, now time.Time) {
	t.ID = newID(t.ID)
	if t.VerificationStatus == "" {
		t.VerificationStatus = model.VerificationPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

func topicValues(t *model.Topic) (sources, plan string, err error) {
	if sources, err = toJSON(t.Sources); err != nil {
		return "", "", err
	}
	if plan, err = toJSON(t.AttributionPlan); err != nil {
		return "", "", err
	}
	return sources, plan, nil
}

func insertTopicQuery(t *model.Topic) (sq.InsertBuilder, error) {
	sources, plan, err := topicValues(t)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return sq.Insert("topics").Columns(topicColumns...).Values(
		t.ID, t.EventID, t.Headline, t.Summary, t.Category, t.Opinion, string(t.VerificationStatus),
		sources, t.CredibleCount, t.AcademicCount, t.Shortfall, plan, t.ManualReason,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	), nil
}

func updateTopicQuery(t *model.Topic) (sq.UpdateBuilder, error) {
	sources, plan, err := topicValues(t)
	if err != nil {
		return sq.UpdateBuilder{}, err
	}
	return sq.Update("topics").SetMap(map[string]any{
		"verification_status": string(t.VerificationStatus),
		"sources":             sources,
		"credible_count":      t.CredibleCount,
		"academic_count":      t.AcademicCount,
		"shortfall":           t.Shortfall,
		"attribution_plan":    plan,
		"manual_reason":       t.ManualReason,
		"updated_at":          t.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": t.ID}), nil
}

func listTopicsQuery(f TopicFilter) sq.SelectBuilder {
	q := sq.Select(topicColumns...).From("topics").OrderBy("created_at ASC", "id ASC")
	if f.Status != "" {
		q = q.Where(sq.Eq{"verification_status": string(f.Status)})
	}
	if f.Undrafted {
		q = q.Where("NOT EXISTS (SELECT 1 FROM articles WHERE articles.topic_id = topics.id)")
	}
	if f.ManualOnly {
		q = q.Where(sq.NotEq{"manual_reason": ""})
	}
	return q.Limit(listLimit(f.Limit))
}

func scanTopic(row rowScanner) (*model.Topic, error) {
	var t model.Topic
	var sources, plan []byte
	if err := row.Scan(&t.ID, &t.EventID, &t.Headline, &t.Summary, &t.Category, &t.Opinion,
		&t.VerificationStatus, &sources, &t.CredibleCount, &t.AcademicCount, &t.Shortfall, &plan,
		&t.ManualReason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(sources, &t.Sources); err != nil {
		return nil, err
	}
	if err := fromJSON(plan, &t.AttributionPlan); err != nil {
		return nil, err
	}
	return &t, nil
}

// --- sources ---

func scanSource(row rowScanner) (*model.Source, error) {
	var s model.Source
	if err := row.Scan(&s.ID, &s.Name, &s.Domain, &s.Credibility, &s.Academic, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func casCredibilityQuery(e *model.ReliabilityEntry) sq.UpdateBuilder {
	return sq.Update("sources").
		Set("credibility", e.NewScore).
		Set("updated_at", e.CreatedAt.UTC()).
		Where(sq.Eq{"id": e.SourceID, "credibility": e.OldScore})
}

func insertReliabilityQuery(e *model.ReliabilityEntry) sq.InsertBuilder {
	return sq.Insert("reliability_log").Columns(reliabilityColumns...).Values(
		e.ID, e.SourceID, e.CorrectionID, e.RequestedDelta, e.AppliedDelta,
		e.OldScore, e.NewScore, e.CreatedAt.UTC(),
	)
}

func listReliabilityQuery(sourceID string) sq.SelectBuilder {
	q := sq.Select(reliabilityColumns...).From("reliability_log").OrderBy("created_at ASC", "id ASC")
	if sourceID != "" {
		q = q.Where(sq.Eq{"source_id": sourceID})
	}
	return q
}

func scanReliability(row rowScanner) (*model.ReliabilityEntry, error) {
	var e model.ReliabilityEntry
	if err := row.Scan(&e.ID, &e.SourceID, &e.CorrectionID, &e.RequestedDelta, &e.AppliedDelta,
		&e.OldScore, &e.NewScore, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// --- articles ---

func prepareArticle(a *model.Article, now time.Time) {
	a.ID = newID(a.ID)
	if a.Status == "" {
		a.Status = model.ArticleDraft
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

func articleValues(a *model.Article) (map[string]any, error) {
	quality, err := toJSON(a.Quality)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"headline":           a.Headline,
		"body":               a.Body,
		"body_html":          a.BodyHTML,
		"category":           a.Category,
		"opinion":            a.Opinion,
		"status":             string(a.Status),
		"reading_level":      a.ReadingLevel,
		"self_audit_passed":  a.SelfAuditPassed,
		"bias_scan_passed":   a.BiasScanPassed,
		"attribution_passed": a.AttributionPassed,
		"quality":            quality,
		"attempts":           a.Attempts,
		"assigned_editor":    a.AssignedEditor,
		"approved_by":        a.ApprovedBy,
		"review_deadline":    utcPtr(a.ReviewDeadline),
		"revision_notes":     a.RevisionNotes,
		"manual_reason":      a.ManualReason,
		"model":              a.Model,
		"published_at":       utcPtr(a.PublishedAt),
		"updated_at":         a.UpdatedAt.UTC(),
	}, nil
}

func insertArticleQuery(a *model.Article) (sq.InsertBuilder, error) {
	vals, err := articleValues(a)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	vals["id"] = a.ID
	vals["topic_id"] = a.TopicID
	vals["created_at"] = a.CreatedAt.UTC()
	return sq.Insert("articles").SetMap(vals), nil
}

// updateArticleQuery writes every mutable column, guarded on the status the
// caller last observed.
func updateArticleQuery(a *model.Article, expected model.ArticleStatus) (sq.UpdateBuilder, error) {
	vals, err := articleValues(a)
	if err != nil {
		return sq.UpdateBuilder{}, err
	}
	return sq.Update("articles").SetMap(vals).Where(sq.Eq{"id": a.ID, "status": string(expected)}), nil
}

func listArticlesQuery(f ArticleFilter) sq.SelectBuilder {
	q := sq.Select(articleColumns...).From("articles").OrderBy("created_at ASC", "id ASC")
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.AssignedEditor != "" {
		q = q.Where(sq.Eq{"assigned_editor": f.AssignedEditor})
	}
	if f.ManualOnly {
		q = q.Where(sq.NotEq{"manual_reason": ""})
	}
	q = q.Limit(listLimit(f.Limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func scanArticle(row rowScanner) (*model.Article, error) {
	var a model.Article
	var quality []byte
	if err := row.Scan(&a.ID, &a.TopicID, &a.Headline, &a.Body, &a.BodyHTML, &a.Category, &a.Opinion,
		&a.Status, &a.ReadingLevel, &a.SelfAuditPassed, &a.BiasScanPassed, &a.AttributionPassed, &quality,
		&a.Attempts, &a.AssignedEditor, &a.ApprovedBy, &a.ReviewDeadline, &a.RevisionNotes,
		&a.ManualReason, &a.Model, &a.PublishedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(quality, &a.Quality); err != nil {
		return nil, err
	}
	return &a, nil
}

func prepareTransition(tr *model.Transition, articleID string, now time.Time) {
	tr.ID = newID(tr.ID)
	tr.ArticleID = articleID
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
}

func insertTransitionQuery(tr *model.Transition) sq.InsertBuilder {
	return sq.Insert("article_transitions").Columns(transitionColumns...).Values(
		tr.ID, tr.ArticleID, string(tr.From), string(tr.To), tr.Action, tr.Actor, tr.Note, tr.CreatedAt.UTC(),
	)
}

func listTransitionsQuery(articleID string) sq.SelectBuilder {
	return sq.Select(transitionColumns...).From("article_transitions").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("created_at ASC", "id ASC")
}

func scanTransition(row rowScanner) (*model.Transition, error) {
	var tr model.Transition
	if err := row.Scan(&tr.ID, &tr.ArticleID, &tr.From, &tr.To, &tr.Action, &tr.Actor, &tr.Note, &tr.CreatedAt); err != nil {
		return nil, err
	}
	return &tr, nil
}

// --- corrections ---

func insertCorrectionQuery(c *model.Correction) (sq.InsertBuilder, error) {
	ids, err := toJSON(c.SourceIDs)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return sq.Insert("corrections").Columns(correctionColumns...).Values(
		c.ID, c.ArticleID, string(c.Type), string(c.Severity), c.Description, ids,
		c.PublicDisclosure, utcPtr(c.NoticePublishedAt), c.CreatedBy, c.CreatedAt.UTC(),
	), nil
}

func scanCorrection(row rowScanner) (*model.Correction, error) {
	var c model.Correction
	var ids []byte
	if err := row.Scan(&c.ID, &c.ArticleID, &c.Type, &c.Severity, &c.Description, &ids,
		&c.PublicDisclosure, &c.NoticePublishedAt, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	if err := fromJSON(ids, &c.SourceIDs); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- subscriptions ---

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	var s model.Subscription
	if err := row.Scan(&s.ID, &s.CustomerID, &s.ExternalID, &s.Email, &s.Tier, &s.Status,
		&s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func upsertSubscriptionQuery(sub *model.Subscription) sq.InsertBuilder {
	return sq.Insert("subscriptions").Columns(subscriptionColumns...).
		Values(sub.ID, sub.CustomerID, sub.ExternalID, sub.Email, sub.Tier, string(sub.Status),
			utcPtr(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd, sub.CreatedAt.UTC(), sub.UpdatedAt.UTC()).
		Suffix(`ON CONFLICT (customer_id) DO UPDATE SET
		   external_id = excluded.external_id, email = excluded.email, tier = excluded.tier,
		   status = excluded.status, current_period_end = excluded.current_period_end,
		   cancel_at_period_end = excluded.cancel_at_period_end, updated_at = excluded.updated_at`)
}

func insertWebhookEventQuery(id, eventType string, at time.Time) sq.InsertBuilder {
	return sq.Insert("webhook_events").Columns("id", "type", "received_at").
		Values(id, eventType, at.UTC()).
		Suffix("ON CONFLICT (id) DO NOTHING")
}

// stampSubscription fills the id and timestamps before an upsert.
func stampSubscription(sub *model.Subscription, now time.Time) {
	sub.ID = newID(sub.ID)
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
}

func insertEmailQuery(e *model.EmailLog) sq.InsertBuilder {
	return sq.Insert("email_log").Columns("id", "type", "recipient", "status", "error", "created_at").
		Values(e.ID, string(e.Type), e.Recipient, string(e.Status), e.Error, e.CreatedAt.UTC())
}

func countEmailsQuery(since time.Time, status model.EmailStatus) sq.SelectBuilder {
	return sq.Select("COUNT(*)").From("email_log").
		Where(sq.Eq{"status": string(status)}).
		Where(sq.GtOrEq{"created_at": since.UTC()})
}
