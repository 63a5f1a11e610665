package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailyworker/newsroom/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedArticle creates the event -> topic -> article chain an article needs.
func seedArticle(t *testing.T, st *SQLiteStore, status model.ArticleStatus) *model.Article {
	t.Helper()
	ctx := context.Background()

	ev := &model.Event{Title: "Warehouse workers vote to unionise"}
	require.NoError(t, st.CreateEvent(ctx, ev))
	tp := &model.Topic{EventID: ev.ID, Headline: ev.Title}
	require.NoError(t, st.CreateTopic(ctx, tp))
	a := &model.Article{TopicID: tp.ID, Headline: ev.Title, Body: "body", Status: status}
	require.NoError(t, st.CreateArticle(ctx, a))
	return a
}

// --- Events ---

func TestSQLite_EventRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ev := &model.Event{
		Title:     "Port strike enters second week",
		Summary:   "Dockworkers extend action",
		Category:  "labour",
		Sources:   []string{"https://example.org/a"},
		SubScores: model.SubScores{Impact: 80, Timeliness: 90, Verifiability: 70, Regional: 60, Conflict: 50, Novelty: 40},
	}
	require.NoError(t, st.CreateEvent(ctx, ev))
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, model.EventStatusDiscovered, ev.Status)

	got, err := st.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Title, got.Title)
	assert.Equal(t, ev.Sources, got.Sources)
	assert.Equal(t, ev.SubScores, got.SubScores)
	assert.Nil(t, got.FinalScore)

	score := 72.0
	got.FinalScore = &score
	got.Status = model.EventStatusApproved
	require.NoError(t, st.UpdateEvent(ctx, got))

	again, err := st.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, again.FinalScore)
	assert.InDelta(t, 72.0, *again.FinalScore, 0.001)
	assert.Equal(t, model.EventStatusApproved, again.Status)
}

func TestSQLite_GetEvent_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetEvent(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ImportAndListEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.ImportEvents(ctx, []model.Event{{Title: "a"}, {Title: "b"}, {Title: "c", Status: model.EventStatusRejected}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	discovered, err := st.ListEvents(ctx, EventFilter{Status: model.EventStatusDiscovered})
	require.NoError(t, err)
	assert.Len(t, discovered, 2)

	limited, err := st.ListEvents(ctx, EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	counts, err := st.CountEventsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[model.EventStatusDiscovered])
	assert.Equal(t, 1, counts[model.EventStatusRejected])
}

// --- Topics ---

func TestSQLite_TopicRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ev := &model.Event{Title: "Rent strike"}
	require.NoError(t, st.CreateEvent(ctx, ev))

	tp := &model.Topic{EventID: ev.ID, Headline: "Tenants withhold rent"}
	require.NoError(t, st.CreateTopic(ctx, tp))
	assert.Equal(t, model.VerificationPending, tp.VerificationStatus)

	tp.VerificationStatus = model.VerificationVerified
	tp.Sources = []model.TopicSource{{Name: "Reuters", Domain: "reuters.com", Credibility: 92, Tier: model.Tier1}}
	tp.CredibleCount = 1
	tp.AttributionPlan = []model.Attribution{{Key: "S1", Name: "Reuters", URL: "https://reuters.com/x"}}
	require.NoError(t, st.UpdateTopic(ctx, tp))

	got, err := st.GetTopic(ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationVerified, got.VerificationStatus)
	assert.Equal(t, tp.Sources, got.Sources)
	assert.Equal(t, tp.AttributionPlan, got.AttributionPlan)

	verified, err := st.ListTopics(ctx, TopicFilter{Status: model.VerificationVerified})
	require.NoError(t, err)
	assert.Len(t, verified, 1)
}

// --- Sources & reliability ---

func TestSQLite_UpsertSourceKeepsCredibility(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	src := &model.Source{Name: "Reuters", Domain: "reuters.com", Credibility: 92}
	require.NoError(t, st.UpsertSource(ctx, src))
	id := src.ID

	again := &model.Source{Name: "Reuters News", Domain: "reuters.com", Credibility: 10}
	require.NoError(t, st.UpsertSource(ctx, again))
	assert.Equal(t, id, again.ID)
	assert.Equal(t, "Reuters News", again.Name)
	assert.InDelta(t, 92.0, again.Credibility, 0.001)

	byDomain, err := st.GetSourceByDomain(ctx, "reuters.com")
	require.NoError(t, err)
	assert.Equal(t, id, byDomain.ID)

	all, err := st.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_AppendReliability(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	src := &model.Source{Name: "Daily Blog", Domain: "blog.example", Credibility: 60}
	require.NoError(t, st.UpsertSource(ctx, src))

	entry := &model.ReliabilityEntry{
		SourceID: src.ID, CorrectionID: "c1",
		RequestedDelta: -0.5, AppliedDelta: -0.5, OldScore: 60, NewScore: 59.5,
	}
	require.NoError(t, st.AppendReliability(ctx, entry))

	got, err := st.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.InDelta(t, 59.5, got.Credibility, 0.0001)

	// Stale old score is rejected and nothing is appended.
	stale := &model.ReliabilityEntry{SourceID: src.ID, CorrectionID: "c2", RequestedDelta: -0.1, AppliedDelta: -0.1, OldScore: 60, NewScore: 59.9}
	err = st.AppendReliability(ctx, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	log, err := st.ListReliabilityLog(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "c1", log[0].CorrectionID)
	assert.InDelta(t, 60.0, log[0].OldScore, 0.0001)
	assert.InDelta(t, 59.5, log[0].NewScore, 0.0001)
}

// --- Articles ---

func TestSQLite_CommitTransition(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	a := seedArticle(t, st, model.ArticleDraft)

	a.Status = model.ArticlePendingReview
	tr := &model.Transition{From: model.ArticleDraft, To: model.ArticlePendingReview, Action: "submit", Actor: "system"}
	require.NoError(t, st.CommitTransition(ctx, a, tr))

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArticlePendingReview, got.Status)

	// Replaying the same transition fails the compare-and-set.
	stale := *got
	stale.Status = model.ArticlePendingReview
	err = st.CommitTransition(ctx, &stale, &model.Transition{From: model.ArticleDraft, To: model.ArticlePendingReview, Action: "submit"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	trs, err := st.ListTransitions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, model.ArticleDraft, trs[0].From)
	assert.Equal(t, model.ArticlePendingReview, trs[0].To)
	assert.Equal(t, "submit", trs[0].Action)
}

func TestSQLite_CommitTransition_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	a := &model.Article{ID: "ghost", Status: model.ArticlePendingReview}
	err := st.CommitTransition(context.Background(), a, &model.Transition{From: model.ArticleDraft, To: model.ArticlePendingReview})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_SaveArticle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	a := seedArticle(t, st, model.ArticleDraft)

	deadline := time.Now().Add(24 * time.Hour)
	a.Body = "revised body"
	a.ReadingLevel = 8.1
	a.SelfAuditPassed = true
	a.ReviewDeadline = &deadline
	a.Quality = &model.QualityReport{WordCount: 512, ReadingLevel: 8.1, BiasVerdict: "PASS"}
	require.NoError(t, st.SaveArticle(ctx, a))

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised body", got.Body)
	assert.True(t, got.SelfAuditPassed)
	require.NotNil(t, got.ReviewDeadline)
	assert.WithinDuration(t, deadline, *got.ReviewDeadline, time.Second)
	require.NotNil(t, got.Quality)
	assert.Equal(t, 512, got.Quality.WordCount)
	assert.Nil(t, got.PublishedAt)

	// SaveArticle never changes status.
	a.Status = model.ArticlePublished
	err = st.SaveArticle(ctx, a)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSQLite_ListArticles(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedArticle(t, st, model.ArticleDraft)
	b := seedArticle(t, st, model.ArticlePendingReview)
	b.ManualReason = "regeneration exhausted"
	require.NoError(t, st.SaveArticle(ctx, b))

	pending, err := st.ListArticles(ctx, ArticleFilter{Status: model.ArticlePendingReview})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	manual, err := st.ListArticles(ctx, ArticleFilter{ManualOnly: true})
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, b.ID, manual[0].ID)

	counts, err := st.CountArticlesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.ArticleDraft])
	assert.Equal(t, 1, counts[model.ArticlePendingReview])
}

// --- Corrections ---

func TestSQLite_CorrectionNoticeImmutable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	a := seedArticle(t, st, model.ArticlePublished)

	c := &model.Correction{
		ArticleID: a.ID, Type: model.CorrectionFactualError, Severity: model.SeverityMajor,
		Description: "wrong figure", SourceIDs: []string{"s1"}, PublicDisclosure: true, CreatedBy: "ana",
	}
	require.NoError(t, st.CreateCorrection(ctx, c))

	require.NoError(t, st.PublishCorrectionNotice(ctx, c.ID, time.Now()))
	err := st.PublishCorrectionNotice(ctx, c.ID, time.Now())
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, st.PublishCorrectionNotice(ctx, "missing", time.Now()), ErrNotFound)

	list, err := st.ListCorrections(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"s1"}, list[0].SourceIDs)
	assert.NotNil(t, list[0].NoticePublishedAt)
}

// --- Subscriptions, webhooks, email ---

func TestSQLite_SubscriptionUpsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sub := &model.Subscription{CustomerID: "cus_1", Email: "r@example.org", Tier: "supporter", Status: model.SubscriptionActive}
	require.NoError(t, st.UpsertSubscription(ctx, sub))

	sub2 := &model.Subscription{CustomerID: "cus_1", Email: "r@example.org", Tier: "sustainer", Status: model.SubscriptionPastDue}
	require.NoError(t, st.UpsertSubscription(ctx, sub2))

	got, err := st.GetSubscriptionByCustomer(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "sustainer", got.Tier)
	assert.Equal(t, model.SubscriptionPastDue, got.Status)

	_, err = st.GetSubscriptionByCustomer(ctx, "cus_2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ApplyWebhookEventIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	failed := &model.Subscription{CustomerID: "cus_1", Tier: "supporter", Status: model.SubscriptionPastDue}
	fresh, err := st.ApplyWebhookEvent(ctx, "evt_1", "invoice.payment_failed", failed)
	require.NoError(t, err)
	assert.True(t, fresh)

	paid := &model.Subscription{CustomerID: "cus_1", Tier: "supporter", Status: model.SubscriptionActive}
	fresh, err = st.ApplyWebhookEvent(ctx, "evt_2", "invoice.paid", paid)
	require.NoError(t, err)
	assert.True(t, fresh)

	// Redelivery of the older event writes nothing.
	replay := &model.Subscription{CustomerID: "cus_1", Tier: "supporter", Status: model.SubscriptionPastDue}
	fresh, err = st.ApplyWebhookEvent(ctx, "evt_1", "invoice.payment_failed", replay)
	require.NoError(t, err)
	assert.False(t, fresh)

	got, err := st.GetSubscriptionByCustomer(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, got.Status)

	fresh, err = st.ApplyWebhookEvent(ctx, "evt_3", "customer.created", nil)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestSQLite_CountEmailsSince(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.LogEmail(ctx, &model.EmailLog{Type: model.EmailWelcome, Recipient: "a@x", Status: model.EmailSent, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, st.LogEmail(ctx, &model.EmailLog{Type: model.EmailWelcome, Recipient: "b@x", Status: model.EmailSent, CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, st.LogEmail(ctx, &model.EmailLog{Type: model.EmailWelcome, Recipient: "c@x", Status: model.EmailDeferred, CreatedAt: now.Add(-time.Minute)}))

	n, err := st.CountEmailsSince(ctx, now.Add(-24*time.Hour), model.EmailSent)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
