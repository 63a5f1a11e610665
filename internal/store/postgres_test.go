package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailyworker/newsroom/internal/model"
)

var fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := newPostgresStore(mock)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestPostgresStore_GetArticle_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, topic_id, headline, .* FROM articles WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetArticle(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEvents_Filtered(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	score := 72.5
	rows := pgxmock.NewRows(eventColumns).AddRow(
		"e1", "Council vote", "", "", false, "", []byte(`["https://a.example"]`),
		[]byte(`{"impact":80,"timeliness":90,"verifiability":70,"regional":60,"conflict":50,"novelty":40}`),
		&score, model.EventStatusDiscovered, "", "", fixedNow, fixedNow,
	)
	mock.ExpectQuery(`SELECT .* FROM events WHERE status = \$1 ORDER BY discovered_at ASC, id ASC LIMIT 5`).
		WithArgs("discovered").
		WillReturnRows(rows)

	events, err := s.ListEvents(context.Background(), EventFilter{Status: model.EventStatusDiscovered, Limit: 5})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
	assert.InDelta(t, 80.0, events[0].SubScores.Impact, 0.001)
	assert.Equal(t, []string{"https://a.example"}, events[0].Sources)
	require.NotNil(t, events[0].FinalScore)
	assert.InDelta(t, 72.5, *events[0].FinalScore, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportEvents_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"events"}, eventColumns).WillReturnResult(2)

	n, err := s.ImportEvents(context.Background(), []model.Event{{Title: "a"}, {Title: "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendReliability(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	entry := &model.ReliabilityEntry{
		ID: "r1", SourceID: "s1", CorrectionID: "c1",
		RequestedDelta: -0.5, AppliedDelta: -0.5, OldScore: 80, NewScore: 79.5,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sources SET credibility = \$1, updated_at = \$2 WHERE credibility = \$3 AND id = \$4`).
		WithArgs(79.5, fixedNow, 80.0, "s1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO reliability_log`).
		WithArgs("r1", "s1", "c1", -0.5, -0.5, 80.0, 79.5, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.AppendReliability(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendReliability_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sources SET credibility`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.AppendReliability(context.Background(), &model.ReliabilityEntry{SourceID: "s1", OldScore: 80, NewScore: 79.9})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitTransition_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	a := &model.Article{ID: "a1", Status: model.ArticlePublished}
	tr := &model.Transition{From: model.ArticleApproved, To: model.ArticlePublished, Action: "publish"}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE articles SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT status FROM articles WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("published"))
	mock.ExpectRollback()

	err := s.CommitTransition(context.Background(), a, tr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "expected approved")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CommitTransition_AppendsRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	a := &model.Article{ID: "a1", Status: model.ArticlePendingReview}
	tr := &model.Transition{ID: "t1", From: model.ArticleDraft, To: model.ArticlePendingReview, Action: "submit", Actor: "system"}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE articles SET`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO article_transitions`).
		WithArgs("t1", "a1", "draft", "pending_review", "submit", "system", "", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.CommitTransition(context.Background(), a, tr))
	assert.Equal(t, "a1", tr.ArticleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyWebhookEvent_DuplicateSkipsUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO webhook_events .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("evt_1", "invoice.paid", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	sub := &model.Subscription{CustomerID: "cus_1", Status: model.SubscriptionActive}
	fresh, err := s.ApplyWebhookEvent(context.Background(), "evt_1", "invoice.paid", sub)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyWebhookEvent_FirstDeliveryUpserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO webhook_events .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("evt_2", "invoice.paid", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO subscriptions .* ON CONFLICT \(customer_id\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "cus_1", "", "", "supporter", "active", pgxmock.AnyArg(), false, fixedNow, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	sub := &model.Subscription{CustomerID: "cus_1", Tier: "supporter", Status: model.SubscriptionActive}
	fresh, err := s.ApplyWebhookEvent(context.Background(), "evt_2", "invoice.paid", sub)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.NotEmpty(t, sub.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountEmailsSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := fixedNow.Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM email_log WHERE status = \$1 AND created_at >= \$2`).
		WithArgs("sent", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountEmailsSince(context.Background(), since, model.EmailSent)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountArticlesByStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM articles GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("draft", 3).
			AddRow("published", 7))

	counts, err := s.CountArticlesByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.ArticleDraft])
	assert.Equal(t, 7, counts[model.ArticlePublished])
	assert.NoError(t, mock.ExpectationsWereMet())
}
