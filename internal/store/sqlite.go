package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/dailyworker/newsroom/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serialises writers; the busy timeout covers other processes.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	summary       TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	opinion       INTEGER NOT NULL DEFAULT 0,
	url           TEXT NOT NULL DEFAULT '',
	sources       TEXT NOT NULL DEFAULT '[]',
	sub_scores    TEXT NOT NULL DEFAULT '{}',
	final_score   REAL,
	status        TEXT NOT NULL DEFAULT 'discovered',
	reject_reason TEXT NOT NULL DEFAULT '',
	topic_id      TEXT NOT NULL DEFAULT '',
	discovered_at DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS topics (
	id                  TEXT PRIMARY KEY,
	event_id            TEXT NOT NULL REFERENCES events(id),
	headline            TEXT NOT NULL,
	summary             TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	opinion             INTEGER NOT NULL DEFAULT 0,
	verification_status TEXT NOT NULL DEFAULT 'pending',
	sources             TEXT NOT NULL DEFAULT '[]',
	credible_count      INTEGER NOT NULL DEFAULT 0,
	academic_count      INTEGER NOT NULL DEFAULT 0,
	shortfall           TEXT NOT NULL DEFAULT '',
	attribution_plan    TEXT NOT NULL DEFAULT '[]',
	manual_reason       TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	domain      TEXT NOT NULL UNIQUE,
	credibility REAL NOT NULL,
	academic    INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reliability_log (
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL REFERENCES sources(id),
	correction_id   TEXT NOT NULL,
	requested_delta REAL NOT NULL,
	applied_delta   REAL NOT NULL,
	old_score       REAL NOT NULL,
	new_score       REAL NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id                 TEXT PRIMARY KEY,
	topic_id           TEXT NOT NULL REFERENCES topics(id),
	headline           TEXT NOT NULL,
	body               TEXT NOT NULL DEFAULT '',
	body_html          TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	opinion            INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'draft',
	reading_level      REAL NOT NULL DEFAULT 0,
	self_audit_passed  INTEGER NOT NULL DEFAULT 0,
	bias_scan_passed   INTEGER NOT NULL DEFAULT 0,
	attribution_passed INTEGER NOT NULL DEFAULT 0,
	quality            TEXT NOT NULL DEFAULT 'null',
	attempts           INTEGER NOT NULL DEFAULT 0,
	assigned_editor    TEXT NOT NULL DEFAULT '',
	approved_by        TEXT NOT NULL DEFAULT '',
	review_deadline    DATETIME,
	revision_notes     TEXT NOT NULL DEFAULT '',
	manual_reason      TEXT NOT NULL DEFAULT '',
	model              TEXT NOT NULL DEFAULT '',
	published_at       DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS article_transitions (
	id          TEXT PRIMARY KEY,
	article_id  TEXT NOT NULL REFERENCES articles(id),
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	action      TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	note        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
	id                  TEXT PRIMARY KEY,
	article_id          TEXT NOT NULL REFERENCES articles(id),
	type                TEXT NOT NULL,
	severity            TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	source_ids          TEXT NOT NULL DEFAULT '[]',
	public_disclosure   INTEGER NOT NULL DEFAULT 1,
	notice_published_at DATETIME,
	created_by          TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                   TEXT PRIMARY KEY,
	customer_id          TEXT NOT NULL UNIQUE,
	external_id          TEXT NOT NULL DEFAULT '',
	email                TEXT NOT NULL DEFAULT '',
	tier                 TEXT NOT NULL,
	status               TEXT NOT NULL,
	current_period_end   DATETIME,
	cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS webhook_events (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	received_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS email_log (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	recipient  TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
CREATE INDEX IF NOT EXISTS idx_topics_status ON topics(verification_status);
CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_transitions_article ON article_transitions(article_id);
CREATE INDEX IF NOT EXISTS idx_reliability_source ON reliability_log(source_id);
CREATE INDEX IF NOT EXISTS idx_corrections_article ON corrections(article_id);
CREATE INDEX IF NOT EXISTS idx_email_log_created ON email_log(status, created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) exec(ctx context.Context, ex sqlExecer, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: build query")
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func sqliteList[T any](ctx context.Context, s *SQLiteStore, b sq.SelectBuilder, scan func(rowScanner) (*T, error), what string) ([]T, error) {
	query, args, err := b.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: build %s query", what)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", what)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", what)
		}
		out = append(out, *v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: list %s iterate", what)
}

func sqliteGet[T any](ctx context.Context, s *SQLiteStore, b sq.SelectBuilder, scan func(rowScanner) (*T, error), what, key string) (*T, error) {
	query, args, err := b.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: build %s query", what)
	}
	v, err := scan(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: %s %s", what, key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s %s", what, key)
	}
	return v, nil
}

func notFoundIfZero(n int64, what, id string) error {
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", what, id)
	}
	return nil
}

// --- events ---

func (s *SQLiteStore) CreateEvent(ctx context.Context, e *model.Event) error {
	prepareEvent(e, s.now())
	b, err := insertEventQuery(e)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, b.PlaceholderFormat(sq.Question))
	return eris.Wrapf(err, "sqlite: insert event %s", e.ID)
}

func (s *SQLiteStore) ImportEvents(ctx context.Context, events []model.Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: import events: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	for i := range events {
		prepareEvent(&events[i], now)
		b, err := insertEventQuery(&events[i])
		if err != nil {
			return 0, err
		}
		if _, err := s.exec(ctx, tx, b.PlaceholderFormat(sq.Question)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import event %s", events[i].ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: import events: commit")
	}
	return len(events), nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return sqliteGet(ctx, s, sq.Select(eventColumns...).From("events").Where(sq.Eq{"id": id}), scanEvent, "event", id)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	return sqliteList(ctx, s, listEventsQuery(filter), scanEvent, "events")
}

func (s *SQLiteStore) UpdateEvent(ctx context.Context, e *model.Event) error {
	e.UpdatedAt = s.now()
	n, err := s.exec(ctx, s.db, updateEventQuery(e).PlaceholderFormat(sq.Question))
	if err != nil {
		return eris.Wrapf(err, "sqlite: update event %s", e.ID)
	}
	return notFoundIfZero(n, "event", e.ID)
}

func (s *SQLiteStore) CountEventsByStatus(ctx context.Context) (map[model.EventStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count events")
	}
	defer rows.Close()

	out := make(map[model.EventStatus]int)
	for rows.Next() {
		var st model.EventStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event count")
		}
		out[st] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count events iterate")
}

// --- topics ---

func (s *SQLiteStore) CreateTopic(ctx context.Context, t *model.Topic) error {
	prepareTopic(t, s.now())
	b, err := insertTopicQuery(t)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, b.PlaceholderFormat(sq.Question))
	return eris.Wrapf(err, "sqlite: insert topic %s", t.ID)
}

func (s *SQLiteStore) GetTopic(ctx context.Context, id string) (*model.Topic, error) {
	return sqliteGet(ctx, s, sq.Select(topicColumns...).From("topics").Where(sq.Eq{"id": id}), scanTopic, "topic", id)
}

func (s *SQLiteStore) ListTopics(ctx context.Context, filter TopicFilter) ([]model.Topic, error) {
	return sqliteList(ctx, s, listTopicsQuery(filter), scanTopic, "topics")
}

func (s *SQLiteStore) UpdateTopic(ctx context.Context, t *model.Topic) error {
	t.UpdatedAt = s.now()
	b, err := updateTopicQuery(t)
	if err != nil {
		return err
	}
	n, err := s.exec(ctx, s.db, b.PlaceholderFormat(sq.Question))
	if err != nil {
		return eris.Wrapf(err, "sqlite: update topic %s", t.ID)
	}
	return notFoundIfZero(n, "topic", t.ID)
}

// --- sources ---

// UpsertSource inserts a source keyed by domain. An existing row keeps its
// credibility; only name and academic flag are refreshed. src is filled with
// the stored row.
func (s *SQLiteStore) UpsertSource(ctx context.Context, src *model.Source) error {
	now := s.now()
	src.ID = newID(src.ID)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, domain, credibility, academic, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET name = excluded.name, academic = excluded.academic, updated_at = excluded.updated_at`,
		src.ID, src.Name, src.Domain, src.Credibility, src.Academic, now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert source %s", src.Domain)
	}
	stored, err := s.GetSourceByDomain(ctx, src.Domain)
	if err != nil {
		return err
	}
	*src = *stored
	return nil
}

func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	return sqliteGet(ctx, s, sq.Select(sourceColumns...).From("sources").Where(sq.Eq{"id": id}), scanSource, "source", id)
}

func (s *SQLiteStore) GetSourceByDomain(ctx context.Context, domain string) (*model.Source, error) {
	return sqliteGet(ctx, s, sq.Select(sourceColumns...).From("sources").Where(sq.Eq{"domain": domain}), scanSource, "source domain", domain)
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	return sqliteList(ctx, s, sq.Select(sourceColumns...).From("sources").OrderBy("domain ASC"), scanSource, "sources")
}

// AppendReliability moves a source's credibility from entry.OldScore to
// entry.NewScore and appends the log row in one transaction. It returns
// ErrConflict if the stored score is no longer entry.OldScore.
func (s *SQLiteStore) AppendReliability(ctx context.Context, entry *model.ReliabilityEntry) error {
	entry.ID = newID(entry.ID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: append reliability: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := s.exec(ctx, tx, casCredibilityQuery(entry).PlaceholderFormat(sq.Question))
	if err != nil {
		return eris.Wrapf(err, "sqlite: update credibility %s", entry.SourceID)
	}
	if n == 0 {
		return eris.Wrapf(ErrConflict, "sqlite: source %s credibility is not %.2f", entry.SourceID, entry.OldScore)
	}
	if _, err := s.exec(ctx, tx, insertReliabilityQuery(entry).PlaceholderFormat(sq.Question)); err != nil {
		return eris.Wrapf(err, "sqlite: insert reliability entry for %s", entry.SourceID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: append reliability: commit")
}

func (s *SQLiteStore) ListReliabilityLog(ctx context.Context, sourceID string) ([]model.ReliabilityEntry, error) {
	return sqliteList(ctx, s, listReliabilityQuery(sourceID), scanReliability, "reliability log")
}

// --- articles ---

func (s *SQLiteStore) CreateArticle(ctx context.Context, a *model.Article) error {
	prepareArticle(a, s.now())
	b, err := insertArticleQuery(a)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, b.PlaceholderFormat(sq.Question))
	return eris.Wrapf(err, "sqlite: insert article %s", a.ID)
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	return sqliteGet(ctx, s, sq.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id}), scanArticle, "article", id)
}

func (s *SQLiteStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error) {
	return sqliteList(ctx, s, listArticlesQuery(filter), scanArticle, "articles")
}

// SaveArticle persists content and check results without changing status.
// It returns ErrConflict if the stored status differs from a.Status.
func (s *SQLiteStore) SaveArticle(ctx context.Context, a *model.Article) error {
	a.UpdatedAt = s.now()
	b, err := updateArticleQuery(a, a.Status)
	if err != nil {
		return err
	}
	n, err := s.exec(ctx, s.db, b.PlaceholderFormat(sq.Question))
	if err != nil {
		return eris.Wrapf(err, "sqlite: save article %s", a.ID)
	}
	if n == 0 {
		return s.articleMiss(ctx, a.ID, a.Status)
	}
	return nil
}

// CommitTransition writes a (already moved to tr.To) guarded on the stored
// status still being tr.From, and appends tr to the audit log.
func (s *SQLiteStore) CommitTransition(ctx context.Context, a *model.Article, tr *model.Transition) error {
	now := s.now()
	a.UpdatedAt = now
	prepareTransition(tr, a.ID, now)

	b, err := updateArticleQuery(a, tr.From)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: commit transition: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := s.exec(ctx, tx, b.PlaceholderFormat(sq.Question))
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition article %s", a.ID)
	}
	if n == 0 {
		tx.Rollback() //nolint:errcheck
		return s.articleMiss(ctx, a.ID, tr.From)
	}
	if _, err := s.exec(ctx, tx, insertTransitionQuery(tr).PlaceholderFormat(sq.Question)); err != nil {
		return eris.Wrapf(err, "sqlite: insert transition for %s", a.ID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit transition")
}

func (s *SQLiteStore) articleMiss(ctx context.Context, id string, expected model.ArticleStatus) error {
	cur, err := s.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	return eris.Wrapf(ErrConflict, "sqlite: article %s is %s, expected %s", id, cur.Status, expected)
}

func (s *SQLiteStore) ListTransitions(ctx context.Context, articleID string) ([]model.Transition, error) {
	return sqliteList(ctx, s, listTransitionsQuery(articleID), scanTransition, "transitions")
}

func (s *SQLiteStore) CountArticlesByStatus(ctx context.Context) (map[model.ArticleStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM articles GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count articles")
	}
	defer rows.Close()

	out := make(map[model.ArticleStatus]int)
	for rows.Next() {
		var st model.ArticleStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan article count")
		}
		out[st] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count articles iterate")
}

// --- corrections ---

func (s *SQLiteStore) CreateCorrection(ctx context.Context, c *model.Correction) error {
	c.ID = newID(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	b, err := insertCorrectionQuery(c)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, b.PlaceholderFormat(sq.Question))
	return eris.Wrapf(err, "sqlite: insert correction %s", c.ID)
}

func (s *SQLiteStore) ListCorrections(ctx context.Context, articleID string) ([]model.Correction, error) {
	q := sq.Select(correctionColumns...).From("corrections").OrderBy("created_at ASC", "id ASC")
	if articleID != "" {
		q = q.Where(sq.Eq{"article_id": articleID})
	}
	return sqliteList(ctx, s, q, scanCorrection, "corrections")
}

// PublishCorrectionNotice stamps the notice time once; a published notice is immutable.
func (s *SQLiteStore) PublishCorrectionNotice(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE corrections SET notice_published_at = ? WHERE id = ? AND notice_published_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: publish correction notice %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM corrections WHERE id = ?`, id).Scan(&exists); err != nil {
			return eris.Wrapf(err, "sqlite: check correction %s", id)
		}
		if exists == 0 {
			return eris.Wrapf(ErrNotFound, "sqlite: correction %s", id)
		}
		return eris.Wrapf(ErrConflict, "sqlite: correction %s notice already published", id)
	}
	return nil
}

// --- subscriptions ---

func (s *SQLiteStore) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	stampSubscription(sub, s.now())
	_, err := s.exec(ctx, s.db, upsertSubscriptionQuery(sub).PlaceholderFormat(sq.Question))
	return eris.Wrapf(err, "sqlite: upsert subscription %s", sub.CustomerID)
}

func (s *SQLiteStore) GetSubscriptionByCustomer(ctx context.Context, customerID string) (*model.Subscription, error) {
	return sqliteGet(ctx, s, sq.Select(subscriptionColumns...).From("subscriptions").Where(sq.Eq{"customer_id": customerID}), scanSubscription, "subscription", customerID)
}

// ApplyWebhookEvent records the event id and, on its first delivery only,
// upserts sub in the same transaction. It returns false for a redelivery.
func (s *SQLiteStore) ApplyWebhookEvent(ctx context.Context, id, eventType string, sub *model.Subscription) (bool, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: apply webhook event: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := s.exec(ctx, tx, insertWebhookEventQuery(id, eventType, now).PlaceholderFormat(sq.Question))
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: record webhook event %s", id)
	}
	if n == 0 {
		return false, nil
	}
	if sub != nil {
		stampSubscription(sub, now)
		if _, err := s.exec(ctx, tx, upsertSubscriptionQuery(sub).PlaceholderFormat(sq.Question)); err != nil {
			return false, eris.Wrapf(err, "sqlite: upsert subscription %s", sub.CustomerID)
		}
	}
	return true, eris.Wrap(tx.Commit(), "sqlite: commit webhook event")
}

// --- email log ---

func (s *SQLiteStore) LogEmail(ctx context.Context, entry *model.EmailLog) error {
	entry.ID = newID(entry.ID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.exec(ctx, s.db, insertEmailQuery(entry).PlaceholderFormat(sq.Question))
	return eris.Wrap(err, "sqlite: log email")
}

func (s *SQLiteStore) CountEmailsSince(ctx context.Context, since time.Time, status model.EmailStatus) (int, error) {
	query, args, err := countEmailsQuery(since, status).PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: build count emails query")
	}
	var n int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count emails")
}
