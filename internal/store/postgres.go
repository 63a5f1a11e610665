package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/db"
	"github.com/dailyworker/newsroom/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	summary       TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	opinion       BOOLEAN NOT NULL DEFAULT false,
	url           TEXT NOT NULL DEFAULT '',
	sources       JSONB NOT NULL DEFAULT '[]',
	sub_scores    JSONB NOT NULL DEFAULT '{}',
	final_score   DOUBLE PRECISION,
	status        TEXT NOT NULL DEFAULT 'discovered',
	reject_reason TEXT NOT NULL DEFAULT '',
	topic_id      TEXT NOT NULL DEFAULT '',
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS topics (
	id                  TEXT PRIMARY KEY,
	event_id            TEXT NOT NULL REFERENCES events(id),
	headline            TEXT NOT NULL,
	summary             TEXT NOT NULL DEFAULT '',
	category            TEXT NOT NULL DEFAULT '',
	opinion             BOOLEAN NOT NULL DEFAULT false,
	verification_status TEXT NOT NULL DEFAULT 'pending',
	sources             JSONB NOT NULL DEFAULT '[]',
	credible_count      INTEGER NOT NULL DEFAULT 0,
	academic_count      INTEGER NOT NULL DEFAULT 0,
	shortfall           TEXT NOT NULL DEFAULT '',
	attribution_plan    JSONB NOT NULL DEFAULT '[]',
	manual_reason       TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	domain      TEXT NOT NULL UNIQUE,
	credibility DOUBLE PRECISION NOT NULL CHECK (credibility >= 0 AND credibility <= 100),
	academic    BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reliability_log (
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL REFERENCES sources(id),
	correction_id   TEXT NOT NULL,
	requested_delta DOUBLE PRECISION NOT NULL CHECK (requested_delta BETWEEN -0.5 AND 0.5),
	applied_delta   DOUBLE PRECISION NOT NULL,
	old_score       DOUBLE PRECISION NOT NULL,
	new_score       DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS articles (
	id                 TEXT PRIMARY KEY,
	topic_id           TEXT NOT NULL REFERENCES topics(id),
	headline           TEXT NOT NULL,
	body               TEXT NOT NULL DEFAULT '',
	body_html          TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	opinion            BOOLEAN NOT NULL DEFAULT false,
	status             TEXT NOT NULL DEFAULT 'draft',
	reading_level      DOUBLE PRECISION NOT NULL DEFAULT 0,
	self_audit_passed  BOOLEAN NOT NULL DEFAULT false,
	bias_scan_passed   BOOLEAN NOT NULL DEFAULT false,
	attribution_passed BOOLEAN NOT NULL DEFAULT false,
	quality            JSONB,
	attempts           INTEGER NOT NULL DEFAULT 0,
	assigned_editor    TEXT NOT NULL DEFAULT '',
	approved_by        TEXT NOT NULL DEFAULT '',
	review_deadline    TIMESTAMPTZ,
	revision_notes     TEXT NOT NULL DEFAULT '',
	manual_reason      TEXT NOT NULL DEFAULT '',
	model              TEXT NOT NULL DEFAULT '',
	published_at       TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS article_transitions (
	id          TEXT PRIMARY KEY,
	article_id  TEXT NOT NULL REFERENCES articles(id),
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	action      TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	note        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS corrections (
	id                  TEXT PRIMARY KEY,
	article_id          TEXT NOT NULL REFERENCES articles(id),
	type                TEXT NOT NULL,
	severity            TEXT NOT NULL,
	description         TEXT NOT NULL DEFAULT '',
	source_ids          JSONB NOT NULL DEFAULT '[]',
	public_disclosure   BOOLEAN NOT NULL DEFAULT true,
	notice_published_at TIMESTAMPTZ,
	created_by          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                   TEXT PRIMARY KEY,
	customer_id          TEXT NOT NULL UNIQUE,
	external_id          TEXT NOT NULL DEFAULT '',
	email                TEXT NOT NULL DEFAULT '',
	tier                 TEXT NOT NULL,
	status               TEXT NOT NULL,
	current_period_end   TIMESTAMPTZ,
	cancel_at_period_end BOOLEAN NOT NULL DEFAULT false,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS webhook_events (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_log (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	recipient  TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
CREATE INDEX IF NOT EXISTS idx_topics_status ON topics(verification_status);
CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_articles_manual ON articles(manual_reason) WHERE manual_reason <> '';
CREATE INDEX IF NOT EXISTS idx_transitions_article ON article_transitions(article_id);
CREATE INDEX IF NOT EXISTS idx_reliability_source ON reliability_log(source_id);
CREATE INDEX IF NOT EXISTS idx_corrections_article ON corrections(article_id);
CREATE INDEX IF NOT EXISTS idx_email_log_created ON email_log(status, created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) exec(ctx context.Context, ex pgExecer, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "postgres: build query")
	}
	tag, err := ex.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func pgList[T any](ctx context.Context, s *PostgresStore, b sq.SelectBuilder, scan func(rowScanner) (*T, error), what string) ([]T, error) {
	query, args, err := b.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: build %s query", what)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", what)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", what)
		}
		out = append(out, *v)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: list %s iterate", what)
}

func pgGet[T any](ctx context.Context, s *PostgresStore, b sq.SelectBuilder, scan func(rowScanner) (*T, error), what, key string) (*T, error) {
	query, args, err := b.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: build %s query", what)
	}
	v, err := scan(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: %s %s", what, key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s %s", what, key)
	}
	return v, nil
}

// --- events ---

func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	prepareEvent(e, s.now())
	b, err := insertEventQuery(e)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.pool, b.PlaceholderFormat(sq.Dollar))
	return eris.Wrapf(err, "postgres: insert event %s", e.ID)
}

// ImportEvents bulk-loads events with COPY.
func (s *PostgresStore) ImportEvents(ctx context.Context, events []model.Event) (int, error) {
	now := s.now()
	rows := make([][]any, 0, len(events))
	for i := range events {
		e := &events[i]
		prepareEvent(e, now)
		sources, err := toJSON(e.Sources)
		if err != nil {
			return 0, err
		}
		subs, err := toJSON(e.SubScores)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			e.ID, e.Title, e.Summary, e.Category, e.Opinion, e.URL, sources, subs,
			e.FinalScore, string(e.Status), e.RejectReason, e.TopicID, e.DiscoveredAt.UTC(), e.UpdatedAt.UTC(),
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, "events", eventColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import events")
	}
	return int(n), nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return pgGet(ctx, s, sq.Select(eventColumns...).From("events").Where(sq.Eq{"id": id}), scanEvent, "event", id)
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	return pgList(ctx, s, listEventsQuery(filter), scanEvent, "events")
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, e *model.Event) error {
	e.UpdatedAt = s.now()
	n, err := s.exec(ctx, s.pool, updateEventQuery(e).PlaceholderFormat(sq.Dollar))
	if err != nil {
		return eris.Wrapf(err, "postgres: update event %s", e.ID)
	}
	return notFoundIfZero(n, "event", e.ID)
}

func (s *PostgresStore) CountEventsByStatus(ctx context.Context) (map[model.EventStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count events")
	}
	defer rows.Close()

	out := make(map[model.EventStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event count")
		}
		out[model.EventStatus(st)] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: count events iterate")
}

// --- topics ---

func (s *PostgresStore) CreateTopic(ctx context.Context, t *model.Topic) error {
	prepareTopic(t, s.now())
	b, err := insertTopicQuery(t)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.pool, b.PlaceholderFormat(sq.Dollar))
	return eris.Wrapf(err, "postgres: insert topic %s", t.ID)
}

func (s *PostgresStore) GetTopic(ctx context.Context, id string) (*model.Topic, error) {
	return pgGet(ctx, s, sq.Select(topicColumns...).From("topics").Where(sq.Eq{"id": id}), scanTopic, "topic", id)
}

func (s *PostgresStore) ListTopics(ctx context.Context, filter TopicFilter) ([]model.Topic, error) {
	return pgList(ctx, s, listTopicsQuery(filter), scanTopic, "topics")
}

func (s *PostgresStore) UpdateTopic(ctx context.Context, t *model.Topic) error {
	t.UpdatedAt = s.now()
	b, err := updateTopicQuery(t)
	if err != nil {
		return err
	}
	n, err := s.exec(ctx, s.pool, b.PlaceholderFormat(sq.Dollar))
	if err != nil {
		return eris.Wrapf(err, "postgres: update topic %s", t.ID)
	}
	return notFoundIfZero(n, "topic", t.ID)
}

// --- sources ---

func (s *PostgresStore) UpsertSource(ctx context.Context, src *model.Source) error {
	now := s.now()
	src.ID = newID(src.ID)
	stored, err := scanSource(s.pool.QueryRow(ctx,
		`INSERT INTO sources (id, name, domain, credibility, academic, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (domain) DO UPDATE SET name = EXCLUDED.name, academic = EXCLUDED.academic, updated_at = EXCLUDED.updated_at
		 RETURNING id, name, domain, credibility, academic, created_at, updated_at`,
		src.ID, src.Name, src.Domain, src.Credibility, src.Academic, now,
	))
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert source %s", src.Domain)
	}
	*src = *stored
	return nil
}

func (s *PostgresStore) GetSource(ctx context.Context, id string) (*model.Source, error) {
	return pgGet(ctx, s, sq.Select(sourceColumns...).From("sources").Where(sq.Eq{"id": id}), scanSource, "source", id)
}

func (s *PostgresStore) GetSourceByDomain(ctx context.Context, domain string) (*model.Source, error) {
	return pgGet(ctx, s, sq.Select(sourceColumns...).From("sources").Where(sq.Eq{"domain": domain}), scanSource, "source domain", domain)
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	return pgList(ctx, s, sq.Select(sourceColumns...).From("sources").OrderBy("domain ASC"), scanSource, "sources")
}

func (s *PostgresStore) AppendReliability(ctx context.Context, entry *model.ReliabilityEntry) error {
	entry.ID = newID(entry.ID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: append reliability: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := s.exec(ctx, tx, casCredibilityQuery(entry).PlaceholderFormat(sq.Dollar))
	if err != nil {
		return eris.Wrapf(err, "postgres: update credibility %s", entry.SourceID)
	}
	if n == 0 {
		return eris.Wrapf(ErrConflict, "postgres: source %s credibility is not %.2f", entry.SourceID, entry.OldScore)
	}
	if _, err := s.exec(ctx, tx, insertReliabilityQuery(entry).PlaceholderFormat(sq.Dollar)); err != nil {
		return eris.Wrapf(err, "postgres: insert reliability entry for %s", entry.SourceID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: append reliability: commit")
}

func (s *PostgresStore) ListReliabilityLog(ctx context.Context, sourceID string) ([]model.ReliabilityEntry, error) {
	return pgList(ctx, s, listReliabilityQuery(sourceID), scanReliability, "reliability log")
}

// --- articles ---

func (s *PostgresStore) CreateArticle(ctx context.Context, a *model.Article) error {
	prepareArticle(a, s.now())
	b, err := insertArticleQuery(a)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.pool, b.PlaceholderFormat(sq.Dollar))
	return eris.Wrapf(err, "postgres: insert article %s", a.ID)
}

func (s *PostgresStore) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	return pgGet(ctx, s, sq.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id}), scanArticle, "article", id)
}

func (s *PostgresStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error) {
	return pgList(ctx, s, listArticlesQuery(filter), scanArticle, "articles")
}

func (s *PostgresStore) SaveArticle(ctx context.Context, a *model.Article) error {
	a.UpdatedAt = s.now()
	b, err := updateArticleQuery(a, a.Status)
	if err != nil {
		return err
	}
	n, err := s.exec(ctx, s.pool, b.PlaceholderFormat(sq.Dollar))
	if err != nil {
		return eris.Wrapf(err, "postgres: save article %s", a.ID)
	}
	if n == 0 {
		return s.articleMiss(ctx, a.ID, a.Status)
	}
	return nil
}

func (s *PostgresStore) CommitTransition(ctx context.Context, a *model.Article, tr *model.Transition) error {
	now := s.now()
	a.UpdatedAt = now
	prepareTransition(tr, a.ID, now)

	b, err := updateArticleQuery(a, tr.From)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: commit transition: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := s.exec(ctx, tx, b.PlaceholderFormat(sq.Dollar))
	if err != nil {
		return eris.Wrapf(err, "postgres: transition article %s", a.ID)
	}
	if n == 0 {
		return s.articleMiss(ctx, a.ID, tr.From)
	}
	if _, err := s.exec(ctx, tx, insertTransitionQuery(tr).PlaceholderFormat(sq.Dollar)); err != nil {
		return eris.Wrapf(err, "postgres: insert transition for %s", a.ID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit transition")
}

func (s *PostgresStore) articleMiss(ctx context.Context, id string, expected model.ArticleStatus) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM articles WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: article %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: check article %s", id)
	}
	return eris.Wrapf(ErrConflict, "postgres: article %s is %s, expected %s", id, status, expected)
}

func (s *PostgresStore) ListTransitions(ctx context.Context, articleID string) ([]model.Transition, error) {
	return pgList(ctx, s, listTransitionsQuery(articleID), scanTransition, "transitions")
}

func (s *PostgresStore) CountArticlesByStatus(ctx context.Context) (map[model.ArticleStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM articles GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count articles")
	}
	defer rows.Close()

	out := make(map[model.ArticleStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan article count")
		}
		out[model.ArticleStatus(st)] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: count articles iterate")
}

// --- corrections ---

func (s *PostgresStore) CreateCorrection(ctx context.Context, c *model.Correction) error {
	c.ID = newID(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	b, err := insertCorrectionQuery(c)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.pool, b.PlaceholderFormat(sq.Dollar))
	return eris.Wrapf(err, "postgres: insert correction %s", c.ID)
}

func (s *PostgresStore) ListCorrections(ctx context.Context, articleID string) ([]model.Correction, error) {
	q := sq.Select(correctionColumns...).From("corrections").OrderBy("created_at ASC", "id ASC")
	if articleID != "" {
		q = q.Where(sq.Eq{"article_id": articleID})
	}
	return pgList(ctx, s, q, scanCorrection, "corrections")
}

func (s *PostgresStore) PublishCorrectionNotice(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE corrections SET notice_published_at = $1 WHERE id = $2 AND notice_published_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: publish correction notice %s", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM corrections WHERE id = $1)`, id).Scan(&exists); err != nil {
		return eris.Wrapf(err, "postgres: check correction %s", id)
	}
	if !exists {
		return eris.Wrapf(ErrNotFound, "postgres: correction %s", id)
	}
	return eris.Wrapf(ErrConflict, "postgres: correction %s notice already published", id)
}

// --- subscriptions ---

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	stampSubscription(sub, s.now())
	_, err := s.exec(ctx, s.pool, upsertSubscriptionQuery(sub).PlaceholderFormat(sq.Dollar))
	return eris.Wrapf(err, "postgres: upsert subscription %s", sub.CustomerID)
}

func (s *PostgresStore) GetSubscriptionByCustomer(ctx context.Context, customerID string) (*model.Subscription, error) {
	return pgGet(ctx, s, sq.Select(subscriptionColumns...).From("subscriptions").Where(sq.Eq{"customer_id": customerID}), scanSubscription, "subscription", customerID)
}

func (s *PostgresStore) ApplyWebhookEvent(ctx context.Context, id, eventType string, sub *model.Subscription) (bool, error) {
	now := s.now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: apply webhook event: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := s.exec(ctx, tx, insertWebhookEventQuery(id, eventType, now).PlaceholderFormat(sq.Dollar))
	if err != nil {
		return false, eris.Wrapf(err, "postgres: record webhook event %s", id)
	}
	if n == 0 {
		return false, nil
	}
	if sub != nil {
		stampSubscription(sub, now)
		if _, err := s.exec(ctx, tx, upsertSubscriptionQuery(sub).PlaceholderFormat(sq.Dollar)); err != nil {
			return false, eris.Wrapf(err, "postgres: upsert subscription %s", sub.CustomerID)
		}
	}
	return true, eris.Wrap(tx.Commit(ctx), "postgres: commit webhook event")
}

// --- email log ---

func (s *PostgresStore) LogEmail(ctx context.Context, entry *model.EmailLog) error {
	entry.ID = newID(entry.ID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.exec(ctx, s.pool, insertEmailQuery(entry).PlaceholderFormat(sq.Dollar))
	return eris.Wrap(err, "postgres: log email")
}

func (s *PostgresStore) CountEmailsSince(ctx context.Context, since time.Time, status model.EmailStatus) (int, error) {
	query, args, err := countEmailsQuery(since, status).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "postgres: build count emails query")
	}
	var n int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, eris.Wrap(err, "postgres: count emails")
}
