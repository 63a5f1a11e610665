// Package store persists newsroom entities. SQLiteStore is the embedded
// single-writer backend; PostgresStore is the client-server backend for
// deployments that run stages from more than one process.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when a compare-and-set precondition no longer holds.
	ErrConflict = eris.New("store: conflict")
)

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	Status model.EventStatus `json:"status,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// TopicFilter specifies criteria for listing topics.
type TopicFilter struct {
	Status model.VerificationStatus `json:"status,omitempty"`
	// Undrafted restricts the listing to topics with no article yet.
	Undrafted bool `json:"undrafted,omitempty"`
	// ManualOnly restricts the listing to topics flagged for manual intervention.
	ManualOnly bool `json:"manual_only,omitempty"`
	Limit      int  `json:"limit,omitempty"`
}

// ArticleFilter specifies criteria for listing articles.
type ArticleFilter struct {
	Status         model.ArticleStatus `json:"status,omitempty"`
	AssignedEditor string              `json:"assigned_editor,omitempty"`
	// ManualOnly restricts the listing to articles flagged for manual intervention.
	ManualOnly bool `json:"manual_only,omitempty"`
	Limit      int  `json:"limit,omitempty"`
	Offset     int  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the editorial pipeline.
type Store interface {
	// Events
	CreateEvent(ctx context.Context, e *model.Event) error
	ImportEvents(ctx context.Context, events []model.Event) (int, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	CountEventsByStatus(ctx context.Context) (map[model.EventStatus]int, error)

	// Topics
	CreateTopic(ctx context.Context, t *model.Topic) error
	GetTopic(ctx context.Context, id string) (*model.Topic, error)
	ListTopics(ctx context.Context, filter TopicFilter) ([]model.Topic, error)
	UpdateTopic(ctx context.Context, t *model.Topic) error

	// Sources. Credibility changes only through AppendReliability.
	UpsertSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id string) (*model.Source, error)
	GetSourceByDomain(ctx context.Context, domain string) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	AppendReliability(ctx context.Context, entry *model.ReliabilityEntry) error
	ListReliabilityLog(ctx context.Context, sourceID string) ([]model.ReliabilityEntry, error)

	// Articles. Status changes only through CommitTransition.
	CreateArticle(ctx context.Context, a *model.Article) error
	GetArticle(ctx context.Context, id string) (*model.Article, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error)
	SaveArticle(ctx context.Context, a *model.Article) error
	CommitTransition(ctx context.Context, a *model.Article, tr *model.Transition) error
	ListTransitions(ctx context.Context, articleID string) ([]model.Transition, error)
	CountArticlesByStatus(ctx context.Context) (map[model.ArticleStatus]int, error)

	// Corrections
	CreateCorrection(ctx context.Context, c *model.Correction) error
	ListCorrections(ctx context.Context, articleID string) ([]model.Correction, error)
	PublishCorrectionNotice(ctx context.Context, id string, at time.Time) error

	// Subscriptions and webhook idempotency
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscriptionByCustomer(ctx context.Context, customerID string) (*model.Subscription, error)
	// ApplyWebhookEvent records the event id and upserts sub atomically.
	// A redelivered id returns false and writes nothing.
	ApplyWebhookEvent(ctx context.Context, id, eventType string, sub *model.Subscription) (bool, error)

	// Email log
	LogEmail(ctx context.Context, entry *model.EmailLog) error
	CountEmailsSince(ctx context.Context, since time.Time, status model.EmailStatus) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
