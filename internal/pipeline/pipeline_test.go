package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailyworker/newsroom/internal/config"
	"github.com/dailyworker/newsroom/internal/draft"
	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/quality"
	"github.com/dailyworker/newsroom/internal/scorer"
	"github.com/dailyworker/newsroom/internal/store"
	"github.com/dailyworker/newsroom/internal/verify"
	"github.com/dailyworker/newsroom/internal/workflow"
	"github.com/dailyworker/newsroom/pkg/notion"
)

const goodBody = "City bus drivers voted Tuesday to authorize a strike [S1].\n\n" +
	"The vote passed with broad support, according to the union [S2]. Talks resume next week. " +
	"Drivers want safer schedules and better pay [S1]."

const sensationalBody = "City bus drivers slams the city in a shocking vote [S1].\n\n" +
	"The vote passed with broad support, according to the union [S2]. Talks resume next week. " +
	"Drivers want safer schedules and better pay [S1]."

var fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	w := scorer.DefaultWeights()
	return &config.Config{
		Scoring: config.ScoringConfig{
			ImpactWeight:        w.Impact,
			TimelinessWeight:    w.Timeliness,
			VerifiabilityWeight: w.Verifiability,
			RegionalWeight:      w.Regional,
			ConflictWeight:      w.Conflict,
			NoveltyWeight:       w.Novelty,
			Threshold:           scorer.DefaultThreshold,
		},
		Verification: config.VerificationConfig{
			CredibleThreshold: 75, MinCredible: 3, MinAcademic: 2,
			UnknownCredibility: 40, MaxResults: 10, MaxPlanSources: 6,
		},
		Quality: config.QualityConfig{
			MinWords: 10, MaxWords: 200, MaxLedeWords: 60,
			MinReadingLevel: -50, MaxReadingLevel: 50,
			MaxAttempts: 3, ExhaustionPolicy: ExhaustManualReview,
		},
		Workflow: config.WorkflowConfig{
			Editors:             []string{"alice", "bob"},
			SeniorEditors:       []string{"carol"},
			ReviewDeadlineHours: 24,
		},
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "newsroom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// scriptDrafter returns bodies in order, repeating the last one.
type scriptDrafter struct {
	mu     sync.Mutex
	bodies []string
	err    error
	reqs   []draft.Request
}

func (d *scriptDrafter) Name() string { return "script" }

func (d *scriptDrafter) Draft(_ context.Context, req draft.Request) (*draft.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	if d.err != nil {
		return nil, d.err
	}
	body := d.bodies[0]
	if len(d.bodies) > 1 {
		d.bodies = d.bodies[1:]
	}
	return &draft.Output{Headline: req.Headline, Body: body, Model: "script-1"}, nil
}

type stubScanner struct {
	verdict string
	err     error
}

func (s stubScanner) Scan(context.Context, quality.Draft) (string, error) { return s.verdict, s.err }

// toggleScanner fails while down is set.
type toggleScanner struct{ down bool }

func (s *toggleScanner) Scan(context.Context, quality.Draft) (string, error) {
	if s.down {
		return "", eris.New("anthropic: status 529 overloaded")
	}
	return "PASS", nil
}

type stubSearcher struct {
	results []verify.Candidate
	err     error
}

func (s *stubSearcher) Search(context.Context, string, int) ([]verify.Candidate, error) {
	return s.results, s.err
}

type fakeBoard struct {
	open     map[string]notion.BoardItem
	resolved []string
}

func newFakeBoard() *fakeBoard { return &fakeBoard{open: map[string]notion.BoardItem{}} }

func (b *fakeBoard) Upsert(_ context.Context, item notion.BoardItem) (*notion.BoardItem, error) {
	b.open[item.Key] = item
	return &item, nil
}

func (b *fakeBoard) Resolve(_ context.Context, key string) error {
	if _, ok := b.open[key]; ok {
		delete(b.open, key)
		b.resolved = append(b.resolved, key)
	}
	return nil
}

func newTestNewsroom(t *testing.T, cfg *config.Config, d draft.Drafter, scan quality.BiasScanner, search verify.Searcher) (*Newsroom, *store.SQLiteStore, *fakeBoard) {
	t.Helper()
	st := newTestStore(t)
	board := newFakeBoard()
	n := New(cfg, st, d, scan, search, board)
	n.now = func() time.Time { return fixedNow }
	return n, st, board
}

func seedSources(t *testing.T, st store.Store) map[string]*model.Source {
	t.Helper()
	out := map[string]*model.Source{}
	for _, s := range []model.Source{
		{Name: "AP", Domain: "apnews.com", Credibility: 95},
		{Name: "Reuters", Domain: "reuters.com", Credibility: 93},
		{Name: "Local Ledger", Domain: "ledger.example", Credibility: 80},
	} {
		s := s
		require.NoError(t, st.UpsertSource(context.Background(), &s))
		out[s.Domain] = &s
	}
	return out
}

func seedVerifiedTopic(t *testing.T, st store.Store) *model.Topic {
	t.Helper()
	ctx := context.Background()
	ev := &model.Event{Title: "Bus drivers authorize strike", Category: "labor", Status: model.EventStatusConverted}
	require.NoError(t, st.CreateEvent(ctx, ev))
	tp := &model.Topic{
		EventID:            ev.ID,
		Headline:           ev.Title,
		Category:           "labor",
		VerificationStatus: model.VerificationVerified,
		AttributionPlan: []model.Attribution{
			{Key: "S1", URL: "https://apnews.com/a"},
			{Key: "S2", URL: "https://reuters.com/b"},
		},
	}
	require.NoError(t, st.CreateTopic(ctx, tp))
	return tp
}

func onlyArticle(t *testing.T, st store.Store) *model.Article {
	t.Helper()
	all, err := st.ListArticles(context.Background(), store.ArticleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	return &all[0]
}

func TestScenarioE_DailyRunThroughRetraction(t *testing.T) {
	ctx := context.Background()
	search := &stubSearcher{results: []verify.Candidate{
		{Title: "Reuters", URL: "https://www.reuters.com/world/2"},
		{Title: "Ledger", URL: "https://ledger.example/3"},
	}}
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, search)
	sources := seedSources(t, st)

	ev := &model.Event{
		Title:     "Bus drivers authorize strike",
		Category:  "labor",
		Sources:   []string{"https://apnews.com/article/1"},
		SubScores: model.SubScores{Impact: 80, Timeliness: 90, Verifiability: 70, Regional: 60, Conflict: 50, Novelty: 40},
		Status:    model.EventStatusDiscovered,
	}
	require.NoError(t, st.CreateEvent(ctx, ev))

	res, err := n.RunDaily(ctx, 10)
	require.NoError(t, err)
	assert.False(t, res.Failed())
	require.Len(t, res.Stages, 7)
	assert.Equal(t, "score", res.Stages[0].Name)
	assert.Equal(t, "publish", res.Stages[6].Name)

	gotEvent, err := st.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusConverted, gotEvent.Status)

	a := onlyArticle(t, st)
	assert.Equal(t, model.ArticlePendingReview, a.Status)
	assert.Equal(t, "alice", a.AssignedEditor)
	require.NotNil(t, a.ReviewDeadline)
	assert.True(t, a.ReviewDeadline.Equal(fixedNow.Add(24*time.Hour)))

	_, err = n.Claim(ctx, a.ID, "alice")
	require.NoError(t, err)
	_, err = n.Approve(ctx, a.ID, "alice", "clean copy")
	require.NoError(t, err)

	pub, err := n.PublishApproved(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, &PublishSummary{Published: 1}, pub)

	a, err = st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArticlePublished, a.Status)
	assert.Contains(t, a.BodyHTML, `href="https://apnews.com/article/1"`)

	ap := sources["apnews.com"]
	out, err := n.FileCorrection(ctx, &model.Correction{
		ArticleID:        a.ID,
		Type:             model.CorrectionFactualError,
		Severity:         model.SeverityCritical,
		Description:      "Vote count was misreported",
		SourceIDs:        []string{ap.ID},
		PublicDisclosure: true,
		CreatedBy:        "carol",
	})
	require.NoError(t, err)
	assert.True(t, out.Retracted)
	assert.Equal(t, model.ArticleRetracted, out.Article.Status)
	require.NotNil(t, out.Correction.NoticePublishedAt)

	src, err := st.GetSource(ctx, ap.ID)
	require.NoError(t, err)
	assert.InDelta(t, 94.5, src.Credibility, 1e-9)

	entries, err := st.ListReliabilityLog(ctx, ap.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, -0.5, entries[0].AppliedDelta, 1e-9)

	trs, err := st.ListTransitions(ctx, a.ID)
	require.NoError(t, err)
	var path []model.ArticleStatus
	for _, tr := range trs {
		path = append(path, tr.To)
	}
	assert.Equal(t, []model.ArticleStatus{
		model.ArticlePendingReview, model.ArticleUnderReview, model.ArticleApproved,
		model.ArticlePublished, model.ArticleRetracted,
	}, path)
}

func TestDraftArticles_FeedsReasonsBackUntilPass(t *testing.T) {
	ctx := context.Background()
	d := &scriptDrafter{bodies: []string{sensationalBody, goodBody}}
	n, st, _ := newTestNewsroom(t, testConfig(), d, stubScanner{verdict: "PASS"}, nil)
	seedVerifiedTopic(t, st)

	sum, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Submitted: 1}, sum)

	require.Len(t, d.reqs, 2)
	assert.Empty(t, d.reqs[0].Feedback)
	require.NotEmpty(t, d.reqs[1].Feedback)
	assert.Contains(t, d.reqs[1].Feedback[0], quality.ItemNoSensational)

	a := onlyArticle(t, st)
	assert.Equal(t, model.ArticlePendingReview, a.Status)
	assert.Equal(t, 2, a.Attempts)
	assert.True(t, a.SelfAuditPassed)

	// The topic now has an article and is not drafted again.
	sum, err = n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{}, sum)
}

func TestDraftArticles_ExhaustionManualReview(t *testing.T) {
	ctx := context.Background()
	d := &scriptDrafter{bodies: []string{sensationalBody}}
	n, st, board := newTestNewsroom(t, testConfig(), d, stubScanner{verdict: "PASS"}, nil)
	seedVerifiedTopic(t, st)

	sum, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Manual: 1}, sum)
	assert.Len(t, d.reqs, 3)

	a := onlyArticle(t, st)
	assert.Equal(t, model.ArticleDraft, a.Status)
	assert.Contains(t, a.ManualReason, "after 3 attempt(s)")
	assert.Contains(t, board.open, "article:"+a.ID)

	flagged, err := st.ListArticles(ctx, store.ArticleFilter{ManualOnly: true})
	require.NoError(t, err)
	assert.Len(t, flagged, 1)
}

func TestRedraft_RecoversAfterScannerOutage(t *testing.T) {
	ctx := context.Background()
	scanner := &toggleScanner{down: true}
	n, st, board := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, scanner, nil)
	seedVerifiedTopic(t, st)

	sum, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Manual: 1}, sum)
	a := onlyArticle(t, st)
	assert.Equal(t, model.ArticleDraft, a.Status)
	assert.Contains(t, a.ManualReason, "quality checks unavailable")

	// Still down: the draft stays flagged.
	_, sum, err = n.Redraft(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Manual: 1}, sum)

	scanner.down = false
	got, sum, err := n.Redraft(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Submitted: 1}, sum)
	assert.Equal(t, model.ArticlePendingReview, got.Status)
	assert.Empty(t, got.ManualReason)
	assert.Contains(t, board.resolved, "article:"+a.ID)

	_, err = n.Claim(ctx, a.ID, "alice")
	require.NoError(t, err)

	_, _, err = n.Redraft(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotRedraftable)
}

func TestRedraftArticles_RetriesFlaggedDrafts(t *testing.T) {
	ctx := context.Background()
	d := &scriptDrafter{bodies: []string{sensationalBody, sensationalBody, sensationalBody, goodBody}}
	n, st, _ := newTestNewsroom(t, testConfig(), d, stubScanner{verdict: "PASS"}, nil)
	seedVerifiedTopic(t, st)

	sum, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Manual: 1}, sum)

	sum, err = n.RedraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Submitted: 1}, sum)

	a := onlyArticle(t, st)
	assert.Equal(t, model.ArticlePendingReview, a.Status)
	assert.Equal(t, 4, a.Attempts)

	sum, err = n.RedraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{}, sum)
}

func TestDraftArticles_ExhaustionReject(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Quality.ExhaustionPolicy = ExhaustReject
	cfg.Quality.MaxAttempts = 2
	n, st, _ := newTestNewsroom(t, cfg, &scriptDrafter{bodies: []string{sensationalBody}}, stubScanner{verdict: "PASS"}, nil)
	seedVerifiedTopic(t, st)

	sum, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Rejected: 1}, sum)

	a := onlyArticle(t, st)
	assert.Equal(t, model.ArticleArchived, a.Status)
	trs, err := st.ListTransitions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, SystemActor, trs[0].Actor)
	assert.Contains(t, trs[0].Note, "after 2 attempt(s)")
}

func TestDraftArticles_DrafterUnavailableFlagsTopic(t *testing.T) {
	ctx := context.Background()
	d := &scriptDrafter{err: eris.Wrap(draft.ErrNoDrafter, "draft: every drafter failed")}
	n, st, board := newTestNewsroom(t, testConfig(), d, stubScanner{verdict: "PASS"}, nil)
	tp := seedVerifiedTopic(t, st)

	sum, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Deferred: 1}, sum)

	got, err := st.GetTopic(ctx, tp.ID)
	require.NoError(t, err)
	assert.Contains(t, got.ManualReason, "draft collaborator unavailable")
	assert.Contains(t, board.open, "topic:"+tp.ID)

	// Once the drafter recovers the flag clears.
	d.err = nil
	d.bodies = []string{goodBody}
	sum, err = n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Submitted)
	got, err = st.GetTopic(ctx, tp.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ManualReason)
	assert.Contains(t, board.resolved, "topic:"+tp.ID)
}

func TestDraftArticles_BiasScannerDownKeepsDraft(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, nil, nil)
	seedVerifiedTopic(t, st)

	sum, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Manual: 1}, sum)

	a := onlyArticle(t, st)
	assert.Equal(t, model.ArticleDraft, a.Status)
	assert.Contains(t, a.ManualReason, "quality checks unavailable")
	assert.False(t, a.BiasScanPassed)
}

func TestDraftArticles_NoDrafter(t *testing.T) {
	n, _, _ := newTestNewsroom(t, testConfig(), nil, nil, nil)
	_, err := n.DraftArticles(context.Background(), 0)
	assert.ErrorIs(t, err, ErrCollaboratorMissing)
}

func TestAssignEditors_RoundRobin(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)
	for i := 0; i < 3; i++ {
		seedVerifiedTopic(t, st)
	}
	_, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)

	assigned, err := n.AssignEditors(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, assigned)

	all, err := st.ListArticles(ctx, store.ArticleFilter{Status: model.ArticlePendingReview})
	require.NoError(t, err)
	counts := map[string]int{}
	for _, a := range all {
		counts[a.AssignedEditor]++
	}
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, counts)

	// Already assigned articles are left alone.
	assigned, err = n.AssignEditors(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, assigned)
}

func TestAssignEditors_EmptyRoster(t *testing.T) {
	cfg := testConfig()
	cfg.Workflow.Editors = nil
	n, _, _ := newTestNewsroom(t, cfg, nil, nil, nil)
	assigned, err := n.AssignEditors(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, assigned)
}

func reviewedArticle(t *testing.T, n *Newsroom, st store.Store) *model.Article {
	t.Helper()
	ctx := context.Background()
	seedVerifiedTopic(t, st)
	_, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	a := onlyArticle(t, st)
	a, err = n.Claim(ctx, a.ID, "alice")
	require.NoError(t, err)
	return a
}

func TestReviseArticles_ResubmitsWithNotes(t *testing.T) {
	ctx := context.Background()
	d := &scriptDrafter{bodies: []string{goodBody}}
	n, st, _ := newTestNewsroom(t, testConfig(), d, stubScanner{verdict: "PASS"}, nil)
	a := reviewedArticle(t, n, st)

	_, err := n.RequestRevision(ctx, a.ID, "alice", "Add the vote count.")
	require.NoError(t, err)

	sum, err := n.ReviseArticles(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &DraftSummary{Submitted: 1}, sum)
	assert.Equal(t, "Add the vote count.", d.reqs[len(d.reqs)-1].RevisionNotes)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArticlePendingReview, got.Status)
	assert.Empty(t, got.RevisionNotes)
	assert.Empty(t, got.ApprovedBy)
	assert.Equal(t, 2, got.Attempts)
}

func TestRequestRevision_RequiresNotes(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)
	a := reviewedArticle(t, n, st)

	_, err := n.RequestRevision(ctx, a.ID, "alice", "")
	assert.ErrorIs(t, err, workflow.ErrGuardFailed)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArticleUnderReview, got.Status)
}

func TestApprove_SeniorRoster(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)
	a := reviewedArticle(t, n, st)

	_, err := n.Escalate(ctx, a.ID, "alice", "legal exposure")
	require.NoError(t, err)

	_, err = n.Approve(ctx, a.ID, "alice", "")
	assert.ErrorIs(t, err, ErrNotSeniorEditor)

	got, err := n.Approve(ctx, a.ID, "carol", "cleared")
	require.NoError(t, err)
	assert.Equal(t, model.ArticleApproved, got.Status)
	assert.Equal(t, "carol", got.ApprovedBy)
}

func TestAct_IllegalTransitionLeavesArticle(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)
	seedVerifiedTopic(t, st)
	_, err := n.DraftArticles(ctx, 0)
	require.NoError(t, err)
	a := onlyArticle(t, st)

	_, err = n.Approve(ctx, a.ID, "alice", "")
	assert.ErrorIs(t, err, workflow.ErrIllegalTransition)

	trs, err := st.ListTransitions(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, trs, 1)
}

func TestPublishApproved_BlockedByGate(t *testing.T) {
	ctx := context.Background()
	n, st, board := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)
	a := reviewedArticle(t, n, st)
	_, err := n.Approve(ctx, a.ID, "alice", "")
	require.NoError(t, err)

	// Tighten the publication gate after approval.
	n.machine = workflow.NewMachine(workflow.PublicationGate{MinReadingLevel: 40, MaxReadingLevel: 41})

	sum, err := n.PublishApproved(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &PublishSummary{Blocked: 1}, sum)

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArticleApproved, got.Status)
	assert.Contains(t, got.ManualReason, "reading level")
	assert.Empty(t, got.BodyHTML)
	assert.Contains(t, board.open, "article:"+a.ID)
}

func TestFileCorrection_Validation(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)

	_, err := n.FileCorrection(ctx, &model.Correction{Type: "typo", Severity: model.SeverityMinor})
	require.ErrorIs(t, err, ErrInvalidCorrection)
	assert.Contains(t, err.Error(), "article id is required")
	assert.Contains(t, err.Error(), "unknown correction type")

	a := reviewedArticle(t, n, st)
	_, err = n.FileCorrection(ctx, &model.Correction{
		ArticleID: a.ID, Type: model.CorrectionClarification, Severity: model.SeverityMinor,
		Description: "wording", CreatedBy: "carol",
	})
	assert.ErrorIs(t, err, ErrInvalidCorrection)
}

func TestFileCorrection_UpdateLeavesScores(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)
	sources := seedSources(t, st)
	a := reviewedArticle(t, n, st)
	_, err := n.Approve(ctx, a.ID, "alice", "")
	require.NoError(t, err)
	_, err = n.PublishApproved(ctx, 0)
	require.NoError(t, err)

	ap := sources["apnews.com"]
	out, err := n.FileCorrection(ctx, &model.Correction{
		ArticleID: a.ID, Type: model.CorrectionUpdate, Severity: model.SeverityModerate,
		Description: "Talks concluded", SourceIDs: []string{ap.ID}, CreatedBy: "carol",
	})
	require.NoError(t, err)
	assert.False(t, out.Retracted)
	assert.Empty(t, out.Entries)
	assert.Nil(t, out.Correction.NoticePublishedAt)

	src, err := st.GetSource(ctx, ap.ID)
	require.NoError(t, err)
	assert.InDelta(t, 95.0, src.Credibility, 1e-9)
}

func TestFileCorrection_RetractsOnlyWhenCritical(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)
	sources := seedSources(t, st)
	a := reviewedArticle(t, n, st)
	_, err := n.Approve(ctx, a.ID, "alice", "")
	require.NoError(t, err)
	_, err = n.PublishApproved(ctx, 0)
	require.NoError(t, err)
	ap := sources["apnews.com"]

	_, err = n.FileCorrection(ctx, &model.Correction{
		ArticleID: a.ID, Type: model.CorrectionRetraction, Severity: model.SeverityMinor,
		Description: "pulled", SourceIDs: []string{ap.ID}, CreatedBy: "carol",
	})
	require.ErrorIs(t, err, ErrInvalidCorrection)
	assert.Contains(t, err.Error(), "critical severity")

	out, err := n.FileCorrection(ctx, &model.Correction{
		ArticleID: a.ID, Type: model.CorrectionFactualError, Severity: model.SeverityMajor,
		Description: "wrong vote count", SourceIDs: []string{ap.ID}, CreatedBy: "carol",
	})
	require.NoError(t, err)
	assert.False(t, out.Retracted)
	assert.Equal(t, model.ArticlePublished, out.Article.Status)
	require.Len(t, out.Entries, 1)

	cs, err := st.ListCorrections(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, cs, 1)
}

func TestFileCorrection_UnknownSourceWritesNothing(t *testing.T) {
	ctx := context.Background()
	n, st, _ := newTestNewsroom(t, testConfig(), &scriptDrafter{bodies: []string{goodBody}}, stubScanner{verdict: "PASS"}, nil)
	seedSources(t, st)
	a := reviewedArticle(t, n, st)
	_, err := n.Approve(ctx, a.ID, "alice", "")
	require.NoError(t, err)
	_, err = n.PublishApproved(ctx, 0)
	require.NoError(t, err)

	_, err = n.FileCorrection(ctx, &model.Correction{
		ArticleID: a.ID, Type: model.CorrectionFactualError, Severity: model.SeverityCritical,
		Description: "fabricated quote", SourceIDs: []string{"no-such-source"}, CreatedBy: "carol",
	})
	require.ErrorIs(t, err, ErrInvalidCorrection)
	assert.Contains(t, err.Error(), "no-such-source")

	got, err := st.GetArticle(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ArticlePublished, got.Status)
	cs, err := st.ListCorrections(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestVerifyTopics_FlagsSearchFailures(t *testing.T) {
	ctx := context.Background()
	search := &stubSearcher{err: eris.New("jina: search status 503")}
	n, st, board := newTestNewsroom(t, testConfig(), nil, nil, search)

	ev := &model.Event{Title: "Nurses strike", Status: model.EventStatusConverted}
	require.NoError(t, st.CreateEvent(ctx, ev))
	tp := &model.Topic{EventID: ev.ID, Headline: ev.Title}
	require.NoError(t, st.CreateTopic(ctx, tp))

	sum, err := n.VerifyTopics(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Manual)
	assert.Contains(t, board.open, "topic:"+tp.ID)

	got, err := n.RequeueTopic(ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationPending, got.VerificationStatus)
	assert.Empty(t, got.ManualReason)
	assert.Contains(t, board.resolved, "topic:"+tp.ID)

	_, err = n.RequeueTopic(ctx, tp.ID)
	assert.Error(t, err)
}

func TestRunDaily_StopsAtFirstFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Scoring = config.ScoringConfig{}
	n, _, _ := newTestNewsroom(t, cfg, nil, nil, nil)

	res, err := n.RunDaily(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, res.Failed())
	require.Len(t, res.Stages, 7)
	assert.Equal(t, StageFailed, res.Stages[0].Status)
	for _, s := range res.Stages[1:] {
		assert.Equal(t, StageSkipped, s.Status, s.Name)
	}
}

func TestRenderHTML_LinksCitations(t *testing.T) {
	html := RenderHTML("Drivers voted [S1] and [S9].", []model.Attribution{{Key: "S1", URL: "https://apnews.com/a"}})
	assert.Contains(t, html, `<a href="https://apnews.com/a">S1</a>`)
	assert.Contains(t, html, "[S9]")
}
