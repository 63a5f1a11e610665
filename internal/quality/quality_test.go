package quality

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dailyworker/newsroom/internal/model"
)

const cleanBody = "City bus drivers voted Tuesday to authorize a strike [S1].\n\n" +
	"The vote passed with broad support, according to the union [S2]. Talks resume next week. " +
	"Drivers want safer schedules and better pay [S1]."

func testLimits() Limits {
	return Limits{MinWords: 10, MaxWords: 200, MaxLedeWords: 60, MinReadingLevel: -50, MaxReadingLevel: 50}
}

func cleanDraft() Draft {
	return Draft{Headline: "Bus drivers authorize strike", Body: cleanBody, Category: "labor"}
}

func testPlan() []model.Attribution {
	return []model.Attribution{{Key: "S1", URL: "https://apnews.com/x"}, {Key: "S2", URL: "https://union.example/y"}}
}

func TestSyllables(t *testing.T) {
	tests := []struct {
		word string
		want int
	}{
		{"cat", 1},
		{"table", 2},
		{"strike", 1},
		{"organize", 3},
		{"wanted", 2},
		{"jumped", 1},
		{"workers", 2},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, Syllables(tt.word))
		})
	}
}

func TestWords_StripsMarkupAndCitations(t *testing.T) {
	got := Words("## Heading\n\nWorkers **won** [S1], see [the report](https://x.example).")
	assert.Equal(t, []string{"Heading", "Workers", "won", "see", "the", "report"}, got)
}

func TestFleschKincaid(t *testing.T) {
	assert.Equal(t, 0.0, FleschKincaid(""))

	simple := FleschKincaid("The cat sat on the mat. The dog ran.")
	complexText := FleschKincaid("Collective bargaining negotiations concerning occupational " +
		"safety regulations frequently necessitate considerable administrative deliberation.")
	assert.Less(t, simple, complexText)
	assert.InDelta(t, -1.45, FleschKincaid("The cat sat on the mat."), 0.06)
}

func TestReadingLevelCheck_ClosedInterval(t *testing.T) {
	assert.True(t, ReadingLevelCheck(7.5, 7.5, 8.5).Passed)
	assert.True(t, ReadingLevelCheck(8.5, 7.5, 8.5).Passed)
	assert.True(t, ReadingLevelCheck(8.0, 7.5, 8.5).Passed)

	c := ReadingLevelCheck(9.0, 7.5, 8.5)
	assert.False(t, c.Passed)
	assert.Equal(t, 9.0, c.Value)
	assert.Contains(t, c.Detail, "outside [7.5, 8.5]")

	assert.False(t, ReadingLevelCheck(7.4, 7.5, 8.5).Passed)

	// Rounding must not pull a grade back inside the band.
	edge := ReadingLevelCheck(8.549, 7.5, 8.5)
	assert.False(t, edge.Passed)
	assert.Equal(t, 8.5, edge.Value)
	assert.Contains(t, edge.Detail, "8.55")
	assert.False(t, ReadingLevelCheck(7.46, 7.5, 8.5).Passed)
}

func TestSelfAudit_AllItemsPass(t *testing.T) {
	res := SelfAudit(cleanDraft(), testLimits())
	assert.True(t, res.Passed, "failed: %v", res.Failed())
	assert.Len(t, res.Items, 10)
	assert.Empty(t, res.Failed())
}

func TestSelfAudit_IndividualFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Draft)
		limits func(l *Limits)
		item   string
	}{
		{"missing headline", func(d *Draft) { d.Headline = " " }, nil, ItemHeadline},
		{"too short", nil, func(l *Limits) { l.MinWords = 400 }, ItemLength},
		{"too long", nil, func(l *Limits) { l.MaxWords = 5 }, ItemLength},
		{"no citations", func(d *Draft) { d.Body = strings.NewReplacer("[S1]", "", "[S2]", "").Replace(d.Body) }, nil, ItemAttributed},
		{"single source", func(d *Draft) { d.Body = strings.ReplaceAll(d.Body, "[S2]", "[S1]") }, nil, ItemMultiSource},
		{"long lede", nil, func(l *Limits) { l.MaxLedeWords = 3 }, ItemLede},
		{"placeholder", func(d *Draft) { d.Body += " TODO confirm figures." }, nil, ItemNoPlaceholders},
		{"sensational", func(d *Draft) { d.Body += " A shocking turn." }, nil, ItemNoSensational},
		{"first person", func(d *Draft) { d.Body += " We think it matters." }, nil, ItemNoFirstPerson},
		{"unbalanced quotes", func(d *Draft) { d.Body += ` She said "enough.` }, nil, ItemQuotes},
		{"no category", func(d *Draft) { d.Category = "" }, nil, ItemCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := cleanDraft()
			l := testLimits()
			if tt.mutate != nil {
				tt.mutate(&d)
			}
			if tt.limits != nil {
				tt.limits(&l)
			}
			res := SelfAudit(d, l)
			assert.False(t, res.Passed)
			assert.False(t, res.Items[tt.item])
			assert.Contains(t, res.Failed(), tt.item)
		})
	}
}

func TestSelfAudit_QuotesAndOpinionExempt(t *testing.T) {
	d := cleanDraft()
	d.Body += ` "We will not back down," the steward said.`
	res := SelfAudit(d, testLimits())
	assert.True(t, res.Items[ItemNoFirstPerson], "quoted speech is not editorialising")

	d = cleanDraft()
	d.Opinion = true
	d.Body += " We think it matters."
	res = SelfAudit(d, testLimits())
	assert.True(t, res.Items[ItemNoFirstPerson])
}

func TestSelfAudit_CountryAbbreviationIsNotFirstPerson(t *testing.T) {
	d := cleanDraft()
	d.Body += " The US Department of Labor declined to comment."
	assert.True(t, SelfAudit(d, testLimits()).Items[ItemNoFirstPerson])

	d = cleanDraft()
	d.Body += " The strike affects all of us."
	assert.False(t, SelfAudit(d, testLimits()).Items[ItemNoFirstPerson])
}

func TestAttributionCheck(t *testing.T) {
	c, unknown := AttributionCheck(cleanBody, testPlan())
	assert.True(t, c.Passed)
	assert.Empty(t, unknown)

	c, unknown = AttributionCheck(cleanBody+" More [S9] and [S3].", testPlan())
	assert.False(t, c.Passed)
	assert.Equal(t, []string{"S3", "S9"}, unknown)

	c, _ = AttributionCheck("No citations here.", testPlan())
	assert.False(t, c.Passed)
	assert.Equal(t, "no citations in body", c.Detail)
}

func TestBiasCheck(t *testing.T) {
	assert.True(t, BiasCheck("PASS").Passed)
	assert.True(t, BiasCheck(" PASS\n").Passed)
	assert.False(t, BiasCheck("pass").Passed)
	assert.False(t, BiasCheck("FAIL: one-sided framing").Passed)
}

type stubScanner struct {
	verdict string
	err     error
}

func (s stubScanner) Scan(context.Context, Draft) (string, error) { return s.verdict, s.err }

func TestGate_Evaluate_Passes(t *testing.T) {
	g := NewGate(stubScanner{verdict: "PASS"}, testLimits())
	r, err := g.Evaluate(context.Background(), cleanDraft(), testPlan())
	require.NoError(t, err)
	assert.True(t, r.Passed, "reasons: %v", r.Reasons)
	assert.Empty(t, r.Reasons)

	a := &model.Article{}
	r.Apply(a)
	assert.True(t, a.SelfAuditPassed)
	assert.True(t, a.BiasScanPassed)
	assert.True(t, a.AttributionPassed)
	require.NotNil(t, a.Quality)
	assert.Equal(t, "PASS", a.Quality.BiasVerdict)
	assert.Equal(t, r.ReadingLevel.Value, a.ReadingLevel)
}

func TestGate_Evaluate_CollectsEveryFailure(t *testing.T) {
	l := testLimits()
	l.MinReadingLevel, l.MaxReadingLevel = 40, 41
	g := NewGate(stubScanner{verdict: "FAIL"}, l)

	d := cleanDraft()
	d.Category = ""
	r, err := g.Evaluate(context.Background(), d, testPlan()[:1])
	require.NoError(t, err)
	assert.False(t, r.Passed)
	require.Len(t, r.Reasons, 4)
	assert.Contains(t, r.Reasons[0], ItemCategory)
	assert.Contains(t, r.Reasons[1], "bias_scan")
	assert.Contains(t, r.Reasons[2], "reading_level")
	assert.Contains(t, r.Reasons[3], "S2")
}

func TestGate_Evaluate_ScannerError(t *testing.T) {
	g := NewGate(stubScanner{err: eris.New("anthropic: overloaded")}, testLimits())
	_, err := g.Evaluate(context.Background(), cleanDraft(), testPlan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bias scan")
}
