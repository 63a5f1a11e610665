package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/samber/lo"

	"github.com/dailyworker/newsroom/internal/model"
)

// BiasPass is the only verdict that passes the bias scan.
const BiasPass = "PASS"

// BiasScanner produces a categorical bias verdict for a draft.
type BiasScanner interface {
	Scan(ctx context.Context, d Draft) (string, error)
}

// AttributionCheck passes iff body cites at least one source and every
// [Sx] marker maps to an entry in plan.
func AttributionCheck(body string, plan []model.Attribution) (Check, []string) {
	known := lo.Associate(plan, func(a model.Attribution) (string, bool) { return a.Key, true })
	cited := lo.Uniq(citationKeys(body))
	unknown := lo.Filter(cited, func(k string, _ int) bool { return !known[k] })
	sort.Strings(unknown)

	c := Check{Name: "source_attribution", Value: float64(len(cited))}
	switch {
	case len(cited) == 0:
		c.Detail = "no citations in body"
	case len(unknown) > 0:
		c.Detail = fmt.Sprintf("citations not in attribution plan: %s", strings.Join(unknown, ", "))
	default:
		c.Passed = true
	}
	return c, unknown
}

// BiasCheck passes iff verdict equals BiasPass.
func BiasCheck(verdict string) Check {
	v := strings.TrimSpace(verdict)
	c := Check{Name: "bias_scan", Passed: v == BiasPass}
	if !c.Passed {
		c.Detail = fmt.Sprintf("bias verdict %q", v)
	}
	return c
}

// Report is the combined outcome of the four checks.
type Report struct {
	Passed       bool        `json:"passed"`
	SelfAudit    AuditResult `json:"self_audit"`
	BiasVerdict  string      `json:"bias_verdict"`
	Bias         Check       `json:"bias"`
	ReadingLevel Check       `json:"reading_level"`
	Attribution  Check       `json:"attribution"`
	Unattributed []string    `json:"unattributed,omitempty"`
	Reasons      []string    `json:"reasons,omitempty"`
}

// Apply copies the check outcomes onto the article's gate fields.
func (r *Report) Apply(a *model.Article) {
	a.SelfAuditPassed = r.SelfAudit.Passed
	a.BiasScanPassed = r.Bias.Passed
	a.AttributionPassed = r.Attribution.Passed
	a.ReadingLevel = r.ReadingLevel.Value
	a.Quality = &model.QualityReport{
		SelfAudit:    r.SelfAudit.Items,
		WordCount:    r.SelfAudit.WordCount,
		ReadingLevel: r.ReadingLevel.Value,
		BiasVerdict:  r.BiasVerdict,
		Unattributed: r.Unattributed,
		Reasons:      r.Reasons,
	}
}

// Gate runs the four pre-publication checks.
type Gate struct {
	scanner BiasScanner
	limits  Limits
}

// NewGate creates a Gate using scanner for the bias verdict.
func NewGate(scanner BiasScanner, limits Limits) *Gate {
	return &Gate{scanner: scanner, limits: limits}
}

// Limits returns the bounds the gate enforces.
func (g *Gate) Limits() Limits { return g.limits }

// Evaluate runs every check; Report.Passed is their conjunction. Check
// failures are reported in Reasons. An error means the bias collaborator
// could not be reached, not that the draft failed.
func (g *Gate) Evaluate(ctx context.Context, d Draft, plan []model.Attribution) (*Report, error) {
	r := &Report{
		SelfAudit:    SelfAudit(d, g.limits),
		ReadingLevel: ReadingLevel(d.Body, g.limits.MinReadingLevel, g.limits.MaxReadingLevel),
	}
	r.Attribution, r.Unattributed = AttributionCheck(d.Body, plan)

	verdict, err := g.scanner.Scan(ctx, d)
	if err != nil {
		return nil, eris.Wrap(err, "quality: bias scan")
	}
	r.BiasVerdict = strings.TrimSpace(verdict)
	r.Bias = BiasCheck(verdict)

	if !r.SelfAudit.Passed {
		r.Reasons = append(r.Reasons, describeFailures(r.SelfAudit.Failed()))
	}
	for _, c := range []Check{r.Bias, r.ReadingLevel, r.Attribution} {
		if !c.Passed {
			r.Reasons = append(r.Reasons, fmt.Sprintf("%s: %s", c.Name, c.Detail))
		}
	}
	r.Passed = r.SelfAudit.Passed && r.Bias.Passed && r.ReadingLevel.Passed && r.Attribution.Passed
	return r, nil
}
