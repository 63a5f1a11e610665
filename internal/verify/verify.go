// Package verify classifies a topic's sources by credibility and decides
// whether the topic is sufficiently sourced to draft.
package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/dailyworker/newsroom/internal/config"
	"github.com/dailyworker/newsroom/internal/model"
)

// Policy holds the verification thresholds.
type Policy struct {
	CredibleThreshold float64
	MinCredible       int
	MinAcademic       int
	MaxPlanSources    int
}

// DefaultPolicy returns the standard thresholds: three credible sources or
// two academic citations.
func DefaultPolicy() Policy {
	return Policy{CredibleThreshold: 75, MinCredible: 3, MinAcademic: 2, MaxPlanSources: 6}
}

// PolicyFromConfig maps the verification config section onto a Policy.
func PolicyFromConfig(c config.VerificationConfig) Policy {
	p := Policy{
		CredibleThreshold: c.CredibleThreshold,
		MinCredible:       c.MinCredible,
		MinAcademic:       c.MinAcademic,
		MaxPlanSources:    c.MaxPlanSources,
	}
	d := DefaultPolicy()
	if p.MinCredible <= 0 {
		p.MinCredible = d.MinCredible
	}
	if p.MinAcademic <= 0 {
		p.MinAcademic = d.MinAcademic
	}
	if p.MaxPlanSources <= 0 {
		p.MaxPlanSources = d.MaxPlanSources
	}
	return p
}

// TierFor bands a credibility score.
func TierFor(score float64) model.CredibilityTier {
	switch {
	case score >= 90:
		return model.Tier1
	case score >= 75:
		return model.Tier2
	case score >= 50:
		return model.Tier3
	default:
		return model.Tier4
	}
}

// Result is the verification verdict for one topic.
type Result struct {
	Status        model.VerificationStatus `json:"status"`
	Sources       []model.TopicSource      `json:"sources"`
	CredibleCount int                      `json:"credible_count"`
	AcademicCount int                      `json:"academic_count"`
	Shortfall     string                   `json:"shortfall,omitempty"`
	Plan          []model.Attribution      `json:"plan,omitempty"`
}

// Verified reports whether the topic may proceed to drafting.
func (r Result) Verified() bool { return r.Status == model.VerificationVerified }

// Verify classifies sources and applies the policy. It is deterministic:
// sources are deduplicated by URL, tiers are recomputed from credibility,
// and counts are of distinct outlets so one publisher counts once.
func Verify(sources []model.TopicSource, p Policy) Result {
	uniq := lo.UniqBy(sources, func(s model.TopicSource) string {
		return strings.TrimSuffix(strings.ToLower(s.URL), "/")
	})
	classified := lo.Map(uniq, func(s model.TopicSource, _ int) model.TopicSource {
		s.Tier = TierFor(s.Credibility)
		return s
	})

	credible := countOutlets(classified, func(s model.TopicSource) bool { return s.Credibility >= p.CredibleThreshold })
	academic := countOutlets(classified, func(s model.TopicSource) bool { return s.Academic })

	res := Result{Sources: classified, CredibleCount: credible, AcademicCount: academic}
	switch {
	case credible >= p.MinCredible || academic >= p.MinAcademic:
		res.Status = model.VerificationVerified
	case credible > 0 || academic > 0:
		res.Status = model.VerificationPartial
	default:
		res.Status = model.VerificationFailed
	}
	if res.Status != model.VerificationVerified {
		res.Shortfall = shortfall(credible, academic, p)
	}
	res.Plan = attributionPlan(classified, p)
	return res
}

// outletKey identifies the publisher behind a source: its registry id, else
// its domain.
func outletKey(s model.TopicSource) string {
	if s.SourceID != "" {
		return "id:" + s.SourceID
	}
	if s.Domain != "" {
		return "domain:" + strings.ToLower(s.Domain)
	}
	if d := DomainOf(s.URL); d != "" {
		return "domain:" + d
	}
	return "url:" + strings.ToLower(s.URL)
}

func countOutlets(sources []model.TopicSource, keep func(model.TopicSource) bool) int {
	matched := lo.Filter(sources, func(s model.TopicSource, _ int) bool { return keep(s) })
	return len(lo.UniqBy(matched, outletKey))
}

func shortfall(credible, academic int, p Policy) string {
	return fmt.Sprintf("need %d more credible source(s) (have %d of %d) or %d more academic citation(s) (have %d of %d)",
		p.MinCredible-credible, credible, p.MinCredible,
		p.MinAcademic-academic, academic, p.MinAcademic)
}

// attributionPlan keys the usable sources S1..Sn, most credible first.
func attributionPlan(sources []model.TopicSource, p Policy) []model.Attribution {
	usable := lo.Filter(sources, func(s model.TopicSource, _ int) bool {
		return s.Credibility >= p.CredibleThreshold || s.Academic
	})
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Credibility != usable[j].Credibility {
			return usable[i].Credibility > usable[j].Credibility
		}
		return usable[i].URL < usable[j].URL
	})
	if p.MaxPlanSources > 0 && len(usable) > p.MaxPlanSources {
		usable = usable[:p.MaxPlanSources]
	}

	plan := make([]model.Attribution, 0, len(usable))
	for i, s := range usable {
		plan = append(plan, model.Attribution{
			Key:      fmt.Sprintf("S%d", i+1),
			SourceID: s.SourceID,
			Name:     s.Name,
			URL:      s.URL,
		})
	}
	return plan
}
