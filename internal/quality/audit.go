package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/dailyworker/newsroom/internal/config"
)

// Draft is the text under evaluation.
type Draft struct {
	Headline string
	Body     string
	Category string
	Opinion  bool
}

// Limits holds the numeric bounds the checks enforce.
type Limits struct {
	MinWords        int
	MaxWords        int
	MaxLedeWords    int
	MinReadingLevel float64
	MaxReadingLevel float64
}

// DefaultLimits returns 400-800 words, a 60-word lede and grade 7.5-8.5.
func DefaultLimits() Limits {
	return Limits{MinWords: 400, MaxWords: 800, MaxLedeWords: 60, MinReadingLevel: 7.5, MaxReadingLevel: 8.5}
}

// LimitsFromConfig maps the quality config section onto Limits.
func LimitsFromConfig(c config.QualityConfig) Limits {
	return Limits{
		MinWords:        c.MinWords,
		MaxWords:        c.MaxWords,
		MaxLedeWords:    c.MaxLedeWords,
		MinReadingLevel: c.MinReadingLevel,
		MaxReadingLevel: c.MaxReadingLevel,
	}
}

// Checklist item names, in audit order.
const (
	ItemHeadline       = "headline_present"
	ItemLength         = "length_in_range"
	ItemAttributed     = "sources_attributed"
	ItemMultiSource    = "multiple_sources"
	ItemLede           = "lede_concise"
	ItemNoPlaceholders = "no_placeholders"
	ItemNoSensational  = "no_sensational_language"
	ItemNoFirstPerson  = "no_first_person"
	ItemQuotes         = "balanced_quotations"
	ItemCategory       = "category_assigned"
)

// ChecklistItems lists the ten self-audit items in order.
var ChecklistItems = []string{
	ItemHeadline, ItemLength, ItemAttributed, ItemMultiSource, ItemLede,
	ItemNoPlaceholders, ItemNoSensational, ItemNoFirstPerson, ItemQuotes, ItemCategory,
}

var (
	placeholderRe = regexp.MustCompile(`(?i)\b(lorem ipsum|tk|tktk|todo|xxx|insert [a-z ]+ here)\b|\[citation needed\]|\[source\]`)
	sensationalRe = regexp.MustCompile(`(?i)\b(shocking|unbelievable|bombshell|explosive|slams|destroys|outrageous|you won't believe|jaw-dropping|mind-blowing)\b`)
	// "us" is matched case-sensitively so "US" is not a pronoun.
	firstPersonRe = regexp.MustCompile(`\b((?i:i|me|my|mine|we|our|ours)|us|Us)\b`)
	quotedRe      = regexp.MustCompile(`"[^"]*"|“[^”]*”`)
)

// AuditResult is the self-audit checklist outcome.
type AuditResult struct {
	Items     map[string]bool `json:"items"`
	WordCount int             `json:"word_count"`
	Passed    bool            `json:"passed"`
}

// Failed returns the names of failing items in checklist order.
func (a AuditResult) Failed() []string {
	return lo.Filter(ChecklistItems, func(name string, _ int) bool { return !a.Items[name] })
}

// SelfAudit evaluates the ten fixed checklist items. It passes iff all ten hold.
func SelfAudit(d Draft, l Limits) AuditResult {
	words := WordCount(d.Body)
	cited := lo.Uniq(citationKeys(d.Body))
	outside := quotedRe.ReplaceAllString(d.Body, "")

	items := map[string]bool{
		ItemHeadline:       strings.TrimSpace(d.Headline) != "",
		ItemLength:         words >= l.MinWords && words <= l.MaxWords,
		ItemAttributed:     len(cited) > 0,
		ItemMultiSource:    len(cited) >= 2,
		ItemLede:           WordCount(lede(d.Body)) <= l.MaxLedeWords,
		ItemNoPlaceholders: !placeholderRe.MatchString(d.Body) && !placeholderRe.MatchString(d.Headline),
		ItemNoSensational:  !sensationalRe.MatchString(outside) && !sensationalRe.MatchString(d.Headline),
		ItemNoFirstPerson:  d.Opinion || !firstPersonRe.MatchString(outside),
		ItemQuotes:         quotesBalanced(d.Body),
		ItemCategory:       strings.TrimSpace(d.Category) != "",
	}

	passed := lo.EveryBy(ChecklistItems, func(name string) bool { return items[name] })
	return AuditResult{Items: items, WordCount: words, Passed: passed}
}

// lede returns the first non-heading paragraph of body.
func lede(body string) string {
	for _, p := range strings.Split(body, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		return p
	}
	return ""
}

func quotesBalanced(body string) bool {
	if strings.Count(body, `"`)%2 != 0 {
		return false
	}
	return strings.Count(body, "“") == strings.Count(body, "”")
}

func citationKeys(body string) []string {
	matches := citationRe.FindAllStringSubmatch(body, -1)
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m[1])
	}
	return keys
}

func describeFailures(items []string) string {
	return fmt.Sprintf("self-audit failed: %s", strings.Join(items, ", "))
}
