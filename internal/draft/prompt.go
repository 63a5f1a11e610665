// Package draft produces article text through language-model collaborators.
// Model output is opaque; the package only asks for a headline and a body
// and parses them back out.
package draft

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/model"
)

// ErrEmptyOutput is returned when a model answers without a usable body.
var ErrEmptyOutput = eris.New("draft: model returned no article body")

// Request carries everything a drafter needs for one article.
type Request struct {
	Headline      string
	Summary       string
	Category      string
	Opinion       bool
	Plan          []model.Attribution
	RevisionNotes string
	Feedback      []string
	MinWords      int
	MaxWords      int
	TargetGrade   float64

	// Simple selects the minimal fallback prompt.
	Simple bool
}

// Output is the parsed model answer.
type Output struct {
	Headline string
	Body     string
	Model    string
}

// Drafter turns a Request into article text.
type Drafter interface {
	Name() string
	Draft(ctx context.Context, req Request) (*Output, error)
}

// StyleGuide is the stable system prompt shared by every draft.
const StyleGuide = `You are a staff reporter for The Daily Worker, a newspaper covering labor,
workplaces and working-class communities.

Rules:
- Write in plain, concrete language at roughly an eighth-grade reading level.
- Put the most important facts in a short first paragraph.
- Attribute every factual claim inline with the bracketed source key from the
  attribution plan, for example [S1]. Never cite a key that is not in the plan.
- Do not invent quotes, names, numbers or sources.
- News pieces do not use the first person and avoid sensational adjectives.
- Output exactly:
HEADLINE: <headline>
BODY:
<article body in markdown paragraphs>`

var fullPrompt = template.Must(template.New("full").Parse(
	`Write a {{if .Opinion}}signed opinion column{{else}}news article{{end}}{{with .Category}} for the {{.}} desk{{end}}.

Working headline: {{.Headline}}
Summary: {{.Summary}}
Length: {{.MinWords}}-{{.MaxWords}} words. Target Flesch-Kincaid grade: {{printf "%.1f" .TargetGrade}}.

Attribution plan:
{{range .Plan}}[{{.Key}}] {{.Name}} {{.URL}}
{{else}}(none)
{{end}}{{with .RevisionNotes}}
An editor asked for these revisions:
{{.}}
{{end}}{{if .Feedback}}
The previous draft failed these checks; fix them:
{{range .Feedback}}- {{.}}
{{end}}{{end}}`))

var simplePrompt = template.Must(template.New("simple").Parse(
	`Write a short, plain {{if .Opinion}}opinion column{{else}}news article{{end}} about: {{.Headline}}.
{{.Summary}}
Cite sources only as {{range $i, $a := .Plan}}{{if $i}}, {{end}}[{{$a.Key}}]{{end}}.`))

// BuildPrompt renders the user prompt for req.
func BuildPrompt(req Request) (string, error) {
	tmpl := fullPrompt
	if req.Simple {
		tmpl = simplePrompt
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, req); err != nil {
		return "", eris.Wrap(err, "draft: render prompt")
	}
	return buf.String(), nil
}

// ParseOutput extracts the headline and body from a model answer. A missing
// HEADLINE line falls back to fallbackHeadline; a missing BODY marker treats
// the whole answer as the body.
func ParseOutput(text, fallbackHeadline string) (*Output, error) {
	text = strings.TrimSpace(text)
	out := &Output{Headline: fallbackHeadline}

	body := text
	if i := strings.Index(text, "BODY:"); i >= 0 {
		header := text[:i]
		body = text[i+len("BODY:"):]
		for _, line := range strings.Split(header, "\n") {
			if h, ok := strings.CutPrefix(strings.TrimSpace(line), "HEADLINE:"); ok && strings.TrimSpace(h) != "" {
				out.Headline = strings.TrimSpace(h)
			}
		}
	} else if h, rest, ok := strings.Cut(text, "\n"); ok && strings.HasPrefix(h, "HEADLINE:") {
		out.Headline = strings.TrimSpace(strings.TrimPrefix(h, "HEADLINE:"))
		body = rest
	}

	out.Body = strings.TrimSpace(body)
	if out.Body == "" {
		return nil, ErrEmptyOutput
	}
	return out, nil
}
