package draft

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dailyworker/newsroom/internal/quality"
	"github.com/dailyworker/newsroom/internal/resilience"
	"github.com/dailyworker/newsroom/pkg/anthropic"
)

// ClaudeDrafter drafts articles with an Anthropic model.
type ClaudeDrafter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeDrafter creates a drafter for model.
func NewClaudeDrafter(client anthropic.Client, model string, maxTokens int64) *ClaudeDrafter {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ClaudeDrafter{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Drafter.
func (d *ClaudeDrafter) Name() string { return "anthropic" }

// Draft implements Drafter.
func (d *ClaudeDrafter) Draft(ctx context.Context, req Request) (*Output, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		System:    anthropic.CachedSystem(StyleGuide),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, classifyAnthropic(err)
	}
	resp.Usage.LogCost(d.model, "draft")

	out, err := ParseOutput(resp.Text(), req.Headline)
	if err != nil {
		return nil, err
	}
	out.Model = d.model
	return out, nil
}

func classifyAnthropic(err error) error {
	if anthropic.IsRetryable(err) {
		return resilience.NewTransientError(err, anthropic.StatusCode(err))
	}
	return err
}

const biasPrompt = `You are a standards editor. Read the article below and decide whether it
presents the story fairly: claims are attributed, opposing parties are
characterised accurately, and loaded language is absent.

Answer with exactly one line: PASS, or FAIL: <short reason>.

HEADLINE: %s

%s`

// ClaudeBiasScanner asks an Anthropic model for a bias verdict.
type ClaudeBiasScanner struct {
	client  anthropic.Client
	model   string
	breaker *resilience.Breaker
	policy  resilience.Policy
}

// NewClaudeBiasScanner creates a bias scanner for model.
func NewClaudeBiasScanner(client anthropic.Client, model string, breaker *resilience.Breaker, policy resilience.Policy) *ClaudeBiasScanner {
	if breaker == nil {
		breaker = resilience.NewBreaker("anthropic-bias", resilience.BreakerConfig{})
	}
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetry("anthropic", "bias_scan")
	}
	return &ClaudeBiasScanner{client: client, model: model, breaker: breaker, policy: policy}
}

// Scan implements quality.BiasScanner. The returned verdict is the first
// line of the model's answer.
func (s *ClaudeBiasScanner) Scan(ctx context.Context, d quality.Draft) (string, error) {
	resp, err := resilience.Protect(ctx, s.breaker, s.policy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.model,
			MaxTokens: 64,
			Messages: []anthropic.Message{{
				Role:    "user",
				Content: fmt.Sprintf(biasPrompt, d.Headline, strings.TrimSpace(d.Body)),
			}},
		})
		if err != nil {
			return nil, classifyAnthropic(err)
		}
		return resp, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "draft: bias scan")
	}
	resp.Usage.LogCost(s.model, "bias_scan")

	verdict, _, _ := strings.Cut(strings.TrimSpace(resp.Text()), "\n")
	return strings.TrimSpace(verdict), nil
}

var _ quality.BiasScanner = (*ClaudeBiasScanner)(nil)
