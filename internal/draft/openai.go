package draft

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/resilience"
)

// OpenAIDrafter drafts articles with an OpenAI chat model. It is the
// secondary drafter in the chain.
type OpenAIDrafter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIDrafter creates a drafter. An empty baseURL uses the public API.
func NewOpenAIDrafter(apiKey, baseURL, model string, maxTokens int) *OpenAIDrafter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o"
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &OpenAIDrafter{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name implements Drafter.
func (d *OpenAIDrafter) Name() string { return "openai" }

// Draft implements Drafter.
func (d *OpenAIDrafter) Draft(ctx context.Context, req Request) (*Output, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: StyleGuide},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyOutput
	}

	zap.L().Info("openai: usage",
		zap.String("model", d.model),
		zap.String("purpose", "draft"),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	out, err := ParseOutput(resp.Choices[0].Message.Content, req.Headline)
	if err != nil {
		return nil, err
	}
	out.Model = d.model
	return out, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classifyOpenAI(err error) error {
	code := openAIStatus(err)
	wrapped := eris.Wrap(err, "openai: create chat completion")
	if code == http.StatusTooManyRequests || code >= 500 {
		return resilience.NewTransientError(wrapped, code)
	}
	return wrapped
}
