package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/billing"
	"github.com/dailyworker/newsroom/internal/draft"
	"github.com/dailyworker/newsroom/internal/notify"
	"github.com/dailyworker/newsroom/internal/pipeline"
	"github.com/dailyworker/newsroom/internal/quality"
	"github.com/dailyworker/newsroom/internal/resilience"
	"github.com/dailyworker/newsroom/internal/store"
	"github.com/dailyworker/newsroom/internal/verify"
	anthropicpkg "github.com/dailyworker/newsroom/pkg/anthropic"
	"github.com/dailyworker/newsroom/pkg/jina"
	"github.com/dailyworker/newsroom/pkg/notion"
)

// env holds the wired collaborators for one command invocation.
type env struct {
	Store    store.Store
	Newsroom *pipeline.Newsroom
	Breakers *resilience.Breakers
	Policy   resilience.Policy
}

// Close releases the store.
func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// openStore validates cfg for mode and opens the migrated store.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initEnv opens the store and wires every configured collaborator. Missing
// credentials leave the matching collaborator nil and the stages that need
// it flag their items for manual work.
func initEnv(ctx context.Context, mode string) (*env, error) {
	st, err := openStore(ctx, mode)
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewBreakers(resilience.BreakerConfigFromConfig(cfg.Retry))
	policy := resilience.PolicyFromConfig(cfg.Retry)

	var (
		drafters []draft.Drafter
		scanner  quality.BiasScanner
		searcher verify.Searcher
		board    pipeline.Board
		drafter  draft.Drafter
	)

	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		drafters = append(drafters, draft.NewClaudeDrafter(client, cfg.Anthropic.DraftModel, cfg.Anthropic.MaxTokens))
		scanner = draft.NewClaudeBiasScanner(client, cfg.Anthropic.BiasModel, breakers.Get("bias_scan"), policy)
	}
	if cfg.OpenAI.Key != "" {
		drafters = append(drafters, draft.NewOpenAIDrafter(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, int(cfg.Anthropic.MaxTokens)))
	}
	if len(drafters) > 0 {
		drafter = draft.NewChain(breakers, policy, drafters...)
	}

	if cfg.Jina.Key != "" {
		var opts []jina.Option
		if cfg.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		client := jina.NewClient(cfg.Jina.Key, opts...)
		searcher = verify.NewJinaSearcher(client, breakers.Get("search"), policy)
	}

	if cfg.Notion.Token != "" && cfg.Notion.BoardDB != "" {
		client := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RPS))
		board = notion.NewBoard(client, cfg.Notion.BoardDB)
	}

	zap.L().Debug("collaborators wired",
		zap.Bool("drafter", drafter != nil),
		zap.Bool("bias_scanner", scanner != nil),
		zap.Bool("searcher", searcher != nil),
		zap.Bool("board", board != nil),
	)

	return &env{
		Store:    st,
		Newsroom: pipeline.New(cfg, st, drafter, scanner, searcher, board),
		Breakers: breakers,
		Policy:   policy,
	}, nil
}

// mailer builds the lifecycle mailer, or nil when no email key is set.
func (e *env) mailer() *notify.Mailer {
	if cfg.Email.APIKey == "" {
		return nil
	}
	sender := notify.NewSendGridSender(cfg.Email.APIKey, cfg.Email.BaseURL, e.Breakers.Get("email"), e.Policy)
	return notify.NewMailer(e.Store, sender, cfg.Email.From, cfg.Email.DailyQuota)
}

// billingHandler builds the payment webhook handler.
func (e *env) billingHandler(tiers *billing.Catalogue, mailer *notify.Mailer) *billing.Handler {
	var notifier billing.Notifier
	if mailer != nil {
		notifier = mailer
	}
	return billing.NewHandler(e.Store, tiers, notifier)
}
