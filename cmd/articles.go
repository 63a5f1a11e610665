package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/pipeline"
	"github.com/dailyworker/newsroom/internal/store"
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Draft, assign, revise and publish articles",
}

var articlesDraftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft articles for verified topics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := initEnv(ctx, "draft")
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := e.Newsroom.DraftArticles(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "draft articles")
		}
		return printJSON(os.Stdout, sum)
	},
}

var articlesAssignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign pending articles to editors round-robin",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.Newsroom.AssignEditors(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "assign editors")
		}
		zap.L().Info("articles assigned", zap.Int("count", n))
		return nil
	},
}

var articlesReviseCmd = &cobra.Command{
	Use:   "revise",
	Short: "Redraft articles returned for revision",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := initEnv(ctx, "draft")
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := e.Newsroom.ReviseArticles(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "revise articles")
		}
		return printJSON(os.Stdout, sum)
	},
}

var articlesRedraftCmd = &cobra.Command{
	Use:   "redraft [article-id]",
	Short: "Regenerate drafts held for manual intervention",
	Long: "Regenerates a flagged draft with a fresh attempt budget and submits it for review if it " +
		"now passes the quality gate. Without an id, every flagged draft is retried.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := initEnv(ctx, "draft")
		if err != nil {
			return err
		}
		defer e.Close()

		if len(args) == 1 {
			a, sum, err := e.Newsroom.Redraft(ctx, args[0])
			if err != nil {
				return eris.Wrapf(err, "redraft %s", args[0])
			}
			return printJSON(os.Stdout, struct {
				Status  model.ArticleStatus    `json:"status"`
				Manual  string                 `json:"manual_reason,omitempty"`
				Summary *pipeline.DraftSummary `json:"summary"`
			}{a.Status, a.ManualReason, sum})
		}
		sum, err := e.Newsroom.RedraftArticles(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "redraft articles")
		}
		return printJSON(os.Stdout, sum)
	},
}

var articlesPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish approved articles that pass the publication gate",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := e.Newsroom.PublishApproved(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "publish articles")
		}
		return printJSON(os.Stdout, sum)
	},
}

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List articles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		status, _ := cmd.Flags().GetString("status")
		editor, _ := cmd.Flags().GetString("editor")
		manual, _ := cmd.Flags().GetBool("manual")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ArticleFilter{AssignedEditor: editor, ManualOnly: manual, Limit: limit}
		if status != "" {
			s, err := model.ParseArticleStatus(status)
			if err != nil {
				return err
			}
			filter.Status = s
		}

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		articles, err := st.ListArticles(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "articles list")
		}
		if len(articles) == 0 {
			fmt.Fprintln(os.Stderr, "No articles found.") //nolint:errcheck
			return nil
		}

		tw := newTable(os.Stdout, "ID\tSTATUS\tEDITOR\tDEADLINE\tLEVEL\tHEADLINE\tMANUAL")
		for _, a := range articles {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\t%s\n", //nolint:errcheck
				a.ID, a.Status, a.AssignedEditor, fmtTime(a.ReviewDeadline), a.ReadingLevel,
				truncate(a.Headline, 50), truncate(a.ManualReason, 40))
		}
		return tw.Flush()
	},
}

var articlesShowCmd = &cobra.Command{
	Use:   "show <article-id>",
	Short: "Show an article with its transition log and corrections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := st.GetArticle(ctx, args[0])
		if err != nil {
			return err
		}
		trs, err := st.ListTransitions(ctx, a.ID)
		if err != nil {
			return eris.Wrap(err, "list transitions")
		}
		cs, err := st.ListCorrections(ctx, a.ID)
		if err != nil {
			return eris.Wrap(err, "list corrections")
		}
		return printJSON(os.Stdout, struct {
			*model.Article
			Transitions []model.Transition `json:"transitions"`
			Corrections []model.Correction `json:"corrections"`
		}{a, trs, cs})
	},
}

func init() {
	for _, c := range []*cobra.Command{articlesDraftCmd, articlesAssignCmd, articlesReviseCmd, articlesRedraftCmd, articlesPublishCmd} {
		c.Flags().Int("limit", 0, "max articles to process (0 = all)")
	}

	articlesListCmd.Flags().String("status", "", "filter by workflow status")
	articlesListCmd.Flags().String("editor", "", "filter by assigned editor")
	articlesListCmd.Flags().Bool("manual", false, "only articles flagged for manual intervention")
	articlesListCmd.Flags().Int("limit", 50, "max articles to list")

	articlesCmd.AddCommand(articlesDraftCmd, articlesAssignCmd, articlesReviseCmd, articlesRedraftCmd,
		articlesPublishCmd, articlesListCmd, articlesShowCmd)
	rootCmd.AddCommand(articlesCmd)
}
