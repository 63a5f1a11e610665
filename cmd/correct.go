package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/model"
)

var correctCmd = &cobra.Command{
	Use:   "correct <article-id>",
	Short: "File a correction against a published article",
	Long: "Records the correction, retracts the article when the correction is critical, " +
		"and lowers the credibility of the cited sources.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		typ, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")
		desc, _ := cmd.Flags().GetString("description")
		sources, _ := cmd.Flags().GetStringSlice("source")
		public, _ := cmd.Flags().GetBool("public")
		by, _ := cmd.Flags().GetString("by")

		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		out, err := e.Newsroom.FileCorrection(ctx, &model.Correction{
			ArticleID:        args[0],
			Type:             model.CorrectionType(typ),
			Severity:         model.Severity(severity),
			Description:      desc,
			SourceIDs:        sources,
			PublicDisclosure: public,
			CreatedBy:        by,
		})
		if err != nil {
			return err
		}
		zap.L().Info("correction filed",
			zap.String("correction_id", out.Correction.ID),
			zap.Bool("retracted", out.Retracted),
			zap.Int("reliability_entries", len(out.Entries)),
		)
		return printJSON(os.Stdout, out)
	},
}

func init() {
	correctCmd.Flags().String("type", "", "factual_error, source_error, clarification, update or retraction (required)")
	correctCmd.Flags().String("severity", "", "minor, moderate, major or critical (required)")
	correctCmd.Flags().String("description", "", "what was wrong (required)")
	correctCmd.Flags().StringSlice("source", nil, "source id to penalise (repeatable)")
	correctCmd.Flags().Bool("public", false, "publish a public correction notice")
	correctCmd.Flags().String("by", "", "editor filing the correction (required)")
	for _, f := range []string{"type", "severity", "description", "by"} {
		_ = correctCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(correctCmd)
}
