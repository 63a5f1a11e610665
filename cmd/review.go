package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dailyworker/newsroom/internal/workflow"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Take editorial actions on an article",
}

// reviewAction builds a subcommand that applies action as the --editor.
func reviewAction(use string, action workflow.Action, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <article-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			editor, _ := cmd.Flags().GetString("editor")
			note, _ := cmd.Flags().GetString("note")

			e, err := initEnv(ctx, "cli")
			if err != nil {
				return err
			}
			defer e.Close()

			a, err := e.Newsroom.Act(ctx, args[0], action, editor, note)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, a)
		},
	}
	c.Flags().String("editor", "", "acting editor (required)")
	c.Flags().String("note", "", "note recorded on the transition")
	_ = c.MarkFlagRequired("editor")
	return c
}

func init() {
	reviewCmd.AddCommand(
		reviewAction("claim", workflow.ActionClaim, "Claim a pending article for review"),
		reviewAction("approve", workflow.ActionApprove, "Approve an article under review"),
		reviewAction("revise", workflow.ActionRequestRevision, "Return an article to the drafter with notes"),
		reviewAction("escalate", workflow.ActionEscalate, "Escalate an article to a senior editor"),
		reviewAction("archive", workflow.ActionArchive, "Archive an article without publishing"),
	)
	rootCmd.AddCommand(reviewCmd)
}
