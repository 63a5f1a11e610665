package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Promote approved events and verify topic sources",
}

var topicsPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Turn approved events into pending topics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.Newsroom.PromoteEvents(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "promote events")
		}
		zap.L().Info("events promoted", zap.Int("count", n))
		return nil
	},
}

var topicsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify sources for pending topics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := initEnv(ctx, "verify")
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := e.Newsroom.VerifyTopics(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "verify topics")
		}
		return printJSON(os.Stdout, sum)
	},
}

var topicsRequeueCmd = &cobra.Command{
	Use:   "requeue <topic-id>",
	Short: "Send a topic stuck in verification back to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		t, err := e.Newsroom.RequeueTopic(ctx, args[0])
		if err != nil {
			return err
		}
		zap.L().Info("topic requeued", zap.String("topic_id", t.ID))
		return nil
	},
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		status, _ := cmd.Flags().GetString("status")
		manual, _ := cmd.Flags().GetBool("manual")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		topics, err := st.ListTopics(ctx, store.TopicFilter{
			Status:     model.VerificationStatus(status),
			ManualOnly: manual,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "topics list")
		}
		if len(topics) == 0 {
			fmt.Fprintln(os.Stderr, "No topics found.") //nolint:errcheck
			return nil
		}

		tw := newTable(os.Stdout, "ID\tSTATUS\tCREDIBLE\tACADEMIC\tHEADLINE\tMANUAL")
		for _, t := range topics {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", //nolint:errcheck
				t.ID, t.VerificationStatus, t.CredibleCount, t.AcademicCount,
				truncate(t.Headline, 50), truncate(t.ManualReason, 40))
		}
		return tw.Flush()
	},
}

func init() {
	topicsPromoteCmd.Flags().Int("limit", 0, "max events to promote (0 = all)")
	topicsVerifyCmd.Flags().Int("limit", 0, "max topics to verify (0 = all)")

	topicsListCmd.Flags().String("status", "", "filter by verification status")
	topicsListCmd.Flags().Bool("manual", false, "only topics flagged for manual intervention")
	topicsListCmd.Flags().Int("limit", 50, "max topics to list")

	topicsCmd.AddCommand(topicsPromoteCmd, topicsVerifyCmd, topicsRequeueCmd, topicsListCmd)
	rootCmd.AddCommand(topicsCmd)
}
