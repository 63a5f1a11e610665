package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Import, list and score discovered events",
}

// readEvents decodes a JSON array of events from path, or stdin for "-".
// Imported events always start as discovered.
func readEvents(path string) ([]model.Event, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "open events file")
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var events []model.Event
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, eris.Wrap(err, "decode events")
	}
	for i := range events {
		if events[i].Title == "" {
			return nil, eris.Errorf("event %d: title is required", i)
		}
		events[i].Status = model.EventStatusDiscovered
		events[i].FinalScore = nil
		events[i].RejectReason = ""
		events[i].TopicID = ""
	}
	return events, nil
}

var eventsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import discovered events from a JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")

		events, err := readEvents(path)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportEvents(ctx, events)
		if err != nil {
			return eris.Wrap(err, "import events")
		}
		zap.L().Info("events imported", zap.Int("count", n), zap.String("file", path))
		return nil
	},
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		events, err := st.ListEvents(ctx, store.EventFilter{Status: model.EventStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "events list")
		}
		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No events found.") //nolint:errcheck
			return nil
		}

		tw := newTable(os.Stdout, "ID\tSTATUS\tSCORE\tCATEGORY\tTITLE")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck
				e.ID, e.Status, fmtScore(e.FinalScore), e.Category, truncate(e.Title, 60))
		}
		return tw.Flush()
	},
}

var eventsScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score discovered events for newsworthiness",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := e.Newsroom.ScoreEvents(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "score events")
		}
		return printJSON(os.Stdout, sum)
	},
}

func init() {
	eventsImportCmd.Flags().String("file", "", "JSON array of events, or - for stdin (required)")
	_ = eventsImportCmd.MarkFlagRequired("file")

	eventsListCmd.Flags().String("status", "", "filter by status")
	eventsListCmd.Flags().Int("limit", 50, "max events to list")

	eventsScoreCmd.Flags().Int("limit", 0, "max events to score (0 = all)")

	eventsCmd.AddCommand(eventsImportCmd, eventsListCmd, eventsScoreCmd)
	rootCmd.AddCommand(eventsCmd)
}
