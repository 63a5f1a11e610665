package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dailyworker/newsroom/internal/export"
	"github.com/dailyworker/newsroom/internal/model"
	"github.com/dailyworker/newsroom/internal/verify"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect the source registry and its reliability log",
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a source; an existing domain keeps its current credibility",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")
		domain, _ := cmd.Flags().GetString("domain")
		cred, _ := cmd.Flags().GetFloat64("credibility")
		academic, _ := cmd.Flags().GetBool("academic")

		if cred < cfg.Reliability.MinScore || cred > cfg.Reliability.MaxScore {
			return eris.Errorf("credibility must be within [%g, %g]", cfg.Reliability.MinScore, cfg.Reliability.MaxScore)
		}
		if !cmd.Flags().Changed("academic") {
			academic = verify.IsAcademicDomain(domain)
		}

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		src := &model.Source{Name: name, Domain: domain, Credibility: cred, Academic: academic}
		if err := st.UpsertSource(ctx, src); err != nil {
			return eris.Wrap(err, "upsert source")
		}
		zap.L().Info("source registered", zap.String("source_id", src.ID), zap.String("domain", src.Domain))
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources with credibility and tier",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sources, err := st.ListSources(ctx)
		if err != nil {
			return eris.Wrap(err, "sources list")
		}
		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources found.") //nolint:errcheck
			return nil
		}

		tw := newTable(os.Stdout, "ID\tDOMAIN\tNAME\tCREDIBILITY\tTIER\tACADEMIC")
		for _, s := range sources {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%t\n", //nolint:errcheck
				s.ID, s.Domain, truncate(s.Name, 40), s.Credibility, verify.TierFor(s.Credibility), s.Academic)
		}
		return tw.Flush()
	},
}

var sourcesLogCmd = &cobra.Command{
	Use:   "log <source-id>",
	Short: "Show the reliability log of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetSource(ctx, args[0]); err != nil {
			return err
		}
		entries, err := st.ListReliabilityLog(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reliability log")
		}

		tw := newTable(os.Stdout, "AT\tCORRECTION\tREQUESTED\tAPPLIED\tOLD\tNEW")
		for _, e := range entries {
			at := e.CreatedAt
			fmt.Fprintf(tw, "%s\t%s\t%+.2f\t%+.2f\t%.2f\t%.2f\n", //nolint:errcheck
				fmtTime(&at), e.CorrectionID, e.RequestedDelta, e.AppliedDelta, e.OldScore, e.NewScore)
		}
		return tw.Flush()
	},
}

var sourcesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the source registry and reliability log to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")

		st, err := openStore(ctx, "cli")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sources, err := st.ListSources(ctx)
		if err != nil {
			return eris.Wrap(err, "sources list")
		}
		var entries []model.ReliabilityEntry
		for _, s := range sources {
			log, err := st.ListReliabilityLog(ctx, s.ID)
			if err != nil {
				return eris.Wrapf(err, "reliability log for %s", s.ID)
			}
			entries = append(entries, log...)
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrap(err, "create workbook")
		}
		if err := export.WriteReliabilityWorkbook(f, sources, entries); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "close workbook")
		}
		zap.L().Info("reliability workbook written",
			zap.String("path", out), zap.Int("sources", len(sources)), zap.Int("entries", len(entries)))
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().String("name", "", "display name (required)")
	sourcesAddCmd.Flags().String("domain", "", "registrable domain, e.g. apnews.com (required)")
	sourcesAddCmd.Flags().Float64("credibility", 50, "initial credibility score")
	sourcesAddCmd.Flags().Bool("academic", false, "academic or peer-reviewed outlet (default: inferred from domain)")
	_ = sourcesAddCmd.MarkFlagRequired("name")
	_ = sourcesAddCmd.MarkFlagRequired("domain")

	sourcesExportCmd.Flags().String("out", "reliability.xlsx", "output path")

	sourcesCmd.AddCommand(sourcesAddCmd, sourcesListCmd, sourcesLogCmd, sourcesExportCmd)
	rootCmd.AddCommand(sourcesCmd)
}
