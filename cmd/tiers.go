package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dailyworker/newsroom/internal/billing"
)

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Show the subscription tier catalogue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := billing.LoadTiers(cfg.Billing.TiersPath)
		if err != nil {
			return err
		}

		tw := newTable(os.Stdout, "TIER\tNAME\tPRICE\tPRICE ID\tARTICLES/MONTH\tNEWSLETTER\tAD-FREE\tARCHIVE")
		for _, t := range cat.All() {
			articles := "unlimited"
			if !t.Unlimited() {
				articles = fmt.Sprint(t.Limits.ArticlesPerMonth)
			}
			fmt.Fprintf(tw, "%s\t%s\t$%d.%02d\t%s\t%s\t%t\t%t\t%t\n", //nolint:errcheck
				t.Name, t.DisplayName, t.PriceCents/100, t.PriceCents%100, t.PriceID,
				articles, t.Limits.Newsletter, t.Limits.AdFree, t.Limits.ArchiveAccess)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(tiersCmd)
}
