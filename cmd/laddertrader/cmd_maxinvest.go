package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ladder-trading/internal/config"
	"ladder-trading/internal/ladder"
)

var maxInvestCmd = &cobra.Command{
	Use:   "maxinvest",
	Short: "Estimate the capital needed to fill every ladder level",
	Long: `Maxinvest walks each configured ladder from its start price down to the
bottom of the coordinate table and sums price times quantity per level. The
result is the worst case: every buy level filled, nothing sold back.`,
	RunE: runMaxInvest,
}

func init() {
	rootCmd.AddCommand(maxInvestCmd)
}

func runMaxInvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	items, err := cfg.Ladder()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSTART\tLEVELS\tMAX INVESTMENT")
	total := decimal.Zero
	for _, it := range items {
		investment, err := ladder.MaxInvestment(it)
		if err != nil {
			return fmt.Errorf("%s: %w", it.Symbol, err)
		}
		total = total.Add(investment)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", it.Symbol, it.StartPrice.String(), it.Coordinates.Len(), investment.String())
	}
	if len(items) > 1 {
		fmt.Fprintf(w, "TOTAL\t\t\t%s\n", total.String())
	}
	return w.Flush()
}
