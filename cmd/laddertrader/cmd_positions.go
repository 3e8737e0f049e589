package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ladder-trading/internal/config"
	"ladder-trading/internal/core"
)

var positionsTimeout time.Duration

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show the held share count for every configured symbol",
	RunE:  runPositions,
}

func init() {
	rootCmd.AddCommand(positionsCmd)
	positionsCmd.Flags().DurationVar(&positionsTimeout, "timeout", 30*time.Second, "broker request timeout")
}

func runPositions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	brokerage, err := buildBrokerage(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), positionsTimeout)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSHARES")
	for _, item := range cfg.Items {
		held, err := brokerage.Position(ctx, item.Symbol)
		if err != nil {
			return fmt.Errorf("%s: %w", item.Symbol, err)
		}
		shares, err := held.Shares()
		switch {
		case errors.Is(err, core.ErrPositionUnverified):
			fmt.Fprintf(w, "%s\tunverified\n", item.Symbol)
		case err != nil:
			return fmt.Errorf("%s: %w", item.Symbol, err)
		default:
			fmt.Fprintf(w, "%s\t%d\n", item.Symbol, shares)
		}
	}
	return w.Flush()
}
