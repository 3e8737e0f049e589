package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ladder-trading/internal/config"
	"ladder-trading/internal/reconcile"
)

var ordersTimeout time.Duration

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List open orders for every configured symbol",
	RunE:  runOrders,
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.Flags().DurationVar(&ordersTimeout, "timeout", 30*time.Second, "broker request timeout")
}

func runOrders(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	brokerage, err := buildBrokerage(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ordersTimeout)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIDE\tPRICE\tQTY\tPARTIAL\tBROKER ID")
	total := 0
	for _, item := range cfg.Items {
		open, err := brokerage.OpenOrders(ctx, item.Symbol)
		if err != nil {
			return fmt.Errorf("%s: %w", item.Symbol, err)
		}
		for _, ord := range reconcile.SortForCancellation(open) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n",
				ord.Symbol, ord.Side, ord.LimitPrice.String(), ord.Quantity, ord.PartialFilled, ord.BrokerID)
			total++
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d open orders\n", total)
	return nil
}
