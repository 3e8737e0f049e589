package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ladder-trading/internal/config"
	"ladder-trading/internal/reconcile"
)

var (
	cancelAllTimeout time.Duration
	cancelAllYes     bool
)

var cancelAllCmd = &cobra.Command{
	Use:   "cancel-all",
	Short: "Cancel every open order for the configured symbols",
	Long: `Cancel-all tears down the resting book without placing anything back.
Use it before reconfiguring a ladder or decommissioning an instance. The
next run rebuilds the book from scratch.`,
	RunE: runCancelAll,
}

func init() {
	rootCmd.AddCommand(cancelAllCmd)
	cancelAllCmd.Flags().DurationVar(&cancelAllTimeout, "timeout", 60*time.Second, "broker request timeout")
	cancelAllCmd.Flags().BoolVar(&cancelAllYes, "yes", false, "skip the confirmation prompt")
}

func runCancelAll(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	brokerage, err := buildBrokerage(cfg)
	if err != nil {
		return err
	}

	if !cancelAllYes {
		fmt.Printf("cancel all open orders for %d symbol(s) on %s? [y/N] ", len(cfg.Items), brokerage.Name())
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("aborted")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cancelAllTimeout)
	defer cancel()

	canceled := 0
	for _, item := range cfg.Items {
		open, err := brokerage.OpenOrders(ctx, item.Symbol)
		if err != nil {
			return fmt.Errorf("%s: %w", item.Symbol, err)
		}
		for _, ord := range reconcile.SortForCancellation(open) {
			if err := brokerage.CancelOrder(ctx, ord.Symbol, ord.BrokerID); err != nil {
				return fmt.Errorf("cancel %s %s: %w", ord.Symbol, ord.BrokerID, err)
			}
			log.Info().
				Str("symbol", ord.Symbol).
				Str("broker_id", ord.BrokerID).
				Str("price", ord.LimitPrice.String()).
				Msg("order canceled")
			canceled++
		}
	}
	fmt.Printf("canceled %d orders\n", canceled)
	return nil
}
