package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ladder-trading/internal/config"
	"ladder-trading/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last persisted runtime status and snapshots",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	stateDir := filepath.Join(cfg.State.Dir, strings.ToLower(string(cfg.Mode)), cfg.InstanceID)
	st, err := store.New(stateDir)
	if err != nil {
		return err
	}

	status, ok, err := st.LoadRuntimeStatus()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no runtime status recorded, has the engine run yet?")
		return nil
	}

	fmt.Printf("mode:        %s\n", status.Mode)
	fmt.Printf("instance:    %s\n", status.InstanceID)
	fmt.Printf("state:       %s (pid %d)\n", status.State, status.PID)
	fmt.Printf("started_at:  %s\n", status.StartedAt.Format(time.RFC3339))
	fmt.Printf("updated_at:  %s\n", status.UpdatedAt.Format(time.RFC3339))
	if status.LastError != "" {
		fmt.Printf("last_error:  %s\n", status.LastError)
	}

	for _, symbol := range status.Symbols {
		snap, ok, err := st.LoadLadderSnapshot(symbol)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s: no snapshot\n", symbol)
			continue
		}
		fmt.Printf("%s: held=%d target=%d open=%d placed=%d canceled=%d at %s\n",
			symbol, snap.HeldShares, len(snap.Target), len(snap.Open),
			snap.Placed, snap.Canceled, snap.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
