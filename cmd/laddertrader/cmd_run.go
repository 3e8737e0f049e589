package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ladder-trading/internal/alert"
	"ladder-trading/internal/broker"
	"ladder-trading/internal/broker/paper"
	"ladder-trading/internal/broker/rest"
	"ladder-trading/internal/config"
	"ladder-trading/internal/engine"
	"ladder-trading/internal/metrics"
	"ladder-trading/internal/safety"
	"ladder-trading/internal/store"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation loop",
	Long: `Run polls the broker on a fixed cycle and converges each symbol's
resting book on its configured ladder. In paper mode orders rest in an
in-memory book and nothing reaches a real broker.

Examples:
  laddertrader run
  laddertrader run --once
  laddertrader run --config config/live.yaml --log-json`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOnce, "once", false, "perform a single reconciliation pass and exit")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	items, err := cfg.Ladder()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateDir := filepath.Join(cfg.State.Dir, strings.ToLower(string(cfg.Mode)), cfg.InstanceID)
	st, err := store.New(stateDir)
	if err != nil {
		return err
	}
	lockTakeover := true
	if cfg.State.LockTakeover != nil {
		lockTakeover = *cfg.State.LockTakeover
	}
	instanceLock, err := store.AcquireInstanceLockWithOptions(stateDir, store.LockOptions{
		InstanceID:      cfg.InstanceID,
		TakeoverEnabled: lockTakeover,
		StaleAfter:      time.Duration(cfg.State.LockStaleSec) * time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		if relErr := instanceLock.Release(); relErr != nil {
			log.Warn().Err(relErr).Msg("release instance lock failed")
		}
	}()

	alerts := buildAlertManager(cfg)
	if alerts != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				log.Warn().Err(err).Msg("close alert manager failed")
			}
		}()
	}

	brokerage, err := buildBrokerage(cfg)
	if err != nil {
		return err
	}

	breaker := safety.NewBreaker(
		cfg.CircuitBreaker.Enabled,
		cfg.CircuitBreaker.MaxPlaceFailures,
		cfg.CircuitBreaker.MaxCancelFailures,
		cfg.CircuitBreaker.MaxPollFailures,
	)
	breaker.SetPollRecovery(
		time.Duration(cfg.CircuitBreaker.CooldownSec)*time.Second,
		cfg.CircuitBreaker.ProbePasses,
	)
	breaker.SetAlerter(alerts)

	registry := metrics.NewRegistry()
	if listen := cfg.Observability.Runtime.MetricsListen; listen != "" {
		startMetricsServer(ctx, listen, registry)
	}

	runner := &engine.Runner{
		Broker:     brokerage,
		Executor:   safety.NewGuardedExecutor(brokerage, breaker),
		Items:      items,
		Mode:       string(cfg.Mode),
		InstanceID: cfg.InstanceID,
		CycleWait:  time.Duration(cfg.Observability.Runtime.CycleWaitSec) * time.Second,
		Store:      st,
		Breaker:    breaker,
		Alerts:     alerts,
		Metrics:    registry,
	}

	log.Info().
		Str("mode", string(cfg.Mode)).
		Str("instance_id", cfg.InstanceID).
		Str("broker", brokerage.Name()).
		Int("symbols", len(items)).
		Msg("starting")

	if runOnce {
		err = runner.RunOnce(ctx)
	} else {
		err = runner.Run(ctx)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func buildBrokerage(cfg config.Config) (broker.Brokerage, error) {
	switch cfg.Mode {
	case config.ModePaper:
		return paper.New(nil), nil
	case config.ModeLive:
		return rest.NewClient(cfg.Broker, cfg.InstanceID)
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func buildAlertManager(cfg config.Config) *alert.Manager {
	tg := cfg.Observability.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier := alert.NewTelegramNotifier(
		tg.Enabled,
		tg.BotToken,
		tg.ChatID,
		tg.APIBaseURL,
		time.Duration(tg.TimeoutSec)*time.Second,
	)
	return alert.NewManagerWithOptions(string(cfg.Mode), cfg.InstanceID, notifier, alert.ManagerOptions{
		DropReportInterval: time.Duration(cfg.Observability.Runtime.AlertDropReportSec) * time.Second,
	})
}

func startMetricsServer(ctx context.Context, listen string, registry *metrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		log.Info().Str("listen", listen).Msg("metrics server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
