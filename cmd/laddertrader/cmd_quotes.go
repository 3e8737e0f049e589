package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ladder-trading/internal/config"
)

var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Stream live quotes for the configured symbols",
	Long: `Quotes subscribes to the broker's quote stream and prints ticks as they
arrive. Diagnostic only: the engine itself never consumes the stream, it
reconciles against polled state.`,
	RunE: runQuotes,
}

func init() {
	rootCmd.AddCommand(quotesCmd)
}

type quoteSubscription struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

type quoteTick struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
	Last   string `json:"last"`
	Time   string `json:"time"`
}

func runQuotes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	streamURL := cfg.Broker.QuoteStreamURL
	if streamURL == "" {
		return errors.New("broker.quote_stream_url is not configured")
	}
	symbols := make([]string, 0, len(cfg.Items))
	for _, item := range cfg.Items {
		symbols = append(symbols, item.Symbol)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backoff := time.Second
	for {
		err := streamQuotes(ctx, streamURL, symbols)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Msg("quote stream disconnected")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		if backoff < 30*time.Second {
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}
}

func streamQuotes(ctx context.Context, streamURL string, symbols []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(quoteSubscription{Op: "subscribe", Symbols: symbols}); err != nil {
		return err
	}
	log.Info().Str("url", streamURL).Strs("symbols", symbols).Msg("quote stream connected")

	// Unblock ReadMessage when the context is canceled.
	go func() {
		<-ctx.Done()
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick quoteTick
		if err := json.Unmarshal(payload, &tick); err != nil {
			log.Warn().Err(err).Msg("unparseable quote message")
			continue
		}
		if tick.Symbol == "" {
			continue
		}
		fmt.Printf("%s %s bid=%s ask=%s last=%s\n", tick.Time, tick.Symbol, tick.Bid, tick.Ask, tick.Last)
	}
}
