package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Angleito/BluefinAIAgentTrader/internal/exchange"
	"github.com/Angleito/BluefinAIAgentTrader/internal/metrics"
	"github.com/Angleito/BluefinAIAgentTrader/internal/performance"
	"github.com/Angleito/BluefinAIAgentTrader/internal/risk"
	"github.com/Angleito/BluefinAIAgentTrader/internal/server"
	"github.com/Angleito/BluefinAIAgentTrader/internal/trading"
)

// resyncInterval is how often local state is reconciled against the
// exchange while serving.
const resyncInterval = 5 * time.Minute

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the trading agent",
		Long: `Start the webhook listener and trade execution loop.

The agent authenticates with the exchange, syncs balance and open
positions, then processes inbound signals until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runServe(cmd.Context())
		},
	}
}

func (app *App) runServe(ctx context.Context) error {
	logger := app.Logger
	cfg := app.Config

	ex := app.newExchange()

	if bluefin, ok := ex.(*exchange.BluefinClient); ok {
		if err := bluefin.Authenticate(ctx); err != nil {
			return fmt.Errorf("exchange authentication failed: %w", err)
		}
		logger.Info().Str("network", cfg.Credentials.Bluefin.Network).Msg("Authenticated with Bluefin")
	}

	balance, err := ex.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}

	tradeStore, err := app.openStore()
	if err != nil {
		return fmt.Errorf("failed to open trade store: %w", err)
	}
	defer tradeStore.Close()

	riskManager := risk.NewManager(cfg.Risk, cfg.Trading, balance.AvailableMargin, logger)
	tracker := performance.NewTracker(tradeStore, logger)
	recorder := metrics.New()
	executor := trading.NewExecutor(ex, riskManager, tracker, logger)
	confirmer := app.newConfirmer()
	pipeline := trading.NewPipeline(cfg, confirmer, riskManager, executor, ex, recorder, logger)

	// Import whatever is already open on the exchange before taking
	// any signals.
	if err := pipeline.Resync(ctx); err != nil {
		return fmt.Errorf("initial resync failed: %w", err)
	}

	for _, pair := range cfg.Trading.TradingPairs {
		if err := ex.SetLeverage(ctx, pair, cfg.Trading.Leverage); err != nil {
			logger.Warn().Err(err).Str("symbol", pair).Msg("Failed to set leverage")
		}
	}

	srv := server.New(cfg.Server, pipeline, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	ticker := app.startTicker(ctx, pipeline, ex)

	resync := time.NewTicker(resyncInterval)
	defer resync.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	logger.Info().
		Strs("pairs", cfg.Trading.TradingPairs).
		Bool("mock", ex.IsSimulated()).
		Int("port", cfg.Server.Port).
		Msg("Agent running")

	for {
		select {
		case <-ctx.Done():
			return app.shutdown(srv, ticker)
		case <-sigCh:
			logger.Info().Msg("Shutdown signal received")
			return app.shutdown(srv, ticker)
		case <-resync.C:
			if err := pipeline.Resync(ctx); err != nil {
				logger.Error().Err(err).Msg("Periodic resync failed")
			}
		}
	}
}

// startTicker connects the mark-price stream. The notifications feed is
// public market data, so mock mode uses it too: each tick seeds the
// simulated book before driving protective position management.
func (app *App) startTicker(ctx context.Context, pipeline *trading.Pipeline, ex exchange.Exchange) exchange.Ticker {
	ticker := exchange.NewBluefinTicker(exchange.BluefinTickerConfig{
		Network: app.Config.Credentials.Bluefin.Network,
		WSURL:   app.Config.Credentials.Bluefin.WSURL,
	})

	sim, _ := ex.(*exchange.SimExchange)
	ticker.OnTick(func(tick exchange.Tick) {
		if sim != nil {
			sim.ProcessTick(tick)
		}
		pipeline.OnTick(ctx, tick)
	})
	ticker.OnError(func(err error) {
		app.Logger.Error().Err(err).Msg("Ticker stream error")
	})

	if err := ticker.Connect(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to connect ticker, protective levels enforced by resting orders only")
		return nil
	}
	if err := ticker.Subscribe(app.Config.Trading.TradingPairs); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to subscribe to mark-price stream")
	}

	return ticker
}

func (app *App) shutdown(srv *server.Server, ticker exchange.Ticker) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ticker != nil {
		if err := ticker.Disconnect(); err != nil {
			app.Logger.Warn().Err(err).Msg("Ticker disconnect failed")
		}
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}

	app.Logger.Info().Msg("Agent stopped")
	return nil
}
