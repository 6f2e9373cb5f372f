// Package cli provides the command-line interface for the trading
// agent.
package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Angleito/BluefinAIAgentTrader/internal/config"
	"github.com/Angleito/BluefinAIAgentTrader/internal/confirm"
	"github.com/Angleito/BluefinAIAgentTrader/internal/exchange"
	"github.com/Angleito/BluefinAIAgentTrader/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "agent",
		Short: "Bluefin AI Agent Trader - automated perpetuals trading",
		Long: `Bluefin AI Agent Trader is an automated trading agent for Bluefin
perpetual futures on Sui.

It receives TradingView webhook alerts and AI chart-analysis signals,
sizes positions against account risk limits, and executes trades with
protective stop-loss and take-profit orders. Opposing signals flip the
position with a single combined order.

Use 'agent serve' to start the agent, 'agent performance' to review
trading metrics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/bluefin-agent)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newPerformanceCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Bluefin AI Agent Trader v%s\n", Version)
		},
	}
}

// newExchange builds the exchange client from config. Mock mode gets
// the simulated exchange; live mode talks to Bluefin.
func (app *App) newExchange() exchange.Exchange {
	if app.Config.IsMockMode() {
		app.Logger.Info().Msg("Mock trading mode, using simulated exchange")
		return exchange.NewSimExchange(exchange.SimConfig{})
	}

	return exchange.NewBluefinClient(exchange.BluefinConfig{
		Network:    app.Config.Credentials.Bluefin.Network,
		PrivateKey: app.Config.Credentials.Bluefin.PrivateKey,
		APIURL:     app.Config.Credentials.Bluefin.APIURL,
	})
}

// newConfirmer builds the AI confirmation chain from config.
func (app *App) newConfirmer() confirm.Confirmer {
	ai := app.Config.AI

	var primary, fallback confirm.Confirmer
	if ai.UsePrimary && app.Config.Credentials.Primary.APIKey != "" {
		primary = confirm.NewLLMConfirmer(confirm.LLMConfig{
			APIKey:    app.Config.Credentials.Primary.APIKey,
			BaseURL:   app.Config.Credentials.Primary.BaseURL,
			Model:     ai.PrimaryModel,
			Threshold: ai.PrimaryThreshold,
		})
	}
	if ai.UseFallback && app.Config.Credentials.Fallback.APIKey != "" {
		fallback = confirm.NewLLMConfirmer(confirm.LLMConfig{
			APIKey:    app.Config.Credentials.Fallback.APIKey,
			BaseURL:   app.Config.Credentials.Fallback.BaseURL,
			Model:     ai.FallbackModel,
			Threshold: ai.FallbackThreshold,
		})
	}

	if primary == nil && fallback == nil {
		app.Logger.Info().Msg("AI confirmation disabled")
		return confirm.PassthroughConfirmer{}
	}
	if primary == nil {
		primary = fallback
		fallback = nil
	}

	return confirm.NewChainConfirmer(primary, fallback, ai.ConcordanceRequired, app.Logger)
}

// openStore opens the SQLite trade store under the config directory.
func (app *App) openStore() (store.TradeStore, error) {
	dbPath := filepath.Join(config.DefaultConfigDir(), "trades.db")
	return store.NewSQLiteStore(dbPath)
}
