package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Angleito/BluefinAIAgentTrader/internal/performance"
	"github.com/Angleito/BluefinAIAgentTrader/internal/store"
	"github.com/Angleito/BluefinAIAgentTrader/pkg/utils"
)

func newPerformanceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Show trading performance metrics",
		Long:  "Compute win rate, profit factor, average P&L and max drawdown over closed trades.",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			days, _ := cmd.Flags().GetInt("days")

			tradeStore, err := app.openStore()
			if err != nil {
				return err
			}
			defer tradeStore.Close()

			filter := store.TradeFilter{Symbol: symbol}
			if days > 0 {
				filter.StartDate = time.Now().UTC().AddDate(0, 0, -days)
			}

			tracker := performance.NewTracker(tradeStore, app.Logger)
			metrics, err := tracker.Metrics(cmd.Context(), filter)
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(metrics)
			}

			cmd.Printf("Total trades:   %d\n", metrics.TotalTrades)
			cmd.Printf("Wins / losses:  %d / %d\n", metrics.WinningTrades, metrics.LosingTrades)
			cmd.Printf("Win rate:       %.1f%%\n", metrics.WinRate*100)
			cmd.Printf("Profit factor:  %.2f\n", metrics.ProfitFactor)
			cmd.Printf("Avg profit:     %s\n", utils.FormatUSD(metrics.AvgProfit))
			cmd.Printf("Avg loss:       %s\n", utils.FormatUSD(metrics.AvgLoss))
			cmd.Printf("Avg P&L:        %s\n", utils.FormatUSD(metrics.AvgPnL))
			cmd.Printf("Total P&L:      %s\n", utils.FormatUSD(metrics.TotalPnL))
			cmd.Printf("Max drawdown:   %s\n", utils.FormatUSD(metrics.MaxDrawdown))
			return nil
		},
	}

	cmd.Flags().String("symbol", "", "filter by symbol")
	cmd.Flags().Int("days", 0, "only include trades from the last N days")

	return cmd
}
