package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/Angleito/BluefinAIAgentTrader/internal/cli"
	"github.com/Angleito/BluefinAIAgentTrader/internal/config"
	"github.com/Angleito/BluefinAIAgentTrader/internal/logging"
)

func main() {
	// A local .env is optional; env vars override file config either way.
	_ = godotenv.Load()

	configDir := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configDir = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
