package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "dmclient",
	Short: "Direct message client for the creator platform",
	Long: `dmclient keeps a direct-message thread in sync with the platform:
history pages over REST, live messages over WebSocket, and paid media
unlocked in place.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	metricsAddr string
	logLevel    string
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override DMCLIENT_LOG_LEVEL")
}
