// Package cli implements the predictgate CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/predictgate-dev/predictgate/pkg/config"
)

var configFile string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "predictgate",
	Short: "Quota-gated AI prediction gateway",
	Long:  "Predictgate admits generation requests against per-user token budgets, runs them through a model provider with retries, and publishes session-scoped prediction events.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", getEnv("CONFIG_FILE", "config.yaml"), "Configuration file")
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.LoadConfig(configFile)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
