// Package cmd provides the CLI commands for Gatewire.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gatewire/gatewire/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gatewire",
	Short: "Gatewire - protocol gateway server",
	Long: `Gatewire is a standalone HTTP/1.1, WebSocket, and server-sent-events
gateway that drives a single application handler through an event-based
(scope, receive, send) contract.

Quick start:
  1. Optionally create a config file: gatewire config-init > gatewire.yaml
  2. Run: gatewire serve

Configuration:
  Config is loaded from gatewire.yaml in the current directory,
  $HOME/.gatewire/, or /etc/gatewire/.

  Environment variables can override config values with the GATEWIRE_ prefix.
  Example: GATEWIRE_SERVER_ADDR=0.0.0.0:9000

Commands:
  serve        Start the gateway with the built-in reference application
  config-init  Print a commented default configuration file
  version      Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./gatewire.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
