package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gatewire/gatewire/internal/config"
)

var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Print a default configuration file",
	Long: `Print a gatewire.yaml populated with the default configuration.

Redirect to a file and edit from there:
  gatewire config-init > gatewire.yaml`,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configInitCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	cfg.SetDefaults()

	fmt.Println("# Gatewire configuration.")
	fmt.Println("# Every value can be overridden with a GATEWIRE_-prefixed")
	fmt.Println("# environment variable, e.g. GATEWIRE_SERVER_ADDR=0.0.0.0:9000.")

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
