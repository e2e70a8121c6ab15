// Command replica runs one bank replica.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luca-patrignani/byzantine-bank/logging"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bank.toml", "Path to the configuration file")
	rootCmd.AddCommand(runCmd, keygenCmd, initConfigCmd)
}

var rootCmd = &cobra.Command{
	Use:           "replica",
	Short:         "Byzantine fault tolerant bank replica",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Base().Errorf("%v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
