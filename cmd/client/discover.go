package main

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/byzantine-bank/config"
	"github.com/luca-patrignani/byzantine-bank/discovery"
)

var (
	discoverHost     string
	discoverFrom     uint16
	discoverTo       uint16
	discoverAttempts uint
)

func init() {
	discoverCmd.Flags().StringVar(&discoverHost, "host", "localhost", "Host to scan")
	discoverCmd.Flags().Uint16Var(&discoverFrom, "from", 7000, "First port of the range")
	discoverCmd.Flags().Uint16Var(&discoverTo, "to", 7010, "Last port of the range")
	discoverCmd.Flags().UintVar(&discoverAttempts, "attempts", 1, "Number of scans, one second apart")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find replicas on a port range and print their configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		spinner, _ := pterm.DefaultSpinner.Start("Looking for replicas...")
		entries, err := discovery.New(
			discovery.WithHost(discoverHost),
			discovery.WithPortRange(discoverFrom, discoverTo),
			discovery.WithAttempts(discoverAttempts, time.Second),
		).Search(cmd.Context())
		if err != nil {
			spinner.Fail()
			return err
		}
		spinner.Success()
		pterm.Success.Printfln("Found %d replicas", len(entries))
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(discoveredConfig(entries))
	},
}

// discoveredConfig is a [client] section pinning every discovered key.
func discoveredConfig(entries []discovery.Entry) map[string]config.ClientConfig {
	cfg := config.Default().Client
	cfg.Replicas = make([]config.ReplicaEndpoint, len(entries))
	for i, e := range entries {
		cfg.Replicas[i] = config.ReplicaEndpoint{Address: e.Address, PublicKey: e.PublicKey.String()}
	}
	return map[string]config.ClientConfig{"client": cfg}
}
