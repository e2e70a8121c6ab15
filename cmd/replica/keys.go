package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/byzantine-bank/config"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

var (
	keyOut    string
	configOut string
)

func init() {
	keygenCmd.Flags().StringVarP(&keyOut, "out", "o", "replica.key", "Where to write the key")
	initConfigCmd.Flags().StringVarP(&configOut, "out", "o", "bank.toml", "Where to write the configuration")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key and print its public half",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kp, created, err := signature.LoadOrGenerateKey(keyOut)
		if err != nil {
			return err
		}
		if !created {
			return errors.Errorf("%s already exists", keyOut)
		}
		fmt.Fprintln(cmd.OutOrStdout(), kp.Public)
		return nil
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a configuration file with default values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Write(configOut, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configOut)
		return nil
	},
}
