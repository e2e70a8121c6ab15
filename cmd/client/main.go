// Command client operates a bank account against a set of replicas.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/byzantine-bank/client"
	"github.com/luca-patrignani/byzantine-bank/config"
	"github.com/luca-patrignani/byzantine-bank/consensus"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

var (
	configPath string
	quiet      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bank.toml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the banner")
	rootCmd.AddCommand(openCmd, nonceCmd, checkCmd, sendCmd, receiveCmd, auditCmd)
}

var rootCmd = &cobra.Command{
	Use:           "client",
	Short:         "Operate a Byzantine fault tolerant bank account",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func banner() {
	if quiet {
		return
	}
	pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("B", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("yz ", pterm.FgDarkGray.ToStyle()),
		putils.LettersFromStringWithStyle("B", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("ank", pterm.FgDarkGray.ToStyle()),
	).Render()
}

// newLogger returns the slog logger used for user-facing diagnostics.
func newLogger() *slog.Logger {
	return slog.New(pterm.NewSlogHandler(&pterm.DefaultLogger))
}

// session is everything a subcommand needs.
type session struct {
	key    signature.KeyPair
	client *client.Client
	coord  *consensus.Coordinator
	log    *slog.Logger
}

// Close waits for writes still being delivered to slow replicas.
func (s *session) Close() {
	s.coord.Wait()
}

func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	backend := logging.NewLogger()
	if err := cfg.Log.Apply(backend); err != nil {
		return nil, err
	}
	banner()
	return connect(ctx, cfg.Client, backend, newLogger())
}

func connect(ctx context.Context, cfg config.ClientConfig, backend logging.Logger, log *slog.Logger) (*session, error) {
	key, created, err := signature.LoadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return nil, err
	}
	if created {
		log.Info("generated a new account key", "path", cfg.KeyPath, "key", key.Public.String())
	}
	coord, err := coordinator(ctx, cfg, backend, log)
	if err != nil {
		return nil, err
	}
	return &session{key: key, client: client.New(key, coord), coord: coord, log: log}, nil
}
