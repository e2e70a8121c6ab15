package main

import (
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/client"
	"github.com/luca-patrignani/byzantine-bank/ledger"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

var reject bool

func init() {
	receiveCmd.Flags().BoolVar(&reject, "reject", false, "Reject the transfer instead of accepting it")
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open an account for the configured key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.client.OpenAccount(cmd.Context()); err != nil {
			return err
		}
		pterm.Success.Printfln("Account %s opened", s.key.Public)
		return nil
	},
}

var nonceCmd = &cobra.Command{
	Use:   "nonce",
	Short: "Show the current sequence nonce of the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		n, err := s.client.NegotiateNonce(cmd.Context())
		if err != nil {
			return err
		}
		pterm.Info.Printfln("Current nonce: %s", n)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [key]",
	Short: "Show balance and pending transfers of an account (default: yours)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		key, err := s.target(args)
		if err != nil {
			return err
		}
		a, err := s.client.Check(cmd.Context(), key)
		if err != nil {
			return err
		}
		panel, err := accountPanel(key, a, s.key.Public)
		if err != nil {
			return err
		}
		pterm.Println(panel)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [key]",
	Short: "Show the settled transfers of an account (default: yours)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		key, err := s.target(args)
		if err != nil {
			return err
		}
		history, err := s.client.Audit(cmd.Context(), key)
		if err != nil {
			return err
		}
		panel, err := historyPanel(key, history, s.key.Public)
		if err != nil {
			return err
		}
		pterm.Println(panel)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <destination> <amount>",
	Short: "Transfer an amount to another account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dst, amount, err := parseTransfer(args)
		if err != nil {
			return err
		}
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.client.Send(cmd.Context(), dst, amount); err != nil {
			return explain(err)
		}
		pterm.Success.Printfln("Sent %s, waiting for the destination to accept", amount)
		return nil
	},
}

var receiveCmd = &cobra.Command{
	Use:   "receive <source> <amount>",
	Short: "Accept (or with --reject, refuse) a pending transfer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, amount, err := parseTransfer(args)
		if err != nil {
			return err
		}
		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.client.Receive(cmd.Context(), src, amount, !reject); err != nil {
			return explain(err)
		}
		if reject {
			pterm.Success.Printfln("Rejected %s", amount)
		} else {
			pterm.Success.Printfln("Accepted %s", amount)
		}
		return nil
	},
}

func (s *session) target(args []string) (signature.PublicKey, error) {
	if len(args) == 0 {
		return s.key.Public, nil
	}
	key, err := signature.ParsePublicKeyString(args[0])
	return key, errors.Wrap(err, "account key")
}

func parseTransfer(args []string) (signature.PublicKey, decimal.Decimal, error) {
	key, err := signature.ParsePublicKeyString(args[0])
	if err != nil {
		return key, decimal.Decimal{}, errors.Wrap(err, "account key")
	}
	amount, err := ledger.ParseAmount(args[1])
	if err != nil || !amount.IsPositive() {
		return key, decimal.Decimal{}, errors.Errorf("amount %q is not a positive decimal with at most %d decimal places",
			args[1], ledger.MaxAmountScale)
	}
	return key, amount, nil
}

// explain adds a hint to the rejections a user can act on.
func explain(err error) error {
	switch client.StatusOf(err) {
	case api.StatusWrongNonce:
		return errors.Wrap(err, "another request for this account went through first, retry")
	case api.StatusNotEnoughBalance:
		return errors.Wrap(err, "check your balance")
	case api.StatusNoSuchTransaction:
		return errors.Wrap(err, "no pending transfer matches, see the check command")
	}
	return err
}
