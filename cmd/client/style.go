package main

import (
	"github.com/pterm/pterm"

	"github.com/luca-patrignani/byzantine-bank/client"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

// shortKey abbreviates a base64 key for tables.
func shortKey(k signature.PublicKey, self signature.PublicKey) string {
	if k.Equal(self) {
		return pterm.LightCyan("you")
	}
	s := k.String()
	if len(s) > 12 {
		return s[:12] + "..."
	}
	return s
}

func transfersTable(transfers []client.Transfer, self signature.PublicKey) (string, error) {
	data := pterm.TableData{{"#", "From", "To", "Amount"}}
	for i, t := range transfers {
		data = append(data, []string{
			pterm.Sprint(i + 1),
			shortKey(t.Source, self),
			shortKey(t.Destination, self),
			t.Amount.String(),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func accountPanel(key signature.PublicKey, a client.Account, self signature.PublicKey) (string, error) {
	pbox := pterm.DefaultBox.WithLeftPadding(4).WithRightPadding(4).WithTopPadding(1).WithBottomPadding(1)
	info := pterm.Sprintfln("Key: %s\nBalance: %s\nVersion: %d", key, pterm.LightGreen(a.Balance.String()), a.Version)
	if len(a.Pending) == 0 {
		info += pterm.Sprintln("No pending transfers")
	} else {
		table, err := transfersTable(a.Pending, self)
		if err != nil {
			return "", err
		}
		info += pterm.Sprintfln("Pending transfers:\n%s", table)
	}
	return pbox.WithTitle(pterm.LightYellow("|ACCOUNT|")).WithTitleTopCenter().Sprint(info), nil
}

func historyPanel(key signature.PublicKey, history []client.Transfer, self signature.PublicKey) (string, error) {
	pbox := pterm.DefaultBox.WithLeftPadding(4).WithRightPadding(4).WithTopPadding(1).WithBottomPadding(1)
	if len(history) == 0 {
		return pbox.WithTitle(pterm.LightYellow("|HISTORY|")).WithTitleTopCenter().Sprintf("No settled transfers for %s", key), nil
	}
	table, err := transfersTable(history, self)
	if err != nil {
		return "", err
	}
	return pbox.WithTitle(pterm.LightYellow("|HISTORY|")).WithTitleTopCenter().Sprint(table), nil
}
