package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/sharedledger/internal/ledger"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <group-id> [participant-id]",
	Args:  cobra.RangeArgs(1, 2),
	Short: "Print group balances, or one participant's net balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		projector := ledger.NewProjector(store)
		if len(args) == 2 {
			balance, err := projector.NetBalance(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			fmt.Println(balance.StringFixed(2))
			return nil
		}

		balances, debts, err := projector.GroupBalances(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		reminders, err := projector.Reminders(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		flagged := make(map[string]bool, len(reminders))
		for _, r := range reminders {
			flagged[r.MemberID] = true
		}

		w := newTable()
		fmt.Fprintln(w, "MEMBER\tPAID\tOWED\tSETTLED\tNET\t")
		for _, b := range balances {
			mark := ""
			if flagged[b.MemberID] {
				mark = "remind"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", b.MemberID,
				b.TotalPaid.StringFixed(2), b.TotalOwed.StringFixed(2), b.Settled.StringFixed(2), b.NetBalance.StringFixed(2), mark)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if len(debts) > 0 {
			fmt.Println()
			for _, d := range debts {
				fmt.Printf("%s owes %s %s\n", d.From, d.To, d.Amount.StringFixed(2))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
