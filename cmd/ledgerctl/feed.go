package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/sharedledger/internal/ledger"
)

var withSettlements bool

var feedCmd = &cobra.Command{
	Use:   "feed <participant-id>",
	Args:  cobra.ExactArgs(1),
	Short: "Print a participant's transactions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		projector := ledger.NewProjector(store)
		var items []ledger.FeedItem
		if withSettlements {
			items, err = projector.CombinedFeed(cmd.Context(), args[0])
		} else {
			items, err = projector.FeedFor(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}

		w := newTable()
		fmt.Fprintln(w, "DATE\tKIND\tGROUP\tWITH\tAMOUNT\tDESCRIPTION")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				item.OccurredAt.Format(time.DateOnly), item.Kind, item.GroupID, item.Counterparty,
				item.Amount.StringFixed(2), item.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(feedCmd)

	feedCmd.Flags().BoolVar(&withSettlements, "settlements", false, "Include settlements")
}
