package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/sharedledger/internal/recurrence"
)

var (
	asOfString  string
	concurrency int
)

var materializeCmd = &cobra.Command{
	Use:   "materialize [template-id]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Create entries for due recurring occurrences",
	Long: "Create entries for every occurrence dated on or before --as-of.\n" +
		"Without a template id every template is processed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf := clk.Now()
		if asOfString != "" {
			var err error
			if asOf, err = time.ParseInLocation(time.DateOnly, asOfString, time.UTC); err != nil {
				return fmt.Errorf("invalid --as-of: %w", err)
			}
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		engine := recurrence.NewEngine(store, store, clk, recurrence.WithConcurrency(concurrency))

		var results []recurrence.Result
		if len(args) == 1 {
			res, err := engine.MaterializeDue(cmd.Context(), args[0], asOf)
			if err != nil {
				return err
			}
			results = append(results, res)
		} else if results, err = engine.MaterializeAll(cmd.Context(), asOf); err != nil {
			return err
		}

		w := newTable()
		fmt.Fprintln(w, "TEMPLATE\tCREATED\tWATERMARK\tWARNING")
		for _, r := range results {
			watermark := "-"
			if !r.Watermark.IsZero() {
				watermark = r.Watermark.Format(time.DateOnly)
			}
			warning := ""
			if r.Warning != nil {
				warning = r.Warning.Error()
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.TemplateID, len(r.Created), watermark, warning)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(materializeCmd)

	materializeCmd.Flags().StringVar(&asOfString, "as-of", "", "Materialize occurrences up to this date, YYYY-MM-DD (default today)")
	materializeCmd.Flags().IntVar(&concurrency, "concurrency", 4, "Templates processed in parallel")
}
