// Command ledgerctl administers a shared ledger database directly: it
// registers participants and groups, materializes recurring templates,
// prints balances and feeds, issues API tokens and tails published events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmynk/sharedledger/internal/clock"
	"github.com/mmynk/sharedledger/internal/config"
	"github.com/mmynk/sharedledger/internal/storage/sqlite"
	"github.com/mmynk/sharedledger/pkg/logging"
)

var (
	cfg    *config.Config
	dbPath string
	clk    clock.Clock = clock.System{}
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Administer a shared ledger database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logging.Setup(cfg.LogLevel)
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		return cfg.ValidateClient()
	},
}

func init() {
	cfg = config.Load()
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the ledger database (default $DB_PATH)")
}

func openStore() (*sqlite.SQLiteStore, error) {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	return store, nil
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
