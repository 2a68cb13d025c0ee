package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmynk/sharedledger/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect ledger events on the AMQP broker",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print materialized entries as the recurring worker publishes them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.AMQPURL == "" {
			return errors.New("AMQP_URL is not set")
		}
		sub, err := events.DialWithRetry(cmd.Context(), cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 3)
		if err != nil {
			return err
		}
		defer sub.Close()

		err = sub.Consume(cmd.Context(), func(_ context.Context, msg *events.EntryMaterializedMessage) error {
			_, err := fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\t%s\t%s\n",
				msg.OccurrenceDate, msg.TemplateID, msg.EntryID, msg.GroupID, msg.Amount,
				strings.Join(msg.Consumers, ","))
			return err
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
