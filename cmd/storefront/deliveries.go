package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fjod/storefront/internal/journal"
	"github.com/spf13/cobra"
)

func deliveriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deliveries [payment-id]",
		Short: "Show the webhook deliveries recorded for a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, shutdown, err := bootstrap(ctx, "deliveries")
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			if cfg.MongoURI == "" {
				return errors.New("MONGO_URI is required to read the delivery journal")
			}
			db, err := journal.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
			if err != nil {
				return err
			}
			defer journal.Disconnect(db, 5*time.Second)

			records, err := journal.NewMongoJournal(db).ListByPaymentID(ctx, args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Printf("No deliveries recorded for %s\n", args[0])
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECEIVED\tEVENT\tKIND\tSTATE\tORDER\tERROR")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.ReceivedAt.Format(time.RFC3339), rec.EventID, rec.Kind, rec.State, rec.OrderID, rec.Error)
			}
			return tw.Flush()
		},
	}
}
