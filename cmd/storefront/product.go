package main

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func productCmd() *cobra.Command {
	var (
		name      string
		price     string
		stock     int
		published bool
	)

	cmd := &cobra.Command{
		Use:   "product [id]",
		Short: "Create or update a catalog product",
		Long: `Create or update a catalog product.

Examples:
  storefront product p1 --name Mug --price 12.50 --stock 5
  storefront product p1 --name Mug --price 14.00 --stock 3 --published=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unitPrice, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}
			if unitPrice.IsNegative() {
				return fmt.Errorf("price must not be negative")
			}

			ctx := cmd.Context()
			cfg, shutdown, err := bootstrap(ctx, "product")
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			repo, err := repository.NewRepository(&cfg.Database)
			if err != nil {
				return err
			}
			defer repo.Close()

			err = repo.SaveProduct(ctx, domain.ProductSnapshot{
				ID:             args[0],
				Name:           name,
				UnitPrice:      unitPrice,
				AvailableStock: stock,
			}, published)
			if err != nil {
				return err
			}
			fmt.Printf("Saved %s: %s at %s, %d in stock\n", args[0], name, unitPrice.StringFixed(2), stock)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&price, "price", "", "unit price in major units, e.g. 12.50")
	cmd.Flags().IntVar(&stock, "stock", 0, "available stock")
	cmd.Flags().BoolVar(&published, "published", true, "whether the product can be bought")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}
