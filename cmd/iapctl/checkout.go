package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/iapkit/pkg/config"
	"github.com/dmitrymomot/iapkit/pkg/iap"
)

var errNoCheckout = errors.New("purchase did not produce a checkout URL")

func newCheckoutCmd() *cobra.Command {
	var (
		successURL string
		account    string
	)

	cmd := &cobra.Command{
		Use:   "checkout <product-id>",
		Short: "Create a hosted Paddle checkout for a configured product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg appConfig
			if err := config.Load(&cfg); err != nil {
				return err
			}

			opts := iap.PurchaseOptions{SuccessURL: successURL}
			if account != "" {
				token, err := uuid.Parse(account)
				if err != nil {
					return fmt.Errorf("invalid --account: %w", err)
				}
				opts.AppAccountToken = token
			}

			a, err := newApp(cmd.Context(), cfg, newLogger(cfg, os.Stderr), nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return runCheckout(cmd.Context(), cmd.OutOrStdout(), a.svc, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&successURL, "success-url", "", "redirect URL after a completed checkout")
	cmd.Flags().StringVar(&account, "account", "", "account UUID attached to the transaction as app_account_token")
	return cmd
}

func runCheckout(ctx context.Context, w io.Writer, svc iap.Service, productID string, opts iap.PurchaseOptions) error {
	receipt, err := svc.Purchase(ctx, productID, opts)
	if err != nil {
		return err
	}
	if receipt.CheckoutURL == "" {
		return fmt.Errorf("%w: state %s", errNoCheckout, receipt.State)
	}
	_, err = fmt.Fprintln(w, receipt.CheckoutURL)
	return err
}
