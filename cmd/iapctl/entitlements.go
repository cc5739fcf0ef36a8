package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/iapkit/pkg/config"
	"github.com/dmitrymomot/iapkit/pkg/iap"
	"github.com/dmitrymomot/iapkit/pkg/logger"
)

func newEntitlementsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "entitlements",
		Short: "Print the persisted entitlement snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg appConfig
			if err := config.Load(&cfg); err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger.Discard())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return printEntitlements(cmd.Context(), cmd.OutOrStdout(), store, cfg.CacheKey, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as a JSON array")
	return cmd
}

func printEntitlements(ctx context.Context, w io.Writer, store iap.Store, key string, asJSON bool) error {
	data, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	ids := []string{}
	if data != nil {
		if ids, err = iap.DecodeSnapshot(data); err != nil {
			return err
		}
	}

	if asJSON {
		return json.NewEncoder(w).Encode(ids)
	}
	if len(ids) == 0 {
		_, err := fmt.Fprintln(w, "no entitlements")
		return err
	}
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}
