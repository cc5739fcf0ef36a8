package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/iapkit/pkg/config"
	"github.com/dmitrymomot/iapkit/pkg/iap"
)

var errNotVerified = errors.New("payload not verified")

type verifyReport struct {
	Verified    bool             `json:"verified"`
	Transaction *iap.Transaction `json:"transaction,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func newVerifyCmd() *cobra.Command {
	var signature string

	cmd := &cobra.Command{
		Use:   "verify <file|->",
		Short: "Verify a signed transaction and print it as JSON",
		Long: `Verify a compact JWS transaction against IAP_JWS_ROOT_CERTS or IAP_JWS_KEYS.
With --signature the input is treated as a Paddle webhook body and checked
against PADDLE_WEBHOOK_SECRET.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			var verifier iap.Verifier
			if signature != "" {
				var pc iap.PaddleConfig
				if err := config.Load(&pc); err != nil {
					return err
				}
				if verifier, err = iap.NewPaddle(pc); err != nil {
					return err
				}
			} else {
				jws, err := loadJWSVerifier()
				if err != nil {
					return err
				}
				if jws == nil {
					return errors.New("set IAP_JWS_ROOT_CERTS or IAP_JWS_KEYS to verify JWS tokens")
				}
				verifier = jws
				data = bytes.TrimSpace(data)
			}

			return runVerify(cmd.Context(), cmd.OutOrStdout(), verifier, iap.SignedPayload{Data: data, Signature: signature})
		},
	}

	cmd.Flags().StringVar(&signature, "signature", "", "Paddle-Signature header value; verifies the input as a Paddle webhook")
	return cmd
}

func runVerify(ctx context.Context, w io.Writer, v iap.Verifier, payload iap.SignedPayload) error {
	outcome := v.Verify(ctx, payload)

	report := verifyReport{Verified: outcome.Confirmed(), Transaction: outcome.Transaction}
	if outcome.Err != nil {
		report.Error = outcome.Err.Error()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Verified {
		return errNotVerified
	}
	return nil
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
