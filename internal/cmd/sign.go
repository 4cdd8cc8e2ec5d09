package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go-paywall"
	"github.com/mark3labs/mcp-go-paywall/signer"
)

// Environment variables holding wallet secrets for the sign command
const (
	EnvPrivateKey = "PAYWALL_PRIVATE_KEY"
	EnvMnemonic   = "PAYWALL_MNEMONIC"
)

func newSignCommand(opts *rootOptions) *cobra.Command {
	var (
		privateKey     string
		mnemonic       string
		derivationPath string
		network        string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an x402 payment header for the configured requirement",
		Long: `Print an X-PAYMENT header value authorizing the configured payment.

The wallet comes from --private-key or --mnemonic, falling back to the
` + EnvPrivateKey + ` and ` + EnvMnemonic + ` environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if privateKey == "" {
				privateKey = os.Getenv(EnvPrivateKey)
			}
			if mnemonic == "" {
				mnemonic = os.Getenv(EnvMnemonic)
			}

			var (
				s   signer.PaymentSigner
				err error
			)
			switch {
			case privateKey != "":
				s, err = signer.NewPrivateKeySigner(privateKey)
			case mnemonic != "":
				s, err = signer.NewMnemonicSigner(mnemonic, derivationPath)
			default:
				return errors.New("a private key or mnemonic is required")
			}
			if err != nil {
				return err
			}

			req, err := configuredRequirement(opts, network)
			if err != nil {
				return err
			}

			value, err := signer.SignHeader(cmd.Context(), s, req)
			if err != nil {
				return err
			}
			opts.logger.Debug().Str("payer", s.Address()).Str("network", req.Network).Msg("signed payment")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}

	cmd.Flags().StringVar(&privateKey, "private-key", "", "hex encoded private key")
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "BIP-39 mnemonic")
	cmd.Flags().StringVar(&derivationPath, "path", signer.DefaultDerivationPath, "derivation path used with --mnemonic")
	cmd.Flags().StringVar(&network, "network", "", "network of the requirement to sign, defaults to the first one")
	return cmd
}

// configuredRequirement returns the x402 requirement of the configured payment
func configuredRequirement(opts *rootOptions, network string) (paywall.X402Requirement, error) {
	pcfg, err := opts.config.PaymentConfig()
	if err != nil {
		return paywall.X402Requirement{}, err
	}
	payment, err := paywall.DefinePayment(pcfg)
	if err != nil {
		return paywall.X402Requirement{}, fmt.Errorf("define payment: %w", err)
	}

	reqs := paywall.LegacyRequirements(payment.Definition())
	if len(reqs) == 0 {
		return paywall.X402Requirement{}, errors.New("configured payment accepts no x402 option")
	}
	if network == "" {
		return reqs[0], nil
	}
	for _, req := range reqs {
		if req.Network == network {
			return req, nil
		}
	}
	return paywall.X402Requirement{}, fmt.Errorf("configured payment accepts no x402 option on %s", network)
}
