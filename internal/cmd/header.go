package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go-paywall"
)

func newHeaderCommand(opts *rootOptions) *cobra.Command {
	var (
		optionID  string
		token     string
		payload   string
		proofType string
	)

	cmd := &cobra.Command{
		Use:   "header",
		Short: "Encode a direct proof header",
		Long: `Print an X-PAYMENT-PROOF header value for a direct payment option.

Either --token or --payload (a JSON object) supplies the proof.`,
		Example: `  paywall header --option demo --token demo-access
  curl -H "X-PAYMENT-PROOF: $(paywall header --option demo --token demo-access)" localhost:8080/premium`,
		RunE: func(cmd *cobra.Command, args []string) error {
			proof := map[string]any{}
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &proof); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
			}
			if token != "" {
				proof[paywall.DefaultTokenField] = token
			}
			if len(proof) == 0 {
				return fmt.Errorf("one of --token or --payload is required")
			}

			if optionID == "" {
				optionID = opts.config.Payment.Direct.ID
			}
			if optionID == "" {
				optionID = string(paywall.ProofDirect)
			}

			value, err := paywall.EncodeDirectHeader(&paywall.DirectPaymentPayload{
				OptionID:  optionID,
				ProofType: proofType,
				Payload:   proof,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
			return err
		},
	}

	cmd.Flags().StringVar(&optionID, "option", "", "payment option id, defaults to payment.direct.id")
	cmd.Flags().StringVar(&token, "token", "", "access token placed in the proof payload")
	cmd.Flags().StringVar(&payload, "payload", "", "proof payload as a JSON object")
	cmd.Flags().StringVar(&proofType, "proof-type", "", "proof type label")
	return cmd
}
