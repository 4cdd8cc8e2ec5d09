package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go-paywall"
)

func newSupportedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "supported",
		Short: "List the payment kinds the facilitator supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			facilitator := paywall.NewHTTPFacilitator(opts.config.FacilitatorConfig(), nil)
			kinds, err := facilitator.Supported(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSCHEME\tNETWORK")
			for _, kind := range kinds {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", kind.X402Version, kind.Scheme, kind.Network)
			}
			return tw.Flush()
		},
	}
}
