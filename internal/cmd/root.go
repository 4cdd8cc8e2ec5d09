package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go-paywall/config"
	"github.com/mark3labs/mcp-go-paywall/internal/logger"
)

const version = "0.1.0"

type rootOptions struct {
	configPath string
	config     *config.Config
	logger     zerolog.Logger
}

// NewRootCommand builds the paywall command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "paywall",
		Short: "HTTP 402 payment gate",
		Long: `Serve resources behind an HTTP 402 payment requirement.

Requests pay either with an x402 authorization in the X-PAYMENT header,
verified and settled by a facilitator, or with a direct proof in the
X-PAYMENT-PROOF header checked locally.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.config = cfg
			opts.logger = logger.NewWithConfig(cfg.Log, cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path")
	cmd.AddCommand(
		newServeCommand(opts),
		newHeaderCommand(opts),
		newSignCommand(opts),
		newSupportedCommand(opts),
	)
	return cmd
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
