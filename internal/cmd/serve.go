package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go-paywall"
	"github.com/mark3labs/mcp-go-paywall/config"
	"github.com/mark3labs/mcp-go-paywall/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a payment gated resource and MCP endpoint",
		Long: `Start an HTTP server with:
  GET  /premium  payment gated JSON resource
  POST /mcp      MCP endpoint with a paid "search" tool and a free "echo" tool
  GET  /healthz  liveness check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.config.Server.Addr = addr
			}
			return serve(cmd.Context(), opts.config, opts.logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	handler, err := newServeMux(cfg, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("paywall listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newServeMux wires the gated routes of the configured payment
func newServeMux(cfg *config.Config, log zerolog.Logger) (*http.ServeMux, error) {
	pcfg, err := cfg.PaymentConfig()
	if err != nil {
		return nil, err
	}
	pcfg.Logger = &log

	payment, err := paywall.DefinePayment(pcfg)
	if err != nil {
		return nil, fmt.Errorf("define payment: %w", err)
	}
	settle := paywall.WithSettle(cfg.Payment.Settle)

	mcpConfig := &server.Config{Settle: cfg.Payment.Settle, Logger: &log}
	for _, opt := range payment.Definition().Accepts {
		if _, ok := opt.Proof.(paywall.X402Proof); ok {
			mcpConfig.FacilitatorURL = cfg.Facilitator.URL
			break
		}
	}

	mcpServer := server.NewPaywallServer("paywall", version, mcpConfig)
	mcpServer.AddPayableTool(
		mcp.NewTool("search",
			mcp.WithDescription("Search for information on any topic"),
			mcp.WithString("query", mcp.Required(), mcp.Description("The search query")),
			mcp.WithNumber("max_results", mcp.Description("Maximum number of results to return")),
		),
		searchHandler,
		payment,
	)
	mcpServer.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Simple echo tool that returns the input message"),
			mcp.WithString("message", mcp.Required(), mcp.Description("The message to echo back")),
		),
		echoHandler,
	)

	mux := http.NewServeMux()
	mux.Handle("GET /premium", paywall.HandlePaid(premiumHandler, payment, settle))
	mux.Handle("/mcp", mcpServer.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux, nil
}

func premiumHandler(w http.ResponseWriter, r *http.Request, pc *paywall.PaymentContext) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"content": "premium content",
		"payment": pc.Payment,
	})
}

func searchHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	maxResults := request.GetFloat("max_results", 5)

	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}

	results := fmt.Sprintf("Search results for %q (top %.0f):\n1. Understanding %s\n2. %s in practice\n3. The future of %s",
		query, maxResults, query, query, query)
	if pc, ok := paywall.FromContext(ctx); ok && pc.Payment.TxHash != "" {
		results += "\n\nSettled in " + pc.Payment.TxHash
	}

	return mcp.NewToolResultText(results), nil
}

func echoHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := request.GetString("message", "")

	if message == "" {
		return nil, fmt.Errorf("message parameter is required")
	}

	return mcp.NewToolResultText("Echo: " + message), nil
}
