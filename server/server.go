package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/mark3labs/mcp-go-paywall"
)

// PaywallServer wraps an MCP server whose tools may require payment
type PaywallServer struct {
	mcpServer *server.MCPServer
	config    *Config
	logger    zerolog.Logger

	mu        sync.RWMutex
	payments  map[string]*paywall.Payment
	supported map[string]paywall.SupportedKind
}

// NewPaywallServer creates an MCP server with payment gating. Extra options
// are passed to the underlying MCP server.
func NewPaywallServer(name, version string, config *Config, opts ...server.ServerOption) *PaywallServer {
	if config == nil {
		config = &Config{}
	}
	srv := &PaywallServer{
		config:   config,
		logger:   zerolog.Nop(),
		payments: make(map[string]*paywall.Payment),
	}
	if config.Logger != nil {
		srv.logger = *config.Logger
	}

	opts = append(opts, server.WithToolHandlerMiddleware(newPaymentMiddleware(srv)))
	srv.mcpServer = server.NewMCPServer(name, version, opts...)

	if config.FacilitatorURL != "" {
		srv.fetchSupportedPayments(paywall.NewHTTPFacilitator(paywall.FacilitatorConfig{URL: config.FacilitatorURL}, nil))
	}
	return srv
}

// fetchSupportedPayments records which networks the facilitator can settle
func (s *PaywallServer) fetchSupportedPayments(f paywall.Facilitator) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kinds, err := f.Supported(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to fetch supported payments from facilitator")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.supported = make(map[string]paywall.SupportedKind, len(kinds))
	for _, kind := range kinds {
		s.supported[kind.Network] = kind
		s.logger.Debug().Str("scheme", kind.Scheme).Str("network", kind.Network).Msg("facilitator supports")
	}
}

// MCPServer returns the underlying MCP server
func (s *PaywallServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// AddTool adds a free tool
func (s *PaywallServer) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
}

// AddPayableTool adds a tool gated by payment. Without a payment the tool is
// added as a free tool and an error is logged.
func (s *PaywallServer) AddPayableTool(tool mcp.Tool, handler server.ToolHandlerFunc, payment *paywall.Payment) {
	if payment == nil {
		s.logger.Error().Str("tool", tool.Name).Msg("AddPayableTool called without payment, adding as free tool")
		s.mcpServer.AddTool(tool, handler)
		return
	}

	s.mu.Lock()
	s.payments[tool.Name] = payment
	supported := s.supported
	s.mu.Unlock()

	if supported != nil {
		for _, opt := range payment.Definition().Accepts {
			proof, ok := opt.Proof.(paywall.X402Proof)
			if !ok {
				continue
			}
			if _, ok := supported[proof.Network]; !ok {
				s.logger.Warn().Str("tool", tool.Name).Str("network", proof.Network).
					Msg("facilitator does not list network as supported")
			}
		}
	}

	s.mcpServer.AddTool(tool, handler)
}

func (s *PaywallServer) payment(tool string) (*paywall.Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[tool]
	return p, ok
}

// Handler returns the streamable HTTP handler of the server. Payment headers
// of the HTTP request are visible to the payment middleware.
func (s *PaywallServer) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer, server.WithHTTPContextFunc(withPaymentHeaders))
}

// Start serves the MCP endpoint on addr
func (s *PaywallServer) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting paywall MCP server")
	return http.ListenAndServe(addr, s.Handler())
}
