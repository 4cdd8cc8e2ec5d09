package server

import (
	"github.com/rs/zerolog"
)

// _meta keys used to carry payments through MCP tool calls
const (
	MetaPayment         = "x402/payment"
	MetaDirectProof     = "x402/direct"
	MetaPaymentResponse = "x402/payment-response"
)

// Config for PaywallServer
type Config struct {
	// FacilitatorURL is queried once at startup for the networks it supports
	FacilitatorURL string

	// Settle settles x402 payments after verifying them
	Settle bool

	// Logger receives payment events, defaults to a no-op logger
	Logger *zerolog.Logger
}
