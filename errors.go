package paywall

import (
	"errors"
	"fmt"
)

var (
	// Definition errors
	ErrNoMethods           = errors.New("no payment methods configured")
	ErrUnknownMethod       = errors.New("unknown payment method")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidAmount       = errors.New("invalid payment amount")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrMissingAsset        = errors.New("missing asset address")
	ErrMissingDecimals     = errors.New("missing asset decimals")
	ErrNoOptions           = errors.New("payment definition accepts no options")
	ErrDuplicateOption     = errors.New("duplicate payment option id")
	ErrDuplicateVerifier   = errors.New("verifier already registered")
)

// FailureCode classifies a request-time payment failure
type FailureCode string

const (
	CodeMissingHeader      FailureCode = "missing_header"
	CodeInvalidPayload     FailureCode = "invalid_payload"
	CodeVerifierNotFound   FailureCode = "verifier_not_found"
	CodeVerificationFailed FailureCode = "verification_failed"
	CodeSettlementFailed   FailureCode = "settlement_failed"
	CodeUnsupportedOption  FailureCode = "unsupported_option"
	CodeUnknown            FailureCode = "unknown"
)

// PaymentFailure describes why a payment was not accepted
type PaymentFailure struct {
	Reason    string      `json:"reason"`
	Code      FailureCode `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    any         `json:"detail,omitempty"`
}

// NewFailure creates a PaymentFailure
func NewFailure(code FailureCode, reason string, retryable bool) *PaymentFailure {
	return &PaymentFailure{Reason: reason, Code: code, Retryable: retryable}
}

func (f *PaymentFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Reason)
}

// FacilitatorStatusError is returned when a facilitator answers with a non-2xx status
type FacilitatorStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *FacilitatorStatusError) Error() string {
	return fmt.Sprintf("facilitator %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether the facilitator failed on its side
func (e *FacilitatorStatusError) Retryable() bool {
	return e.StatusCode >= 500
}
