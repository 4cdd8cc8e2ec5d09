package paywall

import (
	"context"
	"fmt"
	"sort"
)

// FacilitatorVerifierID is the reserved registry id of the built-in x402 verifier
const FacilitatorVerifierID = "x402:facilitator"

// VerifyInput is everything a verifier gets to decide on an attempt
type VerifyInput struct {
	Attempt    *PaymentAttempt
	Option     *PaymentOption
	Definition *Definition
	VerifierID string
	Settle     bool
}

// PaymentVerifier checks a payment attempt against the option it matched.
// A returned error is reported as an unknown failure.
type PaymentVerifier interface {
	Verify(ctx context.Context, in VerifyInput) (*VerificationResult, error)
}

// VerifierFunc adapts a function to PaymentVerifier
type VerifierFunc func(ctx context.Context, in VerifyInput) (*VerificationResult, error)

func (f VerifierFunc) Verify(ctx context.Context, in VerifyInput) (*VerificationResult, error) {
	return f(ctx, in)
}

// Registry maps verifier ids to verifiers. It is read-only once a Payment is built.
type Registry struct {
	verifiers map[string]PaymentVerifier
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]PaymentVerifier)}
}

// Register adds a verifier under id
func (r *Registry) Register(id string, v PaymentVerifier) error {
	if _, exists := r.verifiers[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateVerifier, id)
	}
	r.verifiers[id] = v
	return nil
}

// Lookup returns the verifier registered under id
func (r *Registry) Lookup(id string) (PaymentVerifier, bool) {
	v, ok := r.verifiers[id]
	return v, ok
}

// IDs returns the registered ids in sorted order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.verifiers))
	for id := range r.verifiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveVerifierID returns the explicit verifier id of an option, or the
// synthesized one for its proof transport
func ResolveVerifierID(opt *PaymentOption) string {
	switch p := opt.Proof.(type) {
	case X402Proof:
		if p.VerifierID != "" {
			return p.VerifierID
		}
		return FacilitatorVerifierID
	case DirectProof:
		if p.VerifierID != "" {
			return p.VerifierID
		}
		proofType := opt.ID
		if len(p.ProofTypes) > 0 {
			proofType = p.ProofTypes[0]
		}
		return "direct:" + proofType
	default:
		return ""
	}
}
