package paywall

import (
	"context"
	"net/http"
	"strings"
)

// VerifyOptions tunes a single verification
type VerifyOptions struct {
	// Settle asks verifiers that support it to settle the payment after verifying
	Settle bool
}

// ExtractPaymentAttempts decodes the proof headers of a request, x402 first.
// Headers that fail to decode become failures instead of attempts. With no
// proof header at all a single missing_header failure is returned.
func ExtractPaymentAttempts(h http.Header) ([]*PaymentAttempt, []*PaymentFailure) {
	var (
		attempts []*PaymentAttempt
		failures []*PaymentFailure
	)

	if raw := strings.TrimSpace(h.Get(HeaderX402)); raw != "" {
		decoded, f := DecodeX402Header(raw)
		if f != nil {
			failures = append(failures, f)
		} else {
			attempts = append(attempts, &PaymentAttempt{Type: ProofX402, HeaderName: HeaderX402, Raw: raw, X402: decoded})
		}
	}

	if raw := strings.TrimSpace(h.Get(HeaderDirect)); raw != "" {
		decoded, f := DecodeDirectHeader(raw)
		if f != nil {
			failures = append(failures, f)
		} else {
			attempts = append(attempts, &PaymentAttempt{Type: ProofDirect, HeaderName: HeaderDirect, Raw: raw, Direct: decoded})
		}
	}

	if len(attempts) == 0 && len(failures) == 0 {
		failures = append(failures, NewFailure(CodeMissingHeader,
			"request carries neither "+HeaderX402+" nor "+HeaderDirect+" header", false))
	}
	return attempts, failures
}

// Verify extracts the request's attempts and verifies the first one matching an
// accepted option. Later attempts are never evaluated once a verifier has run.
// Failures are returned as results, never as errors.
func (p *Payment) Verify(ctx context.Context, h http.Header, opts VerifyOptions) *VerificationResult {
	attempts, failures := ExtractPaymentAttempts(h)
	if len(attempts) == 0 {
		p.logger.Debug().Str("code", string(failures[0].Code)).Msg("no usable payment attempt")
		return &VerificationResult{Failure: failures[0]}
	}

	for _, attempt := range attempts {
		opt := p.match(attempt)
		if opt == nil {
			p.logger.Debug().Str("header", attempt.HeaderName).Msg("attempt matches no accepted option")
			continue
		}

		id := ResolveVerifierID(opt)
		log := p.logger.With().Str("option", opt.ID).Str("verifier", id).Logger()

		verifier, ok := p.verifiers.Lookup(id)
		if !ok {
			log.Debug().Msg("verifier not registered")
			return &VerificationResult{
				OptionID:    opt.ID,
				AttemptType: attempt.Type,
				Failure:     NewFailure(CodeVerifierNotFound, "no verifier registered for "+id, false),
			}
		}

		result, err := verifier.Verify(ctx, VerifyInput{
			Attempt:    attempt,
			Option:     opt,
			Definition: p.definition,
			VerifierID: id,
			Settle:     opts.Settle,
		})
		switch {
		case err != nil:
			log.Debug().Err(err).Msg("verifier failed")
			result = Failed(CodeUnknown, err.Error(), false)
		case result == nil:
			result = Failed(CodeUnknown, "verifier returned no result", false)
		case !result.Success && result.Failure == nil:
			result.Failure = NewFailure(CodeUnknown, "verifier rejected payment without a reason", false)
		}

		result.OptionID = opt.ID
		result.AttemptType = attempt.Type
		if result.Success && result.Metadata == nil {
			result.Metadata = &PaymentSuccessMetadata{OptionID: opt.ID, Verifier: id}
		}
		log.Debug().Bool("success", result.Success).Msg("payment attempt verified")
		return result
	}

	failure := NewFailure(CodeUnsupportedOption, "payment does not match any accepted option", false)
	if len(failures) > 0 {
		failure.Detail = failures
	}
	return &VerificationResult{Failure: failure}
}

// match returns the first accepted option the attempt can pay for
func (p *Payment) match(a *PaymentAttempt) *PaymentOption {
	for i := range p.definition.Accepts {
		opt := &p.definition.Accepts[i]
		switch proof := opt.Proof.(type) {
		case X402Proof:
			if a.X402 != nil && proof.Scheme == a.X402.Scheme && proof.Network == a.X402.Network {
				return opt
			}
		case DirectProof:
			if a.Direct != nil && opt.ID == a.Direct.OptionID {
				return opt
			}
		}
	}
	return nil
}
