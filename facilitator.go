package paywall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFacilitatorURL is the public x402 facilitator
const DefaultFacilitatorURL = "https://x402.org/facilitator"

const defaultFacilitatorTimeout = 30 * time.Second

// Facilitator verifies and settles x402 payments on behalf of the server
type Facilitator interface {
	Verify(ctx context.Context, req *FacilitatorRequest) (*VerifyResponse, error)
	Settle(ctx context.Context, req *FacilitatorRequest) (*SettleResponse, error)
	Supported(ctx context.Context) ([]SupportedKind, error)
}

// FacilitatorRequest is the body of both /verify and /settle
type FacilitatorRequest struct {
	X402Version         int                `json:"x402Version"`
	PaymentHeader       string             `json:"paymentHeader"`
	PaymentPayload      *X402PaymentHeader `json:"paymentPayload,omitempty"`
	PaymentRequirements *X402Requirement   `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's /verify answer
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's /settle answer. Both field spellings in
// use by facilitators are accepted.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	NetworkID   string `json:"networkId,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

func (r *SettleResponse) txHash() string {
	if r.TxHash != "" {
		return r.TxHash
	}
	return r.Transaction
}

func (r *SettleResponse) networkID() string {
	if r.NetworkID != "" {
		return r.NetworkID
	}
	return r.Network
}

func (r *SettleResponse) reason() string {
	if r.Error != "" {
		return r.Error
	}
	return r.ErrorReason
}

// SupportedKind is a scheme/network pair a facilitator can handle
type SupportedKind struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// HTTPFacilitator implements Facilitator over the facilitator HTTP API
type HTTPFacilitator struct {
	config FacilitatorConfig
	client *http.Client
}

// NewHTTPFacilitator creates a facilitator client. A nil client uses http.DefaultClient;
// timeouts come from config.
func NewHTTPFacilitator(config FacilitatorConfig, client *http.Client) *HTTPFacilitator {
	if config.URL == "" {
		config.URL = DefaultFacilitatorURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultFacilitatorTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFacilitator{config: config, client: client}
}

func (f *HTTPFacilitator) Verify(ctx context.Context, req *FacilitatorRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := f.do(ctx, "verify", http.MethodPost, f.endpoint(f.config.VerifyPath, "/verify"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *HTTPFacilitator) Settle(ctx context.Context, req *FacilitatorRequest) (*SettleResponse, error) {
	var resp SettleResponse
	if err := f.do(ctx, "settle", http.MethodPost, f.endpoint(f.config.SettlePath, "/settle"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *HTTPFacilitator) Supported(ctx context.Context) ([]SupportedKind, error) {
	var result struct {
		Kinds []SupportedKind `json:"kinds"`
	}
	if err := f.do(ctx, "supported", http.MethodGet, f.endpoint(f.config.SupportedPath, "/supported"), nil, &result); err != nil {
		return nil, err
	}
	return result.Kinds, nil
}

func (f *HTTPFacilitator) endpoint(path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(f.config.URL, "/") + path
}

func (f *HTTPFacilitator) do(ctx context.Context, op, method, url string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range f.config.Headers {
		httpReq.Header.Set(k, v)
	}
	if name, value := f.config.authHeader(); name != "" {
		httpReq.Header.Set(name, value)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FacilitatorStatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// authHeader resolves the API key and the header carrying it
func (c FacilitatorConfig) authHeader() (string, string) {
	key := c.APIKey
	if key == "" && c.APIKeyEnv != "" {
		key = os.Getenv(c.APIKeyEnv)
	}
	if key == "" {
		return "", ""
	}
	name := c.AuthHeader
	if name == "" {
		name = "Authorization"
	}
	if strings.EqualFold(name, "Authorization") && !strings.Contains(key, " ") {
		key = "Bearer " + key
	}
	return name, key
}

// Host returns a short label of the facilitator for metadata
func (c FacilitatorConfig) Host() string {
	u := c.URL
	if u == "" {
		u = DefaultFacilitatorURL
	}
	u = strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
	host, _, _ := strings.Cut(u, "/")
	return host
}

// FacilitatorVerifier is the built-in verifier of x402 options. It verifies
// through the option's facilitator and settles when asked to.
type FacilitatorVerifier struct {
	defaults FacilitatorConfig
	client   *http.Client
	fixed    Facilitator
	logger   zerolog.Logger
}

// FacilitatorVerifierOption configures a FacilitatorVerifier
type FacilitatorVerifierOption func(*FacilitatorVerifier)

// WithHTTPClient sets the HTTP client used for facilitator calls
func WithHTTPClient(client *http.Client) FacilitatorVerifierOption {
	return func(v *FacilitatorVerifier) {
		v.client = client
	}
}

// WithFacilitator routes every option to f instead of its configured facilitator
func WithFacilitator(f Facilitator) FacilitatorVerifierOption {
	return func(v *FacilitatorVerifier) {
		v.fixed = f
	}
}

// WithVerifierLogger sets the logger of the verifier
func WithVerifierLogger(logger zerolog.Logger) FacilitatorVerifierOption {
	return func(v *FacilitatorVerifier) {
		v.logger = logger
	}
}

// NewFacilitatorVerifier creates the built-in x402 verifier. defaults apply to
// options without their own facilitator config.
func NewFacilitatorVerifier(defaults FacilitatorConfig, opts ...FacilitatorVerifierOption) *FacilitatorVerifier {
	v := &FacilitatorVerifier{defaults: defaults, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *FacilitatorVerifier) facilitatorFor(proof X402Proof) Facilitator {
	if v.fixed != nil {
		return v.fixed
	}
	config := v.defaults
	if proof.Facilitator != nil {
		config = *proof.Facilitator
	}
	return NewHTTPFacilitator(config, v.client)
}

func (v *FacilitatorVerifier) Verify(ctx context.Context, in VerifyInput) (*VerificationResult, error) {
	proof, ok := in.Option.Proof.(X402Proof)
	if !ok || in.Attempt == nil || in.Attempt.X402 == nil {
		return Failed(CodeUnsupportedOption, "facilitator verifier only handles x402 attempts", false), nil
	}

	requirement, err := BuildRequirement(in.Option, in.Definition)
	if err != nil {
		return nil, err
	}

	version := proof.Version
	if version == 0 {
		version = X402Version
	}
	req := &FacilitatorRequest{
		X402Version:         version,
		PaymentHeader:       in.Attempt.Raw,
		PaymentPayload:      in.Attempt.X402,
		PaymentRequirements: requirement,
	}
	facilitator := v.facilitatorFor(proof)

	log := v.logger.With().Str("option", in.Option.ID).Str("network", proof.Network).Logger()
	log.Debug().Str("amount", requirement.MaxAmountRequired).Msg("verifying payment with facilitator")

	verifyResp, err := facilitator.Verify(ctx, req)
	if err != nil {
		log.Debug().Err(err).Msg("facilitator verify failed")
		return facilitatorFailure(CodeVerificationFailed, err), nil
	}
	if !verifyResp.IsValid {
		reason := "payment verification failed"
		if verifyResp.InvalidReason != "" {
			reason = verifyResp.InvalidReason
		}
		log.Debug().Str("reason", reason).Msg("facilitator rejected payment")
		return Failed(CodeVerificationFailed, reason, false), nil
	}

	meta := &PaymentSuccessMetadata{
		OptionID: in.Option.ID,
		Verifier: "facilitator",
		Amount:   in.Option.Amount.Value,
		Payer:    verifyResp.Payer,
	}
	if !in.Settle {
		log.Debug().Str("payer", verifyResp.Payer).Msg("payment verified, settlement not requested")
		return Succeeded(meta), nil
	}

	settleResp, err := facilitator.Settle(ctx, req)
	if err != nil {
		log.Debug().Err(err).Msg("facilitator settle failed")
		return facilitatorFailure(CodeSettlementFailed, err), nil
	}
	if !settleResp.Success {
		reason := "payment settlement failed"
		if r := settleResp.reason(); r != "" {
			reason = r
		}
		log.Debug().Str("reason", reason).Msg("facilitator could not settle payment")
		return Failed(CodeSettlementFailed, reason, false), nil
	}

	settledAt := time.Now().UTC()
	meta.TxHash = settleResp.txHash()
	meta.NetworkID = settleResp.networkID()
	if meta.NetworkID == "" {
		meta.NetworkID = proof.Network
	}
	if settleResp.Payer != "" {
		meta.Payer = settleResp.Payer
	}
	meta.SettledAt = &settledAt

	encoded, err := EncodePaymentResponse(meta)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("tx", meta.TxHash).Msg("payment settled")

	result := Succeeded(meta)
	result.Headers = map[string]string{HeaderPaymentResponse: encoded}
	return result, nil
}

func facilitatorFailure(code FailureCode, err error) *VerificationResult {
	retryable := true
	var statusErr *FacilitatorStatusError
	if errors.As(err, &statusErr) {
		retryable = statusErr.Retryable()
	}
	result := Failed(code, err.Error(), retryable)
	if statusErr != nil {
		result.Failure.Detail = map[string]any{"status": statusErr.StatusCode}
	}
	return result
}
