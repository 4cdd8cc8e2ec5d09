package paywall

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the version of the requirements document and direct proof payloads
const SchemaVersion = 1

// X402Version is the x402 protocol version spoken with facilitators and wallets
const X402Version = 1

// Header names used by both proof transports
const (
	HeaderX402            = "X-PAYMENT"
	HeaderDirect          = "X-PAYMENT-PROOF"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// ProofKind identifies a proof transport
type ProofKind string

const (
	ProofX402   ProofKind = "x402"
	ProofDirect ProofKind = "direct"
)

// Definition is the full set of payment options a resource accepts.
// It is built once and must not be mutated afterwards.
type Definition struct {
	SchemaVersion int             `json:"schemaVersion"`
	Message       string          `json:"message,omitempty"`
	Title         string          `json:"title,omitempty"`
	Resource      string          `json:"resource,omitempty"`
	Accepts       []PaymentOption `json:"accepts"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	FallbackText  string          `json:"fallbackText,omitempty"`
}

// Option returns the accepted option with the given id
func (d *Definition) Option(id string) (*PaymentOption, bool) {
	for i := range d.Accepts {
		if d.Accepts[i].ID == id {
			return &d.Accepts[i], true
		}
	}
	return nil, false
}

// PaymentOption is one way of paying for a resource
type PaymentOption struct {
	ID          string           `json:"id"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Amount      Amount           `json:"amount"`
	Asset       *AssetSpec       `json:"asset,omitempty"`
	PayTo       string           `json:"payee,omitempty"`
	Resource    string           `json:"resource,omitempty"`
	Proof       ProofConfig      `json:"proof"`
	Settlement  *SettlementTerms `json:"settlement,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// Decimals returns the decimals of the option, preferring the asset over the currency
func (o *PaymentOption) Decimals() (int, bool) {
	if o.Asset != nil && o.Asset.Decimals != nil {
		return *o.Asset.Decimals, true
	}
	if o.Amount.Currency.Code != "" {
		return o.Amount.Currency.Decimals, true
	}
	return 0, false
}

// Amount is a decimal amount in a currency
type Amount struct {
	Value    string       `json:"value"`
	Currency CurrencySpec `json:"currency"`
}

// CurrencySpec describes a fiat or token currency
type CurrencySpec struct {
	Code     string `json:"code"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals int    `json:"decimals"`
}

// AssetSpec describes an on-chain asset
type AssetSpec struct {
	Symbol   string `json:"symbol,omitempty"`
	Network  string `json:"network"`
	ChainID  int64  `json:"chainId,omitempty"`
	Address  string `json:"address,omitempty"`
	Decimals *int   `json:"decimals,omitempty"`
	Standard string `json:"standard,omitempty"`

	// EIP-712 domain used by wallets when signing transfer authorizations
	EIP712Name    string `json:"-"`
	EIP712Version string `json:"-"`
}

// SettlementTerms are optional settlement constraints advertised to payers
type SettlementTerms struct {
	WindowSeconds int `json:"windowSeconds,omitempty"`
	Confirmations int `json:"confirmations,omitempty"`
}

// ProofConfig is the proof transport accepted by an option. It is either
// X402Proof or DirectProof.
type ProofConfig interface {
	Kind() ProofKind
	isProofConfig()
}

// X402Proof accepts a signed x402 authorization verified by a facilitator
type X402Proof struct {
	Scheme            string             `json:"scheme"`
	Network           string             `json:"network"`
	Version           int                `json:"version"`
	Facilitator       *FacilitatorConfig `json:"facilitator,omitempty"`
	VerifierID        string             `json:"verifier,omitempty"`
	MaxTimeoutSeconds int                `json:"maxTimeoutSeconds,omitempty"`
}

func (X402Proof) Kind() ProofKind { return ProofX402 }
func (X402Proof) isProofConfig()  {}

func (p X402Proof) MarshalJSON() ([]byte, error) {
	type alias X402Proof
	return json.Marshal(struct {
		Mode ProofKind `json:"mode"`
		alias
	}{ProofX402, alias(p)})
}

// DirectProof accepts arbitrary evidence checked by a locally registered verifier
type DirectProof struct {
	ProofTypes         []string     `json:"proofTypes"`
	VerifierID         string       `json:"verifier,omitempty"`
	Instructions       string       `json:"instructions,omitempty"`
	Fields             []ProofField `json:"fields,omitempty"`
	AllowsManualReview bool         `json:"allowsManualReview,omitempty"`
}

func (DirectProof) Kind() ProofKind { return ProofDirect }
func (DirectProof) isProofConfig()  {}

func (p DirectProof) MarshalJSON() ([]byte, error) {
	type alias DirectProof
	return json.Marshal(struct {
		Mode ProofKind `json:"mode"`
		alias
	}{ProofDirect, alias(p)})
}

// ProofField declares an input a payer must supply for a direct proof
type ProofField struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// FacilitatorConfig locates and authenticates against an x402 facilitator
type FacilitatorConfig struct {
	URL           string `json:"url"`
	VerifyPath    string `json:"-"`
	SettlePath    string `json:"-"`
	SupportedPath string `json:"-"`

	// APIKey takes precedence over APIKeyEnv
	APIKey     string            `json:"-"`
	APIKeyEnv  string            `json:"-"`
	AuthHeader string            `json:"-"`
	Headers    map[string]string `json:"-"`
	Timeout    time.Duration     `json:"-"`
}

// PaymentAttempt is one decoded proof header of a request
type PaymentAttempt struct {
	Type       ProofKind
	HeaderName string
	Raw        string
	X402       *X402PaymentHeader
	Direct     *DirectPaymentPayload
}

// X402PaymentHeader is the decoded X-PAYMENT header
type X402PaymentHeader struct {
	X402Version   int            `json:"x402Version"`
	Scheme        string         `json:"scheme"`
	Network       string         `json:"network"`
	Payload       map[string]any `json:"payload"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// DirectPaymentPayload is the decoded X-PAYMENT-PROOF header
type DirectPaymentPayload struct {
	SchemaVersion int            `json:"schemaVersion"`
	OptionID      string         `json:"optionId"`
	ProofType     string         `json:"proofType,omitempty"`
	Payload       map[string]any `json:"payload"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// VerificationResult is the outcome of verifying a request
type VerificationResult struct {
	Success     bool
	OptionID    string
	AttemptType ProofKind
	Metadata    *PaymentSuccessMetadata
	Headers     map[string]string
	Failure     *PaymentFailure
}

// PaymentSuccessMetadata describes a verified payment
type PaymentSuccessMetadata struct {
	OptionID  string     `json:"optionId"`
	Verifier  string     `json:"verifier"`
	TxHash    string     `json:"txHash,omitempty"`
	NetworkID string     `json:"networkId,omitempty"`
	// Amount is the option's decimal amount in currency units, never base units
	Amount    string     `json:"amount,omitempty"`
	Payer     string     `json:"payer,omitempty"`
	SettledAt *time.Time `json:"settledAt,omitempty"`
	Payload   any        `json:"payload,omitempty"`
}

// Succeeded builds a successful result. A nil meta is filled in by the
// dispatcher.
func Succeeded(meta *PaymentSuccessMetadata) *VerificationResult {
	result := &VerificationResult{Success: true, Metadata: meta}
	if meta != nil {
		result.OptionID = meta.OptionID
	}
	return result
}

// Failed builds a failed result
func Failed(code FailureCode, reason string, retryable bool) *VerificationResult {
	return &VerificationResult{Failure: NewFailure(code, reason, retryable)}
}
