package paywall

import (
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// PaymentConfig is the declarative input of DefinePayment
type PaymentConfig struct {
	// Amount is a decimal string, see AmountFromFloat for numeric amounts
	Amount   string
	PayTo    string
	Currency string

	// Methods lists accepted transports in preference order, default direct only
	Methods []ProofKind
	X402    *X402Options
	Direct  *DirectOptions

	// Verifiers are merged into the registry and replace built-ins with the same id
	Verifiers map[string]PaymentVerifier
	Metadata  map[string]any

	Message      string
	Title        string
	Resource     string
	FallbackText string

	Logger     *zerolog.Logger
	HTTPClient *http.Client
}

// X402Options overrides the generated x402 option
type X402Options struct {
	ID          string
	Title       string
	Description string
	Network     string
	// Networks produces one option per network and takes precedence over Network
	Networks          []string
	Scheme            string
	Version           int
	Asset             *AssetSpec
	PayTo             string
	Resource          string
	Facilitator       *FacilitatorConfig
	VerifierID        string
	MaxTimeoutSeconds int
	Settlement        *SettlementTerms
	Metadata          map[string]any
}

// DirectOptions overrides the generated direct option
type DirectOptions struct {
	ID                 string
	Title              string
	Description        string
	ProofTypes         []string
	VerifierID         string
	Instructions       string
	Fields             []ProofField
	AllowsManualReview bool
	Resource           string
	Metadata           map[string]any

	// ExpectedToken and TokenField configure the default verifier used when
	// Verifier is nil
	ExpectedToken string
	TokenField    string
	Verifier      PaymentVerifier
}

// Payment is an immutable requirements definition with its verifiers
type Payment struct {
	definition *Definition
	verifiers  *Registry
	logger     zerolog.Logger
}

// Definition returns the requirements definition
func (p *Payment) Definition() *Definition {
	return cloneDefinition(p.definition)
}

// Verifiers returns the verifier registry
func (p *Payment) Verifiers() *Registry {
	return p.verifiers
}

// NewPayment validates a hand-built definition and keeps a copy of it. x402
// options must carry an asset address and decimals; amounts are normalized
// to plain decimal notation.
func NewPayment(def *Definition, verifiers *Registry, logger zerolog.Logger) (*Payment, error) {
	if def == nil || len(def.Accepts) == 0 {
		return nil, ErrNoOptions
	}
	def = cloneDefinition(def)
	if def.SchemaVersion == 0 {
		def.SchemaVersion = SchemaVersion
	}
	if verifiers == nil {
		verifiers = NewRegistry()
	}

	seen := make(map[string]bool, len(def.Accepts))
	for i := range def.Accepts {
		opt := &def.Accepts[i]
		if seen[opt.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOption, opt.ID)
		}
		seen[opt.ID] = true

		if opt.Proof == nil {
			return nil, fmt.Errorf("%w: option %s has no proof config", ErrUnknownMethod, opt.ID)
		}
		value, err := normalizeAmount(opt.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", opt.ID, err)
		}
		opt.Amount.Value = value

		switch opt.Proof.(type) {
		case X402Proof:
			if _, err := BuildRequirement(opt, def); err != nil {
				return nil, err
			}
		case DirectProof:
		default:
			return nil, fmt.Errorf("%w: option %s has no proof config", ErrUnknownMethod, opt.ID)
		}
	}

	return &Payment{definition: def, verifiers: verifiers, logger: logger}, nil
}

// DefinePayment builds a payment definition and its verifier registry from a
// small config. Unsupported currencies and unresolvable x402 assets fail here,
// never at request time.
func DefinePayment(cfg PaymentConfig) (*Payment, error) {
	methods, err := normalizeMethods(cfg.Methods)
	if err != nil {
		return nil, err
	}

	code := cfg.Currency
	if code == "" {
		code = DefaultCurrency
	}
	currency, ok := LookupCurrency(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}

	value, err := normalizeAmount(cfg.Amount)
	if err != nil {
		return nil, err
	}
	amount := Amount{Value: value, Currency: currency}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	registry := NewRegistry()
	for id, v := range cfg.Verifiers {
		if err := registry.Register(id, v); err != nil {
			return nil, err
		}
	}

	var accepts []PaymentOption
	for _, method := range methods {
		switch method {
		case ProofX402:
			opts, err := x402Options(cfg, amount)
			if err != nil {
				return nil, err
			}
			accepts = append(accepts, opts...)
			if _, ok := registry.Lookup(FacilitatorVerifierID); !ok {
				var defaults FacilitatorConfig
				if cfg.X402 != nil && cfg.X402.Facilitator != nil {
					defaults = *cfg.X402.Facilitator
				}
				_ = registry.Register(FacilitatorVerifierID, NewFacilitatorVerifier(defaults,
					WithHTTPClient(cfg.HTTPClient), WithVerifierLogger(logger)))
			}
		case ProofDirect:
			opt, verifier := directOption(cfg, amount)
			accepts = append(accepts, opt)
			if id := ResolveVerifierID(&opt); !hasVerifier(registry, id) {
				_ = registry.Register(id, verifier)
			}
		}
	}

	def := &Definition{
		SchemaVersion: SchemaVersion,
		Message:       cfg.Message,
		Title:         cfg.Title,
		Resource:      cfg.Resource,
		Accepts:       accepts,
		Metadata:      defaultMetadata(methods, currency, accepts, cfg.Metadata),
		FallbackText:  cfg.FallbackText,
	}
	if def.Message == "" {
		def.Message = "Payment required"
	}

	return NewPayment(def, registry, logger)
}

func hasVerifier(r *Registry, id string) bool {
	_, ok := r.Lookup(id)
	return ok
}

func normalizeMethods(in []ProofKind) ([]ProofKind, error) {
	if len(in) == 0 {
		return []ProofKind{ProofDirect}, nil
	}
	seen := make(map[ProofKind]bool, len(in))
	out := make([]ProofKind, 0, len(in))
	for _, m := range in {
		m = ProofKind(strings.ToLower(strings.TrimSpace(string(m))))
		if m != ProofX402 && m != ProofDirect {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

func x402Options(cfg PaymentConfig, amount Amount) ([]PaymentOption, error) {
	o := cfg.X402
	if o == nil {
		o = &X402Options{}
	}

	networks := o.Networks
	if len(networks) == 0 {
		network := o.Network
		if network == "" {
			network = DefaultNetwork
		}
		networks = []string{network}
	}

	baseID := o.ID
	if baseID == "" {
		baseID = string(ProofX402)
	}
	scheme := o.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	version := o.Version
	if version == 0 {
		version = X402Version
	}
	payTo := o.PayTo
	if payTo == "" {
		payTo = cfg.PayTo
	}

	options := make([]PaymentOption, 0, len(networks))
	for _, network := range networks {
		asset, err := resolveAsset(amount.Currency.Code, network, o.Asset)
		if err != nil {
			return nil, err
		}
		if payTo == "" {
			return nil, fmt.Errorf("%w: x402 option on %s has no payee", ErrInvalidAddress, network)
		}
		if err := ValidateAddress(network, payTo); err != nil {
			return nil, err
		}
		if err := ValidateAddress(network, asset.Address); err != nil {
			return nil, err
		}

		id := baseID
		if len(networks) > 1 {
			id = baseID + "-" + network
		}
		options = append(options, PaymentOption{
			ID:          id,
			Title:       o.Title,
			Description: o.Description,
			Amount:      amount,
			Asset:       asset,
			PayTo:       payTo,
			Resource:    o.Resource,
			Proof: X402Proof{
				Scheme:            scheme,
				Network:           network,
				Version:           version,
				Facilitator:       o.Facilitator,
				VerifierID:        o.VerifierID,
				MaxTimeoutSeconds: o.MaxTimeoutSeconds,
			},
			Settlement: o.Settlement,
			Metadata:   o.Metadata,
		})
	}
	return options, nil
}

// resolveAsset merges an explicit asset override over the built-in table entry
func resolveAsset(code, network string, override *AssetSpec) (*AssetSpec, error) {
	asset, _ := LookupAsset(code, network)
	asset.Network = network
	if override != nil {
		if override.Symbol != "" {
			asset.Symbol = override.Symbol
		}
		if override.ChainID != 0 {
			asset.ChainID = override.ChainID
		}
		if override.Address != "" {
			asset.Address = override.Address
		}
		if override.Decimals != nil {
			d := *override.Decimals
			asset.Decimals = &d
		}
		if override.Standard != "" {
			asset.Standard = override.Standard
		}
		if override.EIP712Name != "" {
			asset.EIP712Name = override.EIP712Name
			asset.EIP712Version = override.EIP712Version
		}
	}
	if asset.ChainID == 0 {
		asset.ChainID, _ = ChainID(network)
	}
	if asset.Address == "" {
		return nil, fmt.Errorf("%w: no %s asset on %s", ErrMissingAsset, code, network)
	}
	return &asset, nil
}

func directOption(cfg PaymentConfig, amount Amount) (PaymentOption, PaymentVerifier) {
	o := cfg.Direct
	if o == nil {
		o = &DirectOptions{}
	}

	id := o.ID
	if id == "" {
		id = string(ProofDirect)
	}
	proofTypes := o.ProofTypes
	if len(proofTypes) == 0 {
		proofTypes = []string{id}
	}

	opt := PaymentOption{
		ID:          id,
		Title:       o.Title,
		Description: o.Description,
		Amount:      amount,
		PayTo:       cfg.PayTo,
		Resource:    o.Resource,
		Proof: DirectProof{
			ProofTypes:         proofTypes,
			VerifierID:         o.VerifierID,
			Instructions:       o.Instructions,
			Fields:             o.Fields,
			AllowsManualReview: o.AllowsManualReview,
		},
		Metadata: o.Metadata,
	}

	verifier := o.Verifier
	if verifier == nil {
		verifier = NewExpectedTokenVerifier(o.TokenField, o.ExpectedToken)
	}
	return opt, verifier
}

func defaultMetadata(methods []ProofKind, currency CurrencySpec, accepts []PaymentOption, extra map[string]any) map[string]any {
	accepted := make([]string, len(methods))
	for i, m := range methods {
		accepted[i] = string(m)
	}

	meta := map[string]any{
		"acceptedMethods":    accepted,
		"acceptedCurrencies": []string{currency.Code},
	}

	var chainIDs []int64
	for i := range accepts {
		proof, ok := accepts[i].Proof.(X402Proof)
		if !ok {
			continue
		}
		if accepts[i].Asset != nil && accepts[i].Asset.ChainID != 0 {
			chainIDs = append(chainIDs, accepts[i].Asset.ChainID)
		}
		if _, set := meta["facilitator"]; !set {
			var fc FacilitatorConfig
			if proof.Facilitator != nil {
				fc = *proof.Facilitator
			}
			meta["facilitator"] = fc.Host()
		}
	}
	if len(chainIDs) > 0 {
		meta["chainIds"] = chainIDs
	}

	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

// cloneDefinition copies def down to its option list and metadata map
func cloneDefinition(def *Definition) *Definition {
	c := *def
	c.Accepts = append([]PaymentOption(nil), def.Accepts...)
	c.Metadata = maps.Clone(def.Metadata)
	return &c
}
