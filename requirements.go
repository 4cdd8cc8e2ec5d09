package paywall

import (
	"fmt"
)

// X402Requirement is the wallet-facing requirement of the x402 protocol
type X402Requirement struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Asset             string         `json:"asset"`
	PayTo             string         `json:"payTo"`
	Resource          string         `json:"resource,omitempty"`
	Description       string         `json:"description,omitempty"`
	MimeType          string         `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]any `json:"extra"`
}

// LegacyX402Response is the 402 body understood by x402 wallets. Its protocol
// version is carried as x402Version rather than protocolVersion.
type LegacyX402Response struct {
	X402Version int               `json:"x402Version"`
	Error       string            `json:"error"`
	Accepts     []X402Requirement `json:"accepts"`
}

// BuildRequirement derives the x402 requirement of an x402 option. Amounts are
// converted to integer base units.
func BuildRequirement(opt *PaymentOption, def *Definition) (*X402Requirement, error) {
	proof, ok := opt.Proof.(X402Proof)
	if !ok {
		return nil, fmt.Errorf("option %s is not an x402 option", opt.ID)
	}
	if opt.Asset == nil || opt.Asset.Address == "" {
		return nil, fmt.Errorf("%w: option %s", ErrMissingAsset, opt.ID)
	}
	decimals, ok := opt.Decimals()
	if !ok {
		return nil, fmt.Errorf("%w: option %s", ErrMissingDecimals, opt.ID)
	}

	resource := opt.Resource
	description := opt.Description
	if description == "" {
		description = opt.Title
	}
	if def != nil {
		if resource == "" {
			resource = def.Resource
		}
		if description == "" {
			description = def.Message
		}
	}

	timeout := proof.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	extra := map[string]any{
		"symbol":   opt.Asset.Symbol,
		"currency": opt.Amount.Currency.Code,
		"decimals": decimals,
	}
	if opt.Asset.EIP712Name != "" {
		extra["name"] = opt.Asset.EIP712Name
		extra["version"] = opt.Asset.EIP712Version
	}

	return &X402Requirement{
		Scheme:            proof.Scheme,
		Network:           proof.Network,
		MaxAmountRequired: DecimalToBaseUnits(opt.Amount.Value, decimals),
		Asset:             opt.Asset.Address,
		PayTo:             opt.PayTo,
		Resource:          resource,
		Description:       description,
		MimeType:          "application/json",
		MaxTimeoutSeconds: timeout,
		Extra:             extra,
	}, nil
}

// LegacyRequirements lists the x402 requirements of every x402 option of def
func LegacyRequirements(def *Definition) []X402Requirement {
	var reqs []X402Requirement
	for i := range def.Accepts {
		if _, ok := def.Accepts[i].Proof.(X402Proof); !ok {
			continue
		}
		req, err := BuildRequirement(&def.Accepts[i], def)
		if err != nil {
			// validated when the payment was defined
			continue
		}
		reqs = append(reqs, *req)
	}
	return reqs
}
