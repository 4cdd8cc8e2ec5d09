// Package signer produces x402 payment headers from wallet keys. It is the
// paying side of the protocol and is used by tooling and tests.
package signer

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/mark3labs/mcp-go-paywall"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidMnemonic   = errors.New("invalid mnemonic phrase")
	ErrInvalidKeystore   = errors.New("invalid keystore file")
	ErrWrongPassword     = errors.New("wrong keystore password")
	ErrSigningFailed     = errors.New("failed to sign payment")
	ErrUnsupportedScheme = errors.New("unsupported payment scheme")
)

// DefaultDerivationPath is the first Ethereum account of a BIP-44 wallet
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// PaymentSigner signs x402 payment authorizations
type PaymentSigner interface {
	// SignPayment signs a transfer authorization satisfying req
	SignPayment(ctx context.Context, req paywall.X402Requirement) (*paywall.X402PaymentHeader, error)

	// Address returns the payer address
	Address() string
}

// PrivateKeySigner signs EIP-3009 authorizations with a raw private key
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	now        func() time.Time
}

// NewPrivateKeySigner creates a signer from a hex-encoded private key
func NewPrivateKeySigner(privateKeyHex string) (*PrivateKeySigner, error) {
	privateKeyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return newKeySigner(privateKey), nil
}

func newKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		now:        time.Now,
	}
}

func (s *PrivateKeySigner) Address() string {
	return s.address.Hex()
}

// authorization is an EIP-3009 TransferWithAuthorization message
type authorization struct {
	From        string
	To          string
	Value       string
	ValidAfter  int64
	ValidBefore int64
	Nonce       string
}

func (a authorization) payload() map[string]any {
	return map[string]any{
		"from":        a.From,
		"to":          a.To,
		"value":       a.Value,
		"validAfter":  fmt.Sprintf("%d", a.ValidAfter),
		"validBefore": fmt.Sprintf("%d", a.ValidBefore),
		"nonce":       a.Nonce,
	}
}

func (s *PrivateKeySigner) SignPayment(ctx context.Context, req paywall.X402Requirement) (*paywall.X402PaymentHeader, error) {
	if req.Scheme != paywall.DefaultScheme {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, req.Scheme)
	}
	chainID, ok := paywall.ChainID(req.Network)
	if !ok {
		return nil, fmt.Errorf("%w: no chain id for network %s", ErrSigningFailed, req.Network)
	}

	now := s.now()
	nonceBytes := crypto.Keccak256([]byte(fmt.Sprintf("%d-%s-%s", now.UnixNano(), req.Resource, s.address.Hex())))

	timeout := req.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = paywall.DefaultMaxTimeoutSeconds
	}
	// validAfter is backdated to absorb clock skew
	auth := authorization{
		From:        s.address.Hex(),
		To:          req.PayTo,
		Value:       req.MaxAmountRequired,
		ValidAfter:  now.Add(-5 * time.Second).Unix(),
		ValidBefore: now.Add(time.Duration(timeout) * time.Second).Unix(),
		Nonce:       "0x" + hex.EncodeToString(nonceBytes),
	}

	typedData, err := transferTypedData(req, chainID, auth)
	if err != nil {
		return nil, err
	}
	sigHash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	signature, err := crypto.Sign(sigHash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	signature[64] += 27

	return &paywall.X402PaymentHeader{
		X402Version: paywall.X402Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: map[string]any{
			"signature":     "0x" + hex.EncodeToString(signature),
			"authorization": auth.payload(),
		},
		CorrelationID: uuid.NewString(),
	}, nil
}

// transferTypedData builds the EIP-712 document signed for a USDC transfer
func transferTypedData(req paywall.X402Requirement, chainID int64, auth authorization) (apitypes.TypedData, error) {
	name, _ := req.Extra["name"].(string)
	version, _ := req.Extra["version"].(string)
	if name == "" || version == "" {
		return apitypes.TypedData{}, fmt.Errorf("%w: requirement has no EIP-712 domain name/version", ErrSigningFailed)
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return apitypes.TypedData{}, fmt.Errorf("%w: invalid amount %q", ErrSigningFailed, auth.Value)
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(chainID)),
			VerifyingContract: req.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          common.HexToAddress(auth.To).Hex(),
			"value":       (*math.HexOrDecimal256)(value),
			"validAfter":  (*math.HexOrDecimal256)(big.NewInt(auth.ValidAfter)),
			"validBefore": (*math.HexOrDecimal256)(big.NewInt(auth.ValidBefore)),
			"nonce":       auth.Nonce,
		},
	}, nil
}

// derivePrivateKey derives a private key from a seed using BIP-32 HD derivation
func derivePrivateKey(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	key := masterKey
	for _, n := range path {
		key, err = key.NewChildKey(n)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	privateKey, err := crypto.ToECDSA(key.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to ECDSA key: %w", err)
	}
	return privateKey, nil
}

// MnemonicSigner signs with a key derived from a BIP-39 mnemonic
type MnemonicSigner struct {
	*PrivateKeySigner
}

// NewMnemonicSigner creates a signer from a mnemonic. An empty path uses DefaultDerivationPath.
func NewMnemonicSigner(mnemonic, derivationPath string) (*MnemonicSigner, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}

	path, err := accounts.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path: %w", err)
	}

	privateKey, err := derivePrivateKey(bip39.NewSeed(mnemonic, ""), path)
	if err != nil {
		return nil, fmt.Errorf("failed to derive private key: %w", err)
	}
	return &MnemonicSigner{PrivateKeySigner: newKeySigner(privateKey)}, nil
}

// KeystoreSigner signs with a key from an encrypted keystore file
type KeystoreSigner struct {
	*PrivateKeySigner
}

// NewKeystoreSigner creates a signer from an encrypted keystore JSON
func NewKeystoreSigner(keystoreJSON []byte, password string) (*KeystoreSigner, error) {
	key, err := keystore.DecryptKey(keystoreJSON, password)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
	}
	return &KeystoreSigner{PrivateKeySigner: newKeySigner(key.PrivateKey)}, nil
}

// MockSigner produces well-formed headers with a fake signature
type MockSigner struct {
	address string
}

// NewMockSigner creates a mock signer for testing
func NewMockSigner(address string) *MockSigner {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return &MockSigner{address: address}
}

func (m *MockSigner) Address() string {
	return m.address
}

func (m *MockSigner) SignPayment(ctx context.Context, req paywall.X402Requirement) (*paywall.X402PaymentHeader, error) {
	now := time.Now()
	auth := authorization{
		From:        m.address,
		To:          req.PayTo,
		Value:       req.MaxAmountRequired,
		ValidAfter:  now.Unix(),
		ValidBefore: now.Add(60 * time.Second).Unix(),
		Nonce:       "0x" + strings.Repeat("11", 32),
	}
	return &paywall.X402PaymentHeader{
		X402Version: paywall.X402Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: map[string]any{
			"signature":     "0x" + strings.Repeat("00", 65),
			"authorization": auth.payload(),
		},
	}, nil
}

// SignHeader signs req and encodes the result as an X-PAYMENT header value
func SignHeader(ctx context.Context, s PaymentSigner, req paywall.X402Requirement) (string, error) {
	header, err := s.SignPayment(ctx, req)
	if err != nil {
		return "", err
	}
	return paywall.EncodeX402Header(header)
}
