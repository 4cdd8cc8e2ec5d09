package signer

import (
	"context"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/mcp-go-paywall"
)

const testPrivateKey = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

func baseRequirement(t *testing.T) paywall.X402Requirement {
	t.Helper()
	payment, err := paywall.DefinePayment(paywall.PaymentConfig{
		Amount:   "0.01",
		PayTo:    "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb6",
		Methods:  []paywall.ProofKind{paywall.ProofX402},
		Resource: "https://api.example.com/premium",
	})
	require.NoError(t, err)
	reqs := paywall.LegacyRequirements(payment.Definition())
	require.Len(t, reqs, 1)
	return reqs[0]
}

// recoverSigner recovers the address that signed header for req
func recoverSigner(t *testing.T, req paywall.X402Requirement, header *paywall.X402PaymentHeader) string {
	t.Helper()
	authMap := header.Payload["authorization"].(map[string]any)
	validAfter, err := strconv.ParseInt(authMap["validAfter"].(string), 10, 64)
	require.NoError(t, err)
	validBefore, err := strconv.ParseInt(authMap["validBefore"].(string), 10, 64)
	require.NoError(t, err)

	chainID, ok := paywall.ChainID(req.Network)
	require.True(t, ok)
	typedData, err := transferTypedData(req, chainID, authorization{
		From:        authMap["from"].(string),
		To:          authMap["to"].(string),
		Value:       authMap["value"].(string),
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       authMap["nonce"].(string),
	})
	require.NoError(t, err)
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	require.NoError(t, err)

	sig, err := hex.DecodeString(strings.TrimPrefix(header.Payload["signature"].(string), "0x"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	sig[64] -= 27

	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub).Hex()
}

func TestPrivateKeySigner(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)

	req := baseRequirement(t)
	header, err := signer.SignPayment(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, paywall.X402Version, header.X402Version)
	assert.Equal(t, "exact", header.Scheme)
	assert.Equal(t, "base", header.Network)
	_, err = uuid.Parse(header.CorrelationID)
	assert.NoError(t, err)

	authMap := header.Payload["authorization"].(map[string]any)
	assert.Equal(t, signer.Address(), authMap["from"])
	assert.Equal(t, req.PayTo, authMap["to"])
	assert.Equal(t, "10000", authMap["value"])

	assert.Equal(t, signer.Address(), recoverSigner(t, req, header))
}

func TestPrivateKeySigner_ValidityWindow(t *testing.T) {
	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)
	fixed := time.Unix(1_700_000_000, 0)
	signer.now = func() time.Time { return fixed }

	req := baseRequirement(t)
	req.MaxTimeoutSeconds = 120
	header, err := signer.SignPayment(context.Background(), req)
	require.NoError(t, err)

	authMap := header.Payload["authorization"].(map[string]any)
	assert.Equal(t, "1699999995", authMap["validAfter"])
	assert.Equal(t, "1700000120", authMap["validBefore"])
}

func TestPrivateKeySigner_Errors(t *testing.T) {
	_, err := NewPrivateKeySigner("0xzz")
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)

	signer, err := NewPrivateKeySigner(testPrivateKey)
	require.NoError(t, err)

	req := baseRequirement(t)
	req.Scheme = "upto"
	_, err = signer.SignPayment(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	req = baseRequirement(t)
	req.Network = "solana"
	_, err = signer.SignPayment(context.Background(), req)
	assert.ErrorIs(t, err, ErrSigningFailed)

	req = baseRequirement(t)
	delete(req.Extra, "name")
	_, err = signer.SignPayment(context.Background(), req)
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestMnemonicSigner(t *testing.T) {
	// well-known development mnemonic, never holds funds
	signer, err := NewMnemonicSigner("test test test test test test test test test test test junk", "")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", signer.Address())

	_, err = NewMnemonicSigner("not a mnemonic", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)

	_, err = NewMnemonicSigner("test test test test test test test test test test test junk", "m/not/a/path")
	assert.Error(t, err)
}

func TestKeystoreSigner(t *testing.T) {
	privateKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}
	keyJSON, err := keystore.EncryptKey(key, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	signer, err := NewKeystoreSigner(keyJSON, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, key.Address.Hex(), signer.Address())

	_, err = NewKeystoreSigner(keyJSON, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = NewKeystoreSigner([]byte("{}"), "hunter2")
	assert.ErrorIs(t, err, ErrInvalidKeystore)
}

func TestSignHeaderDecodes(t *testing.T) {
	req := baseRequirement(t)
	value, err := SignHeader(context.Background(), NewMockSigner("1111111111111111111111111111111111111111"), req)
	require.NoError(t, err)

	decoded, failure := paywall.DecodeX402Header(value)
	require.Nil(t, failure)
	assert.Equal(t, "base", decoded.Network)
	authMap := decoded.Payload["authorization"].(map[string]any)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", authMap["from"])
}
