package paywall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directPaymentWith(t *testing.T, v PaymentVerifier) *Payment {
	t.Helper()
	payment, err := DefinePayment(PaymentConfig{
		Amount: "0.10",
		Direct: &DirectOptions{ID: "access", Verifier: v},
	})
	require.NoError(t, err)
	return payment
}

func TestStaticTokenVerifier(t *testing.T) {
	payment := directPaymentWith(t, NewStaticTokenVerifier("", "alpha", "beta"))

	result := payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": "beta"}), VerifyOptions{})
	require.True(t, result.Success)
	assert.Equal(t, "direct:access", result.Metadata.Verifier)
	assert.Equal(t, "0.1", result.Metadata.Amount)

	result = payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": "gamma"}), VerifyOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, CodeVerificationFailed, result.Failure.Code)

	result = payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"receipt": "beta"}), VerifyOptions{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Failure.Reason, "token")
}

func TestExpectedTokenVerifier_CustomField(t *testing.T) {
	payment := directPaymentWith(t, NewExpectedTokenVerifier("code", "open-sesame"))

	result := payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"code": "open-sesame"}), VerifyOptions{})
	assert.True(t, result.Success)

	result = payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": "open-sesame"}), VerifyOptions{})
	assert.False(t, result.Success)
}

func TestJWTVerifier(t *testing.T) {
	secret := []byte("jwt-test-secret")
	payment := directPaymentWith(t, NewJWTVerifier("", secret))

	sign := func(claims jwt.MapClaims, key []byte) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	t.Run("Valid", func(t *testing.T) {
		token := sign(jwt.MapClaims{"sub": "wallet-42", "exp": time.Now().Add(time.Hour).Unix()}, secret)
		result := payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": token}), VerifyOptions{})
		require.True(t, result.Success, "failure: %+v", result.Failure)
		assert.Equal(t, "wallet-42", result.Metadata.Payer)
	})

	t.Run("Expired", func(t *testing.T) {
		token := sign(jwt.MapClaims{"sub": "wallet-42", "exp": time.Now().Add(-time.Hour).Unix()}, secret)
		result := payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": token}), VerifyOptions{})
		assert.False(t, result.Success)
		assert.Equal(t, CodeVerificationFailed, result.Failure.Code)
	})

	t.Run("WrongKey", func(t *testing.T) {
		token := sign(jwt.MapClaims{"sub": "wallet-42"}, []byte("other"))
		result := payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": token}), VerifyOptions{})
		assert.False(t, result.Success)
	})
}

func TestStaticTokenVerifier_CustomField(t *testing.T) {
	payment := directPaymentWith(t, NewStaticTokenVerifier("accessKey", "alpha"))

	result := payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"accessKey": "alpha"}), VerifyOptions{})
	assert.True(t, result.Success)

	result = payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": "alpha"}), VerifyOptions{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Failure.Reason, "accessKey")
}

func TestJWTVerifier_CustomField(t *testing.T) {
	secret := []byte("jwt-test-secret")
	payment := directPaymentWith(t, NewJWTVerifier("bearer", secret))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "wallet-7"}).SignedString(secret)
	require.NoError(t, err)

	result := payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"bearer": token}), VerifyOptions{})
	require.True(t, result.Success, "failure: %+v", result.Failure)
	assert.Equal(t, "wallet-7", result.Metadata.Payer)

	result = payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": token}), VerifyOptions{})
	assert.False(t, result.Success)
}

func TestHTTPTokenVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_ = json.NewEncoder(w).Encode(map[string]any{"valid": true})
		case "Bearer down":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"valid": false, "error": "revoked"})
		}
	}))
	defer srv.Close()

	payment := directPaymentWith(t, NewHTTPTokenVerifier(HTTPTokenConfig{Endpoint: srv.URL}))

	result := payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": "good"}), VerifyOptions{})
	assert.True(t, result.Success)

	result = payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": "bad"}), VerifyOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, "revoked", result.Failure.Reason)
	assert.False(t, result.Failure.Retryable)

	result = payment.Verify(context.Background(), directHeader(t, "access", map[string]any{"token": "down"}), VerifyOptions{})
	assert.False(t, result.Success)
	assert.True(t, result.Failure.Retryable)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("b", NewStaticTokenVerifier("")))
	require.NoError(t, r.Register("a", NewStaticTokenVerifier("")))
	assert.ErrorIs(t, r.Register("a", NewStaticTokenVerifier("")), ErrDuplicateVerifier)
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	_, ok := r.Lookup("c")
	assert.False(t, ok)
}

func TestResolveVerifierID(t *testing.T) {
	assert.Equal(t, FacilitatorVerifierID, ResolveVerifierID(&PaymentOption{Proof: X402Proof{}}))
	assert.Equal(t, "x402:custom", ResolveVerifierID(&PaymentOption{Proof: X402Proof{VerifierID: "x402:custom"}}))
	assert.Equal(t, "direct:tx-hash", ResolveVerifierID(&PaymentOption{ID: "onchain", Proof: DirectProof{ProofTypes: []string{"tx-hash", "receipt"}}}))
	assert.Equal(t, "direct:onchain", ResolveVerifierID(&PaymentOption{ID: "onchain", Proof: DirectProof{}}))
}
