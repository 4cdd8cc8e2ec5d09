package paywall

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenField is the direct payload field holding an access token
const DefaultTokenField = "token"

// TokenCheck decides whether a token proves payment
type TokenCheck func(ctx context.Context, token string) (bool, error)

type tokenVerifier struct {
	field string
	check TokenCheck
}

// NewTokenVerifier creates a direct verifier reading a token from field of the
// proof payload and passing it to check
func NewTokenVerifier(field string, check TokenCheck) PaymentVerifier {
	if field == "" {
		field = DefaultTokenField
	}
	return &tokenVerifier{field: field, check: check}
}

func (v *tokenVerifier) Verify(ctx context.Context, in VerifyInput) (*VerificationResult, error) {
	token, ok := directToken(in.Attempt, v.field)
	if !ok {
		return Failed(CodeVerificationFailed, fmt.Sprintf("proof payload has no %q", v.field), false), nil
	}
	valid, err := v.check(ctx, token)
	if err != nil {
		return nil, err
	}
	if !valid {
		return Failed(CodeVerificationFailed, "token rejected", false), nil
	}
	return Succeeded(directMetadata(in, nil)), nil
}

// NewExpectedTokenVerifier accepts proofs carrying the expected token. With no
// expected token it only requires a non-empty proof payload.
func NewExpectedTokenVerifier(field, expected string) PaymentVerifier {
	if expected == "" {
		return VerifierFunc(func(ctx context.Context, in VerifyInput) (*VerificationResult, error) {
			if in.Attempt.Direct == nil || len(in.Attempt.Direct.Payload) == 0 {
				return Failed(CodeVerificationFailed, "proof payload is empty", false), nil
			}
			return Succeeded(directMetadata(in, in.Attempt.Direct.Payload)), nil
		})
	}
	return NewTokenVerifier(field, func(_ context.Context, token string) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1, nil
	})
}

// NewStaticTokenVerifier accepts any of the given tokens found in field, or
// in DefaultTokenField when field is empty
func NewStaticTokenVerifier(field string, tokens ...string) PaymentVerifier {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return NewTokenVerifier(field, func(_ context.Context, token string) (bool, error) {
		_, ok := set[token]
		return ok, nil
	})
}

// NewJWTVerifier accepts HS256 access tokens signed with secret, read from
// field or DefaultTokenField when field is empty
func NewJWTVerifier(field string, secret []byte) PaymentVerifier {
	if field == "" {
		field = DefaultTokenField
	}
	return VerifierFunc(func(ctx context.Context, in VerifyInput) (*VerificationResult, error) {
		raw, ok := directToken(in.Attempt, field)
		if !ok {
			return Failed(CodeVerificationFailed, fmt.Sprintf("proof payload has no %q", field), false), nil
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			reason := "invalid access token"
			if err != nil {
				reason = fmt.Sprintf("invalid access token: %v", err)
			}
			return Failed(CodeVerificationFailed, reason, false), nil
		}

		meta := directMetadata(in, nil)
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, err := claims.GetSubject(); err == nil {
				meta.Payer = sub
			}
		}
		return Succeeded(meta), nil
	})
}

// HTTPTokenConfig configures remote token introspection
type HTTPTokenConfig struct {
	// Endpoint receives GET requests with the token as a bearer credential
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client

	// TokenField defaults to DefaultTokenField
	TokenField string
}

// NewHTTPTokenVerifier checks tokens against a remote endpoint answering {"valid": bool}
func NewHTTPTokenVerifier(config HTTPTokenConfig) PaymentVerifier {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	client := config.Client
	if client == nil {
		client = http.DefaultClient
	}
	if config.TokenField == "" {
		config.TokenField = DefaultTokenField
	}

	return VerifierFunc(func(ctx context.Context, in VerifyInput) (*VerificationResult, error) {
		token, ok := directToken(in.Attempt, config.TokenField)
		if !ok {
			return Failed(CodeVerificationFailed, fmt.Sprintf("proof payload has no %q", config.TokenField), false), nil
		}

		ctx, cancel := context.WithTimeout(ctx, config.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.Endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create token request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if config.APIKey != "" {
			req.Header.Set("X-API-Key", config.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return Failed(CodeVerificationFailed, fmt.Sprintf("token endpoint unreachable: %v", err), true), nil
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Failed(CodeVerificationFailed,
				fmt.Sprintf("token endpoint returned %d", resp.StatusCode), resp.StatusCode >= 500), nil
		}

		var body struct {
			Valid bool   `json:"valid"`
			Error string `json:"error,omitempty"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode token response: %w", err)
		}
		if !body.Valid {
			reason := "token rejected"
			if body.Error != "" {
				reason = body.Error
			}
			return Failed(CodeVerificationFailed, reason, false), nil
		}
		return Succeeded(directMetadata(in, nil)), nil
	})
}

func directToken(a *PaymentAttempt, field string) (string, bool) {
	if a == nil || a.Direct == nil {
		return "", false
	}
	token, ok := a.Direct.Payload[field].(string)
	return token, ok && token != ""
}

func directMetadata(in VerifyInput, payload any) *PaymentSuccessMetadata {
	return &PaymentSuccessMetadata{
		OptionID: in.Option.ID,
		Verifier: in.VerifierID,
		Amount:   in.Option.Amount.Value,
		Payload:  payload,
	}
}
