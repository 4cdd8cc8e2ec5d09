package paywall

import (
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// directHeader builds request headers carrying a direct proof for optionID
func directHeader(t *testing.T, optionID string, payload map[string]any) http.Header {
	t.Helper()
	value, err := EncodeDirectHeader(&DirectPaymentPayload{OptionID: optionID, Payload: payload})
	require.NoError(t, err)
	h := http.Header{}
	h.Set(HeaderDirect, value)
	return h
}

// x402Header builds request headers carrying a fake signed authorization
func x402Header(t *testing.T, scheme, network string) http.Header {
	t.Helper()
	value, err := EncodeX402Header(&X402PaymentHeader{
		X402Version: X402Version,
		Scheme:      scheme,
		Network:     network,
		Payload: map[string]any{
			"signature": "0xdeadbeef",
			"authorization": map[string]any{
				"from":  "0x1111111111111111111111111111111111111111",
				"to":    testPayTo,
				"value": "10000",
			},
		},
	})
	require.NoError(t, err)
	h := http.Header{}
	h.Set(HeaderX402, value)
	return h
}

func mergeHeaders(hs ...http.Header) http.Header {
	out := http.Header{}
	for _, h := range hs {
		for k, vs := range h {
			out[k] = vs
		}
	}
	return out
}
