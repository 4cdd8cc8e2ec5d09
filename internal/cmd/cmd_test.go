package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/mcp-go-paywall"
	"github.com/mark3labs/mcp-go-paywall/config"
)

const testPayTo = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb6"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paywall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHeaderCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := run(t, "header", "--option", "demo", "--token", "demo-access")
	require.NoError(t, err)

	decoded, failure := paywall.DecodeDirectHeader(strings.TrimSpace(out))
	require.Nil(t, failure)
	assert.Equal(t, "demo", decoded.OptionID)
	assert.Equal(t, "demo-access", decoded.Payload["token"])
}

func TestHeaderCommand_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := run(t, "header")
	assert.Error(t, err)

	_, err = run(t, "header", "--payload", "not json")
	assert.Error(t, err)
}

func TestSignCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
payment:
  amount: "0.01"
  payTo: "`+testPayTo+`"
  methods: [x402]
  networks: [base, base-sepolia]
`)

	out, err := run(t, "--config", path, "sign",
		"--private-key", "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef",
		"--network", "base-sepolia")
	require.NoError(t, err)

	decoded, failure := paywall.DecodeX402Header(strings.TrimSpace(out))
	require.Nil(t, failure)
	assert.Equal(t, "base-sepolia", decoded.Network)
	assert.Equal(t, "exact", decoded.Scheme)

	_, err = run(t, "--config", path, "sign", "--private-key", "0x12", "--network", "base")
	assert.Error(t, err)

	_, err = run(t, "--config", path, "sign",
		"--private-key", "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef",
		"--network", "polygon")
	assert.ErrorContains(t, err, "no x402 option on polygon")
}

func TestSignCommand_DirectOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
payment:
  amount: "0.01"
`)

	_, err := run(t, "--config", path, "sign",
		"--private-key", "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef")
	assert.ErrorContains(t, err, "no x402 option")
}

func TestSupportedCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	fac := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/supported", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"kinds": []map[string]any{
				{"x402Version": 1, "scheme": "exact", "network": "base"},
				{"x402Version": 1, "scheme": "exact", "network": "solana"},
			},
		})
	}))
	t.Cleanup(fac.Close)
	t.Setenv(config.EnvFacilitatorURL, fac.URL)

	out, err := run(t, "supported")
	require.NoError(t, err)
	assert.Contains(t, out, "NETWORK")
	assert.Contains(t, out, "base")
	assert.Contains(t, out, "solana")
}

func TestServeMux(t *testing.T) {
	cfg := config.Default()
	cfg.Payment.Amount = "0.01"
	cfg.Payment.Direct.ID = "demo"
	cfg.Payment.Direct.Tokens = []string{"demo-access"}

	mux, err := newServeMux(cfg, zerolog.Nop())
	require.NoError(t, err)

	t.Run("Healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Unpaid", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/premium", nil))
		assert.Equal(t, http.StatusPaymentRequired, rr.Code)
		assert.Contains(t, rr.Body.String(), `"missing_header"`)
	})

	t.Run("Paid", func(t *testing.T) {
		value, err := paywall.EncodeDirectHeader(&paywall.DirectPaymentPayload{
			OptionID: "demo",
			Payload:  map[string]any{"token": "demo-access"},
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/premium", nil)
		req.Header.Set(paywall.HeaderDirect, value)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "premium content")
		assert.NotEmpty(t, rr.Header().Get(paywall.HeaderPaymentResponse))
	})
}

func TestServeMux_InvalidPayment(t *testing.T) {
	cfg := config.Default()
	cfg.Payment.Amount = "-1"

	_, err := newServeMux(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, paywall.ErrInvalidAmount)
}
