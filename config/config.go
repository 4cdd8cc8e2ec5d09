// Package config loads paywall settings from a YAML file, a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/mcp-go-paywall"
	"github.com/mark3labs/mcp-go-paywall/internal/logger"
)

// Environment variables overriding file values
const (
	EnvFacilitatorURL = "PAYWALL_FACILITATOR_URL"
	EnvAPIKey         = "PAYWALL_API_KEY"
	EnvPayTo          = "PAYWALL_PAY_TO"
	EnvLogLevel       = "PAYWALL_LOG_LEVEL"
)

var ErrMissingSecret = errors.New("jwt secret environment variable is empty")

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         logger.Config     `yaml:"log"`
	Facilitator FacilitatorConfig `yaml:"facilitator"`
	Payment     PaymentConfig     `yaml:"payment"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type FacilitatorConfig struct {
	URL           string            `yaml:"url"`
	VerifyPath    string            `yaml:"verifyPath"`
	SettlePath    string            `yaml:"settlePath"`
	SupportedPath string            `yaml:"supportedPath"`
	APIKey        string            `yaml:"-"`
	APIKeyEnv     string            `yaml:"apiKeyEnv"`
	AuthHeader    string            `yaml:"authHeader"`
	Headers       map[string]string `yaml:"headers"`
	Timeout       time.Duration     `yaml:"timeout"`
}

type PaymentConfig struct {
	Amount   string       `yaml:"amount"`
	Currency string       `yaml:"currency"`
	PayTo    string       `yaml:"payTo"`
	Methods  []string     `yaml:"methods"`
	Network  string       `yaml:"network"`
	Networks []string     `yaml:"networks"`
	Settle   bool         `yaml:"settle"`
	Message  string       `yaml:"message"`
	Resource string       `yaml:"resource"`
	Direct   DirectConfig `yaml:"direct"`
}

type DirectConfig struct {
	ID           string   `yaml:"id"`
	Tokens       []string `yaml:"tokens"`
	TokenField   string   `yaml:"tokenField"`
	JWTSecretEnv string   `yaml:"jwtSecretEnv"`
	Instructions string   `yaml:"instructions"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    logger.Config{Level: "info"},
		Facilitator: FacilitatorConfig{
			URL:     paywall.DefaultFacilitatorURL,
			Timeout: 30 * time.Second,
		},
		Payment: PaymentConfig{
			Currency: paywall.DefaultCurrency,
			Methods:  []string{string(paywall.ProofDirect)},
		},
	}
}

// Load reads path on top of the defaults, then applies environment overrides.
// A .env file in the working directory is loaded first when present. An
// empty path skips the YAML file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvFacilitatorURL); v != "" {
		c.Facilitator.URL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Facilitator.APIKey = v
	}
	if v := os.Getenv(EnvPayTo); v != "" {
		c.Payment.PayTo = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// FacilitatorConfig converts the facilitator section
func (c *Config) FacilitatorConfig() paywall.FacilitatorConfig {
	f := c.Facilitator
	return paywall.FacilitatorConfig{
		URL:           f.URL,
		VerifyPath:    f.VerifyPath,
		SettlePath:    f.SettlePath,
		SupportedPath: f.SupportedPath,
		APIKey:        f.APIKey,
		APIKeyEnv:     f.APIKeyEnv,
		AuthHeader:    f.AuthHeader,
		Headers:       f.Headers,
		Timeout:       f.Timeout,
	}
}

// PaymentConfig converts the payment section into the input of
// paywall.DefinePayment. Direct proofs are checked against a JWT secret when
// jwtSecretEnv is set, else against the configured tokens.
func (c *Config) PaymentConfig() (paywall.PaymentConfig, error) {
	p := c.Payment
	cfg := paywall.PaymentConfig{
		Amount:   p.Amount,
		PayTo:    p.PayTo,
		Currency: p.Currency,
		Message:  p.Message,
		Resource: p.Resource,
	}

	for _, m := range p.Methods {
		cfg.Methods = append(cfg.Methods, paywall.ProofKind(m))
	}

	for _, m := range cfg.Methods {
		switch m {
		case paywall.ProofX402:
			facilitator := c.FacilitatorConfig()
			cfg.X402 = &paywall.X402Options{
				Network:     p.Network,
				Networks:    p.Networks,
				Facilitator: &facilitator,
			}
		case paywall.ProofDirect:
			direct := &paywall.DirectOptions{
				ID:           p.Direct.ID,
				Instructions: p.Direct.Instructions,
				TokenField:   p.Direct.TokenField,
			}
			switch {
			case p.Direct.JWTSecretEnv != "":
				secret := os.Getenv(p.Direct.JWTSecretEnv)
				if secret == "" {
					return paywall.PaymentConfig{}, fmt.Errorf("%w: %s", ErrMissingSecret, p.Direct.JWTSecretEnv)
				}
				direct.Verifier = paywall.NewJWTVerifier(p.Direct.TokenField, []byte(secret))
			case len(p.Direct.Tokens) > 0:
				direct.Verifier = paywall.NewStaticTokenVerifier(p.Direct.TokenField, p.Direct.Tokens...)
			}
			cfg.Direct = direct
		}
	}
	return cfg, nil
}
