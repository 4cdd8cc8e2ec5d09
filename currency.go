package paywall

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Defaults used when a payment config leaves them empty
const (
	DefaultCurrency          = "USDC"
	DefaultNetwork           = "base"
	DefaultScheme            = "exact"
	DefaultMaxTimeoutSeconds = 60
)

// USDC contract and mint addresses
const (
	USDCAddressBase          = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	USDCAddressBaseSepolia   = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	USDCAddressAvalanche     = "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"
	USDCAddressAvalancheFuji = "0x5425890298aed601595a70AB815c96711a31Bc65"
	USDCAddressPolygon       = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
	USDCAddressPolygonAmoy   = "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582"
	USDCMintSolana           = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCMintSolanaDevnet     = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

// NetworkChainIDs maps EVM network names to chain IDs
var NetworkChainIDs = map[string]int64{
	"base":           8453,
	"base-sepolia":   84532,
	"avalanche":      43114,
	"avalanche-fuji": 43113,
	"polygon":        137,
	"polygon-amoy":   80002,
	"ethereum":       1,
	"sepolia":        11155111,
}

var solanaNetworks = map[string]bool{
	"solana":        true,
	"solana-devnet": true,
}

type currencyEntry struct {
	spec   CurrencySpec
	assets map[string]AssetSpec
}

func evmUSDC(network, address, domainName string) AssetSpec {
	return AssetSpec{
		Symbol:        "USDC",
		Network:       network,
		ChainID:       NetworkChainIDs[network],
		Address:       address,
		Standard:      "erc20",
		EIP712Name:    domainName,
		EIP712Version: "2",
	}
}

func splUSDC(network, mint string) AssetSpec {
	return AssetSpec{
		Symbol:   "USDC",
		Network:  network,
		Address:  mint,
		Standard: "spl",
	}
}

var currencies = map[string]currencyEntry{
	"USDC": {
		spec: CurrencySpec{Code: "USDC", Symbol: "USDC", Decimals: 6},
		assets: map[string]AssetSpec{
			"base":           evmUSDC("base", USDCAddressBase, "USD Coin"),
			"base-sepolia":   evmUSDC("base-sepolia", USDCAddressBaseSepolia, "USDC"),
			"avalanche":      evmUSDC("avalanche", USDCAddressAvalanche, "USD Coin"),
			"avalanche-fuji": evmUSDC("avalanche-fuji", USDCAddressAvalancheFuji, "USDC"),
			"polygon":        evmUSDC("polygon", USDCAddressPolygon, "USD Coin"),
			"polygon-amoy":   evmUSDC("polygon-amoy", USDCAddressPolygonAmoy, "USDC"),
			"solana":         splUSDC("solana", USDCMintSolana),
			"solana-devnet":  splUSDC("solana-devnet", USDCMintSolanaDevnet),
		},
	},
}

// LookupCurrency returns the currency with the given code
func LookupCurrency(code string) (CurrencySpec, bool) {
	entry, ok := currencies[strings.ToUpper(code)]
	return entry.spec, ok
}

// LookupAsset returns the built-in asset of a currency on a network
func LookupAsset(code, network string) (AssetSpec, bool) {
	entry, ok := currencies[strings.ToUpper(code)]
	if !ok {
		return AssetSpec{}, false
	}
	asset, ok := entry.assets[network]
	if ok {
		decimals := entry.spec.Decimals
		asset.Decimals = &decimals
	}
	return asset, ok
}

// ChainID returns the chain ID of an EVM network
func ChainID(network string) (int64, bool) {
	id, ok := NetworkChainIDs[network]
	return id, ok
}

// IsSolanaNetwork reports whether network is a Solana cluster
func IsSolanaNetwork(network string) bool {
	return solanaNetworks[network]
}

// ValidateAddress checks an address against the format of its network.
// Addresses on networks outside the built-in table are accepted as is.
func ValidateAddress(network, address string) error {
	switch {
	case IsSolanaNetwork(network):
		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			return fmt.Errorf("%w: %q on %s: %v", ErrInvalidAddress, address, network, err)
		}
	case NetworkChainIDs[network] != 0:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("%w: %q on %s", ErrInvalidAddress, address, network)
		}
	}
	return nil
}

// DecimalToBaseUnits converts a decimal amount into integer base units.
// Digits beyond decimals are truncated.
func DecimalToBaseUnits(amount string, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	whole, frac, _ := strings.Cut(strings.TrimSpace(amount), ".")
	if len(frac) > decimals {
		frac = frac[:decimals]
	} else {
		frac += strings.Repeat("0", decimals-len(frac))
	}
	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return "0"
	}
	return digits
}

// AmountFromFloat renders a numeric amount as the shortest exact decimal string
func AmountFromFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// normalizeAmount validates a decimal amount string and returns it in plain notation
func normalizeAmount(value string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("%w: %q is negative", ErrInvalidAmount, value)
	}
	return d.String(), nil
}
