package paywall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalToBaseUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1.50", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"0", 6, "0"},
		{"0.01", 6, "10000"},
		{"12", 6, "12000000"},
		{"1.1234567", 6, "1123456"},
		{"0.0000001", 6, "0"},
		{"007.5", 2, "750"},
		{".5", 6, "500000"},
		{"3.99", 0, "3"},
		{"123456789.123456", 6, "123456789123456"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, DecimalToBaseUnits(tt.amount, tt.decimals))
		})
	}
}

func TestNormalizeAmount(t *testing.T) {
	got, err := normalizeAmount("1.50")
	require.NoError(t, err)
	assert.Equal(t, "1.5", got)

	got, err = normalizeAmount("1e-6")
	require.NoError(t, err)
	assert.Equal(t, "0.000001", got)

	_, err = normalizeAmount("-1")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = normalizeAmount("ten")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAmountFromFloat(t *testing.T) {
	assert.Equal(t, "0.01", AmountFromFloat(0.01))
	assert.Equal(t, "10000", DecimalToBaseUnits(AmountFromFloat(0.01), 6))
}

func TestLookupAsset(t *testing.T) {
	asset, ok := LookupAsset("usdc", "base-sepolia")
	require.True(t, ok)
	assert.Equal(t, USDCAddressBaseSepolia, asset.Address)
	assert.Equal(t, int64(84532), asset.ChainID)
	require.NotNil(t, asset.Decimals)
	assert.Equal(t, 6, *asset.Decimals)

	_, ok = LookupAsset("USDC", "bitcoin")
	assert.False(t, ok)

	_, ok = LookupAsset("EURC", "base")
	assert.False(t, ok)
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("base", USDCAddressBase))
	assert.ErrorIs(t, ValidateAddress("base", "0x123"), ErrInvalidAddress)

	assert.NoError(t, ValidateAddress("solana", USDCMintSolana))
	assert.ErrorIs(t, ValidateAddress("solana-devnet", "not-base58-0OIl"), ErrInvalidAddress)

	// unknown networks are not checked
	assert.NoError(t, ValidateAddress("testnet-x", "anything"))
}
