package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithConfig_Level(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig(Config{Level: "warn"}, &buf)

	log.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	log.Warn().Str("tool", "search").Msg("kept")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "paywall", entry["service"])
	assert.Equal(t, "search", entry["tool"])
	assert.Equal(t, "kept", entry["message"])
}

func TestNewWithConfig_UnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig(Config{Level: "loud"}, &buf)

	log.Debug().Msg("dropped")
	assert.Zero(t, buf.Len())
	log.Info().Msg("kept")
	assert.NotZero(t, buf.Len())
}

func TestNewWithConfig_Pretty(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithConfig(Config{Level: "info", Pretty: true}, &buf)

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}
