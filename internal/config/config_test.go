package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"skoll/internal/common"
	"skoll/internal/fixed"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  tcp_addr: "127.0.0.1:9000"
  workers: 4
log:
  level: debug
engine:
  currency: "0x0000000000000000000000000000000000000c00"
  fee_bps: 50
  reward_split_bps: 2500
  min_amount: "0.001"
  max_ttl: "24h"
registry:
  fulfillers: ["0x00000000000000000000000000000000000000f1"]
  pairs:
    "0x0000000000000000000000000000000000000a01": "0x0000000000000000000000000000000000000e01"
fallback:
  rates:
    "0x0000000000000000000000000000000000000a01": "2.5"
genesis:
  - owner: "0x00000000000000000000000000000000000000a1"
    asset: "0x0000000000000000000000000000000000000a01"
    amount: "100"
journal:
  dir: "/var/lib/skoll"
`

var (
	asset     = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	fulfiller = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.TCPAddr)
	assert.Equal(t, ":7421", cfg.HTTPAddr)
	assert.Equal(t, uint(4), cfg.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/lib/skoll", cfg.JournalDir)

	e := cfg.Engine
	assert.Equal(t, common.HexToAddress("0xc00"), e.Currency)
	assert.Equal(t, fixed.Bps(50), e.FeeBps)
	assert.Equal(t, fixed.Bps(2500), e.RewardSplitBps)
	assert.Equal(t, uint256.NewInt(1_000_000_000_000_000), e.MinAmount)
	assert.Nil(t, e.MaxAmount)
	assert.Equal(t, time.Minute, e.MinTTL)
	assert.Equal(t, 24*time.Hour, e.MaxTTL)

	assert.Equal(t, uint256.NewInt(2_500_000_000_000_000_000), cfg.Rates[asset])
	require.Len(t, cfg.Genesis, 1)
	assert.Equal(t, new(uint256.Int).Mul(uint256.NewInt(100), fixed.PriceScale), cfg.Genesis[0].Amount)

	reg := cfg.Registry()
	assert.True(t, reg.IsAuthorizedFulfiller(fulfiller))
	assert.True(t, reg.IsRewardDistributor(cfg.Addresses.OrderBook))
	pair, ok := reg.PairOf(asset)
	assert.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xe01"), pair)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"no currency":    `engine: {currency: ""}`,
		"bad bps":        "engine:\n  currency: \"0x0000000000000000000000000000000000000c00\"\n  fee_bps: 10001",
		"bad amount":     "engine:\n  currency: \"0x0000000000000000000000000000000000000c00\"\n  min_amount: \"lots\"",
		"inverted ttl":   "engine:\n  currency: \"0x0000000000000000000000000000000000000c00\"\n  min_ttl: 2h\n  max_ttl: 1h",
		"bad yaml":       "engine: [",
		"zero workers":   "server: {workers: 0}\nengine: {currency: \"0x0000000000000000000000000000000000000c00\"}",
		"bad rate asset": "engine: {currency: \"0x0000000000000000000000000000000000000c00\"}\nfallback: {rates: {\"nope\": \"1\"}}",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skoll.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	t.Setenv("SKOLL_TCP_ADDR", ":1")
	t.Setenv("SKOLL_WORKERS", "16")
	t.Setenv("SKOLL_FEE_BPS", "10")
	t.Setenv("SKOLL_JOURNAL_DIR", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":1", cfg.TCPAddr)
	assert.Equal(t, uint(16), cfg.Workers)
	assert.Equal(t, fixed.Bps(10), cfg.Engine.FeeBps)
	assert.Equal(t, "", cfg.JournalDir)

	t.Setenv("SKOLL_WORKERS", "many")
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
