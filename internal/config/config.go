// Package config loads the daemon configuration from a YAML file, an
// optional .env file and SKOLL_* environment variables, in increasing
// order of precedence.
package config

import (
	"os"
	"strconv"
	"time"

	"skoll/internal/common"
	"skoll/internal/engine"
	"skoll/internal/exchange"
	"skoll/internal/fixed"
	"skoll/internal/registry"
	"skoll/internal/utils"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SKOLL_"

var ErrInvalid = errors.New("invalid configuration")

// File mirrors the YAML layout. Amounts are whole-unit decimal strings and
// durations are Go duration strings.
type File struct {
	Server struct {
		TCPAddr  string `yaml:"tcp_addr"`
		HTTPAddr string `yaml:"http_addr"`
		Workers  uint   `yaml:"workers"`
	} `yaml:"server"`
	Log    utils.LogConfig `yaml:"log"`
	Engine struct {
		Currency       string `yaml:"currency"`
		FeeBps         uint16 `yaml:"fee_bps"`
		RewardSplitBps uint16 `yaml:"reward_split_bps"`
		MinAmount      string `yaml:"min_amount"`
		MaxAmount      string `yaml:"max_amount"`
		MinTTL         string `yaml:"min_ttl"`
		MaxTTL         string `yaml:"max_ttl"`
	} `yaml:"engine"`
	Registry struct {
		OrderBook    string            `yaml:"order_book"`
		Pool         string            `yaml:"pool"`
		Fallback     string            `yaml:"fallback"`
		Blocked      []string          `yaml:"blocked"`
		Fulfillers   []string          `yaml:"fulfillers"`
		Distributors []string          `yaml:"distributors"`
		Pairs        map[string]string `yaml:"pairs"`
	} `yaml:"registry"`
	Fallback struct {
		Rates map[string]string `yaml:"rates"` // Asset to price
	} `yaml:"fallback"`
	Genesis []struct {
		Owner  string `yaml:"owner"`
		Asset  string `yaml:"asset"`
		Amount string `yaml:"amount"`
	} `yaml:"genesis"`
	Journal struct {
		Dir string `yaml:"dir"` // Empty disables the journal
	} `yaml:"journal"`
}

// Config is the validated, typed configuration.
type Config struct {
	TCPAddr    string
	HTTPAddr   string
	Workers    uint
	Log        utils.LogConfig
	Engine     engine.Config
	Addresses  registry.Addresses
	Blocked    []common.Address
	Fulfillers []common.Address
	// Distributors may call DistributeFee directly. The order book is
	// always one.
	Distributors []common.Address
	Pairs        map[common.Address]common.Address
	Rates        map[common.Address]*uint256.Int
	Genesis      []exchange.Balance
	JournalDir   string
}

func defaults() File {
	var f File
	f.Server.TCPAddr = ":7420"
	f.Server.HTTPAddr = ":7421"
	f.Server.Workers = 8
	f.Log.Level = "info"
	f.Log.Format = "console"
	f.Log.MaxSize = 100
	f.Log.MaxBackups = 3
	f.Log.MaxAge = 28
	f.Engine.FeeBps = 30
	f.Engine.RewardSplitBps = 5_000
	f.Engine.MinTTL = "1m"
	f.Engine.MaxTTL = "720h"
	f.Registry.OrderBook = "0x0000000000000000000000000000000000000b00"
	f.Registry.Pool = "0x0000000000000000000000000000000000000b01"
	f.Registry.Fallback = "0x0000000000000000000000000000000000000b02"
	return f
}

// Load reads path, which may be empty, then applies .env and the
// environment on top.
func Load(path string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	f := defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, errors.Wrapf(ErrInvalid, "parse %s: %v", path, err)
		}
	}
	if err := applyEnv(&f); err != nil {
		return nil, err
	}
	return f.Build()
}

// Parse builds a Config from YAML bytes alone.
func Parse(raw []byte) (*Config, error) {
	f := defaults()
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "parse: %v", err)
	}
	return f.Build()
}

func applyEnv(f *File) error {
	str := map[string]*string{
		"TCP_ADDR":    &f.Server.TCPAddr,
		"HTTP_ADDR":   &f.Server.HTTPAddr,
		"LOG_LEVEL":   &f.Log.Level,
		"LOG_FORMAT":  &f.Log.Format,
		"LOG_FILE":    &f.Log.OutputFile,
		"JOURNAL_DIR": &f.Journal.Dir,
		"CURRENCY":    &f.Engine.Currency,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "WORKERS"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "%sWORKERS=%q", envPrefix, v)
		}
		f.Server.Workers = uint(n)
	}
	for key, dst := range map[string]*uint16{
		"FEE_BPS":          &f.Engine.FeeBps,
		"REWARD_SPLIT_BPS": &f.Engine.RewardSplitBps,
	} {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "%s%s=%q", envPrefix, key, v)
		}
		*dst = uint16(n)
	}
	return nil
}

// Build validates f and converts it to a Config.
func (f *File) Build() (*Config, error) {
	cfg := &Config{
		TCPAddr:    f.Server.TCPAddr,
		HTTPAddr:   f.Server.HTTPAddr,
		Workers:    f.Server.Workers,
		Log:        f.Log,
		Pairs:      make(map[common.Address]common.Address),
		Rates:      make(map[common.Address]*uint256.Int),
		JournalDir: f.Journal.Dir,
	}
	if cfg.Workers == 0 {
		return nil, errors.Wrap(ErrInvalid, "server.workers must be positive")
	}

	var err error
	e := &cfg.Engine
	if e.Currency, err = address("engine.currency", f.Engine.Currency); err != nil {
		return nil, err
	}
	e.FeeBps = fixed.Bps(f.Engine.FeeBps)
	e.RewardSplitBps = fixed.Bps(f.Engine.RewardSplitBps)
	if !e.FeeBps.Valid() || !e.RewardSplitBps.Valid() {
		return nil, errors.Wrap(ErrInvalid, "basis points above 10000")
	}
	if e.MinAmount, err = optionalAmount("engine.min_amount", f.Engine.MinAmount); err != nil {
		return nil, err
	}
	if e.MaxAmount, err = optionalAmount("engine.max_amount", f.Engine.MaxAmount); err != nil {
		return nil, err
	}
	if e.MinAmount != nil && e.MaxAmount != nil && e.MinAmount.Gt(e.MaxAmount) {
		return nil, errors.Wrap(ErrInvalid, "engine.min_amount above engine.max_amount")
	}
	if e.MinTTL, err = duration("engine.min_ttl", f.Engine.MinTTL); err != nil {
		return nil, err
	}
	if e.MaxTTL, err = duration("engine.max_ttl", f.Engine.MaxTTL); err != nil {
		return nil, err
	}
	if e.MinTTL > e.MaxTTL {
		return nil, errors.Wrap(ErrInvalid, "engine.min_ttl above engine.max_ttl")
	}

	r := f.Registry
	if cfg.Addresses.OrderBook, err = address("registry.order_book", r.OrderBook); err != nil {
		return nil, err
	}
	if cfg.Addresses.Pool, err = address("registry.pool", r.Pool); err != nil {
		return nil, err
	}
	if cfg.Addresses.Fallback, err = address("registry.fallback", r.Fallback); err != nil {
		return nil, err
	}
	if cfg.Blocked, err = addresses("registry.blocked", r.Blocked); err != nil {
		return nil, err
	}
	if cfg.Fulfillers, err = addresses("registry.fulfillers", r.Fulfillers); err != nil {
		return nil, err
	}
	if cfg.Distributors, err = addresses("registry.distributors", r.Distributors); err != nil {
		return nil, err
	}
	cfg.Distributors = append(cfg.Distributors, cfg.Addresses.OrderBook)
	for a, p := range r.Pairs {
		asset, err := address("registry.pairs", a)
		if err != nil {
			return nil, err
		}
		if cfg.Pairs[asset], err = address("registry.pairs."+a, p); err != nil {
			return nil, err
		}
	}

	for a, rate := range f.Fallback.Rates {
		asset, err := address("fallback.rates", a)
		if err != nil {
			return nil, err
		}
		if cfg.Rates[asset], err = amount("fallback.rates."+a, rate); err != nil {
			return nil, err
		}
	}

	for i, g := range f.Genesis {
		field := "genesis[" + strconv.Itoa(i) + "]"
		var b exchange.Balance
		if b.Owner, err = address(field+".owner", g.Owner); err != nil {
			return nil, err
		}
		if b.Asset, err = address(field+".asset", g.Asset); err != nil {
			return nil, err
		}
		if b.Amount, err = amount(field+".amount", g.Amount); err != nil {
			return nil, err
		}
		cfg.Genesis = append(cfg.Genesis, b)
	}
	return cfg, nil
}

// Registry builds the static registry the configuration describes.
func (c *Config) Registry() *registry.Static {
	opts := []registry.Option{
		registry.WithBlocked(c.Blocked...),
		registry.WithFulfillers(c.Fulfillers...),
		registry.WithDistributors(c.Distributors...),
	}
	for asset, pair := range c.Pairs {
		opts = append(opts, registry.WithPair(asset, pair))
	}
	return registry.NewStatic(c.Addresses, opts...)
}

// --- Field parsers ---

func address(field, s string) (common.Address, error) {
	a, err := common.ParseAddress(s)
	if err != nil || a == common.ZeroAddress {
		return common.ZeroAddress, errors.Wrapf(ErrInvalid, "%s: bad address %q", field, s)
	}
	return a, nil
}

func addresses(field string, ss []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(ss))
	for _, s := range ss {
		a, err := address(field, s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func amount(field, s string) (*uint256.Int, error) {
	v, err := fixed.Parse(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%s: %v", field, err)
	}
	return v, nil
}

func optionalAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	return amount(field, s)
}

func duration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.Wrapf(ErrInvalid, "%s: bad duration %q", field, s)
	}
	return d, nil
}
