// Package config loads devicewatch settings from a YAML or JSON file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides. A double underscore separates
// levels: DEVICEWATCH_API__BASE_URL sets api.base_url.
const EnvPrefix = "DEVICEWATCH_"

var (
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrLoadFailed        = errors.New("config: failed to load")
	ErrParseFailed       = errors.New("config: failed to parse")
	ErrInvalid           = errors.New("config: invalid")
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

type Config struct {
	API      API      `koanf:"api"`
	Cache    Cache    `koanf:"cache"`
	Log      Log      `koanf:"log"`
	Metrics  Metrics  `koanf:"metrics"`
	Snapshot Snapshot `koanf:"snapshot"`
}

type API struct {
	BaseURL    string        `koanf:"base_url"`
	Timeout    time.Duration `koanf:"timeout"`
	HedgeAfter time.Duration `koanf:"hedge_after"`
	HedgeUpTo  int           `koanf:"hedge_up_to"`
}

type Cache struct {
	Capacity int `koanf:"capacity"`
}

type Log struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

type Metrics struct {
	Addr      string `koanf:"addr"` // "" disables the /metrics endpoint
	Namespace string `koanf:"namespace"`
}

// Snapshot persists the last ping of watched devices so a restart shows
// the last known state before the first load finishes.
type Snapshot struct {
	Store     string        `koanf:"store"` // none | redis | ristretto | bigcache
	Addr      string        `koanf:"addr"`  // redis only
	Namespace string        `koanf:"namespace"`
	Codec     string        `koanf:"codec"` // json | msgpack | cbor
	TTL       time.Duration `koanf:"ttl"`
	MaxBytes  int           `koanf:"max_bytes"` // 0 = unlimited
}

func Default() Config {
	return Config{
		API:      API{Timeout: 10 * time.Second, HedgeUpTo: 2},
		Cache:    Cache{Capacity: 100},
		Log:      Log{Level: "info"},
		Metrics:  Metrics{Namespace: "devicewatch"},
		Snapshot: Snapshot{Store: "none", Namespace: "devicewatch:ping", Codec: "cbor", TTL: 24 * time.Hour},
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		format, err := detectFormat(path)
		if err != nil {
			return Config{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		if err := loadData(k, data, format); err != nil {
			return Config{}, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("%w: env: %w", ErrLoadFailed, err)
	}
	return decode(k)
}

// Parse reads data in the given format without consulting the environment.
func Parse(data []byte, format Format) (Config, error) {
	k := koanf.New(".")
	if len(data) > 0 {
		if err := loadData(k, data, format); err != nil {
			return Config{}, err
		}
	}
	return decode(k)
}

func (c Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, errors.New("cache.capacity must be positive"))
	}
	switch c.Snapshot.Store {
	case "none", "ristretto", "bigcache":
	case "redis":
		if c.Snapshot.Addr == "" {
			errs = append(errs, errors.New("snapshot.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("snapshot.store %q is not one of none, redis, ristretto, bigcache", c.Snapshot.Store))
	}
	switch c.Snapshot.Codec {
	case "json", "msgpack", "cbor":
	default:
		errs = append(errs, fmt.Errorf("snapshot.codec %q is not one of json, msgpack, cbor", c.Snapshot.Codec))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func decode(k *koanf.Koanf) (Config, error) {
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func detectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func loadData(k *koanf.Koanf, data []byte, format Format) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}
