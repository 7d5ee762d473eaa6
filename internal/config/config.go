// Package config loads the ddnsq deployment file.
//
// The file is YAML. It is decoded with yaml.v3, overlaid with environment
// overrides and then unified with an embedded CUE schema, which supplies
// defaults and rejects unknown keys or out-of-range values before anything
// is decoded into Go types.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Environment variables that override file values.
const (
	EnvDB       = "DDNSQ_DB"
	EnvAddr     = "DDNSQ_ADDR"
	EnvLogLevel = "DDNSQ_LOG_LEVEL"
)

// DefaultFile is the config file name looked up when none is given.
const DefaultFile = "ddnsq.yaml"

// Config is a validated deployment configuration.
type Config struct {
	Store  StoreConfig  `json:"store" yaml:"store"`
	Server ServerConfig `json:"server" yaml:"server"`
	Log    LogConfig    `json:"log" yaml:"log"`
	Clock  ClockConfig  `json:"clock" yaml:"clock"`
	Keys   KeysConfig   `json:"keys" yaml:"keys"`
	Auth   AuthConfig   `json:"auth" yaml:"auth"`

	genesis  time.Time
	slot     time.Duration
	tokenTTL time.Duration
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level    string `json:"level" yaml:"level"`
	Encoding string `json:"encoding" yaml:"encoding"`
}

// ClockConfig configures the wall-clock tick source used by serve.
type ClockConfig struct {
	Genesis      string `json:"genesis" yaml:"genesis"`
	SlotDuration string `json:"slot_duration" yaml:"slot_duration"`
}

// KeysConfig names key files.
type KeysConfig struct {
	GateKey string `json:"gate_key" yaml:"gate_key"`
}

// AuthConfig tunes capability verification.
type AuthConfig struct {
	ReplayWindow int    `json:"replay_window" yaml:"replay_window"`
	TokenTTL     string `json:"token_ttl" yaml:"token_ttl"`
}

// Load reads path and applies environment overrides. A missing file at
// DefaultFile is not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Parse(nil, os.Getenv)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration an empty file produces.
func Default() *Config {
	cfg, err := Parse(nil, func(string) string { return "" })
	if err != nil {
		panic(fmt.Sprintf("config: default schema is invalid: %v", err))
	}
	return cfg
}

// Parse validates YAML data against the schema. getenv supplies overrides;
// pass nil to ignore the environment.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if getenv != nil {
		applyEnv(raw, getenv)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve parses the string-typed fields the schema has already shaped.
func (c *Config) resolve() error {
	var err error
	if c.slot, err = time.ParseDuration(c.Clock.SlotDuration); err != nil {
		return fmt.Errorf("clock.slot_duration: %w", err)
	}
	if c.slot <= 0 {
		return fmt.Errorf("clock.slot_duration must be positive")
	}
	if c.tokenTTL, err = time.ParseDuration(c.Auth.TokenTTL); err != nil {
		return fmt.Errorf("auth.token_ttl: %w", err)
	}
	if c.Clock.Genesis != "" {
		if c.genesis, err = time.Parse(time.RFC3339, c.Clock.Genesis); err != nil {
			return fmt.Errorf("clock.genesis: %w", err)
		}
	}
	return nil
}

// Genesis returns the time of tick 0, or the zero time when unset.
func (c *Config) Genesis() time.Time { return c.genesis }

// SlotDuration returns the wall-clock length of one tick.
func (c *Config) SlotDuration() time.Duration { return c.slot }

// TokenTTL returns the lifetime of tokens minted by this process.
func (c *Config) TokenTTL() time.Duration { return c.tokenTTL }

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func applyEnv(raw map[string]any, getenv func(string) string) {
	if v := getenv(EnvDB); v != "" {
		section(raw, "store")["path"] = v
	}
	if v := getenv(EnvAddr); v != "" {
		section(raw, "server")["addr"] = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		section(raw, "log")["level"] = v
	}
}

// section returns raw[name] as a map, creating it when absent. A non-map
// value is kept for the schema to reject and the override is dropped.
func section(raw map[string]any, name string) map[string]any {
	if m, ok := raw[name].(map[string]any); ok {
		return m
	}
	if _, exists := raw[name]; exists && raw[name] != nil {
		return map[string]any{}
	}
	m := map[string]any{}
	raw[name] = m
	return m
}
