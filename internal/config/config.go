// Package config loads and validates the pronto client configuration.
//
// The file is YAML; after decoding it is unified with an embedded CUE
// schema, so a malformed file is rejected with a precise complaint before
// any component is constructed.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Server addresses the ordering platform.
type Server struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Retry tunes the request client's backoff policy.
type Retry struct {
	MaxRetries    int `yaml:"max_retries" json:"max_retries"`
	BackoffBaseMS int `yaml:"backoff_base_ms" json:"backoff_base_ms"`
}

// Polling tunes the reconciler and payment loops.
type Polling struct {
	OrderRefreshSeconds int `yaml:"order_refresh_seconds" json:"order_refresh_seconds"`
	PaymentPollSeconds  int `yaml:"payment_poll_seconds" json:"payment_poll_seconds"`
	ExpiryFloorSeconds  int `yaml:"expiry_floor_seconds" json:"expiry_floor_seconds"`
}

// Storage locates the durable tier and sets the blocked-store policy.
type Storage struct {
	Path           string `yaml:"path" json:"path"`
	ReprobeBlocked bool   `yaml:"reprobe_blocked" json:"reprobe_blocked"`
}

// Config is the full client configuration.
type Config struct {
	Server  Server  `yaml:"server" json:"server"`
	Retry   Retry   `yaml:"retry" json:"retry"`
	Polling Polling `yaml:"polling" json:"polling"`
	Storage Storage `yaml:"storage" json:"storage"`
	TableID int     `yaml:"table_id" json:"table_id"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:  Server{BaseURL: "http://localhost:8080", TimeoutSeconds: 30},
		Retry:   Retry{MaxRetries: 2, BackoffBaseMS: 500},
		Polling: Polling{OrderRefreshSeconds: 10, PaymentPollSeconds: 3, ExpiryFloorSeconds: 10},
		Storage: Storage{Path: "pronto.db"},
	}
}

// Load reads, decodes, and validates a configuration file. Fields absent
// from the file keep their defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate unifies the configuration with the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("config schema missing #Config definition")
	}

	unified := def.Unify(ctx.Encode(c))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Timeout returns the HTTP client timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// BackoffBase returns the retry backoff base.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.Retry.BackoffBaseMS) * time.Millisecond
}

// OrderRefresh returns the order poll interval.
func (c Config) OrderRefresh() time.Duration {
	return time.Duration(c.Polling.OrderRefreshSeconds) * time.Second
}

// PaymentPoll returns the payment poll interval.
func (c Config) PaymentPoll() time.Duration {
	return time.Duration(c.Polling.PaymentPollSeconds) * time.Second
}

// ExpiryFloor returns the minimum session-expiry check interval.
func (c Config) ExpiryFloor() time.Duration {
	return time.Duration(c.Polling.ExpiryFloorSeconds) * time.Second
}
