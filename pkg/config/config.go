// Package config loads typed configuration structs from environment
// variables. Services declare their settings with `env` tags and, when
// they have cross-field invariants, implement Validator to have them
// checked as part of loading.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is implemented by configuration structs that enforce
// invariants beyond per-field parsing, such as value ranges or
// mutually dependent settings.
type Validator interface {
	Validate() error
}

// Load parses environment variables into cfg, which must be a pointer
// to a struct with `env` tags:
//
//	type Config struct {
//	    RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
//	    Retries   int    `env:"PAYMENT_MAX_RETRIES" envDefault:"3"`
//	}
//
// If cfg implements Validator, Validate is called after parsing and its
// error returned as-is.
func Load(cfg any) error {
	return load(cfg, env.Options{})
}

// LoadPrefixed is Load with every env tag name prefixed, so several
// components can share a tag layout without colliding.
func LoadPrefixed(prefix string, cfg any) error {
	return load(cfg, env.Options{Prefix: prefix})
}

func load(cfg any, opts env.Options) error {
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if v, ok := cfg.(Validator); ok {
		return v.Validate()
	}
	return nil
}
