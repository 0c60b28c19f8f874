package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg, which must be a pointer to a
// struct using `env` / `envDefault` tags. An optional prefix is prepended to
// every variable name, so `env:"HTTP_PORT"` with prefix "STOREFRONT_" reads
// STOREFRONT_HTTP_PORT.
func Load(cfg any, prefix ...string) error {
	opts := env.Options{}
	if len(prefix) > 0 {
		opts.Prefix = prefix[0]
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
