// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is the prefix shared by every graffiti-chat environment variable.
const EnvPrefix = "GRAFFITI_CHAT_"

// ParseEnv loads configuration from environment variables declared on target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseEnvWithPrefix loads configuration where every tag is relative to prefix.
//
// A tag `env:"HTTP_ADDR"` parsed with prefix "GRAFFITI_CHAT_OBJECTS_" reads
// GRAFFITI_CHAT_OBJECTS_HTTP_ADDR.
func ParseEnvWithPrefix(target any, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	if err := env.ParseWithOptions(target, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
