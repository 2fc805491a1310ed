// Package objects parses object service flags and starts the hub.
package objects

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	entrypoint "github.com/designftw/graffiti-chat/internal/platform/cmd"
	server "github.com/designftw/graffiti-chat/internal/services/objects/app"
)

// Config holds object service command configuration.
type Config struct {
	HTTPAddr string `env:"GRAFFITI_CHAT_OBJECTS_HTTP_ADDR" envDefault:":8090"`
	DBPath   string `env:"GRAFFITI_CHAT_OBJECTS_DB_PATH"   envDefault:"data/objects.db"`
	LogLevel string `env:"GRAFFITI_CHAT_LOG_LEVEL"         envDefault:"info"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "object service HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "object store SQLite path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "minimum log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run serves the object hub until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	options := entrypoint.RunOptions{LogLevel: cfg.LogLevel}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceObjects, options, func(ctx context.Context, logger *slog.Logger) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr: cfg.HTTPAddr,
			DBPath:   cfg.DBPath,
		}, logger); err != nil {
			return fmt.Errorf("serve objects: %w", err)
		}
		return nil
	})
}
