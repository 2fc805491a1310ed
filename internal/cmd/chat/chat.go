// Package chat parses chat client flags and runs the line-oriented shell.
package chat

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	entrypoint "github.com/designftw/graffiti-chat/internal/platform/cmd"
	"github.com/designftw/graffiti-chat/internal/platform/id"
	"github.com/designftw/graffiti-chat/internal/services/objects/client"
)

// Config holds chat command configuration.
type Config struct {
	ObjectsURL string `env:"GRAFFITI_CHAT_OBJECTS_URL" envDefault:"http://localhost:8090"`
	Actor      string `env:"GRAFFITI_CHAT_ACTOR"`
	Locale     string `env:"GRAFFITI_CHAT_LOCALE"      envDefault:"en"`
	LogLevel   string `env:"GRAFFITI_CHAT_LOG_LEVEL"   envDefault:"warn"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.ObjectsURL, "objects-url", cfg.ObjectsURL, "object service base URL")
	fs.StringVar(&cfg.Actor, "actor", cfg.Actor, "actor id to chat as (generated when empty)")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale for user-facing messages")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "minimum log level")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run dials the object service and runs the shell on stdin and stdout.
func Run(ctx context.Context, cfg Config) error {
	return RunIO(ctx, cfg, os.Stdin, os.Stdout)
}

// RunIO is Run with explicit terminal streams.
func RunIO(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	options := entrypoint.RunOptions{LogLevel: cfg.LogLevel}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceChat, options, func(ctx context.Context, logger *slog.Logger) error {
		actor := strings.TrimSpace(cfg.Actor)
		if actor == "" {
			generated, err := id.NewActorID()
			if err != nil {
				return err
			}
			actor = generated
		}

		conn, err := client.Dial(ctx, cfg.ObjectsURL, actor, client.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("connect objects: %w", err)
		}
		defer conn.Close()

		shell := NewShell(ShellConfig{
			Self:     actor,
			Stream:   conn,
			Resolver: conn,
			Claimer:  conn,
			Locale:   cfg.Locale,
			Logger:   logger,
			Out:      out,
		})
		if err := shell.Start(ctx); err != nil {
			return err
		}
		defer shell.Close()
		return shell.Loop(ctx, in)
	})
}
