package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	app "github.com/rocketscienceinc/tictactoe-relay/internal"
	"github.com/rocketscienceinc/tictactoe-relay/internal/config"
)

// main - is the entry point of the application. It parses the flags, loads the configuration, and runs the relay.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	cmd := &cli.Command{
		Name:  "tictactoe-relay",
		Usage: "two-player tic-tac-toe session relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   "./config.yml",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(fmt.Errorf("app run failed: %w", err))
	}
}

func run(_ context.Context, cmd *cli.Command) error {
	conf := config.MustLoad(cmd.String("config"))
	logger := initLogger(conf)

	return app.RunApp(logger, conf)
}

// initialize logger.
func initLogger(conf *config.Config) *slog.Logger {
	var level slog.Level

	switch conf.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
