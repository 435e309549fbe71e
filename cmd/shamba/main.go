// Shamba - Satellite and mobile-money credit scoring for smallholder farmers.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/opensource-finance/shamba/internal/domain"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to a YAML config file (optional)",
		Sources: cli.EnvVars("SHAMBA_CONFIG"),
	}

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:    "shamba",
		Usage:   "Credit scoring for smallholder farmers",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			configFlag,
			debugFlag,
		},
		Commands: []*cli.Command{
			serveCmd,
			scoreCmd,
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		slog.Error("shamba failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and installs the default logger.
func loadConfig(cmd *cli.Command) (*domain.Config, error) {
	cfg, err := domain.LoadConfig(cmd.String(configFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Bool(debugFlag.Name) {
		cfg.Logging.Level = "debug"
	}
	initLogging(cfg.Logging)
	return cfg, nil
}

func initLogging(cfg domain.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
