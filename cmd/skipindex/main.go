package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/config"
	"github.com/0xmhha/skipindex-go/internal/logger"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file (YAML)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level (debug, info, warn, error)",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format (json, console)",
	}
	indexPathFlag = &cli.StringFlag{
		Name:  "index",
		Usage: "Index database directory",
	}
	storagePathFlag = &cli.StringFlag{
		Name:  "storage",
		Usage: "Event storage database directory",
	}
	backendFlag = &cli.StringFlag{
		Name:  "backend",
		Usage: "Key-value engine for both databases (pebble, leveldb)",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "skipindex",
		Usage:   "Bloom-filter skip index over per-block event logs",
		Version: version,
		Flags: []cli.Flag{
			configFlag,
			logLevelFlag,
			logFormatFlag,
			indexPathFlag,
			storagePathFlag,
			backendFlag,
		},
		Commands: []*cli.Command{
			buildCommand,
			queryCommand,
			benchCommand,
			serveCommand,
			versionCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print version information",
	Action: func(ctx *cli.Context) error {
		w := ctx.App.Writer
		fmt.Fprintf(w, "skipindex version %s\n", version)
		fmt.Fprintf(w, "  commit: %s\n", commit)
		fmt.Fprintf(w, "  built:  %s\n", buildTime)
		return nil
	},
}

// setup loads the configuration, applies global flags and builds the logger
func setup(ctx *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	applyFlags(ctx, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.WithFields(log, zap.String("version", version)), nil
}

// loadConfig loads configuration from file and environment variables
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies global command-line flags to configuration
func applyFlags(ctx *cli.Context, cfg *config.Config) {
	if v := ctx.String(logLevelFlag.Name); v != "" {
		cfg.Log.Level = v
	}
	if v := ctx.String(logFormatFlag.Name); v != "" {
		cfg.Log.Format = v
	}
	if v := ctx.String(indexPathFlag.Name); v != "" {
		cfg.Index.Path = v
		cfg.Index.InMemory = false
	}
	if v := ctx.String(storagePathFlag.Name); v != "" {
		cfg.Storage.Path = v
		cfg.Storage.InMemory = false
	}
	if v := ctx.String(backendFlag.Name); v != "" {
		cfg.Index.Backend = v
		cfg.Storage.Backend = v
	}
}

// initLogger initializes the logger based on configuration
func initLogger(level, format string) (*zap.Logger, error) {
	return logger.New(level, format)
}
