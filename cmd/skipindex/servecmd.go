package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/0xmhha/skipindex-go/internal/constants"
	"github.com/0xmhha/skipindex-go/pkg/api"
)

var (
	serveCommand = &cli.Command{
		Name:  "serve",
		Usage: "Serve first-occurrence queries over HTTP",
		Flags: []cli.Flag{
			apiHostFlag,
			apiPortFlag,
			metricsFlag,
		},
		Action: runServe,
	}
	apiHostFlag = &cli.StringFlag{
		Name:  "host",
		Usage: "API server host",
	}
	apiPortFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "API server port",
	}
	metricsFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Expose Prometheus metrics on /metrics",
	}
)

func runServe(ctx *cli.Context) error {
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()

	if v := ctx.String(apiHostFlag.Name); v != "" {
		cfg.API.Host = v
	}
	if ctx.IsSet(apiPortFlag.Name) {
		cfg.API.Port = ctx.Int(apiPortFlag.Name)
	}
	if ctx.IsSet(metricsFlag.Name) {
		cfg.API.EnableMetrics = ctx.Bool(metricsFlag.Name)
	}

	st, err := openStores(cfg, log, false)
	if err != nil {
		return err
	}
	defer st.Close()

	var reg *prometheus.Registry
	if cfg.API.EnableMetrics {
		reg = prometheus.NewRegistry()
	}
	engine, err := newEngine(cfg, st, log, reg)
	if err != nil {
		return err
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Host = cfg.API.Host
	apiCfg.Port = cfg.API.Port
	apiCfg.ReadTimeout = cfg.API.ReadTimeout
	apiCfg.WriteTimeout = cfg.API.WriteTimeout
	apiCfg.IdleTimeout = cfg.API.IdleTimeout
	apiCfg.QueryTimeout = cfg.Query.Timeout
	apiCfg.EnableRateLimit = cfg.API.RateLimitPerSecond > 0
	apiCfg.RateLimitPerSecond = cfg.API.RateLimitPerSecond
	apiCfg.RateLimitBurst = cfg.API.RateLimitBurst
	apiCfg.EnableMetrics = cfg.API.EnableMetrics
	apiCfg.APIKeys = cfg.API.APIKeys
	apiCfg.Version = version

	server, err := api.NewServer(apiCfg, log, engine, st.index, reg)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() { errChan <- server.Start() }()

	select {
	case <-sigCtx.Done():
		log.Info("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server gracefully", zap.Error(err))
		return err
	}
	return nil
}
