package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"gqlclient/internal/client"
	"gqlclient/internal/config"
	"gqlclient/internal/metrics"
)

// app is the state shared by the commands that talk to a server
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	client     *client.Client
	metricsSrv *http.Server
}

func newApp(flags *rootFlags) (*app, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logger := setupLogger(level)

	store := config.NewStore(cfg)
	if flags.env != "" {
		if err := store.SetEnvironment(flags.env); err != nil {
			return nil, err
		}
	}
	if _, err := store.Current(); err != nil {
		logger.Fatal().Err(err).Strs("environments", store.Names()).Msg("no environment selected")
	}

	a := &app{cfg: cfg, logger: logger}

	var opts []client.Option
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		opts = append(opts, client.WithMetrics(m))
		a.startMetrics(cfg.MetricsAddr, reg)
	}

	c, err := client.New(cfg, logger, append(opts, client.WithStore(store))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	a.client = c

	logger.Debug().
		Str("config", flags.configPath).
		Str("environment", store.Environment()).
		Msg("client ready")
	return a, nil
}

func (a *app) startMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	a.logger.Info().Str("addr", addr).Msg("serving metrics")
}

// shutdown shuts the client down and stops the metrics server
func (a *app) shutdown(ctx context.Context) error {
	err := a.client.Shutdown(ctx)
	if a.metricsSrv != nil {
		if mErr := a.metricsSrv.Shutdown(ctx); mErr != nil && err == nil {
			err = mErr
		}
	}
	return err
}

func parseVariables(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	vars := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("invalid --vars: %w", err)
	}
	return vars, nil
}

// printResult writes data to out and reports errors through the logger
func (a *app) printResult(out io.Writer, data json.RawMessage, errs gqlerror.List) error {
	if len(data) > 0 {
		fmt.Fprintln(out, string(data))
	}
	if len(errs) == 0 {
		return nil
	}
	for _, e := range errs {
		a.logger.Error().Interface("extensions", e.Extensions).Msg(e.Message)
	}
	return fmt.Errorf("%d error(s) returned", len(errs))
}
