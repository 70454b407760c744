package main

import (
	"fmt"

	"github.com/vulnverified/nophish/internal/config"
	"github.com/vulnverified/nophish/internal/engine"
	"github.com/vulnverified/nophish/internal/insight"
	"github.com/vulnverified/nophish/internal/logger"
	"github.com/vulnverified/nophish/internal/recon"
	"github.com/vulnverified/nophish/internal/tokens"
)

// buildPipeline wires the collectors, token guard and insight extractor
// described by cfg into a pipeline.
func buildPipeline(cfg *config.Config, log logger.Logger, progress engine.ProgressReporter) (*engine.Pipeline, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	enc, err := tokens.NewTiktokenEncoder(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("token encoder %s: %w", cfg.Encoding, err)
	}

	c := cfg.Collectors
	stages := recon.Collectors(recon.Options{
		DNSServer:         c.DNSServer,
		DNSTimeout:        c.DNSTimeout,
		ConnectTimeout:    c.ConnectTimeout,
		WHOISTimeout:      c.WHOISTimeout,
		Renderer:          c.Renderer,
		ChromePath:        c.ChromePath,
		UserAgent:         c.UserAgent,
		NavigationTimeout: c.NavigationTimeout,
		SettleDelay:       c.SettleDelay,
	}, log)
	stages.Guard = tokens.NewGuard(enc, cfg.TokenCeiling, log.With(logger.String("component", "tokens")))
	stages.Extractor = insight.NewExtractor(insight.Config{
		APIKey:          cfg.Credentials.APIKey,
		BaseURL:         cfg.Credentials.BaseURL,
		Model:           cfg.Model,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}, log.With(logger.String("component", "insight")))

	return engine.NewPipeline(engine.Config{
		TLSPort:        c.TLSPort,
		CollectTimeout: c.CollectTimeout,
	}, stages, progress), nil
}
