package main

import (
	"context"
	"fmt"

	"github.com/attrsync/attrsync/audit"
	"github.com/attrsync/attrsync/config"
	"github.com/attrsync/attrsync/internal/api"
	"github.com/attrsync/attrsync/observer"
	"github.com/attrsync/attrsync/orchestrator"
	"github.com/attrsync/attrsync/reconciler"
	"github.com/attrsync/attrsync/resilience"
	"github.com/attrsync/attrsync/resolver"
	"github.com/attrsync/attrsync/sources"
	"github.com/attrsync/attrsync/storage"
	"github.com/attrsync/attrsync/telemetry"
)

// app wires the engine together from configuration.
type app struct {
	cfg     *config.Config
	cloud   *resilience.Client
	auditor *audit.Store
	runs    *storage.RunStore
	orch    *orchestrator.Orchestrator
	api     *api.Server
	logger  *telemetry.Logger
}

func buildApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := telemetry.NewLogger("attrsync")

	cloud := resilience.Wrap(
		sources.NewRESTCloudDirectory(sources.RESTConfig{
			BaseURL: cfg.Endpoints.CloudURL,
			Token:   cfg.Endpoints.Token,
		}),
		resilience.Options{
			Timeout:          cfg.Resilience.Timeout,
			MaxAttempts:      cfg.Resilience.MaxAttempts,
			BreakerThreshold: cfg.Resilience.BreakerThreshold,
			BreakerCooldown:  cfg.Resilience.BreakerCooldown,
			OnRetry: func(op string, err error) {
				if op == "SetExtensionAttribute" {
					telemetry.Count(context.Background(), telemetry.WritebackRetries, 1)
				}
			},
			OnCircuitOpen: func(op string) {
				telemetry.Count(context.Background(), telemetry.BreakerOpens, 1)
			},
		},
		logger.Logger,
	)

	directory := sources.NewRESTDirectory(sources.RESTConfig{
		BaseURL: cfg.Endpoints.DirectoryURL,
		Token:   cfg.Endpoints.Token,
	})
	endpoint := sources.NewRESTEndpoint(sources.RESTConfig{
		BaseURL: cfg.Endpoints.EndpointURL,
		Token:   cfg.Endpoints.Token,
	})

	mappings := cfg.EnabledMappings()

	res, err := resolver.New(directory, endpoint, mappings, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build resolver: %w", err)
	}

	auditor, err := audit.Open(audit.Options{
		Dir:           cfg.Audit.Dir,
		BufferSize:    cfg.Audit.BufferSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}

	runs, err := storage.Open(dataDir)
	if err != nil {
		_ = auditor.Close()
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	auditMetrics, err := observer.NewAuditMetrics()
	if err != nil {
		_ = auditor.Close()
		_ = runs.Close()
		return nil, fmt.Errorf("failed to build audit metrics: %w", err)
	}
	auditor.Subscribe(auditMetrics)

	var notifier orchestrator.Notifier = observer.NewLogNotifier(logger.Logger)
	if cfg.Notify.WebhookURL != "" {
		notifier = observer.NewWebhookNotifier(cfg.Notify.WebhookURL, logger.Logger)
	}

	processor := reconciler.NewProcessor(res, cloud, auditor, mappings, logger)
	orch := orchestrator.NewOrchestrator(cloud, processor, cfg, auditor, logger).
		WithRunStore(runs).
		WithNotifier(notifier)

	a := &app{
		cfg:     cfg,
		cloud:   cloud,
		auditor: auditor,
		runs:    runs,
		orch:    orch,
		logger:  logger,
	}
	a.api = api.NewServer(orch, auditor, runs, cfg, logger)
	return a, nil
}

func (a *app) Close() {
	if err := a.auditor.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close audit store")
	}
	if err := a.runs.Close(); err != nil {
		a.logger.Error().Err(err).Msg("failed to close run store")
	}
}
