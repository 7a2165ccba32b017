package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JoeanSteinbock/address-approval-checker/internal/alert"
	"github.com/JoeanSteinbock/address-approval-checker/internal/audit/progress"
	"github.com/JoeanSteinbock/address-approval-checker/internal/audit/report"
	"github.com/JoeanSteinbock/address-approval-checker/internal/audit/scheduler"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain/evm"
	"github.com/JoeanSteinbock/address-approval-checker/internal/config"
	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
	"github.com/JoeanSteinbock/address-approval-checker/internal/export"
	"github.com/JoeanSteinbock/address-approval-checker/internal/input"
	"github.com/JoeanSteinbock/address-approval-checker/internal/tracing"
)

const (
	alertCooldown   = time.Minute
	alertTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// newClient is replaced in tests.
var newClient = func(cfg *config.Config, logger *slog.Logger) chain.Client {
	return evm.NewAdapter(cfg.RPC.URL, evm.Options{
		Timeout:            cfg.RPC.Timeout,
		RateLimitRPS:       cfg.RPC.RateLimitRPS,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		RetryMaxAttempts:   cfg.RPC.RetryMaxAttempts,
		BreakerFailures:    cfg.RPC.BreakerFailures,
		BreakerOpenTimeout: cfg.RPC.BreakerOpen,
		LogChunkBlocks:     cfg.RPC.LogChunkBlocks,
	}, logger)
}

// runAudit executes one audit run: load inputs, scan, print, export, alert.
// Returned errors are fatal; per-item failures only show up in the logs.
func runAudit(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	mode := model.ModeBasic
	if cfg.Audit.Advanced {
		mode = model.ModeAdvanced
	}

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(ctx, tracing.ServiceName, tracingEndpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	if cfg.Metrics.Addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := runMetricsServer(metricsCtx, cfg.Metrics.Addr, logger); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	alerter := buildAlerter(cfg.Alert, logger)
	fail := func(err error) error {
		if !errors.Is(err, context.Canceled) {
			notify(ctx, alerter, alert.RunFailedAlert(runID, err), logger)
		}
		return err
	}

	logger.Info("starting approval audit",
		"mode", mode.String(),
		"batch_size", cfg.Audit.BatchSize,
		"display_limit", cfg.Audit.DisplayLimit,
	)

	targets, err := input.Load(input.Files{
		Wallets:  cfg.Input.WalletsFile,
		Tokens:   cfg.Input.TokensFile,
		Spenders: cfg.Input.SpendersFile,
		Targets:  cfg.Input.TargetsFile,
	}, mode)
	if err != nil {
		return fail(fmt.Errorf("load inputs: %w", err))
	}
	logger.Info("inputs loaded",
		"wallets", len(targets.Wallets),
		"tokens", len(targets.Tokens),
		"spenders", len(targets.Spenders),
	)

	inPlace := progress.IsTerminal(stdout)
	engine := scheduler.NewEngine(newClient(cfg, logger), scheduler.Config{
		Mode:      mode,
		BatchSize: cfg.Audit.BatchSize,
		FromBlock: cfg.Audit.FromBlock,
		ToBlock:   cfg.Audit.ToBlock,
	}, func(total int) scheduler.Progress {
		return progress.New(stdout, total, progress.Options{
			Throttle: cfg.Audit.ProgressThrottle,
			Tick:     cfg.Audit.ProgressTick,
			InPlace:  inPlace,
		})
	}, logger)

	outcome, err := engine.Run(ctx, targets)
	if err != nil {
		return fail(err)
	}

	agg := report.NewAggregator()
	agg.AddAll(outcome.Records)
	records := agg.Records()
	if outcome.DegradedTokens > 0 || agg.Duplicates() > 0 {
		logger.Warn("audit results need attention",
			"degraded_tokens", outcome.DegradedTokens,
			"duplicate_records", agg.Duplicates(),
		)
	}
	summary := report.Summarize(records)

	shown := report.SelectForDisplay(records, cfg.Audit.DisplayLimit)
	if _, err := fmt.Fprintln(stdout); err != nil {
		return err
	}
	if err := report.Render(stdout, shown, len(records), summary, report.RenderOptions{Color: inPlace}); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if cfg.Output.File != "" {
		if err := export.WriteFile(cfg.Output.File, records); err != nil {
			return fail(err)
		}
		logger.Info("results exported", "path", cfg.Output.File, "records", len(records))
	}

	if a, ok := alert.ExposureAlert(runID, alert.Findings{
		Records:           summary.Records,
		InfiniteApprovals: summary.InfiniteApprovals,
		KnownValueUSD:     summary.TotalValueUSD,
		UnknownValue:      summary.UnknownValueCount(),
		FailedItems:       outcome.Failed,
	}, cfg.Alert.USDThreshold); ok {
		notify(ctx, alerter, a, logger)
	}

	if outcome.Canceled {
		logger.Warn("audit interrupted; results are partial", "records", len(records))
	}
	return nil
}

// buildAlerter returns nil when no channel is configured.
func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) == 0 {
		return nil
	}
	return alert.NewMultiAlerter(alertCooldown, logger, channels...)
}

// notify sends a, detached from ctx so an interrupted run still reports.
// Failures are logged and never change the run's result.
func notify(ctx context.Context, alerter alert.Alerter, a alert.Alert, logger *slog.Logger) {
	if alerter == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := alerter.Send(sendCtx, a); err != nil {
		logger.Warn("failed to send alert", "type", a.Type, "error", err)
	}
}

func runMetricsServer(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("metrics server started", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
