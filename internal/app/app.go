// Package app builds every long-lived handle from configuration once and
// hands them to the pipeline and the warehouse transform.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/coder/quartz"
	"github.com/spf13/afero"

	"github.com/crimson-sun/vidstat/internal/config"
	"github.com/crimson-sun/vidstat/internal/connector"
	"github.com/crimson-sun/vidstat/internal/connector/httpclient"
	"github.com/crimson-sun/vidstat/internal/connector/paginator"
	"github.com/crimson-sun/vidstat/internal/metrics"
	"github.com/crimson-sun/vidstat/internal/model"
	"github.com/crimson-sun/vidstat/internal/notify"
	"github.com/crimson-sun/vidstat/internal/pipeline"
	"github.com/crimson-sun/vidstat/internal/secret"
	"github.com/crimson-sun/vidstat/internal/sink"
	"github.com/crimson-sun/vidstat/internal/warehouse"
	"github.com/crimson-sun/vidstat/internal/watermark"
)

// App holds the handles shared by every command.
type App struct {
	Config    config.Config
	Store     sink.Store
	Watermark watermark.Store
	Secrets   secret.Provider
	Metrics   *metrics.Metrics
	Notifier  *notify.Webhook // nil when no notify URL is configured
	Clock     quartz.Clock
}

// New validates cfg and builds the configured backends. AWS configuration
// is only loaded when a backend needs it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
	}

	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Clock:   quartz.NewReal(),
	}

	if cfg.Metrics.NotifyURL != "" {
		a.Notifier = notify.New(cfg.Metrics.NotifyURL)
	}

	switch cfg.Storage.Backend {
	case "s3":
		a.Store = sink.NewS3(s3.NewFromConfig(awsCfg), cfg.Storage.Bucket, "")
	case "file":
		a.Store = sink.NewFile(afero.NewOsFs(), cfg.Storage.LocalDir)
	}
	if cfg.Storage.MirrorDir != "" {
		a.Store = sink.NewMirror(a.Store, sink.NewFile(afero.NewOsFs(), cfg.Storage.MirrorDir))
	}

	switch cfg.Watermark.Backend {
	case "dynamodb":
		a.Watermark = watermark.NewDynamoDB(dynamodb.NewFromConfig(awsCfg), cfg.Watermark.Table)
	case "file":
		a.Watermark = watermark.NewFile(cfg.Watermark.File)
	}

	switch cfg.Secret.Provider {
	case "secretsmanager":
		a.Secrets = secret.NewSecretsManager(secretsmanager.NewFromConfig(awsCfg), cfg.Secret.Name)
	case "env":
		a.Secrets = secret.Static{Name: secret.TokenField, Value: cfg.Secret.Token}
	}

	slog.Debug("app configured",
		"storage", cfg.Storage.Backend,
		"watermark", cfg.Watermark.Backend,
		"secret", cfg.Secret.Provider,
	)
	return a, nil
}

// Clients builds the API client for token. Snapshot calls use the snapshot
// timeout, which is unbounded unless configured.
func (a *App) Clients(token string, kind connector.Kind) paginator.Getter {
	timeout := a.Config.API.Timeout
	if kind == connector.Snapshot {
		timeout = a.Config.API.SnapshotTimeout
	}
	return httpclient.New(a.Config.API.BaseURL, token,
		httpclient.WithTimeout(timeout),
		httpclient.WithRetries(a.Config.API.Retries),
	)
}

// Pipeline builds an ingestion pipeline. With no entity names, every
// registered incremental entity runs.
func (a *App) Pipeline(entities ...string) (*pipeline.Pipeline, error) {
	opts := pipeline.Options{
		RawPrefix:   a.Config.Storage.RawPrefix,
		PerPage:     a.Config.API.PerPage,
		MediaIDs:    a.Config.API.MediaIDs,
		FailFast:    a.Config.Pipeline.FailFast,
		StrictReads: a.Config.Watermark.StrictReads,
	}
	for _, name := range entities {
		e, err := connector.Get(name)
		if err != nil {
			return nil, err
		}
		if e.Kind != connector.Incremental {
			return nil, fmt.Errorf("entity %q is not incremental", name)
		}
		opts.Entities = append(opts.Entities, e)
	}
	return pipeline.New(pipeline.Deps{
		Secrets:   a.Secrets,
		Clients:   a.Clients,
		Watermark: a.Watermark,
		Sink:      a.Store,
		Clock:     a.Clock,
		Metrics:   a.Metrics,
	}, opts), nil
}

// Ingest runs one ingestion, then pushes metrics and posts the result when
// those endpoints are configured. A failed push or post is logged and does
// not change the result.
func (a *App) Ingest(ctx context.Context, entities ...string) (model.Result, error) {
	p, err := a.Pipeline(entities...)
	if err != nil {
		return model.Result{Status: model.StatusFailed}, err
	}
	result, runErr := p.Run(ctx)
	if err := a.Metrics.Push(ctx, a.Config.Metrics.PushgatewayURL, a.Config.Metrics.Job); err != nil {
		slog.Warn("metrics push failed", "error", err)
	}
	if err := a.Notifier.Notify(ctx, result); err != nil {
		slog.Warn("run notification failed", "error", err)
	}
	return result, runErr
}

// Transform rebuilds the warehouse tables from the raw blobs in Store.
func (a *App) Transform(ctx context.Context) (warehouse.Report, error) {
	return warehouse.New(a.Store, a.Store,
		warehouse.WithRawPrefix(a.Config.Storage.RawPrefix),
		warehouse.WithWarehousePrefix(a.Config.Warehouse.Prefix),
	).Run(ctx)
}
