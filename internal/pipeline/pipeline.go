// Package pipeline sequences one ingestion run: credential, media
// snapshots, then each incremental entity in turn.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coder/quartz"

	"github.com/crimson-sun/vidstat/internal/connector"
	"github.com/crimson-sun/vidstat/internal/connector/paginator"
	"github.com/crimson-sun/vidstat/internal/fetcher"
	"github.com/crimson-sun/vidstat/internal/metrics"
	"github.com/crimson-sun/vidstat/internal/model"
	"github.com/crimson-sun/vidstat/internal/secret"
	"github.com/crimson-sun/vidstat/internal/sink"
	"github.com/crimson-sun/vidstat/internal/watermark"
)

// ClientFactory builds an API client for a resolved token. Snapshot and
// incremental entities may get differently configured clients.
type ClientFactory func(token string, kind connector.Kind) paginator.Getter

// Deps are the long-lived handles a Pipeline needs.
type Deps struct {
	Secrets   secret.Provider
	Clients   ClientFactory
	Watermark watermark.Store
	Sink      sink.Sink
	Clock     quartz.Clock
	Metrics   *metrics.Metrics
}

// Options tune a run.
type Options struct {
	RawPrefix   string
	PerPage     int
	MediaIDs    []string
	Entities    []connector.Entity // incremental entities, in run order
	FailFast    bool
	StrictReads bool
}

// Pipeline connects the credential, fetchers, watermark store and sink.
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a Pipeline. Missing options take their defaults: raw prefix
// raw/wistia, 100 items per page, and the registered incremental entities.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = quartz.NewReal()
	}
	if opts.RawPrefix == "" {
		opts.RawPrefix = fetcher.DefaultRawPrefix
	}
	if opts.PerPage <= 0 {
		opts.PerPage = paginator.DefaultPerPage
	}
	if opts.Entities == nil {
		opts.Entities = connector.Entities(connector.Incremental)
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Run performs one ingestion. Every write of the run shares one run
// timestamp. A failing entity is recorded on the result and, unless
// FailFast is set, the remaining entities still run. The returned error
// joins every entity error unchanged; it is nil only when Status is
// SUCCESS.
func (p *Pipeline) Run(ctx context.Context) (model.Result, error) {
	run := model.NewRun(p.deps.Clock.Now())
	result := model.Result{Timestamp: run.Timestamp, RunID: run.ID.String()}
	log := slog.With("run_id", result.RunID)
	log.Info("run started", "timestamp", run.Timestamp)

	token, err := p.deps.Secrets.Token(ctx)
	if err != nil {
		result.Status = model.StatusFailed
		p.deps.Metrics.RunFinished(false)
		log.Error("credential unavailable", "error", err)
		return result, err
	}

	common := []fetcher.Option{
		fetcher.WithRawPrefix(p.opts.RawPrefix),
		fetcher.WithClock(p.deps.Clock),
		fetcher.WithMetrics(p.deps.Metrics),
	}

	var errs []error
	failed := func() bool { return p.opts.FailFast && len(errs) > 0 }

	if len(p.opts.MediaIDs) > 0 {
		snap := fetcher.NewSnapshot(p.deps.Clients(token, connector.Snapshot), p.deps.Sink,
			connector.Media, p.opts.MediaIDs, common...)
		for _, id := range snap.IDs() {
			if failed() {
				log.Warn("skipping media id after earlier failure", "id", id)
				continue
			}
			res := snap.FetchID(ctx, id, run)
			if res.Err != nil {
				errs = append(errs, res.Err)
			}
			result.Entities = append(result.Entities, res)
		}
	}

	inc := fetcher.NewIncremental(p.deps.Clients(token, connector.Incremental), p.deps.Watermark, p.deps.Sink,
		fetcher.WithPerPage(p.opts.PerPage),
		fetcher.WithStrictWatermarkReads(p.opts.StrictReads),
		fetcher.WithCommon(common...),
	)
	for _, entity := range p.opts.Entities {
		if failed() {
			log.Warn("skipping entity after earlier failure", "entity", entity.Name)
			continue
		}
		res, err := inc.Fetch(ctx, entity, run)
		if err != nil {
			log.Error("entity failed", "entity", entity.Name, "error", err)
			errs = append(errs, err)
		}
		result.Entities = append(result.Entities, res)
	}

	result.Status = status(result.Entities, len(errs))
	p.deps.Metrics.RunFinished(len(errs) == 0)
	log.Info("run finished", "status", result.Status, "entities", len(result.Entities), "failures", len(errs))
	return result, errors.Join(errs...)
}

func status(results []model.EntityResult, failures int) string {
	switch {
	case failures == 0:
		return model.StatusSuccess
	case failures >= len(results):
		return model.StatusFailed
	default:
		return model.StatusPartialFailure
	}
}
