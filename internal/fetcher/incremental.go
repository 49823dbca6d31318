package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crimson-sun/vidstat/internal/connector"
	"github.com/crimson-sun/vidstat/internal/connector/paginator"
	"github.com/crimson-sun/vidstat/internal/model"
	"github.com/crimson-sun/vidstat/internal/sink"
	"github.com/crimson-sun/vidstat/internal/watermark"
)

// Incremental ingests only records newer than an entity's watermark.
type Incremental struct {
	common
	client      paginator.Getter
	store       watermark.Store
	perPage     int
	strictReads bool
}

// IncrementalOption configures an Incremental fetcher.
type IncrementalOption func(*Incremental)

// WithPerPage sets the page size requested from the API.
func WithPerPage(n int) IncrementalOption {
	return func(f *Incremental) { f.perPage = n }
}

// WithStrictWatermarkReads makes a failed watermark read abort the entity
// instead of falling back to a full ingest.
func WithStrictWatermarkReads(strict bool) IncrementalOption {
	return func(f *Incremental) { f.strictReads = strict }
}

// WithCommon applies shared fetcher options.
func WithCommon(opts ...Option) IncrementalOption {
	return func(f *Incremental) {
		for _, opt := range opts {
			opt(&f.common)
		}
	}
}

// NewIncremental creates an Incremental fetcher.
func NewIncremental(client paginator.Getter, store watermark.Store, s sink.Sink, opts ...IncrementalOption) *Incremental {
	f := &Incremental{
		common:  newCommon(s, nil),
		client:  client,
		store:   store,
		perPage: paginator.DefaultPerPage,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch walks every page of entity, persists one blob per page holding the
// items newer than the stored watermark, and advances the watermark to the
// greatest timestamp retained. Items whose timestamp equals the watermark
// are skipped. The watermark is written only after the last page, and only
// if it moved.
func (f *Incremental) Fetch(ctx context.Context, entity connector.Entity, run model.Run) (model.EntityResult, error) {
	res := model.EntityResult{Entity: entity.Name}
	log := slog.With("entity", entity.Name, "run_id", run.ID.String())
	defer func() {
		if res.Err != nil {
			f.metrics.Failure(entity.Name)
		}
	}()

	wm, found, err := f.store.Get(ctx, entity.Name)
	if err != nil {
		readErr := &model.StoreReadError{Entity: entity.Name, Err: err}
		if f.strictReads {
			res.Fail(readErr)
			return res, readErr
		}
		log.Warn("watermark unreadable, ingesting from the beginning", "error", readErr)
		wm, found = "", false
	}
	if found {
		res.OldWatermark = wm
	}
	maxTS := wm

	pager := paginator.New(f.client, entity.Path, paginator.WithPerPage(f.perPage))
	for page, err := range pager.Pages(ctx) {
		if err != nil {
			res.Fail(err)
			return res, fmt.Errorf("%s page %d: %w", entity.Name, res.Pages+1, err)
		}
		res.Pages++
		f.metrics.Pages(entity.Name, 1)
		if !page.List {
			log.Warn("response is not a list, treating as final page", "page", page.Number)
		}

		var kept []model.Item
		for _, item := range page.Items {
			ts, ok := model.Timestamp(item)
			if ok && !model.ValidTimestamp(ts) {
				log.Warn("item timestamp is not RFC 3339 UTC, ordering may be wrong", "timestamp", ts)
			}
			if ok && !model.After(ts, wm) {
				res.Skipped++
				continue
			}
			kept = append(kept, item)
			if ok && model.After(ts, maxTS) {
				maxTS = ts
			}
		}
		f.metrics.Skipped(entity.Name, len(page.Items)-len(kept))

		if len(kept) == 0 {
			continue
		}
		data, err := marshalItems(kept)
		if err != nil {
			res.Fail(err)
			return res, fmt.Errorf("%s page %d: encode: %w", entity.Name, page.Number, err)
		}
		key := f.key(entity.Name, run.Date, f.writeTime()+".json")
		if err := f.put(ctx, entity.Name, key, data); err != nil {
			res.Fail(err)
			return res, fmt.Errorf("%s page %d: %w", entity.Name, page.Number, err)
		}
		res.Blobs++
		res.Retained += len(kept)
		f.metrics.Retained(entity.Name, len(kept))
	}

	if maxTS == "" || maxTS == wm {
		log.Info("no new items, watermark unchanged", "pages", res.Pages, "skipped", res.Skipped)
		return res, nil
	}
	if err := f.store.Set(ctx, entity.Name, maxTS); err != nil {
		err = fmt.Errorf("%s: advance watermark: %w", entity.Name, err)
		res.Fail(err)
		return res, err
	}
	res.NewWatermark = maxTS
	f.metrics.Advance(entity.Name)
	log.Info("entity ingested",
		"pages", res.Pages, "retained", res.Retained, "skipped", res.Skipped,
		"blobs", res.Blobs, "watermark", maxTS)
	return res, nil
}
