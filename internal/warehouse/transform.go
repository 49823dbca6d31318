// Package warehouse reshapes raw snapshot blobs into dimension and fact
// tables stored as Parquet.
package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/vidstat/internal/model"
	"github.com/crimson-sun/vidstat/internal/sink"
)

// Table names under the warehouse prefix.
const (
	TableDimMedia   = "dim_media"
	TableDimVisitor = "dim_visitor"
	TableFact       = "fact_media_engagement"

	dimPart = "part-00000.parquet"
)

// Report summarizes one transform run.
type Report struct {
	RunID        string         `json:"run_id"`
	MediaRows    int            `json:"media_rows"`
	VisitorRows  int            `json:"visitor_rows"`
	FactRows     int            `json:"fact_rows"`
	FactsPerDate map[string]int `json:"facts_per_date"`
	Files        []string       `json:"files"`
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithRawPrefix sets where raw blobs are read from. Default: raw/wistia.
func WithRawPrefix(p string) Option {
	return func(t *Transformer) { t.rawPrefix = p }
}

// WithWarehousePrefix sets where tables are written. Default: dwh/wistia.
func WithWarehousePrefix(p string) Option {
	return func(t *Transformer) { t.dwhPrefix = p }
}

// Transformer reads raw blobs and writes warehouse tables.
type Transformer struct {
	raw       sink.Reader
	out       sink.Sink
	rawPrefix string
	dwhPrefix string
}

// New creates a Transformer reading from raw and writing to out.
func New(raw sink.Reader, out sink.Sink, opts ...Option) *Transformer {
	t := &Transformer{
		raw:       raw,
		out:       out,
		rawPrefix: "raw/wistia",
		dwhPrefix: "dwh/wistia",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run rebuilds dim_media and dim_visitor in full and appends one new fact
// file per date partition. Running it twice over the same raw data appends
// the same facts twice.
func (t *Transformer) Run(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString(), FactsPerDate: map[string]int{}}

	var media, events, visitors []model.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		media, err = t.load(gctx, "media/*/*.json")
		return err
	})
	g.Go(func() (err error) {
		events, err = t.load(gctx, "events/*/*.json")
		return err
	})
	g.Go(func() (err error) {
		visitors, err = t.load(gctx, "visitors/*/*.json")
		return err
	})
	if err := g.Wait(); err != nil {
		return rep, err
	}

	dimMedia := BuildDimMedia(media)
	key := path.Join(t.dwhPrefix, TableDimMedia, dimPart)
	if err := writeTable(ctx, t.out, key, dimMedia); err != nil {
		return rep, err
	}
	rep.MediaRows = len(dimMedia)
	rep.Files = append(rep.Files, key)

	dimVisitor := BuildDimVisitor(visitors)
	key = path.Join(t.dwhPrefix, TableDimVisitor, dimPart)
	if err := writeTable(ctx, t.out, key, dimVisitor); err != nil {
		return rep, err
	}
	rep.VisitorRows = len(dimVisitor)
	rep.Files = append(rep.Files, key)

	facts := BuildFacts(events)
	for _, date := range Dates(facts) {
		rows := facts[date]
		key := path.Join(t.dwhPrefix, TableFact, "date="+date, "part-"+rep.RunID+".parquet")
		if err := writeTable(ctx, t.out, key, rows); err != nil {
			return rep, err
		}
		rep.FactRows += len(rows)
		rep.FactsPerDate[date] = len(rows)
		rep.Files = append(rep.Files, key)
	}

	slog.Info("warehouse transform finished", "run_id", rep.RunID,
		"media", rep.MediaRows, "visitors", rep.VisitorRows, "facts", rep.FactRows, "files", len(rep.Files))
	return rep, nil
}

// load reads every blob matching pattern below the raw prefix and returns
// its records: each element of an array blob, or the blob itself.
func (t *Transformer) load(ctx context.Context, pattern string) ([]model.Item, error) {
	keys, err := sink.Glob(ctx, t.raw, path.Join(t.rawPrefix, pattern))
	if err != nil {
		return nil, fmt.Errorf("warehouse: list %s: %w", pattern, err)
	}
	var records []model.Item
	for _, key := range keys {
		data, err := t.raw.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("warehouse: %w", err)
		}
		recs, err := splitRecords(data)
		if err != nil {
			slog.Warn("skipping unreadable raw blob", "key", key, "error", err)
			continue
		}
		records = append(records, recs...)
	}
	slog.Debug("raw blobs loaded", "pattern", pattern, "blobs", len(keys), "records", len(records))
	return records, nil
}

func splitRecords(data []byte) ([]model.Item, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		out := make([]model.Item, 0, len(items))
		for _, it := range items {
			if bytes.HasPrefix(bytes.TrimSpace(it), []byte("{")) {
				out = append(out, model.Item(it))
			}
		}
		return out, nil
	}
	if !json.Valid(data) || len(data) == 0 || data[0] != '{' {
		return nil, errors.New("not a JSON object or array")
	}
	return []model.Item{model.Item(data)}, nil
}

func writeTable[T any](ctx context.Context, out sink.Sink, key string, rows []T) error {
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return fmt.Errorf("warehouse: encode %s: %w", key, err)
	}
	if err := out.Put(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("warehouse: %w", err)
	}
	slog.Info("table file written", "key", key, "rows", len(rows), "size", humanize.Bytes(uint64(buf.Len())))
	return nil
}
