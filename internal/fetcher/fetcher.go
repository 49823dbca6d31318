// Package fetcher ingests stats API entities into a raw sink.
//
// Incremental entities are paginated and filtered against a per-entity
// watermark; snapshot entities are fetched whole for a fixed list of ids.
// Raw blobs are always written before the watermark advances, so a crash
// between the two can only cause re-delivery on the next run, never a gap.
package fetcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"path"
	"time"

	"github.com/coder/quartz"
	"github.com/dustin/go-humanize"

	"github.com/crimson-sun/vidstat/internal/metrics"
	"github.com/crimson-sun/vidstat/internal/model"
	"github.com/crimson-sun/vidstat/internal/sink"
)

// DefaultRawPrefix is the key prefix of raw blobs.
const DefaultRawPrefix = "raw/wistia"

// Option configures both fetchers.
type Option func(*common)

// WithRawPrefix sets the key prefix of raw blobs. Default: raw/wistia.
func WithRawPrefix(p string) Option {
	return func(c *common) { c.rawPrefix = p }
}

// WithClock sets the clock used for write-time keys.
func WithClock(clk quartz.Clock) Option {
	return func(c *common) { c.clock = clk }
}

// WithMetrics records counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *common) { c.metrics = m }
}

type common struct {
	sink      sink.Sink
	rawPrefix string
	clock     quartz.Clock
	metrics   *metrics.Metrics
	lastWrite time.Time
}

func newCommon(s sink.Sink, opts []Option) common {
	c := common{
		sink:      s,
		rawPrefix: DefaultRawPrefix,
		clock:     quartz.NewReal(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// writeTime returns the current time, nudged forward so that two writes of
// the same fetcher never share a key.
func (c *common) writeTime() string {
	now := c.clock.Now().UTC()
	if !now.After(c.lastWrite) {
		now = c.lastWrite.Add(time.Nanosecond)
	}
	c.lastWrite = now
	return model.FormatKeyTime(now)
}

func (c *common) put(ctx context.Context, entity, key string, data []byte) error {
	if err := c.sink.Put(ctx, key, data); err != nil {
		return err
	}
	c.metrics.Blob(entity)
	slog.Info("raw blob written", "entity", entity, "key", key, "size", humanize.Bytes(uint64(len(data))))
	return nil
}

func (c *common) key(parts ...string) string {
	return path.Join(append([]string{c.rawPrefix}, parts...)...)
}

func marshalItems(items []model.Item) ([]byte, error) {
	return json.Marshal(items)
}
