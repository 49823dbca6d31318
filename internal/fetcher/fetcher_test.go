package fetcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/vidstat/internal/connector"
	"github.com/crimson-sun/vidstat/internal/fetcher"
	"github.com/crimson-sun/vidstat/internal/metrics"
	"github.com/crimson-sun/vidstat/internal/model"
	"github.com/crimson-sun/vidstat/internal/sink"
	"github.com/crimson-sun/vidstat/internal/watermark"
)

// fakeAPI serves pages per path. failPage makes that page number return a
// transport error.
type fakeAPI struct {
	pages    map[string][]string
	bodies   map[string]string
	failPage int
	failPath string
	calls    []string
}

func (f *fakeAPI) GetRaw(_ context.Context, p string, q url.Values) ([]byte, error) {
	f.calls = append(f.calls, p+"?"+q.Encode())
	if f.failPath == p {
		return nil, &model.TransportError{URL: p, StatusCode: 404, Body: "not found"}
	}
	if body, ok := f.bodies[p]; ok {
		return []byte(body), nil
	}
	n, _ := strconv.Atoi(q.Get("page"))
	if n == f.failPage {
		return nil, &model.TransportError{URL: p, StatusCode: 502}
	}
	pages := f.pages[p]
	if n-1 < len(pages) {
		return []byte(pages[n-1]), nil
	}
	return []byte(`[]`), nil
}

func events(ts ...string) string {
	items := make([]string, len(ts))
	for i, t := range ts {
		items[i] = fmt.Sprintf(`{"id":%d,"updated_at":%q}`, i, t)
	}
	return "[" + strings.Join(items, ",") + "]"
}

type fixture struct {
	api   *fakeAPI
	store *watermark.Memory
	sink  *sink.Memory
	clock *quartz.Mock
	m     *metrics.Metrics
	run   model.Run
}

func newFixture(t *testing.T, pages ...string) *fixture {
	clk := quartz.NewMock(t)
	clk.Set(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{
		api:   &fakeAPI{pages: map[string][]string{connector.Events.Path: pages}},
		store: watermark.NewMemory(),
		sink:  sink.NewMemory(),
		clock: clk,
		m:     metrics.New(),
		run:   model.NewRun(clk.Now()),
	}
}

func (fx *fixture) incremental(opts ...fetcher.IncrementalOption) *fetcher.Incremental {
	opts = append([]fetcher.IncrementalOption{
		fetcher.WithPerPage(3),
		fetcher.WithCommon(fetcher.WithClock(fx.clock), fetcher.WithMetrics(fx.m)),
	}, opts...)
	return fetcher.NewIncremental(fx.api, fx.store, fx.sink, opts...)
}

func (fx *fixture) retainedIDs(t *testing.T) int {
	t.Helper()
	total := 0
	keys, err := fx.sink.List(context.Background(), "raw/wistia/events/")
	require.NoError(t, err)
	for _, k := range keys {
		data, err := fx.sink.Get(context.Background(), k)
		require.NoError(t, err)
		var items []json.RawMessage
		require.NoError(t, json.Unmarshal(data, &items))
		total += len(items)
	}
	return total
}

func TestIncremental_NoWatermarkRetainsEverything(t *testing.T) {
	fx := newFixture(t,
		events("2024-01-01T00:00:00Z", "2024-01-03T00:00:00Z", "2024-01-02T00:00:00Z"),
		events("2024-01-05T00:00:00Z", "2024-01-04T00:00:00Z"),
	)
	res, err := fx.incremental().Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 2, res.Pages)
	require.Equal(t, 5, res.Retained)
	require.Equal(t, 0, res.Skipped)
	require.Equal(t, 2, res.Blobs)
	require.Equal(t, 5, fx.retainedIDs(t))

	wm, found, _ := fx.store.Get(context.Background(), "events")
	require.True(t, found)
	require.Equal(t, "2024-01-05T00:00:00Z", wm)
	require.Equal(t, "2024-01-05T00:00:00Z", res.NewWatermark)
}

func TestIncremental_FiltersAgainstWatermark(t *testing.T) {
	fx := newFixture(t,
		events("2024-01-01T00:00:00Z", "2024-01-03T00:00:00Z", "2024-01-02T00:00:00Z"),
		events("2024-01-04T00:00:00Z"),
	)
	require.NoError(t, fx.store.Set(context.Background(), "events", "2024-01-02T00:00:00Z"))

	res, err := fx.incremental().Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 2, res.Retained)
	require.Equal(t, 2, res.Skipped)
	require.Equal(t, "2024-01-02T00:00:00Z", res.OldWatermark)

	wm, _, _ := fx.store.Get(context.Background(), "events")
	require.Equal(t, "2024-01-04T00:00:00Z", wm)
}

func TestIncremental_NothingNewKeepsWatermark(t *testing.T) {
	fx := newFixture(t, events("2024-01-01T00:00:00Z"))
	require.NoError(t, fx.store.Set(context.Background(), "events", "2024-02-01T00:00:00Z"))

	res, err := fx.incremental().Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 0, res.Retained)
	require.Equal(t, 0, res.Blobs)
	require.Empty(t, res.NewWatermark)
	require.Empty(t, fx.sink.Puts())

	wm, _, _ := fx.store.Get(context.Background(), "events")
	require.Equal(t, "2024-02-01T00:00:00Z", wm)
}

func TestIncremental_SecondRunIsEmpty(t *testing.T) {
	fx := newFixture(t,
		events("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z"),
		events("2024-01-04T00:00:00Z"),
	)
	f := fx.incremental()
	first, err := f.Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 4, first.Retained)

	second, err := f.Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 0, second.Retained)
	require.Equal(t, 4, second.Skipped)
	require.Empty(t, second.NewWatermark)

	wm, _, _ := fx.store.Get(context.Background(), "events")
	require.Equal(t, "2024-01-04T00:00:00Z", wm)
	require.Len(t, fx.sink.Puts(), 2)
}

func TestIncremental_BoundaryIsExclusive(t *testing.T) {
	fx := newFixture(t, events("2024-01-01T00:00:00Z"))
	require.NoError(t, fx.store.Set(context.Background(), "events", "2024-01-01T00:00:00Z"))

	res, err := fx.incremental().Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 0, res.Retained)
	require.Equal(t, 1, res.Skipped)
}

func TestIncremental_CreatedAtFallbackAndMissingTimestamps(t *testing.T) {
	page := `[
		{"id":1,"created_at":"2024-01-05T00:00:00Z"},
		{"id":2},
		{"id":3,"updated_at":"05/01/2024"},
		{"id":4,"created_at":"2023-01-01T00:00:00Z"}
	]`
	fx := newFixture(t, page)
	require.NoError(t, fx.store.Set(context.Background(), "events", "2024-01-01T00:00:00Z"))

	res, err := fx.incremental(fetcher.WithPerPage(10)).Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	// id 1 is newer and id 2 has no timestamp, so both are kept. ids 3 and
	// 4 sort at or below the watermark.
	require.Equal(t, 2, res.Retained)
	require.Equal(t, 2, res.Skipped)

	wm, _, _ := fx.store.Get(context.Background(), "events")
	require.Equal(t, "2024-01-05T00:00:00Z", wm)
}

func TestIncremental_NonUTCTimestampsAreFiltered(t *testing.T) {
	fx := newFixture(t, `[
		{"id":1,"updated_at":"2024-01-01T00:00:00-05:00"},
		{"id":2,"updated_at":"2024-01-01 00:00:00"},
		{"id":3,"updated_at":"2024-07-01T00:00:00Z"}
	]`)
	require.NoError(t, fx.store.Set(context.Background(), "events", "2024-06-01T00:00:00Z"))
	f := fx.incremental(fetcher.WithPerPage(10))

	first, err := f.Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 1, first.Retained)
	require.Equal(t, 2, first.Skipped)

	for run := 2; run <= 3; run++ {
		fx.clock.Advance(time.Minute)
		res, err := f.Fetch(context.Background(), connector.Events, fx.run)
		require.NoError(t, err)
		require.Equal(t, 0, res.Retained, "run %d", run)
		require.Equal(t, 3, res.Skipped, "run %d", run)
	}
	require.Len(t, fx.sink.Puts(), 1)
	require.Equal(t, 1, fx.retainedIDs(t))
}

func TestIncremental_NonUTCTimestampAdvancesWatermark(t *testing.T) {
	fx := newFixture(t, `[{"id":1,"updated_at":"2024-07-01 10:00:00"}]`)
	require.NoError(t, fx.store.Set(context.Background(), "events", "2024-06-01T00:00:00Z"))
	f := fx.incremental(fetcher.WithPerPage(10))

	res, err := f.Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 1, res.Retained)
	require.Equal(t, "2024-07-01 10:00:00", res.NewWatermark)

	res, err = f.Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 0, res.Retained, "the same item is not persisted twice")
}

func TestIncremental_FailureMidPaginationKeepsWatermark(t *testing.T) {
	fx := newFixture(t,
		events("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z"),
		events("2024-01-04T00:00:00Z", "2024-01-05T00:00:00Z", "2024-01-06T00:00:00Z"),
		events("2024-01-07T00:00:00Z"),
	)
	fx.api.failPage = 2
	require.NoError(t, fx.store.Set(context.Background(), "events", "2023-12-31T00:00:00Z"))

	res, err := fx.incremental().Fetch(context.Background(), connector.Events, fx.run)
	var te *model.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, 502, te.StatusCode)
	require.Equal(t, 1, res.Blobs, "page 1 blob stays in place")
	require.Error(t, res.Err)

	wm, _, _ := fx.store.Get(context.Background(), "events")
	require.Equal(t, "2023-12-31T00:00:00Z", wm)

	// Retry after the upstream recovers: page 1 is re-delivered.
	fx.api.failPage = 0
	fx.clock.Advance(time.Minute)
	res, err = fx.incremental().Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 7, res.Retained)
	require.Equal(t, 10, fx.retainedIDs(t))
}

type brokenStore struct{ watermark.Store }

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("throttled")
}

func TestIncremental_StoreReadFailure(t *testing.T) {
	t.Run("lenient", func(t *testing.T) {
		fx := newFixture(t, events("2024-01-01T00:00:00Z"))
		f := fetcher.NewIncremental(fx.api, brokenStore{fx.store}, fx.sink, fetcher.WithPerPage(3))
		res, err := f.Fetch(context.Background(), connector.Events, fx.run)
		require.NoError(t, err)
		require.Equal(t, 1, res.Retained)
		wm, _, _ := fx.store.Get(context.Background(), "events")
		require.Equal(t, "2024-01-01T00:00:00Z", wm)
	})
	t.Run("strict", func(t *testing.T) {
		fx := newFixture(t, events("2024-01-01T00:00:00Z"))
		f := fetcher.NewIncremental(fx.api, brokenStore{fx.store}, fx.sink,
			fetcher.WithPerPage(3), fetcher.WithStrictWatermarkReads(true))
		_, err := f.Fetch(context.Background(), connector.Events, fx.run)
		var sre *model.StoreReadError
		require.True(t, errors.As(err, &sre))
		require.Equal(t, "events", sre.Entity)
		require.Empty(t, fx.api.calls, "no API call after a strict read failure")
	})
}

func TestIncremental_KeyLayout(t *testing.T) {
	fx := newFixture(t,
		events("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z", "2024-01-03T00:00:00Z"),
		events("2024-01-04T00:00:00Z"),
	)
	_, err := fx.incremental(fetcher.WithCommon(fetcher.WithRawPrefix("raw/test"))).
		Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, []string{
		"raw/test/events/2024-06-01/2024-06-01T12:00:00.000000000Z.json",
		"raw/test/events/2024-06-01/2024-06-01T12:00:00.000000001Z.json",
	}, fx.sink.Puts())
	require.True(t, sort.StringsAreSorted(fx.sink.Puts()), "keys sort in write order")
}

func TestIncremental_NonListPage(t *testing.T) {
	fx := newFixture(t, `{"error":"maintenance"}`)
	res, err := fx.incremental().Fetch(context.Background(), connector.Events, fx.run)
	require.NoError(t, err)
	require.Equal(t, 1, res.Pages)
	require.Equal(t, 0, res.Retained)
	require.Empty(t, fx.sink.Puts())
}

func TestSnapshot(t *testing.T) {
	fx := newFixture(t)
	fx.api.bodies = map[string]string{
		"/v1/stats/medias/aaa.json": `{"hashed_id":"aaa","play_count":3}`,
		"/v1/stats/medias/ccc.json": `{"hashed_id":"ccc","play_count":9}`,
	}
	fx.api.failPath = "/v1/stats/medias/bbb.json"

	s := fetcher.NewSnapshot(fx.api, fx.sink, connector.Media, []string{"aaa", "bbb", "ccc"},
		fetcher.WithClock(fx.clock), fetcher.WithMetrics(fx.m))
	results := s.Fetch(context.Background(), fx.run)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)

	var te *model.TransportError
	require.True(t, errors.As(results[1].Err, &te))

	key := "raw/wistia/media/ccc/2024-06-01T12:00:00.000000000Z.json"
	data, err := fx.sink.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, `{"hashed_id":"ccc","play_count":9}`, string(data), "body is stored verbatim")
	require.Len(t, fx.sink.Puts(), 2)
}

func TestSnapshot_CancelledContext(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := fetcher.NewSnapshot(fx.api, fx.sink, connector.Media, []string{"aaa"})
	results := s.Fetch(ctx, fx.run)
	require.ErrorIs(t, results[0].Err, context.Canceled)
	require.Empty(t, fx.api.calls)
}
