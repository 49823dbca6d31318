package warehouse

import (
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/crimson-sun/vidstat/internal/model"
)

// DefaultPartition is the partition value for facts without a usable date.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// BuildDimMedia shapes media snapshots into one row per media id.
func BuildDimMedia(records []model.Item) []MediaRow {
	rows := make([]MediaRow, 0, len(records))
	for _, rec := range records {
		f := gjson.GetManyBytes(rec, "hashed_id", "name", "url", "created_at")
		rows = append(rows, MediaRow{
			MediaID:   f[0].String(),
			Title:     f[1].String(),
			URL:       f[2].String(),
			CreatedAt: f[3].String(),
		})
	}
	return dedupBy(rows, func(r MediaRow) string { return r.MediaID })
}

// BuildDimVisitor shapes visitor records into one row per visitor id. The
// id comes from "id", or "visitor_key" when "id" is absent.
func BuildDimVisitor(records []model.Item) []VisitorRow {
	rows := make([]VisitorRow, 0, len(records))
	for _, rec := range records {
		f := gjson.GetManyBytes(rec, "id", "visitor_key", "ip_address", "country", "created_at")
		id := f[0].String()
		if id == "" {
			id = f[1].String()
		}
		rows = append(rows, VisitorRow{
			VisitorID: id,
			IPAddress: f[2].String(),
			Country:   f[3].String(),
			CreatedAt: f[4].String(),
		})
	}
	return dedupBy(rows, func(r VisitorRow) string { return r.VisitorID })
}

// BuildFacts shapes event records into engagement facts grouped by date.
// Facts are not deduplicated.
func BuildFacts(records []model.Item) map[string][]FactRow {
	out := make(map[string][]FactRow)
	for _, rec := range records {
		f := gjson.GetManyBytes(rec, "media_id", "visitor_id", "created_at", "percent_viewed", "durations", "action")
		row := FactRow{
			MediaID:        f[0].String(),
			VisitorID:      f[1].String(),
			Date:           dateOf(f[2].String()),
			WatchedPercent: number(f[3]),
			WatchTime:      number(f[4]),
			Action:         f[5].String(),
		}
		out[row.Date] = append(out[row.Date], row)
	}
	return out
}

// number returns nil for a missing or null field, so the column is null
// rather than zero.
func number(r gjson.Result) *float64 {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	v := r.Float()
	return &v
}

// Dates returns the partition values of facts in ascending order.
func Dates(facts map[string][]FactRow) []string {
	dates := make([]string, 0, len(facts))
	for d := range facts {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// dateOf returns the UTC calendar date of an RFC 3339 timestamp or of a
// bare YYYY-MM-DD value.
func dateOf(ts string) string {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.UTC().Format(time.DateOnly)
	}
	if len(ts) >= 10 {
		if t, err := time.Parse(time.DateOnly, ts[:10]); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return DefaultPartition
}
