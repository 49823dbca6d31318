package warehouse

// MediaRow is one row of dim_media.
type MediaRow struct {
	MediaID   string `parquet:"media_id"`
	Title     string `parquet:"title,optional"`
	URL       string `parquet:"url,optional"`
	CreatedAt string `parquet:"created_at,optional"`
}

// VisitorRow is one row of dim_visitor.
type VisitorRow struct {
	VisitorID string `parquet:"visitor_id"`
	IPAddress string `parquet:"ip_address,optional"`
	Country   string `parquet:"country,optional"`
	CreatedAt string `parquet:"created_at,optional"`
}

// FactRow is one row of fact_media_engagement. Date is the partition
// value and is encoded in the file path, not in the file.
type FactRow struct {
	MediaID        string   `parquet:"media_id,optional"`
	VisitorID      string   `parquet:"visitor_id,optional"`
	Date           string   `parquet:"-"`
	WatchedPercent *float64 `parquet:"watched_percent,optional"` // nil when absent upstream
	WatchTime      *float64 `parquet:"watch_time,optional"`
	Action         string   `parquet:"action,optional"`
}
