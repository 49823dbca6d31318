package model

import (
	"time"

	"github.com/google/uuid"
)

// Run is the context shared by every write of a single ingestion invocation.
type Run struct {
	ID        uuid.UUID
	Timestamp string // UTC, RFC 3339 with nanoseconds
	KeyTime   string // Timestamp in key layout, see FormatKeyTime
	Date      string // first 10 characters of Timestamp
}

// NewRun derives a Run from the given start time.
func NewRun(start time.Time) Run {
	ts := FormatTime(start)
	return Run{
		ID:        uuid.New(),
		Timestamp: ts,
		KeyTime:   FormatKeyTime(start),
		Date:      ts[:10],
	}
}

// KeyTimeLayout always prints nine fractional digits, so keys built from
// it sort in time order. RFC3339Nano drops trailing zeros and does not.
const KeyTimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t as reported to callers.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatKeyTime renders t for use in storage keys.
func FormatKeyTime(t time.Time) string {
	return t.UTC().Format(KeyTimeLayout)
}

// Watermark is the highest timestamp already ingested for an entity.
type Watermark struct {
	Entity    string
	Timestamp string
}

// Run status values reported to the invoker.
const (
	StatusSuccess        = "SUCCESS"
	StatusPartialFailure = "PARTIAL_FAILURE"
	StatusFailed         = "FAILED"
)

// EntityResult describes what one fetcher did for one entity or media id.
type EntityResult struct {
	Entity       string `json:"entity"`
	Key          string `json:"key,omitempty"` // media id for snapshot entities
	Pages        int    `json:"pages"`
	Retained     int    `json:"retained"`
	Skipped      int    `json:"skipped"`
	Blobs        int    `json:"blobs"`
	OldWatermark string `json:"old_watermark,omitempty"`
	NewWatermark string `json:"new_watermark,omitempty"`
	Err          error  `json:"-"`
	Error        string `json:"error,omitempty"`
}

// Fail records err on the result.
func (r *EntityResult) Fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// Result is returned by a run. Status and Timestamp form the invocation
// contract; Entities carries the per-entity detail.
type Result struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id,omitempty"`
	Entities  []EntityResult `json:"entities,omitempty"`
}
