package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Item is one opaque record returned by the stats API.
type Item = json.RawMessage

// Page is the decoded result of one paged API call.
type Page struct {
	Number int
	Items  []Item
	Body   []byte // raw response body
	List   bool   // false when the body was valid JSON but not an array
}

// Timestamp returns the item's ordering timestamp: updated_at when present
// and non-empty, otherwise created_at. The second return is false when
// neither field carries a string.
func Timestamp(item Item) (string, bool) {
	res := gjson.GetManyBytes(item, "updated_at", "created_at")
	for _, r := range res {
		if r.Type == gjson.String && r.Str != "" {
			return r.Str, true
		}
	}
	return "", false
}

// ValidTimestamp reports whether ts can be ordered lexicographically against
// other timestamps: it must be RFC 3339 and expressed in UTC. Callers must
// additionally keep fractional-second precision consistent, which cannot be
// checked on a single value.
func ValidTimestamp(ts string) bool {
	if !strings.HasSuffix(ts, "Z") && !strings.HasSuffix(ts, "+00:00") {
		return false
	}
	_, err := time.Parse(time.RFC3339Nano, ts)
	return err == nil
}

// After reports whether ts sorts strictly after watermark. An empty
// watermark means no watermark, so everything is after it.
func After(ts, watermark string) bool {
	return watermark == "" || ts > watermark
}
