// Package sink persists raw payloads and warehouse files under hierarchical
// keys, and lists them back for the warehouse transform.
package sink

import (
	"context"
	"path"
	"sort"
	"strings"
)

// Sink durably persists a blob under key, replacing any previous blob.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Reader lists and reads blobs. Get of a missing key returns an error
// wrapping fs.ErrNotExist.
type Reader interface {
	// List returns every key beginning with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Store is a Sink that can also be read back.
type Store interface {
	Sink
	Reader
}

// Glob returns the keys of r matching pattern, where pattern uses path.Match
// syntax and '*' never crosses a '/'. Only the part of the key space below
// the first wildcard segment is listed.
func Glob(ctx context.Context, r Reader, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	keys, err := r.List(ctx, literalPrefix(pattern))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func literalPrefix(pattern string) string {
	segs := strings.Split(pattern, "/")
	var lit []string
	for _, s := range segs {
		if strings.ContainsAny(s, `*?[\`) {
			break
		}
		lit = append(lit, s)
	}
	if len(lit) == 0 {
		return ""
	}
	if len(lit) == len(segs) {
		return pattern
	}
	return strings.Join(lit, "/") + "/"
}

var contentTypes = map[string]string{
	".json":    "application/json",
	".parquet": "application/vnd.apache.parquet",
}

// ContentType returns the MIME type stored alongside key.
func ContentType(key string) string {
	if ct, ok := contentTypes[path.Ext(key)]; ok {
		return ct
	}
	return "application/octet-stream"
}
