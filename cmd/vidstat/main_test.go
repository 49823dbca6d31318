package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/vidstat/internal/watermark"
)

// localEnv points every backend at a temp dir and returns the watermark
// file path.
func localEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("VIDSTAT_STORAGE", "file")
	t.Setenv("VIDSTAT_LOCAL_DIR", filepath.Join(dir, "lake"))
	t.Setenv("VIDSTAT_WATERMARK_BACKEND", "file")
	t.Setenv("VIDSTAT_WATERMARK_FILE", filepath.Join(dir, "wm.json"))
	t.Setenv("VIDSTAT_SECRET_PROVIDER", "env")
	t.Setenv("WISTIA_API_TOKEN", "tok")
	return filepath.Join(dir, "wm.json")
}

func TestRun_Usage(t *testing.T) {
	localEnv(t)
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "usage: vidstat") {
		t.Errorf("missing usage text: %q", stderr.String())
	}
	if code := run([]string{"bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRun_WatermarkGet(t *testing.T) {
	wmFile := localEnv(t)
	require.NoError(t, watermark.NewFile(wmFile).Set(context.Background(), "events", "2024-01-01T00:00:00Z"))

	var stdout, stderr bytes.Buffer
	if code := run([]string{"watermark", "get", "events"}, &stdout, &stderr); code != 0 {
		t.Fatalf("get exit code = %d: %s", code, stderr.String())
	}
	var got struct {
		Watermark string `json:"watermark"`
		Found     bool   `json:"found"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", stdout.String(), err)
	}
	if !got.Found || got.Watermark != "2024-01-01T00:00:00Z" {
		t.Errorf("got %+v", got)
	}
}

func TestRun_WatermarkIsReadOnly(t *testing.T) {
	wmFile := localEnv(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"watermark", "set", "events", "2030-01-01T00:00:00Z"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	_, found, err := watermark.NewFile(wmFile).Get(context.Background(), "events")
	require.NoError(t, err)
	require.False(t, found, "only ingestion moves a watermark")
}

func TestRun_InvalidConfig(t *testing.T) {
	localEnv(t)
	t.Setenv("VIDSTAT_STORAGE", "ftp")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"transform"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
