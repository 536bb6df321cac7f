package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"PipelineRunsTotal", PipelineRunsTotal},
		{"PipelineIsRunning", PipelineIsRunning},
		{"ScannerFilesTotal", ScannerFilesTotal},
		{"IndexerFilesTotal", IndexerFilesTotal},
		{"ConversionsTotal", ConversionsTotal},
		{"ConversionDuration", ConversionDuration},
		{"ToolInvocationsTotal", ToolInvocationsTotal},
		{"WorkerPoolTasksTotal", WorkerPoolTasksTotal},
		{"DBQueryTotal", DBQueryTotal},
		{"CatalogRecordsTotal", CatalogRecordsTotal},
		{"FilesystemRetryAttempts", FilesystemRetryAttempts},
		{"WatcherEventsTotal", WatcherEventsTotal},
		{"HTTPRequestsTotal", HTTPRequestsTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()

	if n := testutil.CollectAndCount(ConversionsTotal); n < 8 {
		t.Errorf("Expected at least 8 conversion series, got %d", n)
	}
	if n := testutil.CollectAndCount(WorkerPoolTasksTotal); n < 12 {
		t.Errorf("Expected at least 12 pool task series, got %d", n)
	}
}

type fakeStats struct {
	stats Stats
	err   error
}

func (f fakeStats) GetStats() (Stats, error) { return f.stats, f.err }

func TestCollectorCollect(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	if err := os.WriteFile(dbPath, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCollector(fakeStats{stats: Stats{TotalImages: 3, TotalVideos: 2, UnknownDate: 1, Converted: 4, TotalRecords: 5}}, dbPath, 0)
	c.collect()

	if got := testutil.ToFloat64(CatalogRecordsTotal.WithLabelValues("image")); got != 3 {
		t.Errorf("Expected 3 images, got %v", got)
	}
	if got := testutil.ToFloat64(CatalogRecordsTotal.WithLabelValues("video")); got != 2 {
		t.Errorf("Expected 2 videos, got %v", got)
	}
	if got := testutil.ToFloat64(CatalogConvertedRecords); got != 4 {
		t.Errorf("Expected 4 converted, got %v", got)
	}
	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("main")); got != 2048 {
		t.Errorf("Expected db size 2048, got %v", got)
	}
	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("wal")); got != 0 {
		t.Errorf("Expected missing wal size 0, got %v", got)
	}
}

func TestCollectorKeepsGaugesOnError(t *testing.T) {
	CatalogUnknownDateRecords.Set(7)
	c := NewCollector(fakeStats{err: errors.New("boom")}, "", 0)
	c.collect()

	if got := testutil.ToFloat64(CatalogUnknownDateRecords); got != 7 {
		t.Errorf("Expected gauge unchanged at 7, got %v", got)
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.0.0", "abc123", "go1.25")
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.0.0", "abc123", "go1.25")); got != 1 {
		t.Errorf("Expected app info gauge 1, got %v", got)
	}
}
