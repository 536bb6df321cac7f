package metrics

import (
	"os"
	"time"

	"media-compressor/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() (Stats, error)
}

// Stats holds the current catalog statistics
type Stats struct {
	TotalImages  int
	TotalVideos  int
	UnknownDate  int
	Converted    int
	TotalRecords int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectDBSize()

	if c.statsProvider == nil {
		return
	}

	stats, err := c.statsProvider.GetStats()
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	CatalogRecordsTotal.WithLabelValues("image").Set(float64(stats.TotalImages))
	CatalogRecordsTotal.WithLabelValues("video").Set(float64(stats.TotalVideos))
	CatalogUnknownDateRecords.Set(float64(stats.UnknownDate))
	CatalogConvertedRecords.Set(float64(stats.Converted))

	logging.Debug("Metrics collected: records=%d, images=%d, videos=%d, unknown_date=%d, converted=%d",
		stats.TotalRecords, stats.TotalImages, stats.TotalVideos, stats.UnknownDate, stats.Converted)
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}
	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		if info, err := os.Stat(c.dbPath + suffix); err == nil {
			DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
		} else {
			DBSizeBytes.WithLabelValues(label).Set(0)
		}
	}
}
