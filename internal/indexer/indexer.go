package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"media-compressor/internal/catalog"
	"media-compressor/internal/extractor"
	"media-compressor/internal/filesystem"
	"media-compressor/internal/logging"
	"media-compressor/internal/metrics"
	"media-compressor/internal/probe"
	"media-compressor/internal/scanner"
	"media-compressor/internal/settings"
	"media-compressor/internal/workers"
)

// Indexer runs the indexing stage of a pipeline run.
type Indexer struct {
	catalog  *catalog.Catalog
	settings *settings.Settings
	prober   probe.Prober
	loc      *time.Location
	stop     *workers.StopFlag
	scanner  *scanner.Scanner
	detector *Detector
	log      *logging.Logger

	runMu     sync.Mutex
	indexTime time.Time

	// Progress tracking
	filesTotal    atomic.Int64
	filesDone     atomic.Int64
	indexProgress atomic.Value
}

// IndexProgress tracks the current indexing progress.
type IndexProgress struct {
	Phase      string    `json:"phase"`
	FilesTotal int64     `json:"filesTotal"`
	FilesDone  int64     `json:"filesDone"`
	IsIndexing bool      `json:"isIndexing"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

// Result summarizes one indexing run.
type Result struct {
	Scanned      int `json:"scanned"`
	Indexed      int `json:"indexed"`
	Reindexed    int `json:"reindexed"`
	Unchanged    int `json:"unchanged"`
	Rejected     int `json:"rejected"`
	Failed       int `json:"failed"`
	StaleRemoved int `json:"staleRemoved"`
	// Paths lists every scanned path, indexed or not. Targeted runs convert
	// exactly these.
	Paths []string `json:"-"`
}

// New creates an indexer. The settings must not change while it runs.
func New(cat *catalog.Catalog, st *settings.Settings, prober probe.Prober, stop *workers.StopFlag) (*Indexer, error) {
	loc, err := st.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid capture_time_zone: %w", err)
	}
	if stop == nil {
		stop = workers.NewStopFlag()
	}
	idx := &Indexer{
		catalog:  cat,
		settings: st,
		prober:   prober,
		loc:      loc,
		stop:     stop,
		scanner:  scanner.New(st, stop),
		detector: NewDetector(cat, st, stop),
		log:      logging.WithSource("Indexer"),
	}
	idx.indexProgress.Store(IndexProgress{})
	return idx, nil
}

// Run indexes the whole monitored directory: scan, remove stale records,
// flag changes, then extract.
func (idx *Indexer) Run(ctx context.Context) (Result, error) {
	return idx.run(ctx, func(res *Result) ([]*scanner.ScannedFile, error) {
		files, unreadable, err := idx.scanner.Scan(idx.settings.MonitoredDir)
		if err != nil {
			return nil, err
		}
		if idx.stop.IsSet() {
			return files, nil
		}

		idx.setPhase("removing stale records")
		res.StaleRemoved, err = idx.detector.RemoveStale(ctx, files, unreadable)
		return files, err
	})
}

// RunPaths indexes only the files related to the given changed paths.
// Paths that no longer match any file have their records removed.
func (idx *Indexer) RunPaths(ctx context.Context, paths []string) (Result, error) {
	return idx.run(ctx, func(res *Result) ([]*scanner.ScannedFile, error) {
		files, deleted, err := idx.scanner.ScanPaths(paths)
		if err != nil {
			return nil, err
		}
		if idx.stop.IsSet() {
			return files, nil
		}

		idx.setPhase("removing deleted records")
		res.StaleRemoved, err = idx.detector.RemoveDeleted(ctx, deleted)
		return files, err
	})
}

func (idx *Indexer) run(ctx context.Context, scan func(*Result) ([]*scanner.ScannedFile, error)) (res Result, err error) {
	idx.runMu.Lock()
	defer idx.runMu.Unlock()

	startTime := time.Now()
	metrics.IndexerIsRunning.Set(1)
	metrics.IndexerRunsTotal.Inc()
	defer func() {
		metrics.IndexerIsRunning.Set(0)
		metrics.IndexerLastRunDuration.Set(time.Since(startTime).Seconds())
		idx.indexProgress.Store(IndexProgress{
			Phase:      "idle",
			FilesTotal: idx.filesTotal.Load(),
			FilesDone:  idx.filesDone.Load(),
		})
	}()

	idx.indexTime = time.Now().UTC()
	idx.filesTotal.Store(0)
	idx.filesDone.Store(0)
	idx.indexProgress.Store(IndexProgress{Phase: "scanning", IsIndexing: true, StartedAt: startTime})

	files, err := scan(&res)
	if err != nil {
		return res, err
	}
	res.Scanned = len(files)
	res.Paths = make([]string, len(files))
	for i, f := range files {
		res.Paths[i] = f.Path
	}
	if idx.stop.IsSet() {
		idx.log.Info("Indexing stopped after scan")
		return res, nil
	}

	idx.setPhase("detecting changes")
	byPath, err := idx.catalog.ByPath(ctx)
	if err != nil {
		return res, err
	}
	idx.detector.MarkAlreadyIndexed(byPath, files)
	if idx.stop.IsSet() {
		return res, nil
	}

	idx.filesTotal.Store(int64(len(files)))
	idx.setPhase("extracting metadata")
	if err := idx.extract(ctx, files, &res); err != nil {
		return res, err
	}

	idx.log.Info("Index complete: %d scanned, %d indexed, %d re-indexed, %d unchanged, %d rejected, %d failed, %d stale removed in %v",
		res.Scanned, res.Indexed, res.Reindexed, res.Unchanged, res.Rejected, res.Failed, res.StaleRemoved,
		time.Since(startTime).Round(time.Millisecond))
	return res, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeIndexed
	outcomeReindexed
	outcomeRejected
)

func (idx *Indexer) extract(ctx context.Context, files []*scanner.ScannedFile, res *Result) error {
	idx.log.Info("BEGIN:: Metadata extraction and indexing")
	pool := workers.New(ctx, workers.Options{
		Name:        "IndexingWorker",
		MetricLabel: "indexing",
		Workers:     idx.settings.IndexingWorkers,
		Stop:        idx.stop,
		Init:        idx.initWorker,
		Term:        idx.termWorker,
	}, idx.indexFile)

	outcomes, err := pool.SubmitAndWait(files)
	for _, o := range outcomes {
		switch o {
		case outcomeUnchanged:
			res.Unchanged++
		case outcomeIndexed:
			res.Indexed++
		case outcomeReindexed:
			res.Reindexed++
		case outcomeRejected:
			res.Rejected++
		}
	}
	res.Failed = int(idx.filesDone.Load()) - len(outcomes)
	idx.log.Info("END:: Metadata extraction and indexing")
	return err
}

type workerState struct {
	session   probe.Session
	extractor *extractor.Extractor
}

func (idx *Indexer) initWorker(w *workers.Worker) error {
	session, err := probe.OpenSession(w.Ctx, idx.prober)
	if err != nil {
		return err
	}
	w.State = &workerState{
		session:   session,
		extractor: extractor.New(session, idx.loc, w.Log),
	}
	return nil
}

func (idx *Indexer) termWorker(w *workers.Worker) {
	if st, ok := w.State.(*workerState); ok {
		if err := st.session.Close(); err != nil {
			w.Log.Warn("Failed to close probe session: %v", err)
		}
	}
}

// indexFile is the per-file task. Catalog failures are returned as is so
// the pool aborts the run.
func (idx *Indexer) indexFile(w *workers.Worker, taskID string, sf *scanner.ScannedFile) (outcome, bool, error) {
	defer idx.filesDone.Add(1)

	if !sf.NeedsIndexing() {
		w.Log.Debug("Indexing Skipped %s: %s", taskID, sf.Path)
		metrics.IndexerFilesTotal.WithLabelValues("unchanged").Inc()
		return outcomeUnchanged, true, nil
	}

	var existing *catalog.Record
	if sf.NeedsReindex {
		rec, err := idx.catalog.Get(w.Ctx, sf.Path)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
		case err != nil:
			return 0, false, err
		default:
			existing = rec
			idx.removeOldOutput(w, rec)
		}
	}

	state := w.State.(*workerState)
	rec, err := state.extractor.CreateRecord(w.Ctx, idx.indexTime, sf, existing)
	if errors.Is(err, extractor.ErrSkippableFile) {
		w.Log.Warn("Indexing Rejected %s: %v", taskID, err)
		metrics.IndexerFilesTotal.WithLabelValues("rejected").Inc()
		return outcomeRejected, true, nil
	}
	if err != nil {
		metrics.IndexerFilesTotal.WithLabelValues("error").Inc()
		return 0, false, fmt.Errorf("indexing failed for %s: %w", sf.Path, err)
	}

	if err := idx.catalog.Upsert(w.Ctx, rec); err != nil {
		metrics.IndexerFilesTotal.WithLabelValues("error").Inc()
		return 0, false, err
	}

	w.Log.Info("Indexed Successfully %s: %s", taskID, sf.Path)
	if existing != nil {
		metrics.IndexerFilesTotal.WithLabelValues("reindexed").Inc()
		return outcomeReindexed, true, nil
	}
	metrics.IndexerFilesTotal.WithLabelValues("indexed").Inc()
	return outcomeIndexed, true, nil
}

// removeOldOutput deletes the output of a modified file; new dimensions or
// rotation change what the conversion produces.
func (idx *Indexer) removeOldOutput(w *workers.Worker, rec *catalog.Record) {
	output := idx.settings.OutputPath(rec.HasCaptureDate(), rec.OutputRelPath)
	if output == "" {
		return
	}
	removed, err := filesystem.RemoveIfExists(output)
	switch {
	case err != nil:
		w.Log.Warn("Failed to delete old output file %s for %s: %v", output, rec.Path, err)
	case removed:
		w.Log.Info("Deleted old output file %s for %s", output, rec.Path)
	}
}

func (idx *Indexer) setPhase(phase string) {
	p := idx.GetProgress()
	p.Phase = phase
	p.IsIndexing = true
	idx.indexProgress.Store(p)
}

// GetProgress returns the progress of the current or last run.
func (idx *Indexer) GetProgress() IndexProgress {
	p, _ := idx.indexProgress.Load().(IndexProgress)
	p.FilesTotal = idx.filesTotal.Load()
	p.FilesDone = idx.filesDone.Load()
	return p
}
