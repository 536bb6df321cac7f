package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-compressor/internal/catalog"
	"media-compressor/internal/converter"
	"media-compressor/internal/filesystem"
	"media-compressor/internal/indexer"
	"media-compressor/internal/logging"
	"media-compressor/internal/metrics"
	"media-compressor/internal/probe"
	"media-compressor/internal/settings"
	"media-compressor/internal/transcoder"
	"media-compressor/internal/watcher"
	"media-compressor/internal/workers"
)

// ErrBusy is returned when an operation is requested while another one is
// in progress.
var ErrBusy = errors.New("pipeline is busy")

// Stage names what the controller is doing.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageIndexing       Stage = "indexing"
	StageConverting     Stage = "converting"
	StageCleaning       Stage = "cleaning"
	StageClearingIndex  Stage = "clearing_index"
	StageClearingOutput Stage = "clearing_output"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerWatcher  Trigger = "watcher"
)

// Run outcomes.
const (
	OutcomeFinished = "finished"
	OutcomeStopped  = "stopped"
	OutcomeRefused  = "refused"
	OutcomeFailed   = "failed"
)

// SettingsSource loads the settings for one run.
type SettingsSource interface {
	Load() (*settings.Settings, error)
}

// Options configures a Controller.
type Options struct {
	Catalog  *catalog.Catalog
	Settings SettingsSource
	// Runner executes the encoders and, for the exiftool prober, the
	// metadata probe.
	Runner transcoder.Runner
	// NewProber builds the metadata prober for a run. Defaults to NewProber.
	NewProber func(st *settings.Settings, runner transcoder.Runner) probe.Prober
}

// RunResult describes a finished run.
type RunResult struct {
	ID               string           `json:"id"`
	Trigger          Trigger          `json:"trigger"`
	Targeted         bool             `json:"targeted"`
	StartedAt        time.Time        `json:"startedAt"`
	FinishedAt       time.Time        `json:"finishedAt"`
	Outcome          string           `json:"outcome"`
	Error            string           `json:"error,omitempty"`
	Index            indexer.Result   `json:"index"`
	Conversion       converter.Result `json:"conversion"`
	EmptyDirsRemoved int              `json:"emptyDirsRemoved"`
}

// Status is a snapshot of the controller.
type Status struct {
	Busy          bool                   `json:"busy"`
	Stage         Stage                  `json:"stage"`
	RunID         string                 `json:"runId,omitempty"`
	StartedAt     time.Time              `json:"startedAt,omitempty"`
	StopRequested bool                   `json:"stopRequested"`
	Indexing      *indexer.IndexProgress `json:"indexing,omitempty"`
	Conversion    *converter.Progress    `json:"conversion,omitempty"`
	LastRun       *RunResult             `json:"lastRun,omitempty"`
}

// Controller sequences pipeline runs and the maintenance operations. At
// most one operation is in progress at a time.
type Controller struct {
	ctx       context.Context
	catalog   *catalog.Catalog
	settings  SettingsSource
	runner    transcoder.Runner
	newProber func(st *settings.Settings, runner transcoder.Runner) probe.Prober
	log       *logging.Logger

	mu        sync.Mutex
	busy      bool
	stage     Stage
	runID     string
	startedAt time.Time
	stop      *workers.StopFlag
	indexer   *indexer.Indexer
	engine    *converter.Engine
	lastRun   *RunResult

	background sync.WaitGroup
}

// New creates a controller. Background operations started with the Start*
// methods run under ctx; cancelling it kills running encoders.
func New(ctx context.Context, opts Options) *Controller {
	if opts.NewProber == nil {
		opts.NewProber = NewProber
	}
	return &Controller{
		ctx:       ctx,
		catalog:   opts.Catalog,
		settings:  opts.Settings,
		runner:    opts.Runner,
		newProber: opts.NewProber,
		log:       logging.WithSource("Pipeline"),
		stage:     StageIdle,
	}
}

// NewProber returns the metadata prober selected by st.
func NewProber(st *settings.Settings, runner transcoder.Runner) probe.Prober {
	if st.MetadataProbe == settings.ProbeNative {
		return probe.NewNative()
	}
	return probe.NewExiftool(st.PathExiftool, runner)
}

// begin claims the controller for an operation.
func (c *Controller) begin(stage Stage) (*workers.StopFlag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, ErrBusy
	}
	c.busy = true
	c.stage = stage
	c.runID = uuid.NewString()
	c.startedAt = time.Now()
	c.stop = workers.NewStopFlag()
	c.indexer = nil
	c.engine = nil
	return c.stop, nil
}

func (c *Controller) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.stage = StageIdle
}

func (c *Controller) setStage(stage Stage) {
	c.mu.Lock()
	c.stage = stage
	c.mu.Unlock()
}

// Run performs a full run and blocks until it ends. A run refused because
// of invalid settings returns a *settings.ConfigError.
func (c *Controller) Run(ctx context.Context, trigger Trigger) (RunResult, error) {
	stop, err := c.begin(StageIndexing)
	if err != nil {
		return RunResult{}, err
	}
	defer c.end()
	return c.execute(ctx, stop, trigger, nil)
}

// RunPaths performs a run limited to the files related to paths.
func (c *Controller) RunPaths(ctx context.Context, trigger Trigger, paths []string) (RunResult, error) {
	stop, err := c.begin(StageIndexing)
	if err != nil {
		return RunResult{}, err
	}
	defer c.end()
	return c.execute(ctx, stop, trigger, nonNil(paths))
}

// StartRun starts a full run in the background.
func (c *Controller) StartRun(trigger Trigger) error {
	return c.launch(StageIndexing, func(stop *workers.StopFlag) {
		c.execute(c.ctx, stop, trigger, nil)
	})
}

// StartTargetedRun starts a run limited to the files related to paths.
func (c *Controller) StartTargetedRun(trigger Trigger, paths []string) error {
	paths = nonNil(paths)
	return c.launch(StageIndexing, func(stop *workers.StopFlag) {
		c.execute(c.ctx, stop, trigger, paths)
	})
}

// HandleChanges starts a run for a batch of watched changes. It returns
// ErrBusy while another operation runs so the watcher retries later.
func (c *Controller) HandleChanges(b watcher.Batch) error {
	if b.Full {
		return c.StartRun(TriggerWatcher)
	}
	if len(b.Paths) == 0 {
		return nil
	}
	return c.StartTargetedRun(TriggerWatcher, b.Paths)
}

// StartClearIndex clears the catalog and the output trees in the
// background.
func (c *Controller) StartClearIndex() error {
	return c.launch(StageClearingIndex, func(*workers.StopFlag) {
		if _, err := c.clearIndex(c.ctx); err != nil {
			c.log.Error("Failed to clear index: %v", err)
		}
	})
}

// StartClearOutputDirs clears both output trees in the background.
func (c *Controller) StartClearOutputDirs() error {
	return c.launch(StageClearingOutput, func(*workers.StopFlag) {
		if err := c.clearOutputDirs(); err != nil {
			c.log.Error("Failed to clear output directories: %v", err)
		}
	})
}

func (c *Controller) launch(stage Stage, fn func(stop *workers.StopFlag)) error {
	stop, err := c.begin(stage)
	if err != nil {
		return err
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer c.end()
		fn(stop)
	}()
	return nil
}

// Wait blocks until every background operation has returned.
func (c *Controller) Wait() {
	c.background.Wait()
}

// RequestStop raises the stop flag of the running operation. It never
// blocks and reports whether a run was in progress.
func (c *Controller) RequestStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy || c.stop == nil {
		return false
	}
	if !c.stop.IsSet() {
		c.log.Info("Stop requested")
	}
	c.stop.Set()
	return true
}

// ClearIndex deletes every catalog record together with the output trees
// they point into, and returns the number of records removed.
func (c *Controller) ClearIndex(ctx context.Context) (int64, error) {
	if _, err := c.begin(StageClearingIndex); err != nil {
		return 0, err
	}
	defer c.end()
	return c.clearIndex(ctx)
}

// ClearOutputDirs deletes everything below both output roots.
func (c *Controller) ClearOutputDirs() error {
	if _, err := c.begin(StageClearingOutput); err != nil {
		return err
	}
	defer c.end()
	return c.clearOutputDirs()
}

func (c *Controller) clearIndex(ctx context.Context) (int64, error) {
	n, err := c.catalog.Clear(ctx)
	if err != nil {
		return 0, err
	}
	c.log.Info("Index cleared (%d records)", n)
	return n, c.clearOutputDirs()
}

func (c *Controller) clearOutputDirs() error {
	st, err := c.settings.Load()
	if err != nil {
		return err
	}
	err = errors.Join(filesystem.ClearDir(st.OutputDir), filesystem.ClearDir(st.UnknownOutputDir))
	if err != nil {
		return err
	}
	c.log.Info("Output directories cleared")
	return nil
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Busy:          c.busy,
		Stage:         c.stage,
		StopRequested: c.busy && c.stop.IsSet(),
	}
	if c.busy {
		s.RunID = c.runID
		s.StartedAt = c.startedAt
	}
	if c.indexer != nil {
		p := c.indexer.GetProgress()
		s.Indexing = &p
	}
	if c.engine != nil {
		p := c.engine.GetProgress()
		s.Conversion = &p
	}
	if c.lastRun != nil {
		last := *c.lastRun
		s.LastRun = &last
	}
	return s
}

// execute runs the stages. paths is nil for a full run.
func (c *Controller) execute(ctx context.Context, stop *workers.StopFlag, trigger Trigger, paths []string) (res RunResult, err error) {
	c.mu.Lock()
	res = RunResult{ID: c.runID, Trigger: trigger, Targeted: paths != nil, StartedAt: c.startedAt}
	c.mu.Unlock()

	metrics.PipelineIsRunning.Set(1)
	defer func() {
		res.FinishedAt = time.Now()
		switch {
		case err != nil && isConfigError(err):
			res.Outcome = OutcomeRefused
		case err != nil:
			res.Outcome = OutcomeFailed
		case stop.IsSet():
			res.Outcome = OutcomeStopped
		default:
			res.Outcome = OutcomeFinished
		}
		if err != nil {
			res.Error = err.Error()
			c.log.Error("Run %s %s: %v", res.ID, res.Outcome, err)
		} else {
			c.log.Info("Run %s %s in %v", res.ID, res.Outcome, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
		}

		metrics.PipelineIsRunning.Set(0)
		metrics.PipelineRunsTotal.WithLabelValues(string(trigger), res.Outcome).Inc()
		metrics.PipelineLastRunDuration.Set(res.FinishedAt.Sub(res.StartedAt).Seconds())
		metrics.PipelineLastRunTimestamp.Set(float64(res.FinishedAt.Unix()))

		c.mu.Lock()
		last := res
		c.lastRun = &last
		c.mu.Unlock()
	}()

	st, err := c.settings.Load()
	if err != nil {
		return res, fmt.Errorf("failed to load settings: %w", err)
	}
	if err := st.Validate(); err != nil {
		return res, err
	}
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"monitored":      st.MonitoredDir,
		"output":         st.OutputDir,
		"unknown_output": st.UnknownOutputDir,
	}))
	if err := createRootMarker(st); err != nil {
		return res, err
	}
	if cleaner, ok := c.runner.(interface{ Cleanup() }); ok {
		defer cleaner.Cleanup()
	}

	c.log.Info("Starting %s run %s", trigger, res.ID)

	idx, err := indexer.New(c.catalog, st, c.newProber(st, c.runner), stop)
	if err != nil {
		return res, err
	}
	c.mu.Lock()
	c.indexer = idx
	c.mu.Unlock()

	err = c.timeStage(StageIndexing, func() (err error) {
		if paths == nil {
			res.Index, err = idx.Run(ctx)
		} else {
			res.Index, err = idx.RunPaths(ctx, paths)
		}
		return err
	})
	if err != nil || stop.IsSet() {
		return res, err
	}

	engine := converter.New(c.catalog, st, c.runner, stop)
	c.mu.Lock()
	c.engine = engine
	c.mu.Unlock()

	var targets []string
	if paths != nil {
		targets = nonNil(res.Index.Paths)
	}
	err = c.timeStage(StageConverting, func() (err error) {
		res.Conversion, err = engine.SaveProcessedFiles(ctx, targets)
		return err
	})
	if err != nil || stop.IsSet() {
		return res, err
	}

	err = c.timeStage(StageCleaning, func() error {
		c.log.Info("BEGIN:: Deletion of empty output dirs")
		defer c.log.Info("END:: Deletion of empty output dirs")
		for _, root := range []string{st.OutputDir, st.UnknownOutputDir} {
			n, err := filesystem.CleanEmptyDirs(root)
			res.EmptyDirsRemoved += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	return res, err
}

func (c *Controller) timeStage(stage Stage, fn func() error) error {
	c.setStage(stage)
	start := time.Now()
	err := fn()
	metrics.PipelineStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	return err
}

// createRootMarker makes sure both output roots exist.
func createRootMarker(st *settings.Settings) error {
	for _, dir := range []string{st.OutputDir, st.UnknownOutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output root %s: %w", dir, err)
		}
	}
	return nil
}

func isConfigError(err error) bool {
	var cerr *settings.ConfigError
	return errors.As(err, &cerr)
}

// nonNil keeps an empty path list distinct from "everything".
func nonNil(paths []string) []string {
	if paths == nil {
		return []string{}
	}
	return paths
}
