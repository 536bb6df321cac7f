package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc"

	"media-compressor/internal/catalog"
	"media-compressor/internal/filesystem"
	"media-compressor/internal/logging"
	"media-compressor/internal/mediatypes"
	"media-compressor/internal/metrics"
	"media-compressor/internal/settings"
	"media-compressor/internal/transcoder"
	"media-compressor/internal/workers"
)

// Tools returns the external tool paths configured in st.
func Tools(st *settings.Settings) transcoder.Tools {
	return transcoder.Tools{
		FFmpeg:   st.PathFFmpeg,
		Magick:   st.PathMagick,
		Exiftool: st.PathExiftool,
	}
}

// Params returns the conversion parameters configured in st.
func Params(st *settings.Settings) transcoder.Params {
	return transcoder.Params{
		ImageQuality:      st.ImageCompressionQuality,
		ImageMaxDimension: st.ImageMaxDimension,
		VideoMaxDimension: st.VideoMaxDimension,
		VideoCRF:          st.VideoCRF,
		NVENCPreset:       st.VideoNVENCPreset,
		AudioBitrate:      st.VideoAudioBitrate,
	}
}

// Engine converts cataloged originals into the output trees.
type Engine struct {
	catalog    *catalog.Catalog
	settings   *settings.Settings
	transcoder *transcoder.Transcoder
	params     transcoder.Params
	stop       *workers.StopFlag
	log        *logging.Logger

	// allocMu serializes output path allocation and placeholder creation.
	allocMu sync.Mutex

	filesTotal atomic.Int64
	filesDone  atomic.Int64
}

// Result summarizes one conversion stage.
type Result struct {
	Converted   int `json:"converted"`
	Skipped     int `json:"skipped"`
	UnknownDate int `json:"unknownDate"`
	Failed      int `json:"failed"`
}

// Progress reports how many conversion tasks have been acknowledged.
type Progress struct {
	FilesTotal int64 `json:"filesTotal"`
	FilesDone  int64 `json:"filesDone"`
}

// New creates an engine running external tools through runner. The
// settings must not change while it runs.
func New(cat *catalog.Catalog, st *settings.Settings, runner transcoder.Runner, stop *workers.StopFlag) *Engine {
	if stop == nil {
		stop = workers.NewStopFlag()
	}
	params := Params(st)
	return &Engine{
		catalog:    cat,
		settings:   st,
		transcoder: transcoder.New(runner, Tools(st), params),
		params:     params,
		stop:       stop,
		log:        logging.WithSource("MediaProcessor"),
	}
}

type job struct {
	path   string
	device int
}

type outcome int

const (
	outcomeConverted outcome = iota
	outcomeSkipped
	outcomeUnknownDate
)

// SaveProcessedFiles converts the cataloged records, or only those whose
// paths are listed when paths is non-nil. With GPUs configured, images run
// on the CPU pool while videos are spread round-robin over the GPU pool;
// both pools run at the same time.
func (e *Engine) SaveProcessedFiles(ctx context.Context, paths []string) (Result, error) {
	var res Result
	e.log.Info("BEGIN:: Media file conversion")
	defer e.log.Info("END:: Media file conversion")

	e.filesTotal.Store(0)
	e.filesDone.Store(0)

	records, err := e.catalog.List(ctx, paths)
	if err != nil {
		return res, err
	}
	if len(records) == 0 {
		e.log.Info("No media files found in the catalog")
		return res, nil
	}

	var cpuJobs, gpuJobs []job
	// Validate rejects gpu_count > 0 without GPU workers; settings built
	// in code skip it, so an empty GPU pool falls back to the CPU.
	gpuCount := e.settings.GPUCount
	if e.settings.GPUWorkers < 1 {
		gpuCount = 0
	}
	for _, rec := range records {
		switch {
		case rec.Kind != mediatypes.KindImage && rec.Kind != mediatypes.KindVideo:
			e.log.Warn("Media file type %q is not supported: %s", rec.Kind, rec.Path)
		case gpuCount > 0 && rec.Kind == mediatypes.KindVideo:
			gpuJobs = append(gpuJobs, job{path: rec.Path, device: len(gpuJobs) % gpuCount})
		default:
			cpuJobs = append(cpuJobs, job{path: rec.Path, device: transcoder.CPUDevice})
		}
	}
	e.filesTotal.Store(int64(len(cpuJobs) + len(gpuJobs)))

	var (
		wg         conc.WaitGroup
		cpuResults []outcome
		gpuResults []outcome
		cpuErr     error
		gpuErr     error
	)
	if len(cpuJobs) > 0 {
		wg.Go(func() {
			cpuResults, cpuErr = e.runPool(ctx, "CPUConversionWorker", "conversion_cpu", e.settings.ConversionWorkers, cpuJobs)
		})
	}
	if len(gpuJobs) > 0 {
		wg.Go(func() {
			gpuResults, gpuErr = e.runPool(ctx, "GPUConversionWorker", "conversion_gpu", gpuCount*e.settings.GPUWorkers, gpuJobs)
		})
	}
	wg.Wait()

	for _, o := range append(cpuResults, gpuResults...) {
		switch o {
		case outcomeConverted:
			res.Converted++
		case outcomeSkipped:
			res.Skipped++
		case outcomeUnknownDate:
			res.UnknownDate++
		}
	}
	res.Failed = int(e.filesDone.Load()) - len(cpuResults) - len(gpuResults)

	e.log.Info("Conversion complete: %d converted, %d skipped, %d unknown date, %d failed",
		res.Converted, res.Skipped, res.UnknownDate, res.Failed)
	return res, errors.Join(cpuErr, gpuErr)
}

func (e *Engine) runPool(ctx context.Context, name, label string, n int, jobs []job) ([]outcome, error) {
	pool := workers.New(ctx, workers.Options{
		Name:        name,
		MetricLabel: label,
		Workers:     n,
		Stop:        e.stop,
	}, e.convertFile)
	return pool.SubmitAndWait(jobs)
}

// convertFile is the per-record task. The record is re-read so every task
// works on its own copy.
func (e *Engine) convertFile(w *workers.Worker, taskID string, j job) (outcome, bool, error) {
	defer e.filesDone.Add(1)
	start := time.Now()

	rec, err := e.catalog.Get(w.Ctx, j.path)
	if errors.Is(err, catalog.ErrNotFound) {
		w.Log.Warn("Record vanished before conversion %s: %s", taskID, j.path)
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	kind := string(rec.Kind)
	if !rec.HasCaptureDate() && !e.settings.ConvertUnknown {
		e.deleteGatedOutput(w, taskID, rec)
		metrics.ConversionsTotal.WithLabelValues(kind, "unknown_date").Inc()
		return outcomeUnknownDate, true, nil
	}

	output, err := e.allocate(w.Ctx, rec)
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues(kind, "error").Inc()
		return 0, false, fmt.Errorf("failed processing %s: %w", rec.Path, err)
	}

	settingsHash := SettingsHash(rec.Kind, e.params, j.device != transcoder.CPUDevice)
	if e.upToDate(w, rec, output, settingsHash) {
		w.Log.Info("Skipped Conversion %s: %s -> %s", taskID, rec.Path, output)
		metrics.ConversionsTotal.WithLabelValues(kind, "skipped").Inc()
		return outcomeSkipped, true, nil
	}

	convertedHash, err := e.convert(w.Ctx, rec, output, j.device)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues(kind, "error").Inc()
		return 0, false, fmt.Errorf("failed processing %s -> %s (%.2fs): %w", rec.Path, output, elapsed.Seconds(), err)
	}

	if err := e.catalog.SetConversion(w.Ctx, rec.Path, convertedHash, settingsHash); err != nil {
		return 0, false, err
	}

	size := outputSize(output)
	ratio := 0.0
	if rec.OriginalSize > 0 {
		ratio = float64(size) / float64(rec.OriginalSize)
	}
	device := "cpu"
	if j.device != transcoder.CPUDevice {
		device = "gpu"
	}
	metrics.ConversionsTotal.WithLabelValues(kind, "converted").Inc()
	metrics.ConversionDuration.WithLabelValues(kind, device).Observe(elapsed.Seconds())
	metrics.ConversionSizeRatio.WithLabelValues(kind).Observe(ratio)
	w.Log.Info("Converted %s: %s -> %s (%s -> %s, %.2f%%) (%.2fs)", taskID, rec.Path, output,
		humanize.IBytes(uint64(max(rec.OriginalSize, 0))), humanize.IBytes(uint64(size)), ratio*100, elapsed.Seconds())
	return outcomeConverted, true, nil
}

// deleteGatedOutput removes the output of an unknown-date record whose
// conversion is disabled. No path is allocated for it.
func (e *Engine) deleteGatedOutput(w *workers.Worker, taskID string, rec *catalog.Record) {
	output := e.settings.OutputPath(false, rec.OutputRelPath)
	if output == "" {
		w.Log.Debug("Skipped Conversion %s: %s has no capture date", taskID, rec.Path)
		return
	}
	removed, err := filesystem.RemoveIfExists(output)
	switch {
	case err != nil:
		w.Log.Warn("Failed to delete converted file %s: %v", output, err)
	case removed:
		w.Log.Info("Deleted Converted File %s: %s -> %s", taskID, rec.Path, output)
	default:
		w.Log.Debug("Skipped Conversion %s: %s has no capture date", taskID, rec.Path)
	}
}

// allocate returns the absolute output path for rec. A stored relative
// path is reused; otherwise a free name is chosen, reserved on disk and
// persisted before the lock is released.
func (e *Engine) allocate(ctx context.Context, rec *catalog.Record) (string, error) {
	e.allocMu.Lock()
	defer e.allocMu.Unlock()

	hasDate := rec.HasCaptureDate()
	if rec.OutputRelPath != "" {
		output := e.settings.OutputPath(hasDate, rec.OutputRelPath)
		if err := filesystem.Reserve(output); err != nil {
			return "", err
		}
		return output, nil
	}

	root, _ := e.settings.OutputRoot(hasDate)
	relTo := func(output string) (string, error) {
		rel, err := filepath.Rel(root, output)
		if err != nil {
			return "", fmt.Errorf("failed to relate %s to %s: %w", output, root, err)
		}
		return filepath.ToSlash(rel), nil
	}

	dir := saveDir(e.settings, rec)
	ownedByOther := func(name string) (bool, error) {
		rel, err := relTo(filepath.Join(dir, name))
		if err != nil {
			return false, err
		}
		other, err := e.catalog.GetByOutputRelPath(ctx, rel, hasDate)
		if errors.Is(err, catalog.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return other.Path != rec.Path, nil
	}
	name, err := freeName(dir, baseName(e.settings, rec), mediatypes.OutputExtension(rec.Kind), ownedByOther)
	if err != nil {
		return "", err
	}
	output := filepath.Join(dir, name)
	if err := filesystem.Reserve(output); err != nil {
		return "", err
	}

	rel, err := relTo(output)
	if err != nil {
		return "", err
	}
	if err := e.catalog.SetOutputRelPath(ctx, rec.Path, rel); err != nil {
		return "", err
	}
	rec.OutputRelPath = rel
	return output, nil
}

// upToDate reports a cache hit: the output exists, its content matches
// the stored converted hash and it was made with the current settings.
func (e *Engine) upToDate(w *workers.Worker, rec *catalog.Record, output, settingsHash string) bool {
	if e.settings.OverwriteOutputFiles || rec.ConvertedHash == "" || rec.SettingsHash != settingsHash {
		return false
	}
	hash, err := filesystem.HashFile(output)
	if err != nil {
		w.Log.Warn("Failed to hash output %s: %v", output, err)
		return false
	}
	return hash == rec.ConvertedHash
}

// convert runs the encoder and the metadata copy, then hashes the output.
func (e *Engine) convert(ctx context.Context, rec *catalog.Record, output string, device int) (string, error) {
	metrics.ConversionsInProgress.Inc()
	defer metrics.ConversionsInProgress.Dec()

	var err error
	switch rec.Kind {
	case mediatypes.KindImage:
		err = e.transcoder.ConvertImage(ctx, rec.Path, output, rec.Width, rec.Height)
	case mediatypes.KindVideo:
		err = e.transcoder.ConvertVideo(ctx, rec.Path, output, rec.Width, rec.Height, device)
	default:
		err = fmt.Errorf("media file type %q is not supported", rec.Kind)
	}
	if err != nil {
		return "", err
	}
	if err := e.transcoder.CopyMetadata(ctx, rec.Path, output, rec.VideoRotation); err != nil {
		return "", err
	}
	return filesystem.HashFile(output)
}

// outputSize returns the size of a freshly written output, or 0.
func outputSize(output string) int64 {
	info, err := os.Stat(output)
	if err != nil {
		return 0
	}
	return info.Size()
}

// GetProgress returns the task counters of the current or last stage.
func (e *Engine) GetProgress() Progress {
	return Progress{FilesTotal: e.filesTotal.Load(), FilesDone: e.filesDone.Load()}
}
